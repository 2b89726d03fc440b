package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/evdms/dealer-backend/pkg/logger"
	"github.com/evdms/dealer-backend/pkg/redis"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Level: zerolog.Disabled, Output: io.Discard})
}

type fakeLock struct {
	acquired bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.acquired = false; return nil }

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	logg := testLogger()
	registry := NewRegistry(&testJob{name: "success"}, &testJob{name: "fail", err: errors.New("boom")})
	service, err := NewService(ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     &fakeLock{},
		Interval: 0,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx := context.Background()
	if err := service.runCycle(ctx); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if success, ok := jobs[0].(*testJob); ok {
		if success.runs != 1 {
			t.Fatalf("expected success job to run once, ran %d", success.runs)
		}
	} else {
		t.Fatalf("first job type mismatch")
	}
	if failure, ok := jobs[1].(*testJob); ok {
		if failure.runs != 1 {
			t.Fatalf("expected failure job to run once, ran %d", failure.runs)
		}
	} else {
		t.Fatalf("second job type mismatch")
	}
}

func TestServiceRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "held"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{acquired: true},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job to be skipped, ran %d", job.runs)
	}
}

type fakeObtainer struct {
	err      error
	calls    int
	released int
	lastTTL  time.Duration
	lastKey  string
}

func (f *fakeObtainer) TryObtain(_ context.Context, ttl time.Duration, parts ...string) (redis.ReleaseFunc, error) {
	f.calls++
	f.lastTTL = ttl
	if len(parts) > 0 {
		f.lastKey = parts[0]
	}
	if f.err != nil {
		return nil, f.err
	}
	return func(context.Context) error {
		f.released++
		return nil
	}, nil
}

func TestLeaderLockAcquireAndRelease(t *testing.T) {
	obtainer := &fakeObtainer{}
	lock, err := NewLeaderLock(obtainer, "cron:leader", 0)
	if err != nil {
		t.Fatalf("NewLeaderLock: %v", err)
	}
	ok, err := lock.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected lock acquired, got ok=%v err=%v", ok, err)
	}
	if obtainer.lastTTL != defaultLockTTL || obtainer.lastKey != "cron:leader" {
		t.Fatalf("unexpected obtain args ttl=%v key=%q", obtainer.lastTTL, obtainer.lastKey)
	}
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if obtainer.released != 1 {
		t.Fatalf("expected a single release, got %d", obtainer.released)
	}
}

func TestLeaderLockContention(t *testing.T) {
	lock, err := NewLeaderLock(&fakeObtainer{err: redis.ErrLockNotObtained}, "cron:leader", time.Minute)
	if err != nil {
		t.Fatalf("NewLeaderLock: %v", err)
	}
	ok, err := lock.Acquire(context.Background())
	if err != nil {
		t.Fatalf("contention should not error: %v", err)
	}
	if ok {
		t.Fatal("expected lock not acquired")
	}
}

func TestLeaderLockPropagatesRedisErrors(t *testing.T) {
	lock, err := NewLeaderLock(&fakeObtainer{err: errors.New("connection refused")}, "cron:leader", time.Minute)
	if err != nil {
		t.Fatalf("NewLeaderLock: %v", err)
	}
	if _, err := lock.Acquire(context.Background()); err == nil {
		t.Fatal("expected redis error")
	}
}

func TestNewLeaderLockValidates(t *testing.T) {
	if _, err := NewLeaderLock(nil, "k", 0); err == nil {
		t.Fatal("expected locker required")
	}
	if _, err := NewLeaderLock(&fakeObtainer{}, "", 0); err == nil {
		t.Fatal("expected key required")
	}
}
