package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evdms/dealer-backend/pkg/redis"
)

const defaultLockTTL = 2 * time.Hour

// Lock coordinates exclusive cron runs.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockObtainer interface {
	TryObtain(ctx context.Context, ttl time.Duration, parts ...string) (redis.ReleaseFunc, error)
}

// LeaderLock lets a single cron-worker instance run a cycle at a time.
type LeaderLock struct {
	locker  lockObtainer
	key     string
	ttl     time.Duration
	release redis.ReleaseFunc
}

// NewLeaderLock builds a lock on key held for at most ttl.
func NewLeaderLock(locker lockObtainer, key string, ttl time.Duration) (*LeaderLock, error) {
	if locker == nil {
		return nil, errors.New("redis locker required for cron lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &LeaderLock{locker: locker, key: key, ttl: ttl}, nil
}

// Acquire reports false without error when another instance holds the lock.
func (l *LeaderLock) Acquire(ctx context.Context) (bool, error) {
	release, err := l.locker.TryObtain(ctx, l.ttl, l.key)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotObtained) {
			return false, nil
		}
		return false, fmt.Errorf("obtain cron lock: %w", err)
	}
	l.release = release
	return true, nil
}

// Release frees the lock if this instance holds it.
func (l *LeaderLock) Release(ctx context.Context) error {
	if l.release == nil {
		return nil
	}
	release := l.release
	l.release = nil
	if err := release(ctx); err != nil {
		return fmt.Errorf("release cron lock: %w", err)
	}
	return nil
}
