package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNewLockerRequiresClient(t *testing.T) {
	if _, err := NewLocker(nil, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := NewLocker(&Client{}, time.Second); err == nil {
		t.Fatalf("expected error when raw connection is missing")
	}
}

func TestLockerDefaultsAndEmptyKey(t *testing.T) {
	raw := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer raw.Close()

	locker, err := NewLocker(&Client{raw: raw, store: raw}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if locker.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl, got %v", locker.ttl)
	}
	if _, err := locker.Obtain(context.Background(), ""); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
	if _, err := locker.Obtain(context.Background()); err == nil {
		t.Fatalf("expected missing key parts to be rejected")
	}
}
