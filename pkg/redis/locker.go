package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bsm/redislock"
)

const (
	defaultLockTTL     = 10 * time.Second
	defaultLockBackoff = 50 * time.Millisecond
)

// ErrLockNotObtained is returned when another owner held the key for the whole retry window.
var ErrLockNotObtained = redislock.ErrNotObtained

// ReleaseFunc gives a held lock back.
type ReleaseFunc func(context.Context) error

// Locker hands out short-lived distributed locks backed by redislock.
type Locker struct {
	keys    *Client
	client  *redislock.Client
	ttl     time.Duration
	backoff time.Duration
}

// NewLocker builds a Locker on top of the raw redis connection held by c.
func NewLocker(c *Client, ttl time.Duration) (*Locker, error) {
	if c == nil || c.raw == nil {
		return nil, errors.New("redis client required for locker")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Locker{
		keys:    c,
		client:  redislock.New(c.raw),
		ttl:     ttl,
		backoff: defaultLockBackoff,
	}, nil
}

// Obtain blocks until the namespaced key built from parts is held, the retry budget (one ttl) is
// spent, or ctx ends.
func (l *Locker) Obtain(ctx context.Context, parts ...string) (ReleaseFunc, error) {
	if strings.Join(parts, "") == "" {
		return nil, errors.New("lock key is required")
	}
	key := l.keys.LockKey(parts...)
	retries := int(l.ttl / l.backoff)
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.backoff), retries),
	})
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return err
		}
		return nil
	}, nil
}

// TryObtain makes a single attempt to hold the key for ttl. It returns ErrLockNotObtained when
// another owner has it.
func (l *Locker) TryObtain(ctx context.Context, ttl time.Duration, parts ...string) (ReleaseFunc, error) {
	if strings.Join(parts, "") == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = l.ttl
	}
	lock, err := l.client.Obtain(ctx, l.keys.LockKey(parts...), ttl, nil)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return err
		}
		return nil
	}, nil
}
