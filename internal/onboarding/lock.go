package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
)

// Locker serializes account creation for one (provider, identity) pair.
type Locker interface {
	Obtain(ctx context.Context, key string) (release func(), err error)
}

// RedisLocker implements Locker on top of redislock.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

// NewRedisLocker waits up to roughly ttl for a held lock before giving up.
func NewRedisLocker(client *redislock.Client, ttl time.Duration) *RedisLocker {
	const backoff = 100 * time.Millisecond
	attempts := int(ttl / backoff)
	if attempts < 1 {
		attempts = 1
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(backoff), attempts),
	}
}

// Obtain takes the lock or returns errs.ErrLockNotObtained.
func (l *RedisLocker) Obtain(ctx context.Context, key string) (func(), error) {
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, errs.ErrLockNotObtained
	} else if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func() {
		// Release with a fresh context; the request context may already be cancelled.
		_ = lock.Release(context.Background())
	}, nil
}

func lockKey(provider domain.Provider, identity string) string {
	return fmt.Sprintf("onboarding:%s:%s", provider, identity)
}
