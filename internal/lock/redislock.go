// Package lock serializes work across API replicas with a Redis lease.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bonafide55/shop-api/internal/resilience"
)

// ErrNotAcquired is returned when the lock stays held by someone else for longer than Wait.
var ErrNotAcquired = errors.New("lock: not acquired")

const maxRetryDelay = 500 * time.Millisecond

// compare-and-delete so an expired holder never frees a newer lease.
var release = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

// Locker hands out leases stored as key = random token with a TTL.
type Locker struct {
	R *redis.Client
	// RetryBackoff is the first poll delay; later polls back off with jitter.
	RetryBackoff time.Duration
	// Wait bounds acquisition. Zero waits until ctx is done.
	Wait time.Duration
}

// WithLock runs fn while holding key. The lease expires after ttl if the
// holder dies and is released when fn returns, error or not. Only
// acquisition is bounded by Wait; fn runs with the caller's ctx.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token, ttl); err != nil {
		return err
	}
	defer func() {
		_ = release.Run(context.WithoutCancel(ctx), l.R, []string{key}, token).Err()
	}()
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	acquireCtx := ctx
	if l.Wait > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, l.Wait)
		defer cancel()
	}
	base := l.RetryBackoff
	if base <= 0 {
		base = 25 * time.Millisecond
	}
	for attempt := 1; ; attempt++ {
		ok, err := l.R.SetNX(acquireCtx, key, token, ttl).Result()
		switch {
		case ok:
			return nil
		case err != nil && acquireCtx.Err() == nil:
			return err
		}
		timer := time.NewTimer(min(resilience.Backoff(base, attempt, 0.2), maxRetryDelay))
		select {
		case <-acquireCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrNotAcquired
		case <-timer.C:
		}
	}
}
