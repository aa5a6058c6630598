package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

const lockRetryInterval = 250 * time.Millisecond

// RedisLocker hands out distributed locks so that only one process runs a
// critical section at a time. Held locks are refreshed until released; the TTL
// only bounds how long a crashed holder blocks others.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker builds a locker. ttl bounds how long a crashed holder keeps
// the lock; wait bounds how long Obtain retries before giving up.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{client: redislock.New(client), ttl: ttl, wait: wait}
}

// Obtain acquires key or returns shared.ErrSyncInProgress once the wait
// budget is exhausted.
func (l *RedisLocker) Obtain(ctx context.Context, key string) (func(context.Context) error, error) {
	strategy := redislock.NoRetry()
	if attempts := int(l.wait / lockRetryInterval); attempts > 0 {
		strategy = redislock.LimitRetry(redislock.LinearBackoff(lockRetryInterval), attempts)
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{RetryStrategy: strategy})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, shared.ErrSyncInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("platform/cache: obtain %s: %w", key, err)
	}

	refreshCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go l.keepAlive(refreshCtx, lock, done)

	return func(ctx context.Context) error {
		stop()
		<-done
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("platform/cache: release %s: %w", key, err)
		}
		return nil
	}, nil
}

// keepAlive extends the lock every ttl/2 so a holder running longer than the
// TTL keeps it. It stops on release or once the lock is lost.
func (l *RedisLocker) keepAlive(ctx context.Context, lock *redislock.Lock, done chan<- struct{}) {
	defer close(done)
	interval := l.ttl / 2
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lock.Refresh(ctx, l.ttl, nil); err != nil {
				return
			}
		}
	}
}
