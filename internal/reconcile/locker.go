package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

// Locker serialises synchronisation runs. Obtain returns a release func, or
// an error wrapping shared.ErrSyncInProgress when the lock stays held.
type Locker interface {
	Obtain(ctx context.Context, key string) (func(context.Context) error, error)
}

// LocalLocker is an in-process Locker.
type LocalLocker struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker builds a LocalLocker that waits up to wait for a held key.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{wait: wait, slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Obtain acquires key.
func (l *LocalLocker) Obtain(ctx context.Context, key string) (func(context.Context) error, error) {
	ch := l.slot(key)
	release := func(context.Context) error {
		<-ch
		return nil
	}

	select {
	case ch <- struct{}{}:
		return release, nil
	default:
	}
	if l.wait <= 0 {
		return nil, fmt.Errorf("lock %s: %w", key, shared.ErrSyncInProgress)
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return release, nil
	case <-timer.C:
		return nil, fmt.Errorf("lock %s: %w", key, shared.ErrSyncInProgress)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
