package lock

import (
	"context"
	"errors"
	"sync"
)

var ErrNotAcquired = errors.New("lock_not_acquired")

// Locker serialises a critical section identified by key. Acquire blocks
// until the lock is held or ctx is done.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

type Release func(ctx context.Context) error

// LocalLocker is an in-process Locker keyed by string.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (Release, error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-slot })
		return nil
	}, nil
}
