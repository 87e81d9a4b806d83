// Package serializer provides per-group mutual exclusion for ledger writes.
//
// Locks are created lazily and kept for the life of the process. The map
// grows with the number of groups ever seen, which is small for a chat bot;
// a high-cardinality deployment would need reference counting or a sharded
// lock table instead.
package serializer

import (
	"context"
	"sync"
)

// Locks serializes operations per group. The zero value is ready to use.
type Locks struct {
	mu    sync.Mutex
	locks map[int64]chan struct{}
}

// New returns an empty lock table.
func New() *Locks {
	return &Locks{}
}

// With runs fn while holding the group's lock. Operations for different
// groups never block each other. If ctx is done before the lock is
// acquired, fn is not run and the context error is returned. The lock is
// released when fn returns or panics.
func (l *Locks) With(ctx context.Context, groupID int64, fn func(ctx context.Context) error) error {
	lock := l.lock(groupID)

	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	return fn(ctx)
}

func (l *Locks) lock(groupID int64) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locks == nil {
		l.locks = make(map[int64]chan struct{})
	}
	lock, ok := l.locks[groupID]
	if !ok {
		lock = make(chan struct{}, 1)
		l.locks[groupID] = lock
	}
	return lock
}

// Len returns the number of groups with a lock.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
