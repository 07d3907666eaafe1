// Package locker provides the instance-scoped mutual exclusion used to
// serialize operations on a route instance.
package locker

import (
	"context"
	"sync"
)

// Lease is a lock held on one key.
type Lease interface {
	// Held returns ErrLockLost once the lock expired or was taken over.
	Held(ctx context.Context) error
	// Release frees the lock. Releasing twice is a no-op.
	Release() error
}

type Locker interface {
	// Lock blocks until the key is held or ctx is done.
	Lock(ctx context.Context, key string) (Lease, error)
}

// Local is an in-process Locker with one semaphore per key.
type Local struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	sem  chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*localEntry)}
}

func (l *Local) Lock(ctx context.Context, key string) (Lease, error) {
	entry := l.acquire(key)

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key)

		return nil, ctx.Err()
	}

	return &localLease{release: func() {
		<-entry.sem
		l.release(key)
	}}, nil
}

type localLease struct {
	once    sync.Once
	release func()
}

// Held always succeeds: a local lock never expires.
func (l *localLease) Held(context.Context) error {
	return nil
}

func (l *localLease) Release() error {
	l.once.Do(l.release)

	return nil
}

func (l *Local) acquire(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[key]
	if !ok {
		entry = &localEntry{sem: make(chan struct{}, 1)}
		l.locks[key] = entry
	}

	entry.refs++

	return entry
}

func (l *Local) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.locks[key]

	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}
