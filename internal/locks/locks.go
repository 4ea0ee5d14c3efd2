// Package locks serializes check-then-act sequences on a shared key, such as
// "find a patient by email, else create one".
package locks

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned when a lock stays held past the wait budget.
var ErrNotAcquired = errors.New("locks: lock not acquired")

// DefaultWait bounds how long Acquire blocks when no wait is configured.
const DefaultWait = 3 * time.Second

// Locker grants exclusive access to a key until release is called.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LocalLocker is an in-process keyed mutex for single-instance deployments.
type LocalLocker struct {
	wait time.Duration

	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	held chan struct{}
	refs int
}

var _ Locker = (*LocalLocker)(nil)

// NewLocalLocker creates a keyed mutex that gives up after wait.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &LocalLocker{wait: wait, locks: make(map[string]*localLock)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{held: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case lk.held <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, lk)
		return nil, ctx.Err()
	case <-timer.C:
		l.unref(key, lk)
		return nil, ErrNotAcquired
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lk.held
			l.unref(key, lk)
		})
	}, nil
}

func (l *LocalLocker) unref(key string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}

// Keys returns how many keys currently have holders or waiters.
func (l *LocalLocker) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
