package sessions

import (
	"context"
	"sync"

	"github.com/haasonsaas/claudebridge/pkg/models"
)

// Locker serializes work on a single thread.
type Locker interface {
	Lock(ctx context.Context, key models.ThreadKey) error
	Unlock(key models.ThreadKey)
}

// KeyedLocker provides one mutex per ThreadKey. Idle entries are dropped once
// the last holder or waiter leaves, so the map only tracks busy threads.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[models.ThreadKey]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// NewKeyedLocker creates an empty KeyedLocker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: map[models.ThreadKey]*keyLock{}}
}

// Lock blocks until key is free or ctx is done.
func (l *KeyedLocker) Lock(ctx context.Context, key models.ThreadKey) error {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(key, entry)
		return ctx.Err()
	}
}

// Unlock releases key. Unlocking a key that is not held is a no-op.
func (l *KeyedLocker) Unlock(key models.ThreadKey) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	l.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-entry.sem:
	default:
		return
	}
	l.release(key, entry)
}

// Active returns the number of keys currently held or awaited.
func (l *KeyedLocker) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *KeyedLocker) release(key models.ThreadKey, entry *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, key)
	}
}

// NopLocker never blocks. It is used when turns on one thread may overlap.
type NopLocker struct{}

func (NopLocker) Lock(context.Context, models.ThreadKey) error { return nil }
func (NopLocker) Unlock(models.ThreadKey)                      {}

var (
	_ Locker = (*KeyedLocker)(nil)
	_ Locker = NopLocker{}
)
