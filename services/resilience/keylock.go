package resilience

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// keyLock is a context-aware mutex for a single cache key. A weighted
// semaphore of capacity one gives us mutual exclusion with cancellable
// acquisition, which sync.Mutex cannot offer.
type keyLock struct {
	sem  *semaphore.Weighted
	refs int
}

// lock blocks until the key lock is held or ctx is done
func (l *keyLock) lock(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// unlock releases the key lock
func (l *keyLock) unlock() {
	l.sem.Release(1)
}

// lockTable hands out per-key locks and retires them once the last holder
// drops its reference, so the table shrinks back when keys stop contending.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func newLockTable() *lockTable {
	return &lockTable{
		locks: make(map[string]*keyLock),
	}
}

// acquire returns the lock for key, creating it on first use. Every acquire
// must be paired with a release.
func (t *lockTable) acquire(key string) *keyLock {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[key]
	if !ok {
		l = &keyLock{sem: semaphore.NewWeighted(1)}
		t.locks[key] = l
	}
	l.refs++
	return l
}

// release drops one reference and deletes the lock when nobody holds it
func (t *lockTable) release(key string, l *keyLock) {
	t.mu.Lock()
	defer t.mu.Unlock()

	l.refs--
	if l.refs <= 0 {
		delete(t.locks, key)
	}
}

// size reports the number of live key locks
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.locks)
}
