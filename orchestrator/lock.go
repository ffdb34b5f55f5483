package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// lockSet holds one exclusive lock per session id. Entries exist only while
// a holder or waiter references them.
type lockSet struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newLockSet() *lockSet {
	return &lockSet{locks: make(map[string]*sessionLock)}
}

// acquire blocks until the lock for id is held or ctx is done. The returned
// release func is safe to call more than once.
func (l *lockSet) acquire(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{sem: semaphore.NewWeighted(1)}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	if err := sl.sem.Acquire(ctx, 1); err != nil {
		l.unref(id, sl)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			sl.sem.Release(1)
			l.unref(id, sl)
		})
	}, nil
}

func (l *lockSet) unref(id string, sl *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *lockSet) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
