package service

import (
	"slices"
	"sync"
)

// keyLocks serializes mutations per canonical key. Callers lock every key
// they touch in one call; keys are taken in sorted order so overlapping
// requests cannot deadlock.
type keyLocks struct {
	all   sync.RWMutex
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

// Lock acquires the given keys and returns the matching unlock.
func (l *keyLocks) Lock(keys []string) func() {
	keys = uniqueSorted(keys)

	l.all.RLock()
	held := make([]*keyLock, 0, len(keys))
	for _, key := range keys {
		held = append(held, l.acquire(key))
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.release(keys[i])
		}
		l.all.RUnlock()
	}
}

// LockAll excludes every keyed operation, for whole-ledger replacement.
func (l *keyLocks) LockAll() func() {
	l.all.Lock()
	return l.all.Unlock
}

func (l *keyLocks) acquire(key string) *keyLock {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &keyLock{}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (l *keyLocks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock := l.locks[key]
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}

func uniqueSorted(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}
