package app

import "sync"

// userLocks serializes read-then-write access per user identity and tracks
// which users a due-scan pass currently has in flight. Cross-user operations
// never contend; user records are independent.
type userLocks struct {
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	inflight map[string]bool
}

func newUserLocks() *userLocks {
	return &userLocks{locks: map[string]*sync.Mutex{}, inflight: map[string]bool{}}
}

func (l *userLocks) Lock(key string) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()
	m.Lock()
}

func (l *userLocks) Unlock(key string) {
	l.mu.Lock()
	m := l.locks[key]
	l.mu.Unlock()
	m.Unlock()
}

// BeginScan marks key as in flight for the due-scan. It reports false when an
// overlapping scan already holds the key; the caller must skip the user
// rather than risk a double send.
func (l *userLocks) BeginScan(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inflight[key] {
		return false
	}
	l.inflight[key] = true
	return true
}

func (l *userLocks) EndScan(key string) {
	l.mu.Lock()
	delete(l.inflight, key)
	l.mu.Unlock()
}
