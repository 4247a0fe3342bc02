package conversation

import "sync"

// userLocks serializes message handling per user. Unlike a global lock, two
// different users never wait on each other; messages from the same user queue
// behind the in-flight transition.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*userLock)}
}

// Lock acquires the lock for userID, blocking until any in-flight handling for
// the same user completes.
func (l *userLocks) Lock(userID int64) {
	l.mu.Lock()
	entry, ok := l.locks[userID]
	if !ok {
		entry = &userLock{}
		l.locks[userID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

// Unlock releases the lock for userID and drops the entry once nobody waits on it.
func (l *userLocks) Unlock(userID int64) {
	l.mu.Lock()
	entry, ok := l.locks[userID]
	if ok {
		entry.refs--
		if entry.refs <= 0 {
			delete(l.locks, userID)
		}
	}
	l.mu.Unlock()

	if ok {
		entry.mu.Unlock()
	}
}
