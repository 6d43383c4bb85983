package session

import "sync"

// KeyedMutex provides per-user mutual exclusion around session
// read-modify-write sequences. The store alone does not serialize an inbound
// message racing a poll-tick completion for the same user; every mutation path
// must hold the user's lock for the full read-modify-write.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*userLock)}
}

// Lock acquires the lock for a user id and returns the unlock function.
// Lock entries are reference-counted and removed once unused, so the map does
// not grow with the historical user population.
func (k *KeyedMutex) Lock(userID string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[userID]
	if !ok {
		l = &userLock{}
		k.locks[userID] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, userID)
		}
		k.mu.Unlock()
	}
}
