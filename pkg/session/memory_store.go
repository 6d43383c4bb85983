package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-process map.
// It is intended for tests and single-process deployments without Redis.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Get retrieves the session for a user.
func (s *MemoryStore) Get(ctx context.Context, userID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Put creates or replaces the session for a user.
func (s *MemoryStore) Put(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if err := sess.Validate(); err != nil {
		return err
	}
	s.sessions[sess.UserID] = sess.Clone()
	return nil
}

// Delete removes the session for a user.
func (s *MemoryStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.sessions, userID)
	return nil
}

// ListByState returns all sessions currently in the given state.
func (s *MemoryStore) ListByState(ctx context.Context, state State) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	var out []*Session
	for _, sess := range s.sessions {
		if sess.State == state {
			out = append(out, sess.Clone())
		}
	}
	return out, nil
}

// DeleteInactiveBefore removes every session whose last activity predates the
// cutoff.
func (s *MemoryStore) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	removed := 0
	for id, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Ping always succeeds while the store is open.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
