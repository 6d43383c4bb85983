package session

import (
	"context"
	"errors"
	"time"
)

// Common errors for storage operations.
var (
	// ErrSessionNotFound is returned when no session exists for a user.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCorruptSession is returned when a stored record fails to decode.
	ErrCorruptSession = errors.New("corrupt session record")
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("session store is closed")
)

// Store abstracts session persistence.
// Implementations must be safe for concurrent use. Store serializes per-user
// read-modify-write only at the storage level; callers coordinating an inbound
// message against a racing poll tick must additionally hold the per-user lock
// (see KeyedMutex).
type Store interface {
	// Get retrieves the session for a user.
	// Returns ErrSessionNotFound if no record exists.
	Get(ctx context.Context, userID string) (*Session, error)

	// Put creates or replaces the session for a user.
	Put(ctx context.Context, sess *Session) error

	// Delete removes the session for a user. Deleting a missing session is
	// not an error.
	Delete(ctx context.Context, userID string) error

	// ListByState returns all sessions currently in the given state.
	ListByState(ctx context.Context, state State) ([]*Session, error)

	// DeleteInactiveBefore removes every session whose last activity predates
	// the cutoff, regardless of state. Returns the number of sessions removed.
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Ping checks that the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// GetOrNew returns the stored session for a user, or a fresh idle session if
// none exists. A read failure other than not-found is returned to the caller
// so a broken store is never mistaken for a new user.
func GetOrNew(ctx context.Context, st Store, userID string) (*Session, error) {
	sess, err := st.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return New(userID), nil
		}
		return nil, err
	}
	return sess, nil
}
