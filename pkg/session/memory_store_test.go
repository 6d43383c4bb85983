package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Basics(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	sess := New("user-1")
	sess.State = StateWaitingForRepo
	require.NoError(t, store.Put(ctx, sess))

	// The store keeps its own copy; later caller mutation must not leak in.
	sess.State = StateIdle

	loaded, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, StateWaitingForRepo, loaded.State)

	listed, err := store.ListByState(ctx, StateWaitingForRepo)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	require.NoError(t, store.Delete(ctx, "user-1"))
	_, err = store.Get(ctx, "user-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStore_PutRejectsInvariantViolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess := New("user-bad")
	sess.State = StateWaitingForAnswer

	assert.ErrorIs(t, store.Put(ctx, sess), ErrCorruptSession)
	_, err := store.Get(ctx, "user-bad")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStore_DeleteInactiveBefore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	old := New("old")
	old.LastActivity = now.Add(-2 * time.Hour)
	fresh := New("fresh")
	fresh.LastActivity = now

	require.NoError(t, store.Put(ctx, old))
	require.NoError(t, store.Put(ctx, fresh))

	removed, err := store.DeleteInactiveBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Get(ctx, "fresh")
	assert.NoError(t, err)
}
