package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, "sess-1", "stream")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", created.ID)
	assert.Empty(t, created.AgentSessionID)

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "stream", got.Mode)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetSession_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetAgentSessionID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateSession(ctx, "sess-1", "print")
	require.NoError(t, err)

	require.NoError(t, s.SetAgentSessionID(ctx, "sess-1", "claude-abc"))
	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "claude-abc", got.AgentSessionID)

	assert.ErrorIs(t, s.SetAgentSessionID(ctx, "missing", "x"), ErrNotFound)
}

func TestListSessions_OrderedByActivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateSession(ctx, "old", "stream")
	require.NoError(t, err)
	_, err = s.CreateSession(ctx, "new", "stream")
	require.NoError(t, err)
	require.NoError(t, s.Touch(ctx, "old"))

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "old", sessions[0].ID)
}

func TestDeleteSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateSession(ctx, "sess-1", "stream")
	require.NoError(t, err)
	require.NoError(t, s.DeleteSession(ctx, "sess-1"))

	_, err = s.GetSession(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteSession(ctx, "sess-1"), ErrNotFound)
}
