package session

import (
	"context"
	"testing"
	"time"

	"github.com/oss-mcp/research-engine/internal/mcpproto"
	"github.com/oss-mcp/research-engine/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, ttl time.Duration) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewManager(st, ttl), st
}

func TestManager_CreateThenLoad(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	sess, err := m.Create(ctx, store.TransportHTTP, "2025-06-18", mcpproto.ServerCapabilities, nil)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	loaded, err := m.Load(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.ID, loaded.ID)
	require.Equal(t, "2025-06-18", loaded.ProtocolVersion)
}

func TestManager_LoadMissing_ReturnsNotFound(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	_, err := m.Load(context.Background(), "nonexistent")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_SubscribeUnsubscribe(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()
	sess, err := m.Create(ctx, store.TransportWebSocket, "2025-06-18", mcpproto.Capabilities{}, nil)
	require.NoError(t, err)

	require.NoError(t, m.Subscribe(ctx, sess.ID, "report://42"))
	loaded, err := m.Load(ctx, sess.ID)
	require.NoError(t, err)
	_, subscribed := loaded.Subscriptions["report://42"]
	require.True(t, subscribed)

	require.NoError(t, m.Unsubscribe(ctx, sess.ID, "report://42"))
	loaded, err = m.Load(ctx, sess.ID)
	require.NoError(t, err)
	_, subscribed = loaded.Subscriptions["report://42"]
	require.False(t, subscribed)
}

func TestManager_Sweep_RemovesExpiredSession(t *testing.T) {
	m, st := newTestManager(t, time.Millisecond)
	ctx := context.Background()
	sess, err := m.Create(ctx, store.TransportStdio, "2025-06-18", mcpproto.Capabilities{}, nil)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	deleted, err := m.Sweep(ctx)
	require.NoError(t, err)
	require.Contains(t, deleted, sess.ID)

	_, err = st.GetSession(ctx, sess.ID)
	require.ErrorIs(t, err, store.ErrSessionNotFound)
	_, err = m.Load(ctx, sess.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_End_RemovesSession(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()
	sess, err := m.Create(ctx, store.TransportHTTP, "2025-06-18", mcpproto.Capabilities{}, nil)
	require.NoError(t, err)

	require.NoError(t, m.End(ctx, sess.ID))
	_, err = m.Load(ctx, sess.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}
