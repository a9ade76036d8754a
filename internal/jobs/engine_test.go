package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oss-mcp/research-engine/internal/config"
	"github.com/oss-mcp/research-engine/internal/store"
	"github.com/oss-mcp/research-engine/internal/telemetry"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, registry Registry) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{
		Parallelism:       2,
		LeaseDuration:     2 * time.Second,
		HeartbeatInterval: 500 * time.Millisecond,
		JobTimeout:        5 * time.Second,
		IdempotencyTTL:    time.Hour,
	}
	e := New(st, cfg, telemetry.NoopLogger{}, telemetry.NoopMetrics{}, NewChannelBroadcaster(16), registry)
	return e, st
}

func TestEngine_SucceedsJob(t *testing.T) {
	done := make(chan struct{})
	registry := Registry{
		"echo": func(ctx context.Context, job *store.Job, publish func(store.JobEvent)) ([]byte, error) {
			publish(store.JobEvent{EventType: store.EventProgress, Payload: []byte(`{"pct":50}`)})
			close(done)
			return []byte(`{"ok":true}`), nil
		},
	}
	e, st := newTestEngine(t, registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	id := uuid.NewString()
	require.NoError(t, st.Enqueue(context.Background(), &store.Job{ID: id, Type: "echo", Params: []byte(`{}`)}))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("handler never ran")
	}

	require.Eventually(t, func() bool {
		j, err := st.GetJob(context.Background(), id)
		return err == nil && j.Status == store.JobSucceeded
	}, 3*time.Second, 50*time.Millisecond)
}

func TestEngine_FailedJobRecordsError(t *testing.T) {
	registry := Registry{
		"boom": func(ctx context.Context, job *store.Job, publish func(store.JobEvent)) ([]byte, error) {
			return nil, errors.New("kaboom")
		},
	}
	e, st := newTestEngine(t, registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	id := uuid.NewString()
	require.NoError(t, st.Enqueue(context.Background(), &store.Job{ID: id, Type: "boom", Params: []byte(`{}`)}))

	require.Eventually(t, func() bool {
		j, err := st.GetJob(context.Background(), id)
		return err == nil && j.Status == store.JobFailed && j.ErrorMessage != nil && *j.ErrorMessage == "kaboom"
	}, 3*time.Second, 50*time.Millisecond)
}

func TestEngine_CancelRunningJob(t *testing.T) {
	started := make(chan struct{})
	registry := Registry{
		"slow": func(ctx context.Context, job *store.Job, publish func(store.JobEvent)) ([]byte, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	e, st := newTestEngine(t, registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	id := uuid.NewString()
	require.NoError(t, st.Enqueue(context.Background(), &store.Job{ID: id, Type: "slow", Params: []byte(`{}`)}))

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("handler never started")
	}

	ok, err := e.Cancel(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		j, err := st.GetJob(context.Background(), id)
		return err == nil && j.Status == store.JobCanceled
	}, 3*time.Second, 50*time.Millisecond)
}
