package server

import (
	"context"
	"testing"
	"time"

	"github.com/oss-mcp/research-engine/internal/config"
	"github.com/oss-mcp/research-engine/internal/jobs"
	"github.com/oss-mcp/research-engine/internal/orchestrator"
	"github.com/oss-mcp/research-engine/internal/telemetry"
	"github.com/stretchr/testify/require"
)

type stubChatClient struct{}

func (stubChatClient) Complete(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error) {
	return &orchestrator.Response{Content: "stub"}, nil
}

func (stubChatClient) Stream(ctx context.Context, req orchestrator.Request) (orchestrator.Streamer, error) {
	return nil, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		ServerPort:             0,
		Mode:                   config.ModeAll,
		Parallelism:            1,
		EnsembleSize:           1,
		EmbeddingsProvider:     "local",
		EmbeddingsDimension:    8,
		DBPath:                 dir + "/test.db",
		SessionTimeout:         time.Hour,
		SessionCleanupInterval: time.Hour,
		LeaseDuration:          time.Minute,
		HeartbeatInterval:      15 * time.Second,
		JobTimeout:             time.Minute,
		AllowNoAPIKey:          true,
		RateLimitMaxReqs:       1000,
	}
}

func TestNew_WiresEveryCollaborator(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	sc, err := New(ctx, cfg, telemetry.NoopLogger{}, telemetry.NoopMetrics{}, stubChatClient{}, stubChatClient{}, jobs.Registry{})
	require.NoError(t, err)
	require.NotNil(t, sc.Store)
	require.NotNil(t, sc.Sessions)
	require.NotNil(t, sc.Jobs)
	require.NotNil(t, sc.Ensemble)
	require.NotNil(t, sc.Embedder)
	require.NotNil(t, sc.Dispatcher)
	require.NotNil(t, sc.Mux)
	require.Nil(t, sc.Idempotency) // RedisURL unset

	require.NoError(t, sc.Close())
}

func TestNew_LocalEmbedderIsDefault(t *testing.T) {
	cfg := testConfig(t)
	sc, err := New(context.Background(), cfg, telemetry.NoopLogger{}, telemetry.NoopMetrics{}, stubChatClient{}, stubChatClient{}, jobs.Registry{})
	require.NoError(t, err)
	defer sc.Close()

	vec, err := sc.Embedder.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	require.Len(t, vec, cfg.EmbeddingsDimension)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t)
	sc, err := New(context.Background(), cfg, telemetry.NoopLogger{}, telemetry.NoopMetrics{}, stubChatClient{}, stubChatClient{}, jobs.Registry{})
	require.NoError(t, err)
	defer sc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sc.Run(ctx) }()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
