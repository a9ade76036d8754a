package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oss-mcp/research-engine/internal/config"
	"github.com/oss-mcp/research-engine/internal/dispatch"
	"github.com/oss-mcp/research-engine/internal/jobs"
	"github.com/oss-mcp/research-engine/internal/session"
	"github.com/oss-mcp/research-engine/internal/store"
	"github.com/oss-mcp/research-engine/internal/telemetry"
	"github.com/stretchr/testify/require"
)

func newTestMux(t *testing.T) (*Mux, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{Mode: config.ModeAll, AllowNoAPIKey: true, RateLimitMaxReqs: 1000}
	d := dispatch.New(config.ModeAll)
	sessions := session.NewManager(st, time.Hour)
	bcast := jobs.NewChannelBroadcaster(16)
	engine := jobs.New(st, cfg, telemetry.NoopLogger{}, telemetry.NoopMetrics{}, bcast, jobs.Registry{})

	m := NewMux(Deps{
		Config:      cfg,
		Sessions:    sessions,
		Dispatcher:  d,
		Jobs:        engine,
		Broadcaster: bcast,
		Store:       st,
		Log:         telemetry.NoopLogger{},
		Metrics:     telemetry.NoopMetrics{},
	})
	return m, st
}

func TestMux_Health(t *testing.T) {
	m, _ := newTestMux(t)
	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func TestMux_WellKnownEndpoints(t *testing.T) {
	m, _ := newTestMux(t)
	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	for _, path := range []string{"/about", "/.well-known/mcp-server", "/.well-known/oauth-protected-resource"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		resp.Body.Close()
	}
}

func TestMux_UnauthenticatedMCPCall_Allowed_WhenAllowNoAPIKey(t *testing.T) {
	m, _ := newTestMux(t)
	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`
	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(mcpSessionHeader))
}

func TestMux_JobGet_NotFound(t *testing.T) {
	m, _ := newTestMux(t)
	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/jobs/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMux_JobGet_Found(t *testing.T) {
	m, st := newTestMux(t)
	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	require.NoError(t, st.Enqueue(context.Background(), &store.Job{ID: "job-1", Type: "research"}))

	resp, err := http.Get(srv.URL + "/jobs/job-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var job store.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	require.Equal(t, store.JobQueued, job.Status)
}

func TestMux_Metrics(t *testing.T) {
	m, st := newTestMux(t)
	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	require.NoError(t, st.Enqueue(context.Background(), &store.Job{ID: "job-1", Type: "research"}))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Contains(t, body, "jobs_by_status")
}
