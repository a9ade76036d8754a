package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/oss-mcp/research-engine/internal/config"
	"github.com/oss-mcp/research-engine/internal/store"
	"github.com/oss-mcp/research-engine/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is a scriptable ChatClient for pipeline tests.
type fakeClient struct {
	completeFn func(ctx context.Context, req Request) (*Response, error)
	streamFn   func(ctx context.Context, req Request) (Streamer, error)
}

func (f *fakeClient) Complete(ctx context.Context, req Request) (*Response, error) {
	return f.completeFn(ctx, req)
}

func (f *fakeClient) Stream(ctx context.Context, req Request) (Streamer, error) {
	return f.streamFn(ctx, req)
}

type sliceStreamer struct {
	chunks []Chunk
	i      int
}

func (s *sliceStreamer) Recv() (Chunk, error) {
	if s.i >= len(s.chunks) {
		return Chunk{Done: true}, nil
	}
	c := s.chunks[s.i]
	s.i++
	return c, nil
}

func (s *sliceStreamer) Close() error { return nil }

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testConfig() *config.Config {
	return &config.Config{
		EnsembleSize:     2,
		Parallelism:      2,
		SubAgentTimeout:  5e9,
		SynthesisTimeout: 5e9,
	}
}

func TestEnsemble_PlanFallsBackOnUnparseableResponse(t *testing.T) {
	primary := &fakeClient{
		completeFn: func(ctx context.Context, req Request) (*Response, error) {
			return &Response{Content: "not json at all"}, nil
		},
	}
	e := NewEnsemble(testConfig(), testStore(t), telemetry.NoopLogger{}, telemetry.NoopMetrics{}, primary, nil)
	plan := e.plan(context.Background(), "rust async runtimes")
	require.Len(t, plan, 1)
	assert.Equal(t, "rust async runtimes", plan[0].Query)
}

func TestEnsemble_PartialFailureStillSucceeds(t *testing.T) {
	primary := &fakeClient{
		completeFn: func(ctx context.Context, req Request) (*Response, error) {
			switch req.Messages[1].Content {
			case "go concurrency": // planning call: two sub-queries
				return &Response{Content: `{"subQueries":[{"tag":"a","query":"goroutines"},{"tag":"b","query":"channels"}]}`}, nil
			case "goroutines": // first sub-agent fails, second succeeds
				return nil, errors.New("boom")
			}
			return &Response{Content: "finding", Usage: TokenUsage{InputTokens: 10, OutputTokens: 20}}, nil
		},
		streamFn: func(ctx context.Context, req Request) (Streamer, error) {
			return &sliceStreamer{chunks: []Chunk{{Delta: "final report"}, {Done: true}}}, nil
		},
	}
	st := testStore(t)
	e := NewEnsemble(testConfig(), st, telemetry.NoopLogger{}, telemetry.NoopMetrics{}, primary, nil)

	var events []store.JobEvent
	publish := func(ev store.JobEvent) { events = append(events, ev) }

	id, text, err := e.Run(context.Background(), "go concurrency", publish)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, "final report", text)

	var sawReportSaved bool
	for _, ev := range events {
		if ev.EventType == store.EventReportSaved {
			sawReportSaved = true
		}
	}
	assert.True(t, sawReportSaved)
}

func TestEnsemble_AllSubAgentsFail(t *testing.T) {
	primary := &fakeClient{
		completeFn: func(ctx context.Context, req Request) (*Response, error) {
			return nil, errors.New("always fails")
		},
	}
	e := NewEnsemble(testConfig(), testStore(t), telemetry.NoopLogger{}, telemetry.NoopMetrics{}, primary, nil)

	var events []store.JobEvent
	_, _, err := e.Run(context.Background(), "query", func(ev store.JobEvent) { events = append(events, ev) })
	require.Error(t, err)
}

func TestEnsemble_CostFallbackUsesSecondaryOnRateLimit(t *testing.T) {
	primary := &fakeClient{
		completeFn: func(ctx context.Context, req Request) (*Response, error) {
			return nil, ErrRateLimited
		},
	}
	fallbackCalls := 0
	fallback := &fakeClient{
		completeFn: func(ctx context.Context, req Request) (*Response, error) {
			fallbackCalls++
			return &Response{Content: "fallback finding"}, nil
		},
	}
	primary.streamFn = func(ctx context.Context, req Request) (Streamer, error) {
		return &sliceStreamer{chunks: []Chunk{{Delta: "ok"}, {Done: true}}}, nil
	}

	st := testStore(t)
	e := NewEnsemble(testConfig(), st, telemetry.NoopLogger{}, telemetry.NoopMetrics{}, primary, fallback)
	_, _, err := e.Run(context.Background(), "query", func(store.JobEvent) {})
	require.NoError(t, err)
	assert.Positive(t, fallbackCalls)
}
