package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/oss-mcp/research-engine/internal/config"
	"github.com/oss-mcp/research-engine/internal/dispatch"
	"github.com/oss-mcp/research-engine/internal/mcpproto"
	"github.com/oss-mcp/research-engine/internal/session"
	"github.com/oss-mcp/research-engine/internal/store"
	"github.com/oss-mcp/research-engine/internal/telemetry"
	"github.com/stretchr/testify/require"
)

func newTestRPCHandler(t *testing.T) (*RPCHandler, *store.Store, *session.Manager) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	d := dispatch.New(config.ModeAll)
	require.NoError(t, d.Register(dispatch.Tool{
		Name:        "ping",
		Category:    dispatch.CategoryMisc,
		Description: "liveness probe",
		Schema:      json.RawMessage(`{"type":"object","properties":{}}`),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]string{"pong": "ok"}, nil
	}))

	sessions := session.NewManager(st, time.Hour)
	cfg := &config.Config{Mode: config.ModeAll}
	return NewRPCHandler(cfg, d, sessions, st, telemetry.NoopLogger{}), st, sessions
}

func TestRPCHandler_InitializeThenToolsList(t *testing.T) {
	h, _, _ := newTestRPCHandler(t)
	ctx := context.Background()

	initReq := mcpproto.Request{
		ID:     mcpproto.NewNumberID(1),
		Method: "initialize",
		Params: mustJSON(t, mcpproto.InitializeParams{ProtocolVersion: "2025-06-18"}),
	}
	resp := h.Handle(ctx, nil, initReq)
	require.Nil(t, resp.Error)
	var init mcpproto.InitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &init))
	require.NotEmpty(t, init.SessionID)

	listReq := mcpproto.Request{ID: mcpproto.NewNumberID(2), Method: "tools/list"}
	listResp := h.Handle(ctx, nil, listReq)
	require.Nil(t, listResp.Error)
	var list mcpproto.ToolsListResult
	require.NoError(t, json.Unmarshal(listResp.Result, &list))
	require.NotEmpty(t, list.Tools)
}

func TestRPCHandler_Initialize_RejectsUnsupportedVersion(t *testing.T) {
	h, _, _ := newTestRPCHandler(t)
	req := mcpproto.Request{
		ID:     mcpproto.NewNumberID(1),
		Method: "initialize",
		Params: mustJSON(t, mcpproto.InitializeParams{ProtocolVersion: "1999-01-01"}),
	}
	resp := h.Handle(context.Background(), nil, req)
	require.NotNil(t, resp.Error)
	require.Equal(t, mcpproto.CodeInvalidParams, resp.Error.Code)
}

func TestRPCHandler_ToolsCall_UnknownTool(t *testing.T) {
	h, _, _ := newTestRPCHandler(t)
	req := mcpproto.Request{
		ID:     mcpproto.NewNumberID(1),
		Method: "tools/call",
		Params: mustJSON(t, mcpproto.ToolCallParams{Name: "does_not_exist"}),
	}
	resp := h.Handle(context.Background(), nil, req)
	require.NotNil(t, resp.Error)
	require.Equal(t, mcpproto.CodeInvalidParams, resp.Error.Code)
}

func TestRPCHandler_ToolsCall_Success(t *testing.T) {
	h, _, _ := newTestRPCHandler(t)
	req := mcpproto.Request{
		ID:     mcpproto.NewNumberID(1),
		Method: "tools/call",
		Params: mustJSON(t, mcpproto.ToolCallParams{Name: "ping", Arguments: map[string]any{}}),
	}
	resp := h.Handle(context.Background(), nil, req)
	require.Nil(t, resp.Error)
	var result mcpproto.ToolCallResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.False(t, result.IsError)
}

func TestRPCHandler_PromptsListAndGet(t *testing.T) {
	h, _, _ := newTestRPCHandler(t)
	ctx := context.Background()

	listResp := h.Handle(ctx, nil, mcpproto.Request{ID: mcpproto.NewNumberID(1), Method: "prompts/list"})
	require.Nil(t, listResp.Error)
	var list mcpproto.PromptsListResult
	require.NoError(t, json.Unmarshal(listResp.Result, &list))
	require.NotEmpty(t, list.Prompts)

	getResp := h.Handle(ctx, nil, mcpproto.Request{
		ID:     mcpproto.NewNumberID(2),
		Method: "prompts/get",
		Params: mustJSON(t, mcpproto.PromptGetParams{Name: "research_query", Arguments: map[string]any{"topic": "graph databases"}}),
	})
	require.Nil(t, getResp.Error)
	var prompt mcpproto.PromptGetResult
	require.NoError(t, json.Unmarshal(getResp.Result, &prompt))
	require.Len(t, prompt.Messages, 1)
}

func TestRPCHandler_UnknownMethod(t *testing.T) {
	h, _, _ := newTestRPCHandler(t)
	resp := h.Handle(context.Background(), nil, mcpproto.Request{ID: mcpproto.NewNumberID(1), Method: "not/a/method"})
	require.NotNil(t, resp.Error)
	require.Equal(t, mcpproto.CodeMethodNotFound, resp.Error.Code)
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
