package transport

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/oss-mcp/research-engine/internal/config"
	"github.com/oss-mcp/research-engine/internal/dispatch"
	"github.com/oss-mcp/research-engine/internal/mcpproto"
	"github.com/oss-mcp/research-engine/internal/session"
	"github.com/oss-mcp/research-engine/internal/store"
	"github.com/oss-mcp/research-engine/internal/telemetry"
)

// RPCHandler implements the method table of spec.md §4.1: the set of
// operations every transport (stdio, HTTP, WebSocket, legacy SSE) exposes
// once a frame has been decoded into an mcpproto.Request. Transports differ
// only in how they frame bytes and carry the session id; the RPC semantics
// live here once.
type RPCHandler struct {
	cfg        *config.Config
	dispatcher *dispatch.Dispatcher
	sessions   *session.Manager
	store      *store.Store
	log        telemetry.Logger
}

// NewRPCHandler builds the shared method table.
func NewRPCHandler(cfg *config.Config, d *dispatch.Dispatcher, sessions *session.Manager, st *store.Store, log telemetry.Logger) *RPCHandler {
	return &RPCHandler{cfg: cfg, dispatcher: d, sessions: sessions, store: st, log: log}
}

// Handle dispatches one decoded request against an established sess (nil
// only for the "initialize" call, which creates the session) and returns
// the Response to serialize back. Handle never returns an error itself;
// every failure mode is encoded into the returned Response per JSON-RPC 2.0.
func (h *RPCHandler) Handle(ctx context.Context, sess *session.Session, req mcpproto.Request) mcpproto.Response {
	switch req.Method {
	case "initialize":
		return h.handleInitialize(ctx, req)
	case "tools/list":
		return h.handleToolsList(req)
	case "tools/call":
		return h.handleToolsCall(ctx, req)
	case "prompts/list":
		result, _ := mcpproto.NewResult(req.ID, listPrompts())
		return result
	case "prompts/get":
		return h.handlePromptsGet(req)
	case "resources/list":
		return h.handleResourcesList(ctx, req)
	case "resources/read":
		return h.handleResourcesRead(ctx, req)
	case "resources/subscribe":
		return h.handleResourcesSubscribe(ctx, sess, req, true)
	case "resources/unsubscribe":
		return h.handleResourcesSubscribe(ctx, sess, req, false)
	default:
		return mcpproto.NewError(req.ID, mcpproto.CodeMethodNotFound, "unknown method: "+req.Method, nil)
	}
}

func (h *RPCHandler) handleInitialize(ctx context.Context, req mcpproto.Request) mcpproto.Response {
	var params mcpproto.InitializeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return mcpproto.NewError(req.ID, mcpproto.CodeInvalidParams, "malformed initialize params", err.Error())
	}
	if !mcpproto.SupportsProtocolVersion(params.ProtocolVersion) {
		return mcpproto.NewError(req.ID, mcpproto.CodeInvalidParams,
			"unsupported protocol version", map[string]any{"supported": mcpproto.SupportedProtocolVersions})
	}
	sess, err := h.sessions.Create(ctx, store.TransportHTTP, params.ProtocolVersion, mcpproto.ServerCapabilities, nil)
	if err != nil {
		return mcpproto.NewError(req.ID, mcpproto.CodeInternalError, "failed to create session", err.Error())
	}
	result, err := mcpproto.NewResult(req.ID, mcpproto.InitializeResult{
		ProtocolVersion: params.ProtocolVersion,
		Capabilities:    mcpproto.ServerCapabilities,
		ServerInfo:      mcpproto.ServerInfo{Name: "research-engine", Version: serverVersion},
		SessionID:       sess.ID,
	})
	if err != nil {
		return mcpproto.NewError(req.ID, mcpproto.CodeInternalError, "failed to encode result", err.Error())
	}
	return result
}

func (h *RPCHandler) handleToolsList(req mcpproto.Request) mcpproto.Response {
	descriptors := h.dispatcher.Descriptors()
	out := make([]mcpproto.ToolDescriptor, 0, len(descriptors))
	for _, t := range descriptors {
		out = append(out, mcpproto.ToolDescriptor{Name: t.Name, Description: t.Description, InputSchema: t.Schema})
	}
	result, _ := mcpproto.NewResult(req.ID, mcpproto.ToolsListResult{Tools: out})
	return result
}

func (h *RPCHandler) handleToolsCall(ctx context.Context, req mcpproto.Request) mcpproto.Response {
	var params mcpproto.ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return mcpproto.NewError(req.ID, mcpproto.CodeInvalidParams, "tools/call requires a tool name", nil)
	}

	// The HTTP transport enforces scope ahead of calling Handle, so it can
	// reject with a true 403 + WWW-Authenticate challenge per spec.md §4.1.
	// WebSocket and stdio have no such per-call HTTP status to return, so
	// they fall through to this JSON-RPC-level rejection instead.
	if scopeErr := requireScope(ctx, "tools/call", params.Name); scopeErr != nil {
		return mcpproto.NewError(req.ID, mcpproto.CodeServerError, scopeErr.Error(), nil)
	}

	value, err := h.dispatcher.Dispatch(ctx, params.Name, params.Arguments)
	if err != nil {
		return toolCallError(req.ID, params.Name, err)
	}

	var toolResult mcpproto.ToolCallResult
	switch v := value.(type) {
	case mcpproto.ToolCallResult:
		toolResult = v
	default:
		toolResult = mcpproto.TextResult("ok", v)
	}
	result, err := mcpproto.NewResult(req.ID, toolResult)
	if err != nil {
		return mcpproto.NewError(req.ID, mcpproto.CodeInternalError, "failed to encode tool result", err.Error())
	}
	return result
}

// toolCallError maps a Dispatch failure onto the JSON-RPC failure model of
// spec.md §4.1/§4.2: an unknown or mode-hidden tool name, and anything the
// normalize/validate pipeline rejected (bad argument shape, a schema
// mismatch, the job-id/report-id cross-alias confusion), are all "invalid
// params" in the sense that the request as sent cannot be carried out — so
// they come back as -32602 errors enumerating what was wrong, per the
// dispatch package's own validateArgs/ValidationError contract, rather than
// a successful result with isError: true. Any other Dispatch error (the
// tool ran but its own logic failed) comes back as a successful result
// carrying isError: true and the error message.
func toolCallError(id *mcpproto.RequestID, toolName string, err error) mcpproto.Response {
	if errors.Is(err, dispatch.ErrUnknownTool) || errors.Is(err, dispatch.ErrToolNotExposed) {
		return mcpproto.NewError(id, mcpproto.CodeInvalidParams, err.Error(), map[string]string{"tool": toolName})
	}
	var valErr *dispatch.ValidationError
	if errors.As(err, &valErr) {
		return mcpproto.NewError(id, mcpproto.CodeInvalidParams, valErr.Error(), map[string]any{"issues": valErr.Issues})
	}
	var crossErr *dispatch.CrossAliasError
	if errors.As(err, &crossErr) {
		return mcpproto.NewError(id, mcpproto.CodeInvalidParams, crossErr.Error(), nil)
	}
	result, _ := mcpproto.NewResult(id, mcpproto.ErrorResult(err.Error(), nil))
	return result
}

func (h *RPCHandler) handlePromptsGet(req mcpproto.Request) mcpproto.Response {
	var params mcpproto.PromptGetParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return mcpproto.NewError(req.ID, mcpproto.CodeInvalidParams, "malformed prompts/get params", nil)
	}
	prompt, err := getPrompt(params.Name, params.Arguments)
	if err != nil {
		return mcpproto.NewError(req.ID, mcpproto.CodeInvalidParams, err.Error(), nil)
	}
	result, _ := mcpproto.NewResult(req.ID, prompt)
	return result
}

func (h *RPCHandler) handleResourcesList(ctx context.Context, req mcpproto.Request) mcpproto.Response {
	result, err := listResources(ctx, h.store)
	if err != nil {
		return mcpproto.NewError(req.ID, mcpproto.CodeInternalError, "failed to list resources", err.Error())
	}
	resp, _ := mcpproto.NewResult(req.ID, result)
	return resp
}

func (h *RPCHandler) handleResourcesRead(ctx context.Context, req mcpproto.Request) mcpproto.Response {
	var params mcpproto.ResourceURIParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
		return mcpproto.NewError(req.ID, mcpproto.CodeInvalidParams, "resources/read requires a uri", nil)
	}
	result, err := readResource(ctx, h.store, params.URI)
	if err != nil {
		if errors.Is(err, store.ErrReportNotFound) {
			return mcpproto.NewError(req.ID, mcpproto.CodeInvalidParams, "resource not found", map[string]string{"uri": params.URI})
		}
		return mcpproto.NewError(req.ID, mcpproto.CodeInternalError, "failed to read resource", err.Error())
	}
	resp, _ := mcpproto.NewResult(req.ID, result)
	return resp
}

func (h *RPCHandler) handleResourcesSubscribe(ctx context.Context, sess *session.Session, req mcpproto.Request, subscribe bool) mcpproto.Response {
	var params mcpproto.ResourceURIParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
		return mcpproto.NewError(req.ID, mcpproto.CodeInvalidParams, "subscription requires a uri", nil)
	}
	if sess == nil {
		return mcpproto.NewError(req.ID, mcpproto.CodeInvalidRequest, "subscription requires an active session", nil)
	}
	var err error
	if subscribe {
		err = h.sessions.Subscribe(ctx, sess.ID, params.URI)
	} else {
		err = h.sessions.Unsubscribe(ctx, sess.ID, params.URI)
	}
	if err != nil {
		return mcpproto.NewError(req.ID, mcpproto.CodeInternalError, "failed to update subscription", err.Error())
	}
	result, _ := mcpproto.NewResult(req.ID, map[string]bool{"ok": true})
	return result
}

const serverVersion = "0.1.0"
