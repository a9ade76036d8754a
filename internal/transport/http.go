package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oss-mcp/research-engine/internal/idempotency"
	"github.com/oss-mcp/research-engine/internal/jobs"
	"github.com/oss-mcp/research-engine/internal/mcpproto"
	"github.com/oss-mcp/research-engine/internal/session"
	"github.com/oss-mcp/research-engine/internal/store"
)

// mcpSessionHeader is the header streamable-HTTP clients exchange for
// session continuity, per spec.md §4.1.
const mcpSessionHeader = "Mcp-Session-Id"

// handleMCP implements the streamable-HTTP transport contract: a single
// POST endpoint accepting one JSON-RPC request per call. The response is
// written as a single JSON object; spec.md allows chunking long-running
// responses as SSE, which this server exercises instead through the
// separate GET /jobs/{id}/events stream once a tool call has become an
// async Job (see spec.md §4.3's "ui_hint" event carrying that URL) rather
// than holding the POST open, since every tool call here is synchronous at
// the RPC layer (dispatch either returns promptly or hands back a job id).
func (m *Mux) handleMCP(w http.ResponseWriter, r *http.Request) {
	body, err := decodeRequest(r)
	if err != nil {
		writeRPCError(w, mcpproto.NewError(nil, mcpproto.CodeParseError, "malformed JSON-RPC request", err.Error()))
		return
	}

	sess, sessErr := m.loadOrRequireSession(r)
	if sessErr != nil && body.Method != "initialize" {
		writeRPCError(w, mcpproto.NewError(body.ID, mcpproto.CodeInvalidRequest, sessErr.Error(), nil))
		return
	}

	if body.Method == "tools/call" {
		var params mcpproto.ToolCallParams
		_ = json.Unmarshal(body.Params, &params)
		if scopeErr := requireScope(r.Context(), "tools/call", params.Name); scopeErr != nil {
			w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+scopeErr.Error()+`"`)
			writeError(w, http.StatusForbidden, scopeErr.Error())
			return
		}
	}

	resp := m.rpc.Handle(r.Context(), sess, body)

	if sess != nil {
		_ = m.sessions.Touch(r.Context(), sess.ID)
		w.Header().Set(mcpSessionHeader, sess.ID)
	} else if body.Method == "initialize" && resp.Result != nil {
		var init mcpproto.InitializeResult
		if err := json.Unmarshal(resp.Result, &init); err == nil {
			w.Header().Set(mcpSessionHeader, init.SessionID)
		}
	}

	if body.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeRequest(r *http.Request) (mcpproto.Request, error) {
	var req mcpproto.Request
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}

func (m *Mux) loadOrRequireSession(r *http.Request) (*session.Session, error) {
	id := r.Header.Get(mcpSessionHeader)
	if id == "" {
		return nil, nil
	}
	sess, err := m.sessions.Load(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func writeRPCError(w http.ResponseWriter, resp mcpproto.Response) {
	writeJSON(w, http.StatusOK, resp)
}

// handleJobEvents streams a job's event journal as SSE, replaying every
// event with id > cursor before switching to live polling, per spec.md
// §4.1's cursor-resumption invariant (no duplicates, no gaps) and §4.3's
// fan-out contract (poll interval <=1s, final "complete" event on drain).
func (m *Mux) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	cursor := cursorFrom(r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	sub, err := m.broadcaster.Subscribe(ctx, jobID)
	if err != nil {
		return
	}
	defer sub.Close()

	cursor, err = m.replayEvents(w, flusher, jobID, cursor)
	if err != nil {
		return
	}
	if m.jobDrained(ctx, jobID) {
		_ = mcpproto.WriteSSEEvent(w, "complete", []byte(`{}`))
		flusher.Flush()
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.C():
			if ev.ID <= cursor {
				continue
			}
			if err := writeJobEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
			cursor = ev.ID
			if terminalEvent(ev.EventType) {
				_ = mcpproto.WriteSSEEvent(w, "complete", []byte(`{}`))
				flusher.Flush()
				return
			}
		case <-ticker.C:
			cursor, err = m.replayEvents(w, flusher, jobID, cursor)
			if err != nil {
				return
			}
			if m.jobDrained(ctx, jobID) {
				_ = mcpproto.WriteSSEEvent(w, "complete", []byte(`{}`))
				flusher.Flush()
				return
			}
		}
	}
}

func cursorFrom(r *http.Request) int64 {
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	if v := r.URL.Query().Get("since_event_id"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func (m *Mux) replayEvents(w http.ResponseWriter, flusher http.Flusher, jobID string, cursor int64) (int64, error) {
	events, err := m.store.EventsSince(context.Background(), jobID, cursor, 500)
	if err != nil {
		return cursor, err
	}
	for _, ev := range events {
		if err := writeJobEvent(w, ev); err != nil {
			return cursor, err
		}
		cursor = ev.ID
	}
	flusher.Flush()
	return cursor, nil
}

func writeJobEvent(w http.ResponseWriter, ev store.JobEvent) error {
	return mcpproto.WriteSSEEvent(w, string(ev.EventType), ev.Payload)
}

func terminalEvent(t store.EventType) bool {
	switch t {
	case store.EventCompleted, store.EventError, store.EventCanceled:
		return true
	default:
		return false
	}
}

func (m *Mux) jobDrained(ctx context.Context, jobID string) bool {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return true
	}
	return job.Status.Terminal()
}

// jobSubmitRequest is the POST /jobs body: a tool name and its params, plus
// the optional idempotency controls spec.md §4.5 exposes at the RPC layer.
type jobSubmitRequest struct {
	Type           string          `json:"type"`
	Params         json.RawMessage `json:"params"`
	IdempotencyKey string          `json:"idempotencyKey"`
	ForceNew       bool            `json:"force_new"`
}

// handleJobSubmit is the REST equivalent of dispatching an async tool call,
// per spec.md §6's "POST /jobs | bearer | submit a job (body = tool
// params)" row: it runs the same idempotency-branching Submit path a
// tools/call RPC uses, so a caller that prefers plain REST over JSON-RPC
// still gets queued/cached/retried semantics identical to the MCP surface.
func (m *Mux) handleJobSubmit(w http.ResponseWriter, r *http.Request) {
	var req jobSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}

	policy := idempotency.Policy{
		Window:     time.Duration(m.cfg.IdempotencyRetryWindowSeconds) * time.Second,
		MaxRetries: m.cfg.IdempotencyMaxRetries,
	}
	result, err := jobs.Submit(r.Context(), m.store, m.idempotency, m.cfg, policy, req.Type, req.Params, req.IdempotencyKey, req.ForceNew)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusAccepted
	if result.ExistingJob || result.Cached {
		status = http.StatusOK
	}
	resp := map[string]any{"job_id": result.JobID, "status": result.Status}
	if result.ExistingJob {
		resp["existing_job"] = true
	}
	if result.Cached {
		resp["cached"] = true
		resp["result"] = json.RawMessage(result.Result)
	}
	writeJSON(w, status, resp)
}

// handleJobGet is the point-in-time job status read backing job_status /
// get_job_status, supplemented per SPEC_FULL.md §6 as a GET alongside the
// SSE stream.
func (m *Mux) handleJobGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := m.store.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleJobCancel mirrors cancel_job over HTTP, per SPEC_FULL.md §6.
func (m *Mux) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	canceled, err := m.jobs.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !canceled {
		writeError(w, http.StatusConflict, "job is not cancelable in its current state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"canceled": canceled})
}

// handleHealth reports database and embedder reachability, per spec.md
// §4.1: "200 with {status, version, checks:{database, embedder}} or 503
// when a check fails."
func (m *Mux) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok", "embedder": "ok"}
	healthy := true

	if err := m.store.Ping(r.Context()); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if m.embedder != nil {
		if _, err := m.embedder.Embed(r.Context(), "health check"); err != nil {
			checks["embedder"] = err.Error()
			healthy = false
		}
	} else {
		checks["embedder"] = "disabled"
	}

	status := http.StatusOK
	statusText := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		statusText = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": statusText, "version": serverVersion, "checks": checks})
}

func (m *Mux) handleAbout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "research-engine",
		"version": serverVersion,
		"mode":    m.cfg.Mode,
	})
}

// handleWellKnownServer serves the unauthenticated server-description
// document spec.md §4.1 requires at /.well-known/mcp-server.
func (m *Mux) handleWellKnownServer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":              "research-engine",
		"version":           serverVersion,
		"protocolVersions":  mcpproto.SupportedProtocolVersions,
		"transports":        []string{"/mcp", "/mcp/ws", "/sse"},
		"capabilities":      mcpproto.ServerCapabilities,
	})
}

// handleWellKnownOAuth serves RFC 9728 protected-resource metadata.
func (m *Mux) handleWellKnownOAuth(w http.ResponseWriter, r *http.Request) {
	scopes := make([]string, 0, len(mcpproto.ScopeForMethod))
	seen := map[string]struct{}{}
	for _, s := range mcpproto.ScopeForMethod {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		scopes = append(scopes, s)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resource":              "research-engine",
		"authorization_servers": []string{m.cfg.AuthJWKSURL},
		"scopes_supported":      scopes,
		"jwks_uri":              m.cfg.AuthJWKSURL,
	})
}

// handleMetrics is the JSON snapshot endpoint SPEC_FULL.md §6 defines, in
// lieu of a Prometheus text exporter the teacher's own OTEL wiring
// (internal/telemetry/clue.go) never exposes over HTTP.
func (m *Mux) handleMetrics(w http.ResponseWriter, r *http.Request) {
	counts, err := m.store.CountJobsByStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs_by_status": counts,
	})
}
