package transport

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/oss-mcp/research-engine/internal/mcpproto"
	"github.com/oss-mcp/research-engine/internal/session"
)

// sseConnection holds one legacy-SSE client's outbound queue, correlated by
// a server-issued connection id that clients echo back on POST /messages.
// This is the predecessor MCP transport, kept alongside the streamable
// /mcp endpoint for older clients per spec.md §4.1.
type sseConnection struct {
	out  chan mcpproto.Response
	sess *session.Session
}

type sseRegistry struct {
	mu    sync.Mutex
	conns map[string]*sseConnection
}

func newSSERegistry() *sseRegistry {
	return &sseRegistry{conns: make(map[string]*sseConnection)}
}

func (reg *sseRegistry) create() (string, *sseConnection) {
	id := randomID()
	conn := &sseConnection{out: make(chan mcpproto.Response, 16)}
	reg.mu.Lock()
	reg.conns[id] = conn
	reg.mu.Unlock()
	return id, conn
}

func (reg *sseRegistry) get(id string) (*sseConnection, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	c, ok := reg.conns[id]
	return c, ok
}

func (reg *sseRegistry) remove(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.conns, id)
}

func randomID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// handleSSEConnect opens the long-lived event stream and announces the
// connection id the client must use on subsequent POST /messages calls, via
// an "endpoint" event, matching the pre-streamable-HTTP MCP SSE convention.
func (m *Mux) handleSSEConnect(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	id, conn := m.sseConns.create()
	defer m.sseConns.remove(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	_ = mcpproto.WriteSSEEvent(w, "endpoint", []byte("/messages/"+id))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case resp := <-conn.out:
			payload, err := json.Marshal(resp)
			if err != nil {
				continue
			}
			if err := mcpproto.WriteSSEEvent(w, "message", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleSSEMessage accepts one JSON-RPC request for an established legacy
// SSE connection and queues its response onto that connection's event
// stream rather than returning it inline.
func (m *Mux) handleSSEMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "connectionId")
	if id == "" {
		id = r.URL.Query().Get("sessionId")
	}
	conn, ok := m.sseConns.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown sse connection")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	var req mcpproto.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON-RPC request")
		return
	}

	resp := m.rpc.Handle(r.Context(), conn.sess, req)
	if req.Method == "initialize" && resp.Result != nil {
		var init mcpproto.InitializeResult
		if err := json.Unmarshal(resp.Result, &init); err == nil {
			if s, loadErr := m.sessions.Load(r.Context(), init.SessionID); loadErr == nil {
				conn.sess = &s
			}
		}
	} else if conn.sess != nil {
		_ = m.sessions.Touch(r.Context(), conn.sess.ID)
	}

	if !req.IsNotification() {
		conn.out <- resp
	}
	w.WriteHeader(http.StatusAccepted)
}
