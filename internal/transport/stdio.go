package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/oss-mcp/research-engine/internal/mcpproto"
	"github.com/oss-mcp/research-engine/internal/session"
)

// RunStdio drives the stdio transport: one JSON-RPC request per line of
// stdin, one JSON-RPC response per line of stdout. Stderr is reserved for
// logs only, per spec.md §4.1, since a client speaking stdio treats every
// byte on stdout as protocol framing.
func (m *Mux) RunStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	var mu sync.Mutex
	writeLocked := func(v any) error {
		mu.Lock()
		defer mu.Unlock()
		enc := json.NewEncoder(out)
		return enc.Encode(v)
	}

	var sess *session.Session
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req mcpproto.Request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = writeLocked(mcpproto.NewError(nil, mcpproto.CodeParseError, "malformed JSON-RPC line", err.Error()))
			continue
		}

		resp := m.rpc.Handle(ctx, sess, req)
		if req.Method == "initialize" && resp.Result != nil {
			var init mcpproto.InitializeResult
			if err := json.Unmarshal(resp.Result, &init); err == nil {
				if s, loadErr := m.sessions.Load(ctx, init.SessionID); loadErr == nil {
					sess = &s
				}
			}
		} else if sess != nil {
			_ = m.sessions.Touch(ctx, sess.ID)
		}

		if req.IsNotification() {
			continue
		}
		if err := writeLocked(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}
