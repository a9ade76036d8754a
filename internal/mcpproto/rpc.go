// Package mcpproto implements the server side of the JSON-RPC 2.0 envelope
// MCP clients speak over STDIO, streamable HTTP, WebSocket, and legacy SSE,
// per spec.md §4.1. It is grounded on the teacher's own MCP client-side
// types (runtime/mcp/caller.go, features/mcp/runtime/rpc.go), inverted from
// "the caller sending requests and decoding responses" to "the server
// decoding requests and sending responses".
package mcpproto

import "encoding/json"

// JSON-RPC 2.0 canonical error codes, per spec.md §4.2/§7 and the teacher's
// own constants in runtime/mcp/caller.go.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeServerError is the low end of the implementation-defined server
	// error range the JSON-RPC 2.0 spec reserves (-32000 to -32099).
	CodeServerError = -32000
)

// Request is one inbound JSON-RPC 2.0 call, decoded from any transport
// frame before being handed to the session/dispatch layers.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      *RequestID      `json:"id,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether this request carries no id and therefore
// expects no response, per JSON-RPC 2.0.
func (r Request) IsNotification() bool { return r.ID == nil }

// Response is one outbound JSON-RPC 2.0 response, success or error but
// never both, per spec.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *RequestID      `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// NewResult builds a successful Response for the given request id.
func NewResult(id *RequestID, result any) (Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Response{}, err
	}
	return Response{JSONRPC: "2.0", ID: id, Result: raw}, nil
}

// NewError builds an error Response for the given request id.
func NewError(id *RequestID, code int, message string, data any) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message, Data: data}}
}

// RequestID holds a JSON-RPC id, which may be a string or a number on the
// wire; MarshalJSON/UnmarshalJSON round-trip whichever form the peer used
// instead of forcing one representation.
type RequestID struct {
	raw json.RawMessage
}

// NewStringID wraps a string request id.
func NewStringID(s string) *RequestID {
	raw, _ := json.Marshal(s)
	return &RequestID{raw: raw}
}

// NewNumberID wraps a numeric request id.
func NewNumberID(n int64) *RequestID {
	raw, _ := json.Marshal(n)
	return &RequestID{raw: raw}
}

func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id == nil || id.raw == nil {
		return []byte("null"), nil
	}
	return id.raw, nil
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	id.raw = append(json.RawMessage(nil), data...)
	return nil
}

// String renders the id for logging regardless of its wire type.
func (id *RequestID) String() string {
	if id == nil || id.raw == nil {
		return ""
	}
	return string(id.raw)
}
