package mcpproto

// SupportedProtocolVersions lists the MCP protocol versions this server
// accepts during initialize, per spec.md §4.1: "if client sends a version
// the server does not support, respond with an error enumerating supported
// versions."
var SupportedProtocolVersions = []string{"2025-06-18", "2025-03-26"}

// Capabilities is the negotiated feature set exchanged during initialize.
type Capabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Prompts   *PromptsCapability   `json:"prompts,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
}

// ToolsCapability advertises tool-list-change notifications.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// PromptsCapability advertises prompt-list-change notifications.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability advertises resource subscription and list-change
// notification support.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerCapabilities is what this server advertises during initialize: the
// full manual tool/prompt/resource surface, independent of the catalog
// Mode restricting which tools actually resolve at tools/call time.
var ServerCapabilities = Capabilities{
	Tools:     &ToolsCapability{ListChanged: true},
	Prompts:   &PromptsCapability{ListChanged: false},
	Resources: &ResourcesCapability{Subscribe: true, ListChanged: true},
}

// InitializeParams is the payload of the initialize request.
type InitializeParams struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ClientInfo      ClientInfo   `json:"clientInfo"`
}

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the server's response to initialize. SessionID is
// also echoed in the transport-level Mcp-Session-Id response header for
// clients that read session ids out-of-band, per spec.md §4.1.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	SessionID       string       `json:"sessionId"`
}

// ServerInfo identifies this server in the initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// SupportsProtocolVersion reports whether v is one this server negotiates.
func SupportsProtocolVersion(v string) bool {
	for _, supported := range SupportedProtocolVersions {
		if supported == v {
			return true
		}
	}
	return false
}

// ScopeForMethod maps an RPC method (and, for tools/call, the tool name) to
// the OAuth scope required to invoke it, per spec.md §4.1 "Capability
// negotiation" (e.g. "tools/call:research -> mcp:research:write"). Methods
// with no entry require no scope beyond a valid principal.
var ScopeForMethod = map[string]string{
	"tools/call:research":    "mcp:research:write",
	"tools/call:retrieve":    "mcp:retrieve:read",
	"tools/call:follow_up":   "mcp:research:write",
	"tools/call:graph_query": "mcp:retrieve:read",
	"tools/call:cancel_job":  "mcp:jobs:write",
	"resources/subscribe":    "mcp:resources:read",
	"resources/unsubscribe":  "mcp:resources:read",
}

// RequiredScope resolves the scope for an RPC method, optionally qualified
// by tool name for tools/call.
func RequiredScope(method, toolName string) (scope string, required bool) {
	if toolName != "" {
		if s, ok := ScopeForMethod[method+":"+toolName]; ok {
			return s, true
		}
	}
	s, ok := ScopeForMethod[method]
	return s, ok
}
