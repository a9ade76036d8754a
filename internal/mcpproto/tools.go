package mcpproto

import "encoding/json"

// ToolDescriptor is one entry of a tools/list response.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolsListResult is the result of tools/list.
type ToolsListResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// ToolCallParams is the params of tools/call.
type ToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolContent is one block of a tool result's content array. Only the
// "text" type is produced by this server; the field is still named per the
// MCP content-block union so clients that branch on "type" keep working.
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToolCallResult is the result of tools/call, per spec.md §4.1's failure
// model: a handler exception is reported as IsError true with a
// human-readable Content message and machine-readable Data, not as a
// JSON-RPC protocol-level error.
type ToolCallResult struct {
	Content           []ToolContent `json:"content"`
	IsError           bool          `json:"isError,omitempty"`
	StructuredContent any           `json:"structuredContent,omitempty"`
	Data              any           `json:"data,omitempty"`
}

// TextResult builds a successful ToolCallResult carrying both a
// human-readable summary and the structured payload most callers want.
func TextResult(text string, structured any) ToolCallResult {
	return ToolCallResult{
		Content:           []ToolContent{{Type: "text", Text: text}},
		StructuredContent: structured,
	}
}

// ErrorResult builds a ToolCallResult reporting a handler-level failure.
func ErrorResult(message string, data any) ToolCallResult {
	return ToolCallResult{
		Content: []ToolContent{{Type: "text", Text: message}},
		IsError: true,
		Data:    data,
	}
}

// PromptDescriptor is one entry of a prompts/list response.
type PromptDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PromptsListResult is the result of prompts/list.
type PromptsListResult struct {
	Prompts []PromptDescriptor `json:"prompts"`
}

// PromptGetParams is the params of prompts/get.
type PromptGetParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// PromptMessage is one message of a prompts/get result.
type PromptMessage struct {
	Role    string      `json:"role"`
	Content ToolContent `json:"content"`
}

// PromptGetResult is the result of prompts/get.
type PromptGetResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// ResourceDescriptor is one entry of a resources/list response.
type ResourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	MimeType    string `json:"mimeType,omitempty"`
	Description string `json:"description,omitempty"`
}

// ResourcesListResult is the result of resources/list.
type ResourcesListResult struct {
	Resources []ResourceDescriptor `json:"resources"`
}

// ResourceURIParams is the params shared by resources/read, subscribe, and
// unsubscribe.
type ResourceURIParams struct {
	URI string `json:"uri"`
}

// ResourceContent is one item of a resources/read result.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
}

// ResourceReadResult is the result of resources/read.
type ResourceReadResult struct {
	Contents []ResourceContent `json:"contents"`
}
