package transport

import (
	"fmt"

	"github.com/oss-mcp/research-engine/internal/mcpproto"
)

// staticPrompts backs prompts/list and prompts/get. spec.md's Non-goals
// exclude "the textual prompts used to drive upstream models" from this
// engine's concern, but prompts/list and prompts/get are still part of the
// MCP surface area clients negotiate against, so a small fixed catalog of
// reusable call templates is served rather than leaving the capability
// advertised-but-unimplemented.
var staticPrompts = map[string]mcpproto.PromptDescriptor{
	"research_query": {
		Name:        "research_query",
		Description: "Frame a topic as a research question suitable for the research tool.",
	},
	"follow_up_question": {
		Name:        "follow_up_question",
		Description: "Frame a clarifying question against a prior report.",
	},
}

func listPrompts() mcpproto.PromptsListResult {
	out := make([]mcpproto.PromptDescriptor, 0, len(staticPrompts))
	for _, p := range staticPrompts {
		out = append(out, p)
	}
	return mcpproto.PromptsListResult{Prompts: out}
}

func getPrompt(name string, args map[string]any) (mcpproto.PromptGetResult, error) {
	desc, ok := staticPrompts[name]
	if !ok {
		return mcpproto.PromptGetResult{}, fmt.Errorf("unknown prompt %q", name)
	}
	topic, _ := args["topic"].(string)
	var text string
	switch name {
	case "research_query":
		if topic == "" {
			topic = "<topic>"
		}
		text = fmt.Sprintf("Research the following topic thoroughly and cite your sources: %s", topic)
	case "follow_up_question":
		if topic == "" {
			topic = "<question>"
		}
		text = fmt.Sprintf("Given the prior report, answer this follow-up question: %s", topic)
	}
	return mcpproto.PromptGetResult{
		Description: desc.Description,
		Messages: []mcpproto.PromptMessage{
			{Role: "user", Content: mcpproto.ToolContent{Type: "text", Text: text}},
		},
	}, nil
}
