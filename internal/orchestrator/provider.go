// Package orchestrator implements the ensemble research pipeline of
// spec.md §4.4: plan, bounded fan-out to sub-agents, partial-failure
// tolerance, cost fallback between a primary and cheaper model, streaming
// synthesis, and report persistence.
package orchestrator

import (
	"context"
	"errors"
)

// Message is one turn in a conversation sent to a model.
type Message struct {
	Role    string // "system", "user", or "assistant"
	Content string
}

// TokenUsage tracks token counts for one model call, summed field-wise
// across sub-agents for the ensemble's aggregate "agent_usage" event
// (spec.md §8 Open Question: "agent_usage = field-wise sum").
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Add accumulates other into u, field by field.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// Request captures the inputs to one chat-completion call. This is a
// deliberately narrowed version of the provider-agnostic request the
// teacher's runtime/agent/model package defines (dropping tool-use,
// thinking budgets, prompt-caching, and multimodal parts, none of which
// the research pipeline exercises): see DESIGN.md for the simplification
// note.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Response is the result of a non-streaming Complete call.
type Response struct {
	Content    string
	Usage      TokenUsage
	StopReason string
}

// Chunk is one streaming token (or the terminal event) from Stream.
type Chunk struct {
	Delta      string
	Done       bool
	Usage      *TokenUsage
	StopReason string
}

// ErrRateLimited is returned (wrapped) by ChatClient implementations when
// the upstream provider signals a rate limit, so the cost-fallback stage
// (spec.md §4.4 stage 4) can recognize it distinctly from other failures.
var ErrRateLimited = errors.New("orchestrator: provider rate limited")

// Streamer delivers incremental chat-completion output.
type Streamer interface {
	Recv() (Chunk, error)
	Close() error
}

// ChatClient is the provider-agnostic model client every adapter
// (Anthropic, OpenAI) implements.
type ChatClient interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request) (Streamer, error)
}
