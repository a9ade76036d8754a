package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// AnthropicClient implements ChatClient over the Anthropic Messages API,
// simplified from features/model/anthropic/client.go: the research
// orchestrator only ever sends plain system/user/assistant text turns, so
// tool-use, prompt caching, and extended-thinking translation (all present
// in the teacher's adapter) are dropped — see DESIGN.md.
type AnthropicClient struct {
	msg          *sdk.MessageService
	defaultModel string
	maxTokens    int
}

// NewAnthropicClient builds a ChatClient from an Anthropic API key.
func NewAnthropicClient(apiKey, defaultModel string, maxTokens int) (*AnthropicClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("orchestrator: anthropic api key is required")
	}
	if strings.TrimSpace(defaultModel) == "" {
		return nil, errors.New("orchestrator: default anthropic model is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{msg: &client.Messages, defaultModel: defaultModel, maxTokens: maxTokens}, nil
}

func (c *AnthropicClient) prepare(req Request) sdk.MessageNewParams {
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	var system []sdk.TextBlockParam
	var msgs []sdk.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case "assistant":
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Temperature))
	}
	return params
}

// Complete issues a non-streaming Messages.New call.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("orchestrator: messages are required")
	}
	params := c.prepare(req)
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		if isAnthropicRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(sdk.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	return &Response{
		Content: text.String(),
		Usage: TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		StopReason: string(msg.StopReason),
	}, nil
}

// Stream issues a streaming Messages.New call and relays text deltas.
func (c *AnthropicClient) Stream(ctx context.Context, req Request) (Streamer, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("orchestrator: messages are required")
	}
	params := c.prepare(req)
	stream := c.msg.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		if isAnthropicRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("anthropic messages.new stream: %w", err)
	}
	return &anthropicStreamer{stream: stream}, nil
}

type anthropicStreamer struct {
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]
}

func (s *anthropicStreamer) Recv() (Chunk, error) {
	for s.stream.Next() {
		event := s.stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && delta.Text != "" {
				return Chunk{Delta: delta.Text}, nil
			}
		case sdk.MessageDeltaEvent:
			usage := TokenUsage{
				InputTokens:  int(ev.Usage.InputTokens),
				OutputTokens: int(ev.Usage.OutputTokens),
				TotalTokens:  int(ev.Usage.InputTokens + ev.Usage.OutputTokens),
			}
			return Chunk{Usage: &usage, StopReason: string(ev.Delta.StopReason)}, nil
		case sdk.MessageStopEvent:
			return Chunk{Done: true}, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		if errors.Is(err, io.EOF) {
			return Chunk{Done: true}, nil
		}
		return Chunk{}, fmt.Errorf("anthropic stream recv: %w", err)
	}
	return Chunk{Done: true}, nil
}

func (s *anthropicStreamer) Close() error {
	return s.stream.Close()
}

func isAnthropicRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") || strings.Contains(msg, "overloaded")
}
