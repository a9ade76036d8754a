package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements ChatClient via the OpenAI Chat Completions API,
// adapted from features/model/openai/client.go but extended to support
// streaming (the teacher's adapter returns ErrStreamingUnsupported; the
// synthesis stage of spec.md §4.4 requires token-by-token streaming, and
// go-openai exposes CreateChatCompletionStream, so this adapter wires it).
type OpenAIClient struct {
	chat         *openai.Client
	defaultModel string
}

// NewOpenAIClient constructs an OpenAI-backed ChatClient from an API key.
func NewOpenAIClient(apiKey, defaultModel string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("orchestrator: openai api key is required")
	}
	if strings.TrimSpace(defaultModel) == "" {
		return nil, errors.New("orchestrator: default openai model is required")
	}
	return &OpenAIClient{chat: openai.NewClient(apiKey), defaultModel: defaultModel}, nil
}

func (c *OpenAIClient) messages(req Request) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func (c *OpenAIClient) modelFor(req Request) string {
	if strings.TrimSpace(req.Model) != "" {
		return req.Model
	}
	return c.defaultModel
}

// Complete issues a non-streaming chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("orchestrator: messages are required")
	}
	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.modelFor(req),
		Messages:    c.messages(req),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		if isOpenAIRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	var content, stop string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		stop = string(resp.Choices[0].FinishReason)
	}
	return &Response{
		Content: content,
		Usage: TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		StopReason: stop,
	}, nil
}

// Stream issues a streaming chat completion, yielding one Chunk per delta.
func (c *OpenAIClient) Stream(ctx context.Context, req Request) (Streamer, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("orchestrator: messages are required")
	}
	stream, err := c.chat.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.modelFor(req),
		Messages:    c.messages(req),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		if isOpenAIRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai chat completion stream: %w", err)
	}
	return &openaiStreamer{stream: stream}, nil
}

type openaiStreamer struct {
	stream *openai.ChatCompletionStream
}

func (s *openaiStreamer) Recv() (Chunk, error) {
	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		return Chunk{Done: true}, nil
	}
	if err != nil {
		return Chunk{}, fmt.Errorf("openai stream recv: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Chunk{}, nil
	}
	choice := resp.Choices[0]
	chunk := Chunk{Delta: choice.Delta.Content}
	if choice.FinishReason != "" {
		chunk.Done = true
		chunk.StopReason = string(choice.FinishReason)
	}
	return chunk, nil
}

func (s *openaiStreamer) Close() error {
	return s.stream.Close()
}

func isOpenAIRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	return strings.Contains(strings.ToLower(err.Error()), "rate limit")
}
