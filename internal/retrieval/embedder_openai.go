package retrieval

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder implements Embedder via the OpenAI embeddings API,
// grounded on the same go-openai client orchestrator.OpenAIClient wraps for
// chat completions (features/model/openai/client.go), applied here to the
// EMBEDDINGS_PROVIDER=openai configuration spec.md §6 lists alongside the
// chat-completion provider keys.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder constructs an Embedder backed by apiKey/model.
func NewOpenAIEmbedder(apiKey, model string) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("retrieval: openai api key is required")
	}
	if strings.TrimSpace(model) == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(apiKey),
		model:  openai.EmbeddingModel(model),
	}, nil
}

// Embed returns the dense vector for text, per the Embedder contract's
// "pure and deterministic" requirement (the API itself is deterministic for
// a fixed model and input).
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("retrieval: embeddings response contained no vectors")
	}
	return resp.Data[0].Embedding, nil
}
