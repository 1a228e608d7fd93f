package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

type openAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	maxInput  int
}

func NewOpenAIEmbedder(opts Options) Embedder {
	cfg := openai.DefaultConfig(opts.OpenAIAPIKey)
	if opts.OpenAIBaseURL != "" {
		cfg.BaseURL = opts.OpenAIBaseURL
	}

	return &openAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     opts.Model,
		dimension: opts.Dimension,
		maxInput:  opts.MaxInputChars,
	}
}

func (e *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkInputSize(texts, e.maxInput); err != nil {
		return nil, err
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, &ServiceError{
			Provider:  "openai",
			Retriable: isRetriableOpenAI(err),
			Err:       fmt.Errorf("create embeddings: %w", err),
		}
	}

	if len(resp.Data) != len(texts) {
		return nil, &ServiceError{Provider: "openai", Err: fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(resp.Data))}
	}

	// Place vectors by the response's index field; the contract is input
	// order, not API response order.
	results := make([][]float32, len(texts))
	for _, datum := range resp.Data {
		if datum.Index < 0 || datum.Index >= len(results) {
			return nil, &ServiceError{Provider: "openai", Err: fmt.Errorf("embedding index %d out of range for %d texts", datum.Index, len(texts))}
		}
		if e.dimension > 0 && len(datum.Embedding) != e.dimension {
			return nil, &ServiceError{Provider: "openai", Err: fmt.Errorf("embedding dimension mismatch: expected %d, got %d", e.dimension, len(datum.Embedding))}
		}
		results[datum.Index] = datum.Embedding
	}

	return results, nil
}

func isRetriableOpenAI(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= http.StatusInternalServerError ||
			apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return true
}
