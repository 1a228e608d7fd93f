package embeddings

import (
	"context"
	"fmt"

	"github.com/fabfab/newsrag/config"
)

// Embedder converts texts into fixed-dimension vectors. Implementations are
// stateless and preserve input order in the returned slice.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ServiceError reports a failed call to the backing embedding service.
// Retriable distinguishes transient failures from permanent ones.
type ServiceError struct {
	Provider  string
	Retriable bool
	Err       error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("embedding service (%s): %v", e.Provider, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// InputTooLargeError is returned when a text exceeds the embedding model's
// input limit. Input is never silently truncated; the caller must re-chunk.
type InputTooLargeError struct {
	Size  int
	Limit int
}

func (e *InputTooLargeError) Error() string {
	return fmt.Sprintf("embedding input of %d chars exceeds limit of %d", e.Size, e.Limit)
}

type Options struct {
	Provider      string
	Model         string
	Dimension     int
	MaxInputChars int

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

func NewEmbedder(cfg config.Config) (Embedder, error) {
	opts := Options{
		Provider:      cfg.Embeddings.Provider,
		Model:         cfg.Embeddings.Model,
		Dimension:     cfg.Embeddings.Dimension,
		MaxInputChars: cfg.Embeddings.MaxInputChars,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaEmbedder(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIEmbedder(opts), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", opts.Provider)
	}
}

func checkInputSize(texts []string, limit int) error {
	if limit <= 0 {
		return nil
	}
	for _, text := range texts {
		if len(text) > limit {
			return &InputTooLargeError{Size: len(text), Limit: limit}
		}
	}
	return nil
}
