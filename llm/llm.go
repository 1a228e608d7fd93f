package llm

import (
	"context"
	"fmt"

	"github.com/fabfab/newsrag/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

// GenerateOptions bounds the output of a single generation call. Zero values
// fall back to the provider defaults.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

type Client interface {
	Generate(ctx context.Context, messages []Message, opts GenerateOptions) (string, error)
}

// ServiceError reports a failed generation call. Retriable distinguishes
// transient failures (timeouts, overload) from permanent ones (bad request,
// invalid model); callers own the retry policy.
type ServiceError struct {
	Provider  string
	Retriable bool
	Err       error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("llm service (%s): %v", e.Provider, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

type Options struct {
	Provider string
	Model    string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

func NewClient(cfg config.Config) (Client, error) {
	opts := Options{
		Provider:      cfg.LLM.Provider,
		Model:         cfg.LLM.Model,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaClient(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIClient(opts), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", opts.Provider)
	}
}
