package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

type openAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(opts Options) Client {
	cfg := openai.DefaultConfig(opts.OpenAIAPIKey)
	if opts.OpenAIBaseURL != "" {
		cfg.BaseURL = opts.OpenAIBaseURL
	}

	return &openAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  opts.Model,
	}
}

func (c *openAIClient) Generate(ctx context.Context, messages []Message, opts GenerateOptions) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	}

	req.Messages = make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &ServiceError{
			Provider:  "openai",
			Retriable: isRetriableOpenAI(err),
			Err:       fmt.Errorf("create chat completion: %w", err),
		}
	}

	if len(resp.Choices) == 0 {
		return "", &ServiceError{
			Provider: "openai",
			Err:      fmt.Errorf("chat completion returned no choices"),
		}
	}

	return resp.Choices[0].Message.Content, nil
}

func isRetriableOpenAI(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= http.StatusInternalServerError ||
			apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	// Transport-level failures (timeouts, connection refused) are transient.
	return true
}
