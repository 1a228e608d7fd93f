package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ollamaClient struct {
	host   string
	model  string
	client *http.Client
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error"`
}

func NewOllamaClient(opts Options) Client {
	host := strings.TrimRight(opts.OllamaHost, "/")
	if host == "" {
		host = "http://localhost:11434"
	}

	return &ollamaClient{
		host:  host,
		model: opts.Model,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *ollamaClient) Generate(ctx context.Context, messages []Message, opts GenerateOptions) (string, error) {
	payload := ollamaChatRequest{
		Model:  c.model,
		Stream: false,
	}
	payload.Messages = toOllamaMessages(messages)

	options := map[string]any{}
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if len(options) > 0 {
		payload.Options = options
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &ServiceError{Provider: "ollama", Retriable: true, Err: fmt.Errorf("call ollama chat API: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		retriable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		data, readErr := io.ReadAll(resp.Body)
		if readErr == nil && len(data) > 0 {
			return "", &ServiceError{Provider: "ollama", Retriable: retriable, Err: fmt.Errorf("ollama chat API error: %s", string(data))}
		}
		return "", &ServiceError{Provider: "ollama", Retriable: retriable, Err: fmt.Errorf("ollama chat API returned status %s", resp.Status)}
	}

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &ServiceError{Provider: "ollama", Err: fmt.Errorf("decode ollama response: %w", err)}
	}

	if parsed.Error != "" {
		return "", &ServiceError{Provider: "ollama", Err: fmt.Errorf("ollama chat error: %s", parsed.Error)}
	}

	return parsed.Message.Content, nil
}

func toOllamaMessages(messages []Message) []ollamaChatMessage {
	if len(messages) == 0 {
		return nil
	}
	converted := make([]ollamaChatMessage, len(messages))
	for i := range messages {
		converted[i] = ollamaChatMessage(messages[i])
	}
	return converted
}
