package embeddings

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/fabfab/newsrag/config"
)

func TestCheckInputSizeRejectsOversized(t *testing.T) {
	texts := []string{"ok", strings.Repeat("x", 101)}

	err := checkInputSize(texts, 100)
	if err == nil {
		t.Fatal("expected an error for oversized input")
	}

	var tooLarge *InputTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected InputTooLargeError, got %T", err)
	}
	if tooLarge.Size != 101 || tooLarge.Limit != 100 {
		t.Errorf("unexpected error details: %+v", tooLarge)
	}
}

func TestCheckInputSizeAcceptsWithinLimit(t *testing.T) {
	if err := checkInputSize([]string{strings.Repeat("x", 100)}, 100); err != nil {
		t.Errorf("input at the limit must pass: %v", err)
	}
}

func TestCheckInputSizeUnlimited(t *testing.T) {
	if err := checkInputSize([]string{strings.Repeat("x", 1 << 20)}, 0); err != nil {
		t.Errorf("a zero limit disables the check: %v", err)
	}
}

func TestServiceErrorUnwraps(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	err := &ServiceError{Provider: "ollama", Retriable: true, Err: inner}

	if !errors.Is(err, inner) {
		t.Error("expected the wrapped error to unwrap")
	}
	if !strings.Contains(err.Error(), "ollama") {
		t.Errorf("expected the provider in the message, got %q", err.Error())
	}
}

func TestNewEmbedderUnknownProvider(t *testing.T) {
	cfg := config.Config{Embeddings: config.EmbeddingConfig{Provider: "carrier-pigeon"}}

	if _, err := NewEmbedder(cfg); err == nil {
		t.Error("expected an error for an unknown provider")
	}
}

func TestNewEmbedderOpenAIRequiresKey(t *testing.T) {
	cfg := config.Config{Embeddings: config.EmbeddingConfig{Provider: config.ProviderOpenAI}}

	if _, err := NewEmbedder(cfg); err == nil {
		t.Error("expected an error when the api key is missing")
	}
}
