package answer

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/fabfab/newsrag/conversation"
	"github.com/fabfab/newsrag/gate"
	"github.com/fabfab/newsrag/llm"
	"github.com/fabfab/newsrag/retrieval"
)

type stubLLM struct {
	reply string
	err   error
	last  []llm.Message
}

func (s *stubLLM) Generate(_ context.Context, messages []llm.Message, _ llm.GenerateOptions) (string, error) {
	s.last = messages
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func discard() *log.Logger { return log.New(io.Discard, "", 0) }

func sampleResult() retrieval.Result {
	published := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	return retrieval.Result{
		Query: "what moved markets?",
		Passages: []retrieval.Passage{
			{ArticleID: "a1", Text: "Stocks rallied on rate cut hopes.", Source: "reuters", Title: "Markets rally", PublishedAt: published, Score: 0.9},
			{ArticleID: "a2", Text: "Bond yields fell.", Source: "bloomberg", Title: "Yields drop", PublishedAt: published, Score: 0.7},
		},
	}
}

func TestComposeSufficientCitesSources(t *testing.T) {
	client := &stubLLM{reply: "Markets rose on rate cut hopes [1]."}
	c := NewComposer(client, discard())

	result, err := c.Compose(context.Background(), "what moved markets?", sampleResult(), gate.Sufficient, nil, Options{})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	if !result.Grounded {
		t.Error("expected a grounded result")
	}
	if result.Caveat != "" {
		t.Errorf("expected no caveat, got %q", result.Caveat)
	}
	if len(result.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(result.Citations))
	}
	if result.Citations[0].Source != "reuters" {
		t.Errorf("expected the best-scoring source first, got %q", result.Citations[0].Source)
	}

	prompt := client.last[1].Content
	if !strings.Contains(prompt, "Stocks rallied") {
		t.Error("expected passages in the prompt")
	}
	if !strings.Contains(prompt, "[1] reuters") {
		t.Error("expected numbered passage labels in the prompt")
	}
}

func TestComposePartialHedges(t *testing.T) {
	client := &stubLLM{reply: "Partial picture here."}
	c := NewComposer(client, discard())

	result, err := c.Compose(context.Background(), "q", sampleResult(), gate.Partial, nil, Options{})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	if !result.Grounded {
		t.Error("expected a grounded result")
	}
	if result.Caveat != hedgedCaveat {
		t.Errorf("expected the hedged caveat, got %q", result.Caveat)
	}
	if !strings.HasSuffix(result.Answer, hedgedCaveat) {
		t.Errorf("expected the caveat appended to the answer, got %q", result.Answer)
	}
	if len(result.Citations) != 2 {
		t.Errorf("expected citations on a partial answer, got %d", len(result.Citations))
	}
}

func TestComposeInsufficientExcludesPassages(t *testing.T) {
	client := &stubLLM{reply: "From general knowledge, markets are volatile."}
	c := NewComposer(client, discard())

	result, err := c.Compose(context.Background(), "q", sampleResult(), gate.Insufficient, nil, Options{})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	if result.Grounded {
		t.Error("expected an ungrounded result")
	}
	if len(result.Citations) != 0 {
		t.Errorf("fallback answers must not carry citations, got %d", len(result.Citations))
	}
	if result.Caveat != fallbackCaveat {
		t.Errorf("expected the fallback caveat, got %q", result.Caveat)
	}
	if !strings.HasSuffix(result.Answer, fallbackCaveat) {
		t.Errorf("expected the caveat appended to the answer, got %q", result.Answer)
	}

	prompt := client.last[1].Content
	if strings.Contains(prompt, "Stocks rallied") {
		t.Error("passages must not enter the prompt on an insufficient verdict")
	}
	if !strings.Contains(client.last[0].Content, "No current data") {
		t.Error("expected the ungrounded system prompt")
	}
}

func TestComposeIncludesConversation(t *testing.T) {
	client := &stubLLM{reply: "Answer."}
	c := NewComposer(client, discard())

	turns := []conversation.Turn{
		{Role: conversation.RoleUser, Text: "What about Germany?"},
		{Role: conversation.RoleAssistant, Text: "German inflation was 2.1%."},
	}

	if _, err := c.Compose(context.Background(), "q", sampleResult(), gate.Sufficient, turns, Options{}); err != nil {
		t.Fatalf("compose: %v", err)
	}

	prompt := client.last[1].Content
	if !strings.Contains(prompt, "User: What about Germany?") {
		t.Error("expected the user turn in the prompt")
	}
	if !strings.Contains(prompt, "Assistant: German inflation was 2.1%.") {
		t.Error("expected the assistant turn in the prompt")
	}
}

func TestComposeGenerationErrorIsTerminal(t *testing.T) {
	client := &stubLLM{err: fmt.Errorf("model offline")}
	c := NewComposer(client, discard())

	if _, err := c.Compose(context.Background(), "q", sampleResult(), gate.Sufficient, nil, Options{}); err == nil {
		t.Error("expected the generation failure to surface as an error")
	}
}

func TestCitationsFromDeduplicatesBySource(t *testing.T) {
	passages := []retrieval.Passage{
		{ArticleID: "a1", Source: "reuters", Score: 0.6},
		{ArticleID: "a2", Source: "reuters", Score: 0.9},
		{ArticleID: "a3", Source: "bloomberg", Score: 0.7},
	}

	citations := citationsFrom(passages)
	if len(citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(citations))
	}
	if citations[0].Source != "reuters" || citations[0].ArticleID != "a2" {
		t.Errorf("expected reuters' best article first, got %+v", citations[0])
	}
}
