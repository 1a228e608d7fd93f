package gate

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/fabfab/newsrag/llm"
	"github.com/fabfab/newsrag/retrieval"
)

type stubLLM struct {
	reply string
	err   error
	calls int
}

func (s *stubLLM) Generate(context.Context, []llm.Message, llm.GenerateOptions) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func discard() *log.Logger { return log.New(io.Discard, "", 0) }

func resultWithScore(score float64) retrieval.Result {
	return retrieval.Result{
		Query:    "what moved the market?",
		Passages: []retrieval.Passage{{ArticleID: "a1", Text: "stocks fell", Score: score}},
	}
}

func TestAssessEmptyResultSkipsLLM(t *testing.T) {
	client := &stubLLM{reply: "YES"}
	g := New(client, 0.1, discard())

	verdict, err := g.Assess(context.Background(), "q", retrieval.Result{})
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if verdict != Insufficient {
		t.Errorf("expected insufficient, got %s", verdict)
	}
	if client.calls != 0 {
		t.Errorf("expected no llm calls, got %d", client.calls)
	}
}

func TestAssessBelowThresholdSkipsLLM(t *testing.T) {
	client := &stubLLM{reply: "YES"}
	g := New(client, 0.5, discard())

	verdict, err := g.Assess(context.Background(), "q", resultWithScore(0.2))
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if verdict != Insufficient {
		t.Errorf("expected insufficient below threshold, got %s", verdict)
	}
	if client.calls != 0 {
		t.Errorf("expected no llm calls, got %d", client.calls)
	}
}

func TestAssessJudgmentMapping(t *testing.T) {
	cases := []struct {
		reply string
		want  Verdict
	}{
		{"YES", Sufficient},
		{"yes", Sufficient},
		{"YES.", Sufficient},
		{"NO", Insufficient},
		{"no, they do not", Insufficient},
		{"PARTIAL", Partial},
		{"Partially", Partial},
		{"The answer is PARTIAL", Partial},
		{"maybe?", Partial},
		{"", Partial},
	}

	for _, tc := range cases {
		client := &stubLLM{reply: tc.reply}
		g := New(client, 0.1, discard())

		verdict, err := g.Assess(context.Background(), "q", resultWithScore(0.8))
		if err != nil {
			t.Fatalf("assess(%q): %v", tc.reply, err)
		}
		if verdict != tc.want {
			t.Errorf("reply %q: expected %s, got %s", tc.reply, tc.want, verdict)
		}
		if client.calls != 1 {
			t.Errorf("reply %q: expected 1 llm call, got %d", tc.reply, client.calls)
		}
	}
}

func TestAssessLLMErrorIsTerminal(t *testing.T) {
	client := &stubLLM{err: &llm.ServiceError{Provider: "ollama", Retriable: true, Err: fmt.Errorf("overloaded")}}
	g := New(client, 0.1, discard())

	if _, err := g.Assess(context.Background(), "q", resultWithScore(0.8)); err == nil {
		t.Error("expected the judgment failure to surface as an error")
	}
}

func TestVerdictString(t *testing.T) {
	if Sufficient.String() != "sufficient" || Partial.String() != "partial" || Insufficient.String() != "insufficient" {
		t.Error("unexpected verdict strings")
	}
}
