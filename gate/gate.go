// Package gate decides whether retrieved passages plausibly answer a query.
// Top-k retrieval happily returns topically related but non-answering text;
// feeding that to the generator yields confident wrong answers. The gate
// rejects cheap cases on score alone and spends one LLM call on the rest.
package gate

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/fabfab/newsrag/llm"
	"github.com/fabfab/newsrag/retrieval"
)

type Verdict int

const (
	// Insufficient means the passages do not address the query; answer from
	// general knowledge with no citations.
	Insufficient Verdict = iota
	// Partial means the passages address the query incompletely; answer from
	// context but hedge.
	Partial
	// Sufficient means the passages contain the information needed.
	Sufficient
)

func (v Verdict) String() string {
	switch v {
	case Sufficient:
		return "sufficient"
	case Partial:
		return "partial"
	default:
		return "insufficient"
	}
}

type Gate struct {
	llm       llm.Client
	threshold float64
	logger    *log.Logger
}

func New(client llm.Client, threshold float64, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.Default()
	}

	return &Gate{
		llm:       client,
		threshold: threshold,
		logger:    logger,
	}
}

// Assess classifies the retrieval result. A best score below the threshold is
// rejected without an LLM call; otherwise the model judges whether the
// passages address the query. Insufficiency is a normal verdict, not an
// error; an error here means the judgment call itself failed.
func (g *Gate) Assess(ctx context.Context, query string, result retrieval.Result) (Verdict, error) {
	if len(result.Passages) == 0 {
		return Insufficient, nil
	}
	if result.BestScore() < g.threshold {
		g.logger.Printf("best score %.3f below threshold %.3f, skipping relevance check", result.BestScore(), g.threshold)
		return Insufficient, nil
	}
	if g.llm == nil {
		return Insufficient, fmt.Errorf("llm client is not configured")
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: judgmentSystemPrompt},
		{Role: llm.RoleUser, Content: formatJudgmentPrompt(query, result.Passages)},
	}

	reply, err := g.llm.Generate(ctx, messages, llm.GenerateOptions{Temperature: 0, MaxTokens: 8})
	if err != nil {
		return Insufficient, fmt.Errorf("relevance judgment: %w", err)
	}

	verdict := parseJudgment(reply)
	g.logger.Printf("relevance judgment %q -> %s", strings.TrimSpace(reply), verdict)
	return verdict, nil
}

const judgmentSystemPrompt = "You judge whether retrieved news passages contain information that addresses a question. Reply with exactly one word: YES if the passages answer the question, PARTIAL if they address it incompletely, NO if they do not address it."

func formatJudgmentPrompt(query string, passages []retrieval.Passage) string {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nPassages:\n")
	for i, p := range passages {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, p.Text))
	}
	sb.WriteString("\nDo the passages address the question? Answer YES, PARTIAL, or NO.")
	return sb.String()
}

func parseJudgment(reply string) Verdict {
	normalized := strings.ToUpper(strings.TrimSpace(reply))
	switch {
	case strings.HasPrefix(normalized, "YES"):
		return Sufficient
	case strings.HasPrefix(normalized, "NO"):
		return Insufficient
	case strings.HasPrefix(normalized, "PARTIAL"):
		return Partial
	case strings.Contains(normalized, "PARTIAL"):
		return Partial
	case strings.Contains(normalized, "YES"):
		return Sufficient
	case strings.Contains(normalized, "NO"):
		return Insufficient
	default:
		// An unparseable judgment lands in the hedged middle rather than
		// discarding context or trusting it fully.
		return Partial
	}
}
