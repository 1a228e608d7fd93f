// Package answer assembles the final prompt and turns the generation output
// into an attributed result. Citations come only from passages actually
// placed in the prompt; fallback answers carry none.
package answer

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/fabfab/newsrag/conversation"
	"github.com/fabfab/newsrag/gate"
	"github.com/fabfab/newsrag/knowledge"
	"github.com/fabfab/newsrag/llm"
	"github.com/fabfab/newsrag/retrieval"
)

const (
	hedgedCaveat   = "Note: the available coverage only partially addresses this question, so parts of this answer may be incomplete."
	fallbackCaveat = "Note: no current data was available for this question; this answer is based on general knowledge."
)

// Citation points at one source used in a grounded answer.
type Citation struct {
	ArticleID   string
	Source      string
	Title       string
	PublishedAt time.Time
	Score       float64
	Insight     knowledge.Insight
}

// Result is the final output of the pipeline.
type Result struct {
	Answer    string
	Citations []Citation
	// Grounded reports whether retrieved context was used. Fallback answers
	// are ungrounded and uncited.
	Grounded bool
	Caveat   string
}

// Options bounds a single generation call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

type Composer struct {
	llm    llm.Client
	logger *log.Logger
}

func NewComposer(client llm.Client, logger *log.Logger) *Composer {
	if logger == nil {
		logger = log.Default()
	}
	return &Composer{llm: client, logger: logger}
}

// Compose builds the prompt for the given verdict, invokes generation, and
// attaches attributions. With an Insufficient verdict no passages enter the
// prompt and the result carries no citations.
func (c *Composer) Compose(
	ctx context.Context,
	query string,
	result retrieval.Result,
	verdict gate.Verdict,
	turns []conversation.Turn,
	opts Options,
) (Result, error) {
	if c.llm == nil {
		return Result{}, fmt.Errorf("llm client is not configured")
	}

	grounded := verdict != gate.Insufficient

	var passages []retrieval.Passage
	if grounded {
		passages = result.Passages
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt(grounded)},
		{Role: llm.RoleUser, Content: formatUserPrompt(query, passages, turns)},
	}

	generated, err := c.llm.Generate(ctx, messages, llm.GenerateOptions{
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return Result{}, fmt.Errorf("generate answer: %w", err)
	}

	answer := strings.TrimSpace(generated)
	out := Result{Answer: answer, Grounded: grounded}

	switch verdict {
	case gate.Sufficient:
		out.Citations = citationsFrom(passages)
	case gate.Partial:
		out.Citations = citationsFrom(passages)
		out.Caveat = hedgedCaveat
		out.Answer = answer + "\n\n" + hedgedCaveat
	default:
		out.Caveat = fallbackCaveat
		out.Answer = answer + "\n\n" + fallbackCaveat
	}

	return out, nil
}

// citationsFrom deduplicates by source name, keeping the best-scoring
// article per source.
func citationsFrom(passages []retrieval.Passage) []Citation {
	bySource := make(map[string]Citation, len(passages))
	for _, p := range passages {
		current, ok := bySource[p.Source]
		if !ok || p.Score > current.Score {
			bySource[p.Source] = Citation{
				ArticleID:   p.ArticleID,
				Source:      p.Source,
				Title:       p.Title,
				PublishedAt: p.PublishedAt,
				Score:       p.Score,
			}
		}
	}

	citations := make([]Citation, 0, len(bySource))
	for _, c := range bySource {
		citations = append(citations, c)
	}
	sort.Slice(citations, func(i, j int) bool {
		return citations[i].Score > citations[j].Score
	})
	return citations
}

func systemPrompt(grounded bool) string {
	if grounded {
		return "You are a news and market assistant. Answer the question using the supplied passages, citing passage numbers in brackets (e.g. [1]) when you draw from them. Prefer the passages over your own knowledge for facts and figures. Answer the question first, then add brief context if useful."
	}
	return "You are a news and market assistant. No current data is available for this question, so answer from general knowledge, note any uncertainty, and do not invent recent facts or figures."
}

func formatUserPrompt(query string, passages []retrieval.Passage, turns []conversation.Turn) string {
	var sb strings.Builder

	if len(passages) > 0 {
		sb.WriteString("Passages:\n")
		for i, p := range passages {
			date := ""
			if !p.PublishedAt.IsZero() {
				date = p.PublishedAt.Format("2006-01-02")
			}
			sb.WriteString(fmt.Sprintf("[%d] %s — %s (%s)\n%s\n\n", i+1, p.Source, p.Title, date, p.Text))
		}
	}

	if len(turns) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, turn := range turns {
			switch turn.Role {
			case conversation.RoleAssistant:
				sb.WriteString("Assistant: ")
			default:
				sb.WriteString("User: ")
			}
			sb.WriteString(turn.Text)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Question: ")
	sb.WriteString(query)
	return sb.String()
}
