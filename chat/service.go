// Package chat orchestrates one query through the answering pipeline:
// rewrite, retrieve, gate, compose. Steps are strictly sequential; a failed
// external call anywhere surfaces as a terminal error with no partial answer.
package chat

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/fabfab/newsrag/answer"
	"github.com/fabfab/newsrag/conversation"
	"github.com/fabfab/newsrag/gate"
	"github.com/fabfab/newsrag/knowledge"
	"github.com/fabfab/newsrag/retrieval"
)

// GraphStore supplies topic-graph insights for cited articles.
type GraphStore interface {
	ArticleInsights(ctx context.Context, articleIDs []string) (map[string]knowledge.Insight, error)
}

// Settings are the per-request knobs. Zero values fall back to the defaults
// the service was built with; Temperature is a pointer because zero is a
// valid, explicitly settable value.
type Settings struct {
	MaxResults  int
	Temperature *float64
	MaxTokens   int
}

// Defaults used when a request leaves a setting unset.
type Defaults struct {
	MaxResults  int
	Temperature float64
	MaxTokens   int
}

type Service struct {
	conv      *conversation.Manager
	retriever *retrieval.Retriever
	gate      *gate.Gate
	composer  *answer.Composer
	graph     GraphStore
	defaults  Defaults
	logger    *log.Logger
}

func NewService(
	conv *conversation.Manager,
	retriever *retrieval.Retriever,
	g *gate.Gate,
	composer *answer.Composer,
	graph GraphStore,
	defaults Defaults,
	logger *log.Logger,
) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if defaults.MaxResults <= 0 {
		defaults.MaxResults = 5
	}
	if defaults.Temperature <= 0 {
		defaults.Temperature = 0.3
	}
	if defaults.MaxTokens <= 0 {
		defaults.MaxTokens = 500
	}

	return &Service{
		conv:      conv,
		retriever: retriever,
		gate:      g,
		composer:  composer,
		graph:     graph,
		defaults:  defaults,
		logger:    logger,
	}
}

// Answer runs the full pipeline for one question. The caller serializes
// concurrent turns within a session; distinct sessions may run concurrently.
// On success both the question and the answer are appended to the session.
func (s *Service) Answer(ctx context.Context, sessionID, question string, settings Settings) (answer.Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return answer.Result{}, fmt.Errorf("question cannot be empty")
	}
	if sessionID == "" {
		return answer.Result{}, fmt.Errorf("session id cannot be empty")
	}

	settings = s.applyDefaults(settings)

	standalone, err := s.conv.RewriteQuery(ctx, sessionID, question)
	if err != nil {
		return answer.Result{}, fmt.Errorf("rewrite query: %w", err)
	}

	retrieved, err := s.retriever.Retrieve(ctx, standalone, settings.MaxResults)
	if err != nil {
		return answer.Result{}, fmt.Errorf("retrieve context: %w", err)
	}

	verdict, err := s.gate.Assess(ctx, standalone, retrieved)
	if err != nil {
		return answer.Result{}, fmt.Errorf("assess relevance: %w", err)
	}
	s.logger.Printf("session %s: verdict %s with %d passages (best %.3f)", sessionID, verdict, len(retrieved.Passages), retrieved.BestScore())

	turns, err := s.conv.Context(ctx, sessionID)
	if err != nil {
		return answer.Result{}, fmt.Errorf("load conversation context: %w", err)
	}

	result, err := s.composer.Compose(ctx, standalone, retrieved, verdict, turns, answer.Options{
		Temperature: *settings.Temperature,
		MaxTokens:   settings.MaxTokens,
	})
	if err != nil {
		return answer.Result{}, fmt.Errorf("compose answer: %w", err)
	}

	s.enrichCitations(ctx, result.Citations)

	if err := s.conv.AppendTurn(ctx, sessionID, conversation.RoleUser, question, nil); err != nil {
		return answer.Result{}, fmt.Errorf("append user turn: %w", err)
	}
	if err := s.conv.AppendTurn(ctx, sessionID, conversation.RoleAssistant, result.Answer, citedSources(result.Citations)); err != nil {
		return answer.Result{}, fmt.Errorf("append assistant turn: %w", err)
	}

	return result, nil
}

// History returns the session's recent turns.
func (s *Service) History(ctx context.Context, sessionID string) ([]conversation.Turn, error) {
	return s.conv.Context(ctx, sessionID)
}

// ClearSession removes all conversation state for the session.
func (s *Service) ClearSession(ctx context.Context, sessionID string) error {
	return s.conv.Clear(ctx, sessionID)
}

func (s *Service) applyDefaults(settings Settings) Settings {
	if settings.MaxResults <= 0 {
		settings.MaxResults = s.defaults.MaxResults
	}
	if settings.Temperature == nil {
		settings.Temperature = &s.defaults.Temperature
	}
	if settings.MaxTokens <= 0 {
		settings.MaxTokens = s.defaults.MaxTokens
	}
	return settings
}

// enrichCitations attaches topic-graph insight to existing citations. Best
// effort: the graph can only annotate, never add or remove citations.
func (s *Service) enrichCitations(ctx context.Context, citations []answer.Citation) {
	if s.graph == nil || len(citations) == 0 {
		return
	}

	ids := make([]string, len(citations))
	for i, c := range citations {
		ids[i] = c.ArticleID
	}

	insights, err := s.graph.ArticleInsights(ctx, ids)
	if err != nil {
		s.logger.Printf("topic graph insights error: %v", err)
		return
	}

	for i := range citations {
		if insight, ok := insights[citations[i].ArticleID]; ok {
			citations[i].Insight = insight
		}
	}
}

func citedSources(citations []answer.Citation) []string {
	if len(citations) == 0 {
		return nil
	}
	sources := make([]string, len(citations))
	for i, c := range citations {
		sources[i] = c.Source
	}
	return sources
}
