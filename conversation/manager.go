// Package conversation carries multi-turn context: a rolling per-session
// history plus query rewriting so follow-up questions stand on their own
// before they hit the embedder.
package conversation

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/fabfab/newsrag/llm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Words that usually point back at an earlier turn.
var anaphoraWords = map[string]struct{}{
	"it": {}, "its": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"they": {}, "them": {}, "their": {}, "he": {}, "she": {}, "him": {},
	"her": {}, "one": {}, "ones": {}, "same": {}, "there": {}, "then": {},
	"now": {}, "again": {},
}

type Manager struct {
	store  Store
	llm    llm.Client
	window int
	logger *log.Logger
}

func NewManager(store Store, client llm.Client, window int, logger *log.Logger) *Manager {
	if window <= 0 {
		window = 5
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Manager{
		store:  store,
		llm:    client,
		window: window,
		logger: logger,
	}
}

func (m *Manager) AppendTurn(ctx context.Context, sessionID, role, text string, sources []string) error {
	return m.store.Append(ctx, sessionID, Turn{Role: role, Text: text, Sources: sources})
}

// Context returns the most recent window of turns, oldest first. Turns beyond
// the window are dropped, not summarized, to keep behavior predictable.
func (m *Manager) Context(ctx context.Context, sessionID string) ([]Turn, error) {
	return m.store.Recent(ctx, sessionID, m.window)
}

func (m *Manager) Clear(ctx context.Context, sessionID string) error {
	return m.store.Clear(ctx, sessionID)
}

// RewriteQuery resolves references to prior turns, turning follow-ups like
// "what about it now?" into standalone questions. Queries that do not look
// dependent on history pass through unchanged to avoid cost and drift.
func (m *Manager) RewriteQuery(ctx context.Context, sessionID, rawQuery string) (string, error) {
	rawQuery = strings.TrimSpace(rawQuery)
	if rawQuery == "" {
		return "", fmt.Errorf("query cannot be empty")
	}

	turns, err := m.Context(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load session context: %w", err)
	}
	if len(turns) == 0 || !looksDependent(rawQuery) {
		return rawQuery, nil
	}
	if m.llm == nil {
		return rawQuery, nil
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: rewriteSystemPrompt},
		{Role: llm.RoleUser, Content: formatRewritePrompt(turns, rawQuery)},
	}

	rewritten, err := m.llm.Generate(ctx, messages, llm.GenerateOptions{Temperature: 0, MaxTokens: 100})
	if err != nil {
		return "", fmt.Errorf("rewrite query: %w", err)
	}

	rewritten = strings.TrimSpace(strings.Trim(strings.TrimSpace(rewritten), `"`))
	if rewritten == "" {
		return rawQuery, nil
	}

	m.logger.Printf("rewrote query %q -> %q", rawQuery, rewritten)
	return rewritten, nil
}

// looksDependent flags short queries and queries containing anaphora as
// likely references to earlier turns.
func looksDependent(query string) bool {
	words := strings.Fields(strings.ToLower(strings.TrimRight(query, "?!.")))
	if len(words) <= 4 {
		return true
	}
	for _, word := range words {
		if _, ok := anaphoraWords[strings.Trim(word, ",;:")]; ok {
			return true
		}
	}
	return false
}

const rewriteSystemPrompt = "You rewrite follow-up questions into standalone questions. Given the conversation so far and the latest question, restate the question so it can be understood without the conversation. Keep it short. Reply with the rewritten question only."

func formatRewritePrompt(turns []Turn, query string) string {
	var sb strings.Builder
	sb.WriteString("Conversation:\n")
	for _, turn := range turns {
		switch turn.Role {
		case RoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			sb.WriteString("User: ")
		}
		sb.WriteString(turn.Text)
		sb.WriteString("\n")
	}
	sb.WriteString("\nLatest question: ")
	sb.WriteString(query)
	return sb.String()
}
