// Package api exposes the answering and ingestion operations over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fabfab/newsrag/answer"
	"github.com/fabfab/newsrag/chat"
	"github.com/fabfab/newsrag/config"
	"github.com/fabfab/newsrag/conversation"
	"github.com/fabfab/newsrag/embeddings"
	"github.com/fabfab/newsrag/index"
	"github.com/fabfab/newsrag/ingestion"
	"github.com/fabfab/newsrag/llm"
)

// Server routes HTTP requests to the chat and ingestion services. External
// calls inherit the request context, so client timeouts bound the pipeline.
type Server struct {
	chat     *chat.Service
	ingester *ingestion.Service
	settings config.Settings
	logger   *log.Logger
	handler  http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Retriable bool   `json:"retriable,omitempty"`
}

type answerRequest struct {
	SessionID   string   `json:"sessionId"`
	Question    string   `json:"question"`
	MaxResults  int      `json:"maxResults"`
	Temperature *float64 `json:"temperature"`
}

type answerResponse struct {
	SessionID string         `json:"sessionId"`
	Answer    string         `json:"answer"`
	Grounded  bool           `json:"grounded"`
	Caveat    string         `json:"caveat,omitempty"`
	Citations []citationJSON `json:"citations"`
}

type citationJSON struct {
	ArticleID   string        `json:"articleId"`
	Source      string        `json:"source"`
	Title       string        `json:"title"`
	PublishedAt time.Time     `json:"publishedAt"`
	Score       float64       `json:"score"`
	Topics      []string      `json:"topics,omitempty"`
	Related     []relatedJSON `json:"related,omitempty"`
}

type relatedJSON struct {
	ArticleID string `json:"articleId"`
	Title     string `json:"title"`
	Source    string `json:"source"`
}

type ingestRequest struct {
	Limit int `json:"limit"`
}

type ingestResponse struct {
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Failures  []failureJSON `json:"failures"`
}

type failureJSON struct {
	DocumentID string `json:"documentId"`
	Error      string `json:"error"`
}

type sessionResponse struct {
	SessionID string     `json:"sessionId"`
	Turns     []turnJSON `json:"turns"`
}

type turnJSON struct {
	Role    string    `json:"role"`
	Text    string    `json:"text"`
	Sources []string  `json:"sources,omitempty"`
	At      time.Time `json:"at"`
}

func New(chatSvc *chat.Service, ingester *ingestion.Service, settings config.Settings, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{chat: chatSvc, ingester: ingester, settings: settings, logger: logger}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/answer", s.handleAnswer)
	mux.HandleFunc("/v1/ingest", s.handleIngest)
	mux.HandleFunc("/v1/session", s.handleSession)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}

	// Validate caller-supplied knobs against the bounded settings before
	// they enter the pipeline.
	settings := s.settings
	if req.MaxResults > 0 {
		settings.MaxResults = req.MaxResults
	}
	if req.Temperature != nil {
		settings.Temperature = *req.Temperature
	}
	if err := settings.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	result, err := s.chat.Answer(r.Context(), sessionID, req.Question, chat.Settings{
		MaxResults:  settings.MaxResults,
		Temperature: &settings.Temperature,
		MaxTokens:   settings.MaxResponseTokens,
	})
	if err != nil {
		status, retriable := classifyError(err)
		s.writeErrorWithRetry(w, status, fmt.Errorf("answer failed: %w", err), retriable)
		return
	}

	s.writeJSON(w, http.StatusOK, answerResponse{
		SessionID: sessionID,
		Answer:    result.Answer,
		Grounded:  result.Grounded,
		Caveat:    result.Caveat,
		Citations: transformCitations(result.Citations),
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	report, err := s.ingester.IngestPending(r.Context(), req.Limit)
	if err != nil {
		status, retriable := classifyError(err)
		s.writeErrorWithRetry(w, status, fmt.Errorf("ingestion failed: %w", err), retriable)
		return
	}

	resp := ingestResponse{
		Documents: report.Documents,
		Chunks:    report.Chunks,
		Failures:  make([]failureJSON, 0, len(report.Failures)),
	}
	for _, f := range report.Failures {
		resp.Failures = append(resp.Failures, failureJSON{DocumentID: f.DocumentID, Error: f.Err.Error()})
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("id"))
	if sessionID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("id query parameter is required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		turns, err := s.chat.History(r.Context(), sessionID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, fmt.Errorf("load session: %w", err))
			return
		}
		s.writeJSON(w, http.StatusOK, sessionResponse{SessionID: sessionID, Turns: transformTurns(turns)})
	case http.MethodDelete:
		if err := s.chat.ClearSession(r.Context(), sessionID); err != nil {
			s.writeError(w, http.StatusInternalServerError, fmt.Errorf("clear session: %w", err))
			return
		}
		s.writeJSON(w, http.StatusOK, messageResponse{Message: "session cleared"})
	default:
		s.methodNotAllowed(w, strings.Join([]string{http.MethodGet, http.MethodDelete}, ", "))
	}
}

// classifyError maps the pipeline error taxonomy onto HTTP statuses and a
// retriable hint for the caller.
func classifyError(err error) (int, bool) {
	var tooLarge *embeddings.InputTooLargeError
	if errors.As(err, &tooLarge) {
		return http.StatusUnprocessableEntity, false
	}

	var embedErr *embeddings.ServiceError
	if errors.As(err, &embedErr) {
		if embedErr.Retriable {
			return http.StatusServiceUnavailable, true
		}
		return http.StatusBadGateway, false
	}

	var llmErr *llm.ServiceError
	if errors.As(err, &llmErr) {
		if llmErr.Retriable {
			return http.StatusServiceUnavailable, true
		}
		return http.StatusBadGateway, false
	}

	var indexErr *index.UnavailableError
	if errors.As(err, &indexErr) {
		return http.StatusServiceUnavailable, true
	}

	return http.StatusInternalServerError, false
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeErrorWithRetry(w, status, err, false)
}

func (s *Server) writeErrorWithRetry(w http.ResponseWriter, status int, err error, retriable bool) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Retriable: retriable})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}

func transformCitations(citations []answer.Citation) []citationJSON {
	out := make([]citationJSON, len(citations))
	for i, c := range citations {
		related := make([]relatedJSON, len(c.Insight.Related))
		for j, rel := range c.Insight.Related {
			related[j] = relatedJSON{ArticleID: rel.ID, Title: rel.Title, Source: rel.Source}
		}
		out[i] = citationJSON{
			ArticleID:   c.ArticleID,
			Source:      c.Source,
			Title:       c.Title,
			PublishedAt: c.PublishedAt,
			Score:       c.Score,
			Topics:      append([]string(nil), c.Insight.Topics...),
			Related:     related,
		}
	}
	return out
}

func transformTurns(turns []conversation.Turn) []turnJSON {
	out := make([]turnJSON, len(turns))
	for i, t := range turns {
		out[i] = turnJSON{Role: t.Role, Text: t.Text, Sources: t.Sources, At: t.At}
	}
	return out
}
