package retrieval

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/fabfab/newsrag/index"
)

type stubEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, nil
}

type stubIndex struct {
	matches   []index.Match
	err       error
	lastK     int
	lastQuery []float32
}

func (s *stubIndex) Upsert(context.Context, []index.Record) error { return nil }

func (s *stubIndex) Query(_ context.Context, vector []float32, k int) ([]index.Match, error) {
	s.lastK = k
	s.lastQuery = vector
	if s.err != nil {
		return nil, s.err
	}
	if len(s.matches) > k {
		return s.matches[:k], nil
	}
	return s.matches, nil
}

func discard() *log.Logger { return log.New(io.Discard, "", 0) }

func TestRetrieveOversamplesTheIndex(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{1, 0}}
	idx := &stubIndex{}
	r := NewRetriever(embedder, idx, 3, discard())

	if _, err := r.Retrieve(context.Background(), "rates", 5); err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if idx.lastK != 15 {
		t.Errorf("expected the index queried with k=15, got %d", idx.lastK)
	}
	if embedder.calls != 1 {
		t.Errorf("expected one embed call, got %d", embedder.calls)
	}
}

func TestRetrieveKeepsBestChunkPerArticle(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{1, 0}}
	idx := &stubIndex{matches: []index.Match{
		{ArticleID: "a1", Ordinal: 0, Text: "a1 weak", Score: 0.5},
		{ArticleID: "a1", Ordinal: 3, Text: "a1 strong", Score: 0.9},
		{ArticleID: "a2", Ordinal: 0, Text: "a2 only", Score: 0.7},
		{ArticleID: "a1", Ordinal: 1, Text: "a1 weaker", Score: 0.4},
	}}
	r := NewRetriever(embedder, idx, 3, discard())

	result, err := r.Retrieve(context.Background(), "rates", 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}

	if len(result.Passages) != 2 {
		t.Fatalf("expected 2 deduplicated passages, got %d", len(result.Passages))
	}
	if result.Passages[0].ArticleID != "a1" || result.Passages[0].Text != "a1 strong" {
		t.Errorf("expected a1's best chunk first, got %+v", result.Passages[0])
	}
	if result.Passages[1].ArticleID != "a2" {
		t.Errorf("expected a2 second, got %+v", result.Passages[1])
	}
	if result.BestScore() != 0.9 {
		t.Errorf("expected best score 0.9, got %g", result.BestScore())
	}
}

func TestRetrieveTiesBreakTowardRecency(t *testing.T) {
	older := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	embedder := &stubEmbedder{vector: []float32{1, 0}}
	idx := &stubIndex{matches: []index.Match{
		{ArticleID: "old", Score: 0.8, PublishedAt: older},
		{ArticleID: "new", Score: 0.8, PublishedAt: newer},
	}}
	r := NewRetriever(embedder, idx, 1, discard())

	result, err := r.Retrieve(context.Background(), "rates", 2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if result.Passages[0].ArticleID != "new" {
		t.Errorf("expected the newer article first on a tie, got %q", result.Passages[0].ArticleID)
	}
}

func TestRetrieveTruncatesToK(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{1, 0}}
	idx := &stubIndex{matches: []index.Match{
		{ArticleID: "a1", Score: 0.9},
		{ArticleID: "a2", Score: 0.8},
		{ArticleID: "a3", Score: 0.7},
	}}
	r := NewRetriever(embedder, idx, 1, discard())

	result, err := r.Retrieve(context.Background(), "rates", 2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(result.Passages) != 2 {
		t.Errorf("expected 2 passages, got %d", len(result.Passages))
	}
}

func TestRetrieveRejectsNonPositiveK(t *testing.T) {
	r := NewRetriever(&stubEmbedder{vector: []float32{1}}, &stubIndex{}, 3, discard())

	if _, err := r.Retrieve(context.Background(), "rates", 0); err == nil {
		t.Error("expected an error for k=0")
	}
}

func TestRetrievePropagatesEmbedderError(t *testing.T) {
	embedder := &stubEmbedder{err: fmt.Errorf("embedding down")}
	r := NewRetriever(embedder, &stubIndex{}, 3, discard())

	if _, err := r.Retrieve(context.Background(), "rates", 5); err == nil {
		t.Error("expected an embedder error to propagate")
	}
}

func TestBestScoreEmptyResult(t *testing.T) {
	if got := (Result{}).BestScore(); got != 0 {
		t.Errorf("expected 0 for an empty result, got %g", got)
	}
}
