// Package retrieval produces the top-k candidate passages for a query. The
// index is oversampled and then collapsed to one passage per article so a
// single heavily-chunked document cannot crowd out the rest of the corpus.
package retrieval

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/fabfab/newsrag/embeddings"
	"github.com/fabfab/newsrag/index"
)

const defaultOversampling = 3

// Passage is one retrieved candidate, the best-scoring chunk of its article.
type Passage struct {
	ArticleID   string
	Text        string
	Source      string
	Title       string
	PublishedAt time.Time
	Score       float64
}

// Result is ephemeral: produced per query, consumed by the relevance gate,
// never persisted.
type Result struct {
	Query    string
	Passages []Passage
}

// BestScore returns the highest passage score, or zero when empty.
func (r Result) BestScore() float64 {
	if len(r.Passages) == 0 {
		return 0
	}
	return r.Passages[0].Score
}

type Retriever struct {
	embedder     embeddings.Embedder
	vectors      index.VectorIndex
	oversampling int
	logger       *log.Logger
}

func NewRetriever(embedder embeddings.Embedder, vectors index.VectorIndex, oversampling int, logger *log.Logger) *Retriever {
	if oversampling < 1 {
		oversampling = defaultOversampling
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Retriever{
		embedder:     embedder,
		vectors:      vectors,
		oversampling: oversampling,
		logger:       logger,
	}
}

// Retrieve embeds the query, fetches k*oversampling candidates, keeps the
// best chunk per article, and truncates to k. Score ties break toward the
// more recently published article.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (Result, error) {
	if r.embedder == nil {
		return Result{}, fmt.Errorf("embedder is not configured")
	}
	if r.vectors == nil {
		return Result{}, fmt.Errorf("vector index is not configured")
	}
	if k <= 0 {
		return Result{}, fmt.Errorf("k must be positive, got %d", k)
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return Result{}, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return Result{}, fmt.Errorf("embedder returned no vectors")
	}

	matches, err := r.vectors.Query(ctx, vectors[0], k*r.oversampling)
	if err != nil {
		return Result{}, fmt.Errorf("query index: %w", err)
	}

	passages := dedupeByArticle(matches)
	if len(passages) > k {
		passages = passages[:k]
	}

	return Result{Query: query, Passages: passages}, nil
}

func dedupeByArticle(matches []index.Match) []Passage {
	best := make(map[string]index.Match, len(matches))
	for _, m := range matches {
		current, ok := best[m.ArticleID]
		if !ok || m.Score > current.Score {
			best[m.ArticleID] = m
		}
	}

	passages := make([]Passage, 0, len(best))
	for _, m := range best {
		passages = append(passages, Passage{
			ArticleID:   m.ArticleID,
			Text:        m.Text,
			Source:      m.Source,
			Title:       m.Title,
			PublishedAt: m.PublishedAt,
			Score:       m.Score,
		})
	}

	sort.SliceStable(passages, func(i, j int) bool {
		if passages[i].Score != passages[j].Score {
			return passages[i].Score > passages[j].Score
		}
		return passages[i].PublishedAt.After(passages[j].PublishedAt)
	})

	return passages
}
