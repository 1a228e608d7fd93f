// Package index adapts external similarity-search services behind a small
// upsert/query interface. The index is treated as an opaque service that owns
// its read/write isolation; a query racing an in-flight upsert may miss the
// newest records.
package index

import (
	"context"
	"fmt"
	"time"
)

// Record is one embedded chunk stored in the index. Records are keyed by
// (ArticleID, Ordinal): re-embedding a chunk replaces its record, never
// duplicates it.
type Record struct {
	ID          string
	ArticleID   string
	Ordinal     int
	Text        string
	Vector      []float32
	Source      string
	Title       string
	PublishedAt time.Time
}

// Match is a ranked query result. Score is a monotonic similarity measure:
// higher means more similar.
type Match struct {
	ArticleID   string
	Ordinal     int
	Text        string
	Source      string
	Title       string
	PublishedAt time.Time
	Score       float64
}

type VectorIndex interface {
	Upsert(ctx context.Context, records []Record) error
	// Query returns up to k matches ordered by descending score. Querying an
	// empty index yields an empty slice, not an error.
	Query(ctx context.Context, vector []float32, k int) ([]Match, error)
}

// articleExtents returns, per article in the batch, one past the highest
// ordinal being written. Records at or beyond the extent are stale leftovers
// from a previous, longer version of the article.
func articleExtents(records []Record) map[string]int {
	extents := make(map[string]int, len(records))
	for _, rec := range records {
		if rec.Ordinal+1 > extents[rec.ArticleID] {
			extents[rec.ArticleID] = rec.Ordinal + 1
		}
	}
	return extents
}

// UnavailableError reports lost connectivity to the index service. Always
// transient; the caller owns the retry policy.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("vector index unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Retriable() bool { return true }
