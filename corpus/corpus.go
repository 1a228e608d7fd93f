// Package corpus defines the documents consumed by the answering pipeline and
// the sources that yield them. Document content is owned by the crawler side;
// this package only reads it and flips the embedded flag after vectorization.
package corpus

import (
	"context"
	"time"
)

type Document struct {
	ID          string
	Title       string
	Content     string
	Source      string
	PublishedAt time.Time
	Language    string
	Topics      []string
}

// Source yields crawled documents that have not been vectorized yet.
type Source interface {
	FetchUnembedded(ctx context.Context, limit int) ([]Document, error)
	MarkEmbedded(ctx context.Context, documentID string) error
}
