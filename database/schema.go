package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the tables the pipeline reads and writes. The
// articles table is normally populated by the crawler; it is created here so
// a fresh database works end to end. The vector dimension is fixed per index
// lifetime.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS articles (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			content TEXT,
			source TEXT NOT NULL DEFAULT '',
			published_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			language TEXT NOT NULL DEFAULT 'en',
			topics TEXT[] NOT NULL DEFAULT '{}',
			embedded BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS article_chunks (
			id UUID PRIMARY KEY,
			article_id TEXT NOT NULL,
			chunk_index INT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			title TEXT,
			published_at TIMESTAMPTZ,
			content TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(article_id, chunk_index)
		)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_articles_embedded ON articles(embedded) WHERE embedded = FALSE",
		"CREATE INDEX IF NOT EXISTS idx_article_chunks_article ON article_chunks(article_id)",
		"CREATE INDEX IF NOT EXISTS idx_article_chunks_embedding ON article_chunks USING ivfflat (embedding vector_l2_ops)",
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}
