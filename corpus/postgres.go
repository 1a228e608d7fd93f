package corpus

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource reads crawled articles from the shared articles table. The
// crawler writes rows; this side only selects pending ones and toggles the
// embedded flag.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

func (s *PostgresSource) FetchUnembedded(ctx context.Context, limit int) ([]Document, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
        SELECT id, title, content, source, published_at, language, topics
        FROM articles
        WHERE embedded = FALSE AND content IS NOT NULL
        ORDER BY published_at
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query unembedded articles: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0, limit)
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Source, &doc.PublishedAt, &doc.Language, &doc.Topics); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		docs = append(docs, doc)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate articles: %w", rows.Err())
	}

	return docs, nil
}

func (s *PostgresSource) MarkEmbedded(ctx context.Context, documentID string) error {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	tag, err := s.pool.Exec(ctx, "UPDATE articles SET embedded = TRUE WHERE id = $1", documentID)
	if err != nil {
		return fmt.Errorf("mark article embedded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("article %s not found", documentID)
	}
	return nil
}

var _ Source = (*PostgresSource)(nil)
