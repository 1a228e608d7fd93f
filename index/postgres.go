package index

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const defaultMaxK = 50

// PostgresIndex stores chunk vectors in an article_chunks table with a
// pgvector column and an ivfflat index.
type PostgresIndex struct {
	pool *pgxpool.Pool
	maxK int
}

func NewPostgresIndex(pool *pgxpool.Pool) *PostgresIndex {
	return &PostgresIndex{pool: pool, maxK: defaultMaxK}
}

func (s *PostgresIndex) Upsert(ctx context.Context, records []Record) error {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return &UnavailableError{Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback(ctx)

	for _, rec := range records {
		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.Exec(ctx, `
            INSERT INTO article_chunks (id, article_id, chunk_index, source, title, published_at, content, embedding, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
            ON CONFLICT (article_id, chunk_index) DO UPDATE
            SET source = EXCLUDED.source,
                title = EXCLUDED.title,
                published_at = EXCLUDED.published_at,
                content = EXCLUDED.content,
                embedding = EXCLUDED.embedding,
                updated_at = NOW()
        `, id, rec.ArticleID, rec.Ordinal, rec.Source, rec.Title, rec.PublishedAt, rec.Text, pgvector.NewVector(rec.Vector)); err != nil {
			return &UnavailableError{Err: fmt.Errorf("upsert chunk %s/%d: %w", rec.ArticleID, rec.Ordinal, err)}
		}
	}

	// Same transaction: drop chunks beyond the new extent of each article so
	// a shrunken re-ingest cannot leave stale content retrievable.
	for articleID, extent := range articleExtents(records) {
		if _, err := tx.Exec(ctx, `
            DELETE FROM article_chunks
            WHERE article_id = $1 AND chunk_index >= $2
        `, articleID, extent); err != nil {
			return &UnavailableError{Err: fmt.Errorf("trim stale chunks for %s: %w", articleID, err)}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &UnavailableError{Err: fmt.Errorf("commit upsert: %w", err)}
	}
	return nil
}

func (s *PostgresIndex) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if k <= 0 || k > s.maxK {
		k = s.maxK
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, &UnavailableError{Err: fmt.Errorf("acquire connection: %w", err)}
	}
	defer conn.Release()

	probes := k * 10
	if probes < 10 {
		probes = 10
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
		return nil, &UnavailableError{Err: fmt.Errorf("set ivfflat probes: %w", err)}
	}

	rows, err := conn.Query(ctx, `
        SELECT
            article_id,
            chunk_index,
            content,
            source,
            title,
            published_at,
            (embedding <-> $1::vector) AS distance
        FROM article_chunks
        ORDER BY embedding <-> $1::vector
        LIMIT $2
    `, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, &UnavailableError{Err: fmt.Errorf("query similar chunks: %w", err)}
	}
	defer rows.Close()

	matches := make([]Match, 0, k)
	for rows.Next() {
		var m Match
		var distance float64
		if scanErr := rows.Scan(&m.ArticleID, &m.Ordinal, &m.Text, &m.Source, &m.Title, &m.PublishedAt, &distance); scanErr != nil {
			return nil, fmt.Errorf("scan similar chunk: %w", scanErr)
		}
		m.Score = 1 / (1 + distance)
		matches = append(matches, m)
	}
	if rows.Err() != nil {
		return nil, &UnavailableError{Err: rows.Err()}
	}

	return matches, nil
}

var _ VectorIndex = (*PostgresIndex)(nil)
