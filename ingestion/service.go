// Package ingestion drives the write path: fetch pending documents, chunk,
// embed, upsert vectors, sync the topic graph, and flip the embedded flag.
package ingestion

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/fabfab/newsrag/chunker"
	"github.com/fabfab/newsrag/corpus"
	"github.com/fabfab/newsrag/embeddings"
	"github.com/fabfab/newsrag/index"
	"github.com/fabfab/newsrag/knowledge"
)

// GraphSyncer records an article and its topics in the knowledge graph.
type GraphSyncer interface {
	SyncArticle(ctx context.Context, article knowledge.Article) error
}

type Service struct {
	source   corpus.Source
	chunks   *chunker.Chunker
	embedder embeddings.Embedder
	vectors  index.VectorIndex
	graph    GraphSyncer
	logger   *log.Logger
}

// Failure describes one document that could not be ingested. Failures are
// reported per item so the caller can retry just that document.
type Failure struct {
	DocumentID string
	Err        error
}

// Report summarizes one IngestPending run.
type Report struct {
	Documents int
	Chunks    int
	Failures  []Failure
}

func NewService(source corpus.Source, chunks *chunker.Chunker, embedder embeddings.Embedder, vectors index.VectorIndex, graph GraphSyncer, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		source:   source,
		chunks:   chunks,
		embedder: embedder,
		vectors:  vectors,
		graph:    graph,
		logger:   logger,
	}
}

// Ingest vectorizes a single document and returns the number of chunks
// embedded. Whitespace-only documents produce zero chunks and are still
// marked embedded so they are not refetched forever.
func (s *Service) Ingest(ctx context.Context, doc corpus.Document) (int, error) {
	if s.embedder == nil {
		return 0, fmt.Errorf("embedder not configured")
	}
	if s.vectors == nil {
		return 0, fmt.Errorf("vector index not configured")
	}

	parts := s.chunks.Chunk(doc)
	if len(parts) == 0 {
		s.logger.Printf("document %s has no embeddable content", doc.ID)
		if err := s.source.MarkEmbedded(ctx, doc.ID); err != nil {
			return 0, fmt.Errorf("mark embedded: %w", err)
		}
		return 0, nil
	}

	texts := make([]string, len(parts))
	for i, part := range parts {
		texts[i] = part.Text
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(parts) {
		return 0, fmt.Errorf("embedding count mismatch: have %d chunks, %d vectors", len(parts), len(vectors))
	}

	records := make([]index.Record, len(parts))
	for i, part := range parts {
		records[i] = index.Record{
			ArticleID:   doc.ID,
			Ordinal:     part.Ordinal,
			Text:        part.Text,
			Vector:      vectors[i],
			Source:      doc.Source,
			Title:       doc.Title,
			PublishedAt: doc.PublishedAt,
		}
	}

	if err := s.vectors.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("upsert vectors: %w", err)
	}

	if s.graph != nil {
		article := knowledge.Article{
			ID:          doc.ID,
			Title:       doc.Title,
			Source:      doc.Source,
			PublishedAt: doc.PublishedAt,
			Topics:      doc.Topics,
		}
		if err := s.graph.SyncArticle(ctx, article); err != nil {
			// The graph only enriches citations; a sync failure must not
			// block ingestion.
			s.logger.Printf("topic graph sync failed for %s: %v", doc.ID, err)
		}
	}

	if err := s.source.MarkEmbedded(ctx, doc.ID); err != nil {
		return 0, fmt.Errorf("mark embedded: %w", err)
	}

	s.logger.Printf("ingested %s (%d chunks)", doc.ID, len(parts))
	return len(parts), nil
}

// IngestPending fetches up to limit unembedded documents and ingests each in
// turn. One failing document does not abort the batch.
func (s *Service) IngestPending(ctx context.Context, limit int) (Report, error) {
	if s.source == nil {
		return Report{}, fmt.Errorf("corpus source not configured")
	}

	docs, err := s.source.FetchUnembedded(ctx, limit)
	if err != nil {
		return Report{}, fmt.Errorf("fetch unembedded documents: %w", err)
	}

	report := Report{}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		count, err := s.Ingest(ctx, doc)
		if err != nil {
			s.logger.Printf("ingest failed for %s: %v", doc.ID, err)
			report.Failures = append(report.Failures, Failure{DocumentID: doc.ID, Err: err})
			continue
		}
		report.Documents++
		report.Chunks += count
	}

	if len(report.Failures) > 0 {
		ids := make([]string, len(report.Failures))
		for i, f := range report.Failures {
			ids[i] = f.DocumentID
		}
		s.logger.Printf("ingestion finished with %d failures: %s", len(report.Failures), strings.Join(ids, ", "))
	}

	return report, nil
}
