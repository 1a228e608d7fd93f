package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryIndex is an in-process VectorIndex used in tests and single-node
// setups. Matching uses the same L2-derived score as the Postgres index.
type MemoryIndex struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (s *MemoryIndex) Upsert(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		replaced := false
		for i := range s.records {
			if s.records[i].ArticleID == rec.ArticleID && s.records[i].Ordinal == rec.Ordinal {
				rec.ID = s.records[i].ID
				s.records[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			s.records = append(s.records, rec)
		}
	}

	// A re-ingested article may have shrunk; chunks beyond its new extent
	// must not stay retrievable.
	extents := articleExtents(records)
	kept := s.records[:0]
	for _, rec := range s.records {
		if extent, ok := extents[rec.ArticleID]; ok && rec.Ordinal >= extent {
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return nil
}

func (s *MemoryIndex) Query(_ context.Context, vector []float32, k int) ([]Match, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if k <= 0 {
		k = defaultMaxK
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]Match, 0, len(s.records))
	for _, rec := range s.records {
		if len(rec.Vector) != len(vector) {
			continue
		}
		matches = append(matches, Match{
			ArticleID:   rec.ArticleID,
			Ordinal:     rec.Ordinal,
			Text:        rec.Text,
			Source:      rec.Source,
			Title:       rec.Title,
			PublishedAt: rec.PublishedAt,
			Score:       1 / (1 + l2Distance(rec.Vector, vector)),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Len reports the number of stored records.
func (s *MemoryIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

var _ VectorIndex = (*MemoryIndex)(nil)
