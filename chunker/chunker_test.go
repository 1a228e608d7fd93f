package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/fabfab/newsrag/corpus"
)

func TestChunkEmptyDocument(t *testing.T) {
	c := New(1000, 200)

	for _, content := range []string{"", "   ", "\n\n\t\n"} {
		doc := corpus.Document{ID: "a1", Content: content}
		if got := c.Chunk(doc); len(got) != 0 {
			t.Errorf("content %q: expected 0 chunks, got %d", content, len(got))
		}
	}
}

func TestChunkDeterministic(t *testing.T) {
	c := New(100, 20)
	doc := corpus.Document{
		ID:      "a1",
		Content: "The market rallied on Tuesday. Tech stocks led the gains. Analysts pointed to easing inflation.\n\nBond yields fell sharply. The dollar weakened against the euro.",
	}

	first := c.Chunk(doc)
	second := c.Chunk(doc)

	if len(first) == 0 {
		t.Fatal("expected at least one chunk")
	}
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Text != second[i].Text {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestChunkOrdinalsSequential(t *testing.T) {
	c := New(50, 10)
	doc := corpus.Document{
		ID:      "a1",
		Content: strings.Repeat("Short sentence here. ", 20),
	}

	chunks := c.Chunk(doc)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.Ordinal != i {
			t.Errorf("chunk %d has ordinal %d", i, chunk.Ordinal)
		}
		if chunk.DocumentID != "a1" {
			t.Errorf("chunk %d has document id %q", i, chunk.DocumentID)
		}
	}
}

func TestChunkOverlapCarriesTail(t *testing.T) {
	c := New(60, 25)
	doc := corpus.Document{
		ID:      "a1",
		Content: "First sentence about rates. Second sentence about bonds. Third sentence about stocks. Fourth sentence about gold.",
	}

	chunks := c.Chunk(doc)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// Each later chunk should open with a sentence the previous chunk ended
	// with.
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Text
		firstSentence := strings.SplitN(chunks[i].Text, ". ", 2)[0]
		if !strings.Contains(prev, firstSentence) {
			t.Errorf("chunk %d does not overlap with its predecessor:\nprev: %q\ncurr: %q", i, prev, chunks[i].Text)
		}
	}
}

func TestChunkHardSplitsLongRun(t *testing.T) {
	c := New(100, 20)
	doc := corpus.Document{
		ID:      "a1",
		Content: strings.Repeat("x", 450),
	}

	chunks := c.Chunk(doc)
	if len(chunks) < 4 {
		t.Fatalf("expected the run split into windows, got %d chunks", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk.Text) > 100 {
			t.Errorf("chunk %d exceeds target size: %d chars", i, len(chunk.Text))
		}
	}
}

func TestChunkHardSplitKeepsRunesIntact(t *testing.T) {
	c := New(100, 20)
	doc := corpus.Document{
		ID:      "a1",
		Content: strings.Repeat("aá", 150),
	}

	chunks := c.Chunk(doc)
	if len(chunks) < 2 {
		t.Fatalf("expected the run split into windows, got %d chunks", len(chunks))
	}
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk.Text) {
			t.Errorf("chunk %d contains invalid UTF-8 near a boundary: %q", i, chunk.Text)
		}
	}
}

func TestChunkMultiByteSentences(t *testing.T) {
	c := New(80, 16)
	doc := corpus.Document{
		ID:      "a1",
		Content: strings.Repeat("Giá Bitcoin tăng mạnh trong phiên giao dịch hôm nay. ", 6),
	}

	chunks := c.Chunk(doc)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk.Text) {
			t.Errorf("chunk %d contains invalid UTF-8: %q", i, chunk.Text)
		}
	}
}

func TestChunkSingleShortDocument(t *testing.T) {
	c := New(1000, 200)
	doc := corpus.Document{ID: "a1", Content: "A single short paragraph."}

	chunks := c.Chunk(doc)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "A single short paragraph." {
		t.Errorf("unexpected chunk text: %q", chunks[0].Text)
	}
	if chunks[0].TokenEstimate <= 0 {
		t.Error("expected a positive token estimate")
	}
}

func TestNewFallsBackOnBadValues(t *testing.T) {
	c := New(0, -1)
	if c.size != defaultChunkSize {
		t.Errorf("expected default size %d, got %d", defaultChunkSize, c.size)
	}
	if c.overlap != defaultChunkOverlap {
		t.Errorf("expected default overlap %d, got %d", defaultChunkOverlap, c.overlap)
	}

	c = New(10, 50)
	if c.overlap >= c.size {
		t.Errorf("overlap %d not reduced below size %d", c.overlap, c.size)
	}
}
