// Package chunker splits documents into overlapping text segments sized for
// the embedding model. Chunking is deterministic: the same document and
// configuration always produce the same boundaries, which keeps re-embedding
// idempotent.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fabfab/newsrag/corpus"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// Chunk is the unit of embedding derived from one document. Only its vector
// and metadata are persisted; the chunk itself is transient.
type Chunk struct {
	DocumentID    string
	Ordinal       int
	Text          string
	TokenEstimate int
}

type Chunker struct {
	size     int
	overlap  int
	splitter *regexp.Regexp
}

// New returns a chunker targeting size characters per chunk with the given
// overlap carried over from the previous chunk. Out-of-range values fall back
// to defaults.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = defaultChunkOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}
	return &Chunker{
		size:     size,
		overlap:  overlap,
		splitter: regexp.MustCompile(`(?m)(?U)([^.!?\n]+[.!?]+)`),
	}
}

// Chunk splits the document body at sentence and paragraph boundaries where
// possible, falling back to fixed-length windows for runs with no boundary.
// Empty or whitespace-only documents yield zero chunks.
func (c *Chunker) Chunk(doc corpus.Document) []Chunk {
	sentences := c.sentences(doc.Content)
	if len(sentences) == 0 {
		return nil
	}

	chunks := make([]Chunk, 0)
	current := make([]string, 0)
	currentLen := 0

	emit := func() {
		if len(current) == 0 {
			return
		}
		text := strings.Join(current, " ")
		chunks = append(chunks, Chunk{
			DocumentID:    doc.ID,
			Ordinal:       len(chunks),
			Text:          text,
			TokenEstimate: estimateTokens(text),
		})

		// Seed the next chunk with the tail of this one so meaning is not
		// lost at the cut point.
		tail := make([]string, 0)
		tailLen := 0
		for i := len(current) - 1; i >= 0 && tailLen < c.overlap; i-- {
			tail = append([]string{current[i]}, tail...)
			tailLen += len(current[i]) + 1
		}
		if tailLen >= currentLen {
			// Overlap would reproduce the whole chunk; start fresh instead.
			tail = tail[:0]
			tailLen = 0
		}
		current = tail
		currentLen = tailLen
	}

	for _, sentence := range sentences {
		if currentLen+len(sentence) > c.size && len(current) > 0 {
			emit()
		}
		current = append(current, sentence)
		currentLen += len(sentence) + 1
	}
	if len(current) > 0 {
		text := strings.Join(current, " ")
		chunks = append(chunks, Chunk{
			DocumentID:    doc.ID,
			Ordinal:       len(chunks),
			Text:          text,
			TokenEstimate: estimateTokens(text),
		})
	}

	return chunks
}

// sentences flattens the document into trimmed sentence-sized pieces.
// Paragraph breaks always terminate a sentence; sentences longer than the
// chunk size are hard-split into fixed windows.
func (c *Chunker) sentences(content string) []string {
	clean := strings.ReplaceAll(content, "\r\n", "\n")
	result := make([]string, 0)

	for _, paragraph := range strings.Split(clean, "\n\n") {
		p := strings.TrimSpace(paragraph)
		if p == "" {
			continue
		}

		matches := c.splitter.FindAllString(p, -1)
		consumed := 0
		for _, m := range matches {
			consumed += len(m)
		}

		pieces := make([]string, 0, len(matches)+1)
		for _, m := range matches {
			if trimmed := strings.TrimSpace(m); trimmed != "" {
				pieces = append(pieces, trimmed)
			}
		}
		// Trailing text with no terminal punctuation still belongs to the
		// paragraph.
		if rest := strings.TrimSpace(p[consumedPrefixLen(p, matches):]); rest != "" {
			pieces = append(pieces, rest)
		}
		if len(pieces) == 0 {
			pieces = append(pieces, p)
		}

		for _, piece := range pieces {
			result = append(result, c.hardSplit(piece)...)
		}
	}

	return result
}

// hardSplit cuts a boundary-free run into fixed windows. Cut points are
// backed off to rune boundaries so multi-byte text is never split mid-rune.
func (c *Chunker) hardSplit(sentence string) []string {
	if len(sentence) <= c.size {
		return []string{sentence}
	}

	step := c.size - c.overlap
	if step <= 0 {
		step = c.size
	}

	parts := make([]string, 0, len(sentence)/step+1)
	start := 0
	for start < len(sentence) {
		end := start + c.size
		if end >= len(sentence) {
			parts = append(parts, sentence[start:])
			break
		}
		end = runeBoundaryBefore(sentence, end)
		if end <= start {
			_, width := utf8.DecodeRuneInString(sentence[start:])
			end = start + width
		}
		parts = append(parts, sentence[start:end])

		next := runeBoundaryBefore(sentence, start+step)
		if next <= start {
			_, width := utf8.DecodeRuneInString(sentence[start:])
			next = start + width
		}
		start = next
	}
	return parts
}

// runeBoundaryBefore returns the largest index at or before i that starts a
// rune.
func runeBoundaryBefore(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// consumedPrefixLen returns how many leading bytes of p are covered by the
// regexp matches, accounting for inter-sentence whitespace the pattern skips.
func consumedPrefixLen(p string, matches []string) int {
	offset := 0
	for _, m := range matches {
		idx := strings.Index(p[offset:], m)
		if idx < 0 {
			break
		}
		offset += idx + len(m)
	}
	return offset
}

func estimateTokens(text string) int {
	// Rough heuristic: one token per four characters.
	return (len(text) + 3) / 4
}
