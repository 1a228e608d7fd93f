package corpus

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	pdf "github.com/ledongthuc/pdf"
)

// DirSource treats a local drop folder of .md/.txt/.pdf files as a corpus,
// useful for seeding an index without the crawler. Document ids derive from
// the file path so re-runs are stable; embedded state is tracked in memory
// only, keyed by path and content hash, so edited files are picked up again.
type DirSource struct {
	dir string

	mu       sync.Mutex
	embedded map[string]string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir, embedded: make(map[string]string)}
}

func (s *DirSource) FetchUnembedded(ctx context.Context, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 50
	}

	paths := make([]string, 0)
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(d.Name())) {
		case ".md", ".markdown", ".txt", ".pdf":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk drop folder: %w", err)
	}
	sort.Strings(paths)

	docs := make([]Document, 0, limit)
	for _, path := range paths {
		if len(docs) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		doc, hash, err := s.readDocument(path)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}

		s.mu.Lock()
		seen := s.embedded[doc.ID] == hash
		s.mu.Unlock()
		if seen {
			continue
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

func (s *DirSource) MarkEmbedded(ctx context.Context, documentID string) error {
	path, ok := strings.CutPrefix(documentID, "file:")
	if !ok {
		return fmt.Errorf("document %s does not belong to this source", documentID)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, path))
	if err != nil {
		return fmt.Errorf("read document for hashing: %w", err)
	}
	hash := sha256.Sum256(data)

	s.mu.Lock()
	s.embedded[documentID] = hex.EncodeToString(hash[:])
	s.mu.Unlock()
	return nil
}

func (s *DirSource) readDocument(path string) (Document, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, "", fmt.Errorf("read file: %w", err)
	}

	rel, relErr := filepath.Rel(s.dir, path)
	if relErr != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	info, err := os.Stat(path)
	if err != nil {
		return Document{}, "", fmt.Errorf("stat file: %w", err)
	}

	var content, title string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		content, err = extractPDFText(data)
		if err != nil {
			return Document{}, "", fmt.Errorf("parse pdf %s: %w", rel, err)
		}
		title = firstNonEmptyLine(content)
	default:
		content = strings.ReplaceAll(string(data), "\r\n", "\n")
		title = extractTitle(content)
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	hash := sha256.Sum256(data)

	return Document{
		ID:          "file:" + rel,
		Title:       title,
		Content:     content,
		Source:      rel,
		PublishedAt: info.ModTime().UTC(),
		Language:    "en",
	}, hex.EncodeToString(hash[:]), nil
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	return strings.ReplaceAll(buf.String(), "\r", "\n"), nil
}

func extractTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return firstNonEmptyLine(content)
}

func firstNonEmptyLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

var _ Source = (*DirSource)(nil)
