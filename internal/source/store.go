// Package source holds content-addressed source documents and the audited
// reader the orchestrator uses to pull line ranges on demand.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/retz8/iris/internal/errors"
)

// ErrNotFound is returned by Document for an unknown hash.
var ErrNotFound = stderrors.New("source document not found")

// Document is an immutable stored source file.
type Document struct {
	ContentHash string
	Lines       []string
}

// TotalLines returns the number of lines in the document.
func (d *Document) TotalLines() int {
	return len(d.Lines)
}

// Slice returns lines [start, end] joined with newlines.
func (d *Document) Slice(start, end int) (string, error) {
	if err := ValidateRange(d.TotalLines(), start, end); err != nil {
		return "", err
	}
	return strings.Join(d.Lines[start-1:end], "\n"), nil
}

// Store is content-addressed source storage served by line range.
type Store interface {
	// Put stores content and returns its hash. Storing identical content
	// again returns the same hash without duplicating storage.
	Put(ctx context.Context, content string) (string, error)
	// Document returns the stored document or ErrNotFound.
	Document(ctx context.Context, hash string) (*Document, error)
	// GetRange returns lines [start, end], or a range error when the hash is
	// unknown or the range falls outside the document.
	GetRange(ctx context.Context, hash string, start, end int) (string, error)
}

// Hash returns the SHA-256 hex digest of content.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// SplitLines splits content into lines. CRLF is treated as LF and a
// trailing newline does not start an extra line.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n")
}

// CountLines is len(SplitLines(content)) without allocating the slice.
func CountLines(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}

// ValidateRange checks 1 <= start <= end <= total.
func ValidateRange(total, start, end int) error {
	switch {
	case start < 1:
		return errors.RangeErrorf("start_line %d must be >= 1", start).
			WithContext("start_line", start).WithContext("end_line", end)
	case end < start:
		return errors.RangeErrorf("end_line %d is before start_line %d", end, start).
			WithContext("start_line", start).WithContext("end_line", end)
	case end > total:
		return errors.RangeErrorf("end_line %d exceeds total lines %d", end, total).
			WithContext("start_line", start).WithContext("end_line", end).WithContext("total_lines", total)
	}
	return nil
}

// NumberLines prefixes each line of text with its line number, starting at first.
func NumberLines(first int, text string) string {
	lines := strings.Split(text, "\n")
	width := len(fmt.Sprint(first + len(lines) - 1))

	var sb strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&sb, "%*d | %s\n", width, first+i, line)
	}
	return sb.String()
}

// MemoryStore keeps documents in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*Document)}
}

func (s *MemoryStore) Put(ctx context.Context, content string) (string, error) {
	hash := Hash(content)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[hash]; !ok {
		s.docs[hash] = &Document{ContentHash: hash, Lines: SplitLines(content)}
	}
	return hash, nil
}

func (s *MemoryStore) Document(ctx context.Context, hash string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (s *MemoryStore) GetRange(ctx context.Context, hash string, start, end int) (string, error) {
	doc, err := s.Document(ctx, hash)
	if err != nil {
		return "", errors.RangeErrorf("unknown content hash %s", shortHash(hash))
	}
	return doc.Slice(start, end)
}

// Len returns the number of distinct documents stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
