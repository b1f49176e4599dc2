package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/retz8/iris/internal/models"
)

// ReadRecord is one audited read attempt.
type ReadRecord struct {
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
	Reason    string    `json:"reason,omitempty"`
	Snippet   string    `json:"snippet,omitempty"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Reader is the audited accessor for one document during one run.
// Every call is logged, including failed ones.
type Reader struct {
	store Store
	hash  string
	total int

	mu  sync.Mutex
	log []ReadRecord
}

// NewReader binds a reader to a stored document.
func NewReader(ctx context.Context, store Store, hash string) (*Reader, error) {
	doc, err := store.Document(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("open reader for %s: %w", shortHash(hash), err)
	}
	return &Reader{store: store, hash: hash, total: doc.TotalLines()}, nil
}

// TotalLines returns the line count of the bound document.
func (r *Reader) TotalLines() int {
	return r.total
}

// ReferToSourceCode returns lines [start, end] of the bound document.
func (r *Reader) ReferToSourceCode(ctx context.Context, start, end int, reason string) (string, error) {
	rec := ReadRecord{StartLine: start, EndLine: end, Reason: reason, At: time.Now()}

	text, err := r.read(ctx, start, end)
	if err != nil {
		rec.Error = err.Error()
	} else {
		rec.OK = true
		rec.Snippet = text
	}

	r.mu.Lock()
	r.log = append(r.log, rec)
	r.mu.Unlock()

	return text, err
}

func (r *Reader) read(ctx context.Context, start, end int) (string, error) {
	if err := ValidateRange(r.total, start, end); err != nil {
		return "", err
	}
	return r.store.GetRange(ctx, r.hash, start, end)
}

// Log returns a copy of the audit log.
func (r *Reader) Log() []ReadRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ReadRecord, len(r.log))
	copy(out, r.log)
	return out
}

// Discard drops the audit log.
func (r *Reader) Discard() {
	r.mu.Lock()
	r.log = nil
	r.mu.Unlock()
}

// Summary condenses the audit log for result metadata.
func (r *Reader) Summary() models.ReadLogSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s models.ReadLogSummary
	for _, rec := range r.log {
		s.TotalReads++
		if !rec.OK {
			s.FailedReads++
			continue
		}
		s.LinesRead += rec.EndLine - rec.StartLine + 1
		s.Ranges = append(s.Ranges, fmt.Sprintf("%d-%d", rec.StartLine, rec.EndLine))
		if rec.Reason != "" {
			s.Reasons = append(s.Reasons, rec.Reason)
		}
	}
	return s
}
