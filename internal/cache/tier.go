// Package cache implements the structure, decision and result tiers.
// Every tier stores JSON snapshots keyed by content hash, so cached values
// are immutable and concurrent writers resolve as last-writer-wins.
package cache

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/retz8/iris/internal/errors"
)

// Entry is one cached snapshot.
type Entry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
}

// Backend persists tier entries beyond the process.
type Backend interface {
	Get(tier, key string) ([]byte, bool, error)
	Put(tier, key string, value []byte) error
	Clear(tier string) error
	Count(tier string) (int, error)
	Close() error
}

// TierStats reports per-tier counters.
type TierStats struct {
	Name      string `json:"name" yaml:"name"`
	Size      int    `json:"size" yaml:"size"`
	Persisted int    `json:"persisted,omitempty" yaml:"persisted,omitempty"`
	Capacity  int    `json:"capacity" yaml:"capacity"`
	Hits      int64  `json:"hits" yaml:"hits"`
	Misses    int64  `json:"misses" yaml:"misses"`
	Evictions int64  `json:"evictions" yaml:"evictions"`
	IOErrors  int64  `json:"io_errors" yaml:"io_errors"`
}

// Tier is one independently keyed cache.
type Tier struct {
	name     string
	capacity int
	lru      *LRUCache[string, Entry]
	backend  Backend
	logger   *logrus.Logger

	hits     atomic.Int64
	misses   atomic.Int64
	ioErrors atomic.Int64
}

// NewTier creates a tier; backend may be nil for memory-only operation.
func NewTier(name string, capacity int, backend Backend, logger *logrus.Logger) *Tier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Tier{
		name:     name,
		capacity: capacity,
		lru:      NewLRUCache[string, Entry](capacity),
		backend:  backend,
		logger:   logger,
	}
}

// Name returns the tier name.
func (t *Tier) Name() string {
	return t.name
}

// Get decodes the entry for key into out and reports a hit.
// Storage and decode failures are logged and reported as a miss.
func (t *Tier) Get(key string, out any) bool {
	entry, ok := t.lru.Get(key)
	if !ok && t.backend != nil {
		entry, ok = t.load(key)
	}
	if !ok {
		t.misses.Add(1)
		return false
	}

	if err := json.Unmarshal(entry.Value, out); err != nil {
		t.fail(errors.CacheIO(err, "decode cache entry"), key)
		t.lru.Delete(key)
		t.misses.Add(1)
		return false
	}
	t.hits.Add(1)
	return true
}

// Set stores a snapshot of value under key, replacing any previous entry.
func (t *Tier) Set(key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		t.fail(errors.CacheIO(err, "encode cache entry"), key)
		return
	}

	entry := Entry{Key: key, Value: data, Timestamp: time.Now().UTC()}
	t.lru.Set(key, entry)

	if t.backend == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		t.fail(errors.CacheIO(err, "encode persisted entry"), key)
		return
	}
	if err := t.backend.Put(t.name, key, raw); err != nil {
		t.fail(errors.CacheIO(err, "persist cache entry"), key)
	}
}

// Clear drops every entry from memory and the backend.
func (t *Tier) Clear() {
	t.lru.Purge()
	t.hits.Store(0)
	t.misses.Store(0)
	if t.backend != nil {
		if err := t.backend.Clear(t.name); err != nil {
			t.fail(errors.CacheIO(err, "clear persisted tier"), "")
		}
	}
}

// Stats returns the tier counters.
func (t *Tier) Stats() TierStats {
	_, _, evictions := t.lru.Stats()
	s := TierStats{
		Name:      t.name,
		Size:      t.lru.Len(),
		Capacity:  t.capacity,
		Hits:      t.hits.Load(),
		Misses:    t.misses.Load(),
		Evictions: evictions,
	}
	if t.backend != nil {
		if n, err := t.backend.Count(t.name); err == nil {
			s.Persisted = n
		}
	}
	s.IOErrors = t.ioErrors.Load()
	return s
}

func (t *Tier) load(key string) (Entry, bool) {
	raw, ok, err := t.backend.Get(t.name, key)
	if err != nil {
		t.fail(errors.CacheIO(err, "read persisted entry"), key)
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		t.fail(errors.CacheIO(err, "decode persisted entry"), key)
		return Entry{}, false
	}
	t.lru.Set(key, entry)
	return entry, true
}

func (t *Tier) fail(err *errors.Error, key string) {
	t.ioErrors.Add(1)
	t.logger.WithError(err).WithFields(logrus.Fields{
		"tier": t.name,
		"key":  key,
	}).Warn("cache storage failure ignored")
}
