package cache

import (
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/retz8/iris/internal/errors"
)

// Tier names
const (
	TierStructure = "structure"
	TierDecision  = "decision"
	TierResult    = "result"
)

// Options configures the three tiers.
type Options struct {
	StructureCapacity int
	DecisionCapacity  int
	ResultCapacity    int
	// Directory enables bbolt persistence when non-empty.
	Directory string
	Logger    *logrus.Logger
}

// Multi groups the structure, decision and result tiers.
type Multi struct {
	Structure *Tier
	Decision  *Tier
	Result    *Tier

	backend Backend
	logger  *logrus.Logger
}

// New builds the tiers. A persistence failure degrades to memory-only.
func New(opts Options) *Multi {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var backend Backend
	if opts.Directory != "" {
		path := filepath.Join(opts.Directory, "iris-cache.db")
		b, err := OpenBolt(path)
		if err != nil {
			logger.WithError(errors.CacheIO(err, "open cache database")).
				WithField("path", path).
				Warn("cache persistence disabled")
		} else {
			backend = b
		}
	}

	return NewWithBackend(opts, backend)
}

// NewWithBackend builds the tiers over an explicit backend, which may be nil.
func NewWithBackend(opts Options, backend Backend) *Multi {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Multi{
		Structure: NewTier(TierStructure, opts.StructureCapacity, backend, logger),
		Decision:  NewTier(TierDecision, opts.DecisionCapacity, backend, logger),
		Result:    NewTier(TierResult, opts.ResultCapacity, backend, logger),
		backend:   backend,
		logger:    logger,
	}
}

// Key is the structure and result key for one content identity.
func Key(contentHash, language string) string {
	return contentHash + ":" + language
}

// StageKey is the decision-tier key for one stage of a run.
func StageKey(contentHash, language, stage string) string {
	return contentHash + ":" + language + ":" + stage
}

// Persistent reports whether a backend is attached.
func (m *Multi) Persistent() bool {
	return m.backend != nil
}

// Stats returns counters for every tier.
func (m *Multi) Stats() []TierStats {
	return []TierStats{m.Structure.Stats(), m.Decision.Stats(), m.Result.Stats()}
}

// Clear empties every tier.
func (m *Multi) Clear() {
	m.Structure.Clear()
	m.Decision.Clear()
	m.Result.Clear()
}

// Close releases the backend.
func (m *Multi) Close() error {
	if m.backend == nil {
		return nil
	}
	return m.backend.Close()
}
