package analysis

import (
	"time"

	"github.com/retz8/iris/internal/config"
	"github.com/retz8/iris/internal/models"
)

// Block count bounds per path.
const (
	AdaptiveMinBlocks  = 3
	AdaptiveMaxBlocks  = 6
	FastSmallMinBlocks = 1
	FastSmallMaxBlocks = 2
	FastLargeMaxBlocks = 6
)

// ReadToolName is the tool offered during adaptive runs.
const ReadToolName = "refer_to_source_code"

// Options bound one Analyzer.
type Options struct {
	FastPathMaxLines  int
	FastPathMaxTokens int
	MaxToolCalls      int
	MaxIterations     int
	RunTimeout        time.Duration
	FallbackTimeout   time.Duration
	// Fallback is the cheaper path tried once after a failed primary
	// attempt: PathFastPath or PathTwoStep.
	Fallback        models.ExecutionPath
	DefaultStrategy models.Strategy
}

// DefaultOptions returns the stock bounds.
func DefaultOptions() Options {
	return Options{
		FastPathMaxLines:  100,
		FastPathMaxTokens: 1500,
		MaxToolCalls:      6,
		MaxIterations:     8,
		RunTimeout:        60 * time.Second,
		FallbackTimeout:   45 * time.Second,
		Fallback:          models.PathFastPath,
		DefaultStrategy:   models.StrategyAuto,
	}
}

// OptionsFromConfig maps the analysis config section, keeping defaults
// for unset values.
func OptionsFromConfig(cfg config.AnalysisConfig) Options {
	opts := DefaultOptions()
	if cfg.FastPathMaxLines > 0 {
		opts.FastPathMaxLines = cfg.FastPathMaxLines
	}
	if cfg.FastPathMaxTokens > 0 {
		opts.FastPathMaxTokens = cfg.FastPathMaxTokens
	}
	if cfg.MaxToolCalls > 0 {
		opts.MaxToolCalls = cfg.MaxToolCalls
	}
	if cfg.MaxIterations > 0 {
		opts.MaxIterations = cfg.MaxIterations
	}
	if cfg.RunTimeout > 0 {
		opts.RunTimeout = cfg.RunTimeout
	}
	if cfg.FallbackTimeout > 0 {
		opts.FallbackTimeout = cfg.FallbackTimeout
	}
	if models.ExecutionPath(cfg.Fallback) == models.PathTwoStep {
		opts.Fallback = models.PathTwoStep
	}
	if s, err := models.ParseStrategy(cfg.DefaultStrategy); err == nil {
		opts.DefaultStrategy = s
	}
	return opts
}

// small reports whether an input qualifies for the fast path.
func (o Options) small(lines, tokens int) bool {
	return lines < o.FastPathMaxLines && tokens < o.FastPathMaxTokens
}
