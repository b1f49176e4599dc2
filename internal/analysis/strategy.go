package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/retz8/iris/internal/cache"
	"github.com/retz8/iris/internal/errors"
	"github.com/retz8/iris/internal/llm"
	"github.com/retz8/iris/internal/models"
	"github.com/retz8/iris/internal/quality"
	"github.com/retz8/iris/internal/source"
	"github.com/retz8/iris/internal/structure"
)

// Run is the state shared by every attempt of one request.
type Run struct {
	RequestID  string
	Filename   string
	Language   string
	Source     string
	Hash       string
	TotalLines int
	Tokens     int
	Structure  *structure.Node // nil when the parser failed
	Hints      []structure.Hint

	Engine    llm.Engine
	Store     source.Store
	Decisions *cache.Tier
	Observer  Observer
	Opts      Options
	Logger    *slog.Logger
}

// Outcome is the result of one attempt: a raw payload or a typed failure.
type Outcome struct {
	Path        models.ExecutionPath
	Raw         *models.RawResult
	Err         *errors.Error
	ToolCalls   int
	Iterations  int
	StageTokens map[string]int
	Reads       models.ReadLogSummary
	// Decision is an intermediate result to cache once the request succeeds.
	Decision *ReadPlan

	processed      *quality.Result
	fallbackFrom   models.ExecutionPath
	fallbackReason string
}

// OK reports whether the attempt produced a payload.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Raw != nil
}

// Strategy is one way of producing a raw payload.
type Strategy interface {
	Path() models.ExecutionPath
	Attempt(ctx context.Context, run *Run, reader *source.Reader) Outcome
}

func failed(path models.ExecutionPath, err *errors.Error) Outcome {
	return Outcome{Path: path, Err: err}
}

// strategyFor maps a path to its implementation.
func strategyFor(path models.ExecutionPath) Strategy {
	switch path {
	case models.PathAdaptive:
		return adaptiveStrategy{}
	case models.PathTwoStep:
		return twoStepStrategy{}
	case models.PathFastRaw:
		return fastStrategy{raw: true}
	default:
		return fastStrategy{}
	}
}

// Plan returns the ordered attempts for a request. The first entry is the
// primary path; at most one fallback follows.
func (o Options) Plan(strategy models.Strategy, lines, tokens int, structured bool) []models.ExecutionPath {
	if !structured {
		return []models.ExecutionPath{models.PathFastRaw}
	}
	if strategy == "" || strategy == models.StrategyAuto {
		strategy = o.DefaultStrategy
	}

	switch strategy {
	case models.StrategyFast:
		return []models.ExecutionPath{models.PathFastPath, models.PathFastRaw}
	case models.StrategyAdaptive:
		return []models.ExecutionPath{models.PathAdaptive, o.fallback()}
	case models.StrategyTwoStep:
		return []models.ExecutionPath{models.PathTwoStep, models.PathFastPath}
	}

	if o.small(lines, tokens) {
		return []models.ExecutionPath{models.PathFastPath, models.PathFastRaw}
	}
	return []models.ExecutionPath{models.PathAdaptive, o.fallback()}
}

func (o Options) fallback() models.ExecutionPath {
	if o.Fallback == models.PathTwoStep {
		return models.PathTwoStep
	}
	return models.PathFastPath
}

// BlockBounds returns the block count bounds for payloads from path.
func (o Options) BlockBounds(path models.ExecutionPath, lines, tokens int) (int, int) {
	switch path {
	case models.PathAdaptive, models.PathTwoStep:
		return AdaptiveMinBlocks, AdaptiveMaxBlocks
	}
	if o.small(lines, tokens) {
		return FastSmallMinBlocks, FastSmallMaxBlocks
	}
	return FastSmallMinBlocks, FastLargeMaxBlocks
}

// retryable reports whether a failure earns a fallback attempt.
func retryable(code errors.Code) bool {
	switch code {
	case errors.CodeTimeout, errors.CodeToolBudget, errors.CodeMalformed,
		errors.CodeEngine, errors.CodeParse, errors.CodeInternal:
		return true
	}
	return false
}

// classify turns whatever an attempt returned into a typed failure.
// The parent context decides between cancellation and a caller deadline;
// the attempt context marks a per-attempt timeout.
func classify(parent, attempt context.Context, limit time.Duration, err error) *errors.Error {
	if perr := parent.Err(); perr != nil {
		if perr == context.Canceled {
			return errors.Canceled(perr)
		}
		return errors.Timeout(perr, "caller deadline reached")
	}
	if attempt.Err() == context.DeadlineExceeded {
		return errors.Timeout(attempt.Err(), fmt.Sprintf("attempt exceeded %s", limit))
	}

	var e *errors.Error
	if errors.As(err, &e) && e.Code != "" {
		return e
	}
	return errors.EngineUnavailable(err, "reasoning service failed")
}
