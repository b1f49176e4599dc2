// Package analysis orchestrates one request: routing, the exchange loop
// with on-demand source reads, the fallback chain, post-processing and
// caching.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/retz8/iris/internal/cache"
	"github.com/retz8/iris/internal/errors"
	"github.com/retz8/iris/internal/llm"
	"github.com/retz8/iris/internal/logging"
	"github.com/retz8/iris/internal/models"
	"github.com/retz8/iris/internal/quality"
	"github.com/retz8/iris/internal/source"
	"github.com/retz8/iris/internal/structure"
	"github.com/retz8/iris/internal/telemetry"
	"github.com/retz8/iris/internal/treesitter"
)

// Analyzer answers analysis requests. It is safe for concurrent use; each
// request is an independent run.
type Analyzer struct {
	engine     llm.Engine
	compressor *structure.Compressor
	store      source.Store
	cache      *cache.Multi
	sink       telemetry.Sink
	observer   Observer
	opts       Options
	logger     *slog.Logger
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithStore replaces the default in-memory source store.
func WithStore(s source.Store) Option {
	return func(a *Analyzer) { a.store = s }
}

// WithCache replaces the default memory-only cache.
func WithCache(c *cache.Multi) Option {
	return func(a *Analyzer) { a.cache = c }
}

// WithSink sets the lifecycle event sink.
func WithSink(s telemetry.Sink) Option {
	return func(a *Analyzer) { a.sink = s }
}

// WithObserver sets the run observer.
func WithObserver(o Observer) Option {
	return func(a *Analyzer) { a.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// New creates an Analyzer.
func New(engine llm.Engine, compressor *structure.Compressor, opts Options, options ...Option) *Analyzer {
	a := &Analyzer{
		engine:     engine,
		compressor: compressor,
		opts:       opts,
		sink:       telemetry.NopSink{},
		logger:     logging.Component("analysis"),
	}
	for _, o := range options {
		o(a)
	}
	if a.store == nil {
		a.store = source.NewMemoryStore()
	}
	if a.cache == nil {
		a.cache = cache.New(cache.Options{})
	}
	a.observer = guard(a.observer, a.logger)
	return a
}

// Cache exposes the tiers for inspection.
func (a *Analyzer) Cache() *cache.Multi {
	return a.cache
}

// Options returns the bounds in effect.
func (a *Analyzer) Options() Options {
	return a.opts
}

// Plan returns the attempts a request would make, given whether its
// structure is available.
func (a *Analyzer) Plan(req models.Request, structured bool) []models.ExecutionPath {
	lines := source.CountLines(req.SourceCode)
	tokens := structure.EstimateTokens(req.SourceCode)
	return a.opts.Plan(req.Strategy, lines, tokens, structured)
}

// Analyze runs one request to a result or a typed failure.
func (a *Analyzer) Analyze(ctx context.Context, req models.Request) (result *models.AnalysisResult, err error) {
	started := time.Now()
	ev := telemetry.Event{RequestID: uuid.NewString(), Filename: req.Filename}
	logger := a.logger.With("request_id", ev.RequestID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("analysis panicked", "panic", r)
			result, err = nil, errors.InternalErrorf("analysis panicked: %v", r)
		}
		ev.Latency = time.Since(started)
		if err != nil {
			ev.Type = telemetry.EventFailed
			ev.Code = errors.CodeOf(err)
		} else {
			ev.Type = telemetry.EventCompleted
			ev.Path = result.Metadata.ExecutionPath
			if result.Metadata.ToolCallCount != nil {
				ev.ToolCalls = *result.Metadata.ToolCallCount
			}
		}
		telemetry.Emit(ctx, a.sink, ev)
	}()

	language, verr := a.validate(req)
	if verr != nil {
		return nil, verr
	}
	ev.Language = language
	ev.Bytes = len(req.SourceCode)
	ev.Lines = source.CountLines(req.SourceCode)
	ev.Tokens = structure.EstimateTokens(req.SourceCode)
	telemetry.Emit(ctx, a.sink, telemetry.Event{Type: telemetry.EventRequested, RequestID: ev.RequestID,
		Filename: ev.Filename, Language: language, Bytes: ev.Bytes, Lines: ev.Lines, Tokens: ev.Tokens})

	if err := ctx.Err(); err != nil {
		return nil, errors.Canceled(err)
	}

	hash, perr := a.store.Put(ctx, req.SourceCode)
	if perr != nil {
		return nil, errors.InternalErrorf("store source: %v", perr)
	}
	ev.ContentHash = hash
	if req.ContentHash != "" && req.ContentHash != hash {
		logger.Warn("supplied content hash ignored", "supplied", req.ContentHash, "computed", hash)
	}

	key := cache.Key(hash, language)
	var cached models.AnalysisResult
	if a.cache.Result.Get(key, &cached) {
		ev.CacheHit = true
		logger.Debug("result cache hit", "hash", hash)
		return &cached, nil
	}

	telemetry.Emit(ctx, a.sink, telemetry.Event{Type: telemetry.EventStarted, RequestID: ev.RequestID,
		Filename: ev.Filename, Language: language, ContentHash: hash, Bytes: ev.Bytes, Lines: ev.Lines, Tokens: ev.Tokens})

	run := &Run{
		RequestID:  ev.RequestID,
		Filename:   req.Filename,
		Language:   language,
		Source:     req.SourceCode,
		Hash:       hash,
		TotalLines: ev.Lines,
		Tokens:     ev.Tokens,
		Engine:     a.engine,
		Store:      a.store,
		Decisions:  a.cache.Decision,
		Observer:   a.observer,
		Opts:       a.opts,
		Logger:     logger,
	}

	root, fresh, serr := a.structure(ctx, hash, req.SourceCode, language)
	if serr != nil {
		if errors.HasCode(serr, errors.CodeCanceled) {
			return nil, serr
		}
		logger.Info("structure unavailable, using raw source", "error", serr)
	} else {
		run.Structure = root
		run.Hints = structure.ReadHints(root)
	}

	plan := a.opts.Plan(req.Strategy, run.TotalLines, run.Tokens, run.Structure != nil)
	out, ferr := a.execute(ctx, run, plan)
	if ferr != nil {
		if !errors.HasCode(ferr, errors.CodeCanceled) && fresh {
			a.cache.Structure.Set(key, root)
		}
		return nil, ferr
	}

	res := a.finish(run, plan, out)
	if fresh {
		a.cache.Structure.Set(key, root)
	}
	if out.Decision != nil {
		a.cache.Decision.Set(cache.StageKey(hash, language, StageIdentify), out.Decision)
	}
	a.cache.Result.Set(key, res)
	return res, nil
}

// Structure returns the shallow structure of src, from cache when possible.
func (a *Analyzer) Structure(ctx context.Context, src, language string) (*structure.Node, error) {
	language = structure.NormalizeLanguage(language)
	root, fresh, err := a.structure(ctx, source.Hash(src), src, language)
	if err != nil {
		return nil, err
	}
	if fresh {
		a.cache.Structure.Set(cache.Key(source.Hash(src), language), root)
	}
	return root, nil
}

func (a *Analyzer) structure(ctx context.Context, hash, src, language string) (*structure.Node, bool, error) {
	var root structure.Node
	if a.cache.Structure.Get(cache.Key(hash, language), &root) {
		return &root, false, nil
	}
	if a.compressor == nil {
		return nil, false, errors.ParseErrorf("no parser configured")
	}

	node, err := a.compressor.Compress(ctx, src, language)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, errors.Canceled(ctx.Err())
		}
		return nil, false, err
	}
	return node, true, nil
}

func (a *Analyzer) validate(req models.Request) (string, error) {
	if strings.TrimSpace(req.SourceCode) == "" {
		return "", errors.InvalidRequestf("source_code is empty")
	}
	language := structure.NormalizeLanguage(req.Language)
	if language == "" && req.Filename != "" {
		language = treesitter.DetectLanguage(req.Filename)
	}
	if language == "" {
		return "", errors.InvalidRequestf("language is required for %q", req.Filename)
	}
	if req.Strategy != "" {
		if _, err := models.ParseStrategy(string(req.Strategy)); err != nil {
			return "", errors.InvalidRequestf("%v", err)
		}
	}
	return language, nil
}

// execute walks the plan. Every attempt gets its own reader and deadline;
// the first success wins. A non-retryable failure or a dead caller
// context ends the chain.
func (a *Analyzer) execute(ctx context.Context, run *Run, plan []models.ExecutionPath) (Outcome, error) {
	var last Outcome
	for i, path := range plan {
		if i > 0 {
			run.Observer.FallbackTriggered(FallbackEvent{
				RequestID: run.RequestID,
				From:      last.Path,
				To:        path,
				Code:      last.Err.Code,
				Reason:    last.Err.Error(),
			})
		}

		limit := a.opts.RunTimeout
		if i > 0 {
			limit = a.opts.FallbackTimeout
		}
		out := a.attempt(ctx, run, strategyFor(path), limit)
		if out.OK() {
			if i > 0 {
				out.fallbackFrom = plan[0]
				out.fallbackReason = string(last.Err.Code) + ": " + last.Err.Error()
			}
			return out, nil
		}

		run.Logger.Info("attempt failed", "path", path, "code", out.Err.Code, "error", out.Err)
		last = out
		if ctx.Err() != nil || !retryable(out.Err.Code) {
			break
		}
	}
	return last, last.Err
}

func (a *Analyzer) attempt(ctx context.Context, run *Run, s Strategy, limit time.Duration) (out Outcome) {
	attemptCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	reader, err := source.NewReader(attemptCtx, run.Store, run.Hash)
	if err != nil {
		return failed(s.Path(), errors.InternalErrorf("open source reader: %v", err))
	}

	defer func() {
		if r := recover(); r != nil {
			run.Logger.Error("strategy panicked", "path", s.Path(), "panic", r)
			out = failed(s.Path(), errors.EngineUnavailable(nil, "strategy panicked"))
		}
		if out.Err != nil {
			out.Err = classify(ctx, attemptCtx, limit, out.Err)
			// aborted runs leave nothing behind
			reader.Discard()
			out.Decision = nil
			return
		}
		out.Reads = reader.Summary()
	}()

	out = s.Attempt(attemptCtx, run, reader)
	if out.OK() {
		out = a.settle(run, out)
	}
	return out
}

// settle post-processes a payload. Adaptive and two-step answers that
// repair below the block minimum fail the attempt.
func (a *Analyzer) settle(run *Run, out Outcome) Outcome {
	minBlocks, maxBlocks := a.opts.BlockBounds(out.Path, run.TotalLines, run.Tokens)
	processed := quality.Process(*out.Raw, quality.Options{
		TotalLines: run.TotalLines,
		MinBlocks:  minBlocks,
		MaxBlocks:  maxBlocks,
	})
	if (out.Path == models.PathAdaptive || out.Path == models.PathTwoStep) && len(processed.Blocks) < minBlocks {
		return failed(out.Path, errors.MalformedOutput(nil,
			fmt.Sprintf("%d responsibility blocks after repair, expected at least %d", len(processed.Blocks), minBlocks)))
	}
	out.processed = &processed
	return out
}

// finish builds the final result from a settled outcome.
func (a *Analyzer) finish(run *Run, plan []models.ExecutionPath, out Outcome) *models.AnalysisResult {
	processed := out.processed
	meta := models.Metadata{
		ExecutionPath:  out.Path,
		FallbackFrom:   out.fallbackFrom,
		FallbackReason: out.fallbackReason,
		ReadLogSummary: out.Reads,
		Issues:         processed.Issues,
		TotalLines:     run.TotalLines,
		ContentHash:    run.Hash,
		Language:       run.Language,
	}
	if meta.Issues == nil {
		meta.Issues = []models.Issue{}
	}
	switch out.Path {
	case models.PathAdaptive:
		meta.ToolCallCount = models.IntPtr(out.ToolCalls)
		meta.Iterations = out.Iterations
	case models.PathTwoStep:
		meta.ToolCallCount = models.IntPtr(out.ToolCalls)
		meta.Iterations = out.Iterations
		meta.StageTokenCounts = out.StageTokens
	default:
		meta.StageTokenCounts = out.StageTokens
	}

	blocks := processed.Blocks
	if blocks == nil {
		blocks = []models.ResponsibilityBlock{}
	}
	run.Logger.Info("analysis complete",
		"path", out.Path,
		"plan", plan,
		"blocks", len(blocks),
		"issues", len(meta.Issues),
		"tool_calls", out.ToolCalls,
	)
	return &models.AnalysisResult{
		FileIntent:           processed.FileIntent,
		ResponsibilityBlocks: blocks,
		Metadata:             meta,
	}
}
