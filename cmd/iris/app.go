package main

import (
	"context"
	"path/filepath"

	"github.com/retz8/iris/internal/analysis"
	"github.com/retz8/iris/internal/cache"
	"github.com/retz8/iris/internal/llm"
	"github.com/retz8/iris/internal/logging"
	"github.com/retz8/iris/internal/source"
	"github.com/retz8/iris/internal/storage"
	"github.com/retz8/iris/internal/structure"
	"github.com/retz8/iris/internal/telemetry"
	"github.com/retz8/iris/internal/treesitter"
)

// app holds the collaborators of one CLI invocation.
type app struct {
	analyzer *analysis.Analyzer
	cache    *cache.Multi
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.WithError(err).Debug("close failed")
		}
	}
}

// openCache builds the tiers, persisted when the config asks for it.
func openCache() *cache.Multi {
	opts := cache.Options{
		StructureCapacity: cfg.Cache.StructureCapacity,
		DecisionCapacity:  cfg.Cache.DecisionCapacity,
		ResultCapacity:    cfg.Cache.ResultCapacity,
		Logger:            logger,
	}
	if cfg.Cache.Persist {
		opts.Directory = cfg.Cache.Directory
	}
	return cache.New(opts)
}

// openStore returns nil for the in-memory default.
func openStore() (source.Store, func() error, error) {
	switch cfg.Storage.Driver {
	case "", "memory":
		return nil, nil, nil
	case "sqlite3":
		path := cfg.Storage.DSN
		if path == "" {
			path = cfg.Storage.LocalPath
		}
		s, err := storage.NewSQLiteStore(filepath.Clean(path), logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
}

// newEngine picks the scripted engine for offline runs, otherwise the
// configured provider.
func newEngine(ctx context.Context, script string) (llm.Engine, error) {
	if script != "" {
		return llm.LoadScript(script)
	}
	if err := cfg.RequireLLM(); err != nil {
		return nil, err
	}
	return llm.NewEngine(ctx, cfg.LLM)
}

func newApp(ctx context.Context, script string, sinks ...telemetry.Sink) (*app, error) {
	engine, err := newEngine(ctx, script)
	if err != nil {
		return nil, err
	}

	a := &app{cache: openCache()}
	a.closers = append(a.closers, a.cache.Close)

	store, closeStore, err := openStore()
	if err != nil {
		a.Close()
		return nil, err
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	sink := telemetry.MultiSink(append([]telemetry.Sink{telemetry.NewLogSink(logging.Component("telemetry"))}, sinks...))
	options := []analysis.Option{
		analysis.WithCache(a.cache),
		analysis.WithSink(sink),
		analysis.WithObserver(analysis.LogObserver{Logger: logging.Component("observer")}),
	}
	if store != nil {
		options = append(options, analysis.WithStore(store))
	}

	if !treesitter.Available() {
		logger.Debug("tree-sitter not compiled in, every file takes the raw fast path")
	}
	compressor := structure.NewCompressor(treesitter.NewParser())
	a.analyzer = analysis.New(engine, compressor, analysis.OptionsFromConfig(cfg.Analysis), options...)

	logger.WithField("engine", engine.Name()).
		WithField("cache_persistent", a.cache.Persistent()).
		Debug("analyzer ready")
	return a, nil
}
