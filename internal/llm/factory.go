package llm

import (
	"context"
	"log/slog"

	"github.com/retz8/iris/internal/config"
	"github.com/retz8/iris/internal/errors"
)

// NewEngine builds the configured engine, wrapped by the rate limiter
// when requests_per_minute is positive.
func NewEngine(ctx context.Context, cfg config.LLMConfig) (Engine, error) {
	logger := slog.Default().With("component", "llm")

	var (
		engine Engine
		err    error
	)
	switch Provider(cfg.Provider) {
	case ProviderGemini, "":
		engine, err = NewGeminiEngine(ctx, cfg.GeminiKey, cfg.GeminiModel, cfg.Temperature)
	case ProviderOpenAI:
		engine, err = NewOpenAIEngine(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, cfg.Temperature)
	default:
		return nil, errors.ConfigErrorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("engine initialized", "engine", engine.Name(), "requests_per_minute", cfg.RequestsPerMinute)
	if cfg.RequestsPerMinute > 0 {
		return NewRateLimited(engine, cfg.RequestsPerMinute), nil
	}
	return engine, nil
}
