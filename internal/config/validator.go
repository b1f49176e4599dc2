package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/retz8/iris/internal/errors"
)

// ValidationContext specifies what configuration is required
type ValidationContext string

const (
	// ValidationContextAnalyze - analysis needs a reasoning service key
	ValidationContextAnalyze ValidationContext = "analyze"
	// ValidationContextOffline - scripted engine, no key needed
	ValidationContextOffline ValidationContext = "offline"
	// ValidationContextAll - validate all configuration
	ValidationContextAll ValidationContext = "all"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}

	return sb.String()
}

// Validate validates configuration for the given context
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	result := &ValidationResult{Valid: true}

	c.validateAnalysis(result)
	c.validateCache(result)
	c.validateStorage(result)

	switch ctx {
	case ValidationContextAnalyze:
		c.validateLLM(result, true)
	case ValidationContextAll:
		c.validateLLM(result, false)
	}

	return result
}

// RequireLLM returns a config error when the selected provider cannot be used.
func (c *Config) RequireLLM() error {
	result := &ValidationResult{Valid: true}
	c.validateLLM(result, true)
	if result.HasErrors() {
		return errors.ConfigErrorf("%s", result.Error())
	}
	return nil
}

func (c *Config) validateAnalysis(result *ValidationResult) {
	a := c.Analysis
	if a.FastPathMaxLines <= 0 {
		result.AddError("analysis.fast_path_max_lines must be positive, got %d", a.FastPathMaxLines)
	}
	if a.FastPathMaxTokens <= 0 {
		result.AddError("analysis.fast_path_max_tokens must be positive, got %d", a.FastPathMaxTokens)
	}
	if a.MaxToolCalls < 1 {
		result.AddError("analysis.max_tool_calls must be at least 1, got %d", a.MaxToolCalls)
	}
	if a.MaxIterations < 2 {
		result.AddError("analysis.max_iterations must be at least 2, got %d", a.MaxIterations)
	}
	if a.MaxIterations <= a.MaxToolCalls {
		result.AddWarning("analysis.max_iterations (%d) leaves no turn for the final answer after %d tool calls",
			a.MaxIterations, a.MaxToolCalls)
	}
	if a.RunTimeout <= 0 {
		result.AddError("analysis.run_timeout must be positive")
	}
	if a.FallbackTimeout <= 0 {
		result.AddWarning("analysis.fallback_timeout is not set, the fallback will reuse run_timeout")
	}
	switch a.Fallback {
	case "fast_path", "two_step":
	default:
		result.AddError("analysis.fallback must be fast_path or two_step, got %q", a.Fallback)
	}
	switch a.DefaultStrategy {
	case "", "auto", "fast", "adaptive", "two_step":
	default:
		result.AddError("analysis.default_strategy %q is not one of auto, fast, adaptive, two_step", a.DefaultStrategy)
	}
}

func (c *Config) validateLLM(result *ValidationResult, required bool) {
	report := result.AddWarning
	if required {
		report = result.AddError
	}

	switch c.LLM.Provider {
	case ProviderGemini:
		if c.LLM.GeminiKey == "" {
			report("GEMINI_API_KEY is not set. Set it via environment variable or run: iris configure")
		}
	case ProviderOpenAI:
		if c.LLM.OpenAIKey == "" {
			report("OPENAI_API_KEY is not set. Set it via environment variable or run: iris configure")
		}
		if c.LLM.OpenAIBaseURL != "" {
			if _, err := url.Parse(c.LLM.OpenAIBaseURL); err != nil {
				result.AddError("llm.openai_base_url is invalid: %v", err)
			}
		}
	default:
		result.AddError("llm.provider must be gemini or openai, got %q", c.LLM.Provider)
	}

	if c.LLM.RequestsPerMinute <= 0 {
		result.AddWarning("llm.requests_per_minute is not set, requests will not be rate limited")
	}
}

func (c *Config) validateCache(result *ValidationResult) {
	if c.Cache.Persist && c.Cache.Directory == "" {
		result.AddError("cache.directory is required when cache.persist is enabled")
	}
	if c.Cache.ResultCapacity < 0 || c.Cache.StructureCapacity < 0 || c.Cache.DecisionCapacity < 0 {
		result.AddError("cache capacities must be zero (unbounded) or positive")
	}
}

func (c *Config) validateStorage(result *ValidationResult) {
	switch c.Storage.Driver {
	case "", "memory":
	case "sqlite3":
		if c.Storage.DSN == "" && c.Storage.LocalPath == "" {
			result.AddError("storage.local_path is required for the sqlite3 driver")
		}
	case "postgres", "pgx":
		if c.Storage.DSN == "" {
			result.AddError("storage.dsn is required for the %s driver", c.Storage.Driver)
		} else if !strings.HasPrefix(c.Storage.DSN, "postgres://") && !strings.HasPrefix(c.Storage.DSN, "postgresql://") {
			result.AddError("storage.dsn must start with postgres:// or postgresql://")
		}
	default:
		result.AddError("storage.driver %q is not one of memory, sqlite3, postgres, pgx", c.Storage.Driver)
	}
}
