package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
analysis:
  max_tool_calls: 4
  max_iterations: 6
  run_timeout: 15s
  fallback: two_step
llm:
  provider: openai
  use_keychain: false
storage:
  driver: sqlite3
  local_path: ` + filepath.Join(dir, "sources.db") + `
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Analysis.MaxToolCalls)
	assert.Equal(t, 6, cfg.Analysis.MaxIterations)
	assert.Equal(t, 15*time.Second, cfg.Analysis.RunTimeout)
	assert.Equal(t, "two_step", cfg.Analysis.Fallback)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sqlite3", cfg.Storage.Driver)

	// Untouched keys keep their defaults
	assert.Equal(t, 100, cfg.Analysis.FastPathMaxLines)
	assert.Equal(t, 1500, cfg.Analysis.FastPathMaxTokens)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  use_keychain: false\n"), 0644))

	t.Setenv("OPENAI_API_KEY", "sk-from-env-1234567")
	t.Setenv("IRIS_ANALYSIS_MAX_TOOL_CALLS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-from-env-1234567", cfg.LLM.OpenAIKey)
	assert.Equal(t, 3, cfg.Analysis.MaxToolCalls)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		ctx       ValidationContext
		wantError bool
	}{
		{"defaults offline", func(c *Config) {}, ValidationContextOffline, false},
		{"missing key for analyze", func(c *Config) { c.LLM.GeminiKey = "" }, ValidationContextAnalyze, true},
		{"key present", func(c *Config) { c.LLM.GeminiKey = "gm-key-123456789" }, ValidationContextAnalyze, false},
		{"bad fallback", func(c *Config) { c.Analysis.Fallback = "retry" }, ValidationContextOffline, true},
		{"zero budget", func(c *Config) { c.Analysis.MaxToolCalls = 0 }, ValidationContextOffline, true},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }, ValidationContextOffline, true},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "local" }, ValidationContextAll, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			result := cfg.Validate(tt.ctx)
			assert.Equal(t, tt.wantError, result.HasErrors(), result.Error())
		})
	}
}

func TestSaveOmitsKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "config.yaml")
	cfg := Default()
	cfg.LLM.OpenAIKey = "sk-secret-should-not-persist"

	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret-should-not-persist")
}
