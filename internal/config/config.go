package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	LLM      LLMConfig      `yaml:"llm" mapstructure:"llm"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Storage  StorageConfig  `yaml:"storage" mapstructure:"storage"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
}

// AnalysisConfig bounds the orchestrator.
type AnalysisConfig struct {
	FastPathMaxLines  int           `yaml:"fast_path_max_lines" mapstructure:"fast_path_max_lines"`
	FastPathMaxTokens int           `yaml:"fast_path_max_tokens" mapstructure:"fast_path_max_tokens"`
	MaxToolCalls      int           `yaml:"max_tool_calls" mapstructure:"max_tool_calls"`
	MaxIterations     int           `yaml:"max_iterations" mapstructure:"max_iterations"`
	RunTimeout        time.Duration `yaml:"run_timeout" mapstructure:"run_timeout"`
	FallbackTimeout   time.Duration `yaml:"fallback_timeout" mapstructure:"fallback_timeout"`
	Fallback          string        `yaml:"fallback" mapstructure:"fallback"` // "fast_path", "two_step"
	DefaultStrategy   string        `yaml:"default_strategy" mapstructure:"default_strategy"`
}

// LLMConfig selects and authenticates the reasoning service.
type LLMConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"` // "gemini", "openai"
	GeminiKey         string  `yaml:"gemini_key" mapstructure:"gemini_key"`
	GeminiModel       string  `yaml:"gemini_model" mapstructure:"gemini_model"`
	OpenAIKey         string  `yaml:"openai_key" mapstructure:"openai_key"`
	OpenAIModel       string  `yaml:"openai_model" mapstructure:"openai_model"`
	OpenAIBaseURL     string  `yaml:"openai_base_url" mapstructure:"openai_base_url"`
	Temperature       float32 `yaml:"temperature" mapstructure:"temperature"`
	RequestsPerMinute int     `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	UseKeychain       bool    `yaml:"use_keychain" mapstructure:"use_keychain"`
}

type CacheConfig struct {
	Directory         string `yaml:"directory" mapstructure:"directory"`
	Persist           bool   `yaml:"persist" mapstructure:"persist"`
	StructureCapacity int    `yaml:"structure_capacity" mapstructure:"structure_capacity"`
	DecisionCapacity  int    `yaml:"decision_capacity" mapstructure:"decision_capacity"`
	ResultCapacity    int    `yaml:"result_capacity" mapstructure:"result_capacity"`
}

type StorageConfig struct {
	Driver    string `yaml:"driver" mapstructure:"driver"` // "memory", "sqlite3", "postgres", "pgx"
	DSN       string `yaml:"dsn" mapstructure:"dsn"`
	LocalPath string `yaml:"local_path" mapstructure:"local_path"`
}

type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Analysis: AnalysisConfig{
			FastPathMaxLines:  100,
			FastPathMaxTokens: 1500,
			MaxToolCalls:      6,
			MaxIterations:     8,
			RunTimeout:        60 * time.Second,
			FallbackTimeout:   45 * time.Second,
			Fallback:          "fast_path",
			DefaultStrategy:   "auto",
		},
		LLM: LLMConfig{
			Provider:          "gemini",
			GeminiModel:       "gemini-2.0-flash",
			OpenAIModel:       "gpt-4o-mini",
			Temperature:       0.1,
			RequestsPerMinute: 60,
			UseKeychain:       true,
		},
		Cache: CacheConfig{
			Directory:         filepath.Join(homeDir, ".iris", "cache"),
			Persist:           false,
			StructureCapacity: 512,
			DecisionCapacity:  512,
			ResultCapacity:    256,
		},
		Storage: StorageConfig{
			Driver:    "memory",
			LocalPath: filepath.Join(homeDir, ".iris", "sources.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	setDefaults(v, cfg)

	v.SetEnvPrefix("IRIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".iris")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".iris"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// setDefaults registers every leaf key so AutomaticEnv can resolve
// IRIS_ANALYSIS_MAX_TOOL_CALLS style variables.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("analysis.fast_path_max_lines", cfg.Analysis.FastPathMaxLines)
	v.SetDefault("analysis.fast_path_max_tokens", cfg.Analysis.FastPathMaxTokens)
	v.SetDefault("analysis.max_tool_calls", cfg.Analysis.MaxToolCalls)
	v.SetDefault("analysis.max_iterations", cfg.Analysis.MaxIterations)
	v.SetDefault("analysis.run_timeout", cfg.Analysis.RunTimeout)
	v.SetDefault("analysis.fallback_timeout", cfg.Analysis.FallbackTimeout)
	v.SetDefault("analysis.fallback", cfg.Analysis.Fallback)
	v.SetDefault("analysis.default_strategy", cfg.Analysis.DefaultStrategy)

	v.SetDefault("llm.provider", cfg.LLM.Provider)
	v.SetDefault("llm.gemini_key", cfg.LLM.GeminiKey)
	v.SetDefault("llm.gemini_model", cfg.LLM.GeminiModel)
	v.SetDefault("llm.openai_key", cfg.LLM.OpenAIKey)
	v.SetDefault("llm.openai_model", cfg.LLM.OpenAIModel)
	v.SetDefault("llm.openai_base_url", cfg.LLM.OpenAIBaseURL)
	v.SetDefault("llm.temperature", cfg.LLM.Temperature)
	v.SetDefault("llm.requests_per_minute", cfg.LLM.RequestsPerMinute)
	v.SetDefault("llm.use_keychain", cfg.LLM.UseKeychain)

	v.SetDefault("cache.directory", cfg.Cache.Directory)
	v.SetDefault("cache.persist", cfg.Cache.Persist)
	v.SetDefault("cache.structure_capacity", cfg.Cache.StructureCapacity)
	v.SetDefault("cache.decision_capacity", cfg.Cache.DecisionCapacity)
	v.SetDefault("cache.result_capacity", cfg.Cache.ResultCapacity)

	v.SetDefault("storage.driver", cfg.Storage.Driver)
	v.SetDefault("storage.dsn", cfg.Storage.DSN)
	v.SetDefault("storage.local_path", cfg.Storage.LocalPath)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.json", cfg.Logging.JSON)
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".iris", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies provider-native environment variables.
// Precedence for keys: 1. Env var 2. Keychain 3. Config file
func applyEnvOverrides(cfg *Config) {
	if key := firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"); key != "" {
		cfg.LLM.GeminiKey = key
	} else if cfg.LLM.GeminiKey == "" && cfg.LLM.UseKeychain {
		cfg.LLM.GeminiKey = keychainLookup(ProviderGemini)
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.LLM.OpenAIKey = key
	} else if cfg.LLM.OpenAIKey == "" && cfg.LLM.UseKeychain {
		cfg.LLM.OpenAIKey = keychainLookup(ProviderOpenAI)
	}

	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		cfg.LLM.GeminiModel = model
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		cfg.LLM.OpenAIModel = model
	}
	if rpm := os.Getenv("LLM_REQUESTS_PER_MINUTE"); rpm != "" {
		if n, err := strconv.Atoi(rpm); err == nil {
			cfg.LLM.RequestsPerMinute = n
		}
	}

	cfg.Cache.Directory = expandPath(cfg.Cache.Directory)
	cfg.Storage.LocalPath = expandPath(cfg.Storage.LocalPath)
	cfg.Logging.File = expandPath(cfg.Logging.File)
}

func keychainLookup(provider string) string {
	km := NewKeyringManager()
	if !km.IsAvailable() {
		return ""
	}
	key, err := km.GetAPIKey(provider)
	if err != nil {
		return ""
	}
	return key
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file. API keys are never written.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	llm := c.LLM
	llm.GeminiKey = ""
	llm.OpenAIKey = ""

	v.Set("analysis", c.Analysis)
	v.Set("llm", llm)
	v.Set("cache", c.Cache)
	v.Set("storage", c.Storage)
	v.Set("logging", c.Logging)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
