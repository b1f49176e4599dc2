package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "IRIS"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// KeyringManager handles secure credential storage in OS keychain
type KeyringManager struct {
	logger *slog.Logger
}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager() *KeyringManager {
	return &KeyringManager{
		logger: slog.Default().With("component", "keyring"),
	}
}

func itemName(provider string) string {
	return provider + "-api-key"
}

// SaveAPIKey stores a provider API key in the OS keychain
// (macOS Keychain, Windows Credential Manager, Linux Secret Service).
func (km *KeyringManager) SaveAPIKey(provider, apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("api key cannot be empty")
	}

	if err := keyring.Set(KeyringService, itemName(provider), apiKey); err != nil {
		km.logger.Error("failed to save API key to keychain", "provider", provider, "error", err)
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}

	km.logger.Info("api key saved to keychain", "service", KeyringService, "provider", provider)
	return nil
}

// GetAPIKey retrieves a provider API key. A missing key is not an error.
func (km *KeyringManager) GetAPIKey(provider string) (string, error) {
	apiKey, err := keyring.Get(KeyringService, itemName(provider))
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		km.logger.Error("failed to get API key from keychain", "provider", provider, "error", err)
		return "", fmt.Errorf("failed to read from OS keychain: %w", err)
	}

	km.logger.Debug("api key retrieved from keychain", "provider", provider)
	return apiKey, nil
}

// DeleteAPIKey removes a provider API key from OS keychain
func (km *KeyringManager) DeleteAPIKey(provider string) error {
	err := keyring.Delete(KeyringService, itemName(provider))
	if err == keyring.ErrNotFound {
		return nil
	}
	if err != nil {
		km.logger.Error("failed to delete API key from keychain", "provider", provider, "error", err)
		return fmt.Errorf("failed to delete from OS keychain: %w", err)
	}

	km.logger.Info("api key deleted from keychain", "provider", provider)
	return nil
}

// IsAvailable checks if OS keychain is available.
// Returns false on headless systems (CI/CD) where keychain isn't available.
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "test-availability")
	if err == keyring.ErrNotFound {
		return true
	}
	if err != nil {
		km.logger.Debug("keychain not available", "error", err)
		return false
	}
	return true
}

// KeySourceInfo returns information about where the API key is stored
type KeySourceInfo struct {
	Source      string // "env", "keychain", "config", "none"
	Secure      bool
	Recommended string
}

// GetAPIKeySource determines where the active provider's key comes from
func (km *KeyringManager) GetAPIKeySource(cfg *Config) KeySourceInfo {
	provider := cfg.LLM.Provider
	envVar, configured := "OPENAI_API_KEY", cfg.LLM.OpenAIKey
	if provider == ProviderGemini {
		envVar, configured = "GEMINI_API_KEY", cfg.LLM.GeminiKey
	}

	if os.Getenv(envVar) != "" {
		return KeySourceInfo{Source: "env", Secure: true, Recommended: "Using environment variable " + envVar}
	}

	if key, _ := km.GetAPIKey(provider); key != "" {
		return KeySourceInfo{Source: "keychain", Secure: true, Recommended: "Stored securely in OS keychain"}
	}

	if configured != "" {
		return KeySourceInfo{Source: "config", Secure: false, Recommended: "Plaintext key in config file. Run: iris configure"}
	}

	return KeySourceInfo{Source: "none", Secure: false, Recommended: "No API key configured. Run: iris configure"}
}

// MaskAPIKey masks an API key for display: first 7 and last 4 characters
func MaskAPIKey(apiKey string) string {
	if apiKey == "" {
		return "(not set)"
	}
	if len(apiKey) < 12 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", apiKey[:7], apiKey[len(apiKey)-4:])
}
