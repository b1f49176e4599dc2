package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/retz8/iris/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Interactive setup for the reasoning service (with OS keychain support)",
	Long: `Walk through IRIS configuration step-by-step.

This will configure:
1. Provider (gemini or openai)
2. API key (stored in OS keychain by default, read without echo)
3. Model selection
4. Cache persistence`,
	RunE: runConfigure,
}

func runConfigure(cmd *cobra.Command, args []string) error {
	fmt.Println("IRIS Configuration")
	fmt.Println("━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	prompt := func(label string) string {
		fmt.Print(label)
		response, _ := reader.ReadString('\n')
		return strings.TrimSpace(response)
	}

	configPath := cfgFile
	if configPath == "" {
		homeDir, _ := os.UserHomeDir()
		configPath = filepath.Join(homeDir, ".iris", "config.yaml")
	}
	loadedCfg, err := config.Load(configPath)
	if err != nil {
		loadedCfg = config.Default()
	}

	km := config.NewKeyringManager()
	keychainAvailable := km.IsAvailable()
	if !keychainAvailable {
		fmt.Println("OS keychain not available (headless system or Linux without libsecret)")
		fmt.Println("The API key will be stored in the config file instead.")
		fmt.Println()
	}

	// Step 1: provider
	fmt.Println("Step 1/4: Provider")
	fmt.Printf("Current: %s\n", loadedCfg.LLM.Provider)
	switch strings.ToLower(prompt("Choose provider (gemini/openai) or press Enter to keep current: ")) {
	case config.ProviderGemini:
		loadedCfg.LLM.Provider = config.ProviderGemini
	case config.ProviderOpenAI:
		loadedCfg.LLM.Provider = config.ProviderOpenAI
	}
	provider := loadedCfg.LLM.Provider
	fmt.Println()

	// Step 2: API key
	fmt.Println("Step 2/4: API Key")
	source := km.GetAPIKeySource(loadedCfg)
	keep := false
	if source.Source != "none" {
		fmt.Printf("Source: %s\n", source.Recommended)
		r := strings.ToLower(prompt("Keep existing key? (Y/n): "))
		keep = r == "" || r == "y"
	}
	if !keep {
		apiKey, err := readSecret(fmt.Sprintf("Enter your %s API key: ", provider), reader)
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		if apiKey == "" {
			fmt.Println("No key entered, keeping the current setting.")
		} else {
			storeKey(km, loadedCfg, provider, apiKey, keychainAvailable)
		}
	}
	fmt.Println()

	// Step 3: model
	fmt.Println("Step 3/4: Model")
	current := &loadedCfg.LLM.GeminiModel
	if provider == config.ProviderOpenAI {
		current = &loadedCfg.LLM.OpenAIModel
	}
	fmt.Printf("Current: %s\n", *current)
	if m := prompt("Model name or press Enter to keep current: "); m != "" {
		*current = m
	}
	fmt.Println()

	// Step 4: cache
	fmt.Println("Step 4/4: Cache")
	fmt.Printf("Persist cache under %s? ", loadedCfg.Cache.Directory)
	r := strings.ToLower(prompt(fmt.Sprintf("(currently %t) (y/n/Enter to keep): ", loadedCfg.Cache.Persist)))
	switch r {
	case "y":
		loadedCfg.Cache.Persist = true
	case "n":
		loadedCfg.Cache.Persist = false
	}
	fmt.Println()

	if result := loadedCfg.Validate(config.ValidationContextAll); result.HasErrors() {
		fmt.Println(result.Error())
	}

	fmt.Printf("Save to: %s\n", configPath)
	if r := strings.ToLower(prompt("Confirm? (Y/n): ")); r != "" && r != "y" {
		fmt.Println("Configuration not saved")
		return nil
	}
	if err := loadedCfg.Save(configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Println("Configuration saved.")
	if loadedCfg.LLM.UseKeychain {
		fmt.Println("API key stored in OS keychain")
	}
	return nil
}

// readSecret reads without echo when stdin is a terminal.
func readSecret(label string, reader *bufio.Reader) (string, error) {
	fmt.Print(label)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", nil
	}
	return strings.TrimSpace(line), nil
}

func storeKey(km *config.KeyringManager, c *config.Config, provider, apiKey string, keychain bool) {
	setConfigKey := func(key string) {
		if provider == config.ProviderOpenAI {
			c.LLM.OpenAIKey = key
		} else {
			c.LLM.GeminiKey = key
		}
	}

	if keychain {
		err := km.SaveAPIKey(provider, apiKey)
		if err == nil {
			setConfigKey("")
			c.LLM.UseKeychain = true
			fmt.Printf("API key %s saved to %s\n", config.MaskAPIKey(apiKey), keychainLocation())
			return
		}
		fmt.Printf("Failed to save to keychain: %v\n", err)
	}
	setConfigKey(apiKey)
	c.LLM.UseKeychain = false
	fmt.Println("API key saved to config file (plaintext)")
}

func keychainLocation() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain Access.app → 'IRIS'"
	case "windows":
		return "Windows Credential Manager → 'IRIS'"
	case "linux":
		return "Linux Secret Service (libsecret)"
	default:
		return "OS Keychain"
	}
}
