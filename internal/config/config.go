// Package config loads chainrouter's environment-driven configuration.
// Grounded on tokenhub's internal/app.LoadConfig (getEnv*/Validate idiom),
// extended with joho/godotenv so a .env file colocated with the plugin is
// honored without ever overriding a variable the shell already set — spec.md
// §6's "shell environment always wins" requirement, which is also exactly
// godotenv.Load's own precedence rule.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is every environment variable named in spec.md §6, typed and
// defaulted.
type Config struct {
	UseChainMode bool

	BudgetDataDir string
	HostConfig    string
	OllamaURL     string

	DailyBudgetUSD float64

	FailureThreshold          int
	AutoModelRouting          string
	DisablePromptOptimization bool
	ContextTruncationEnabled  bool
	ContextMaxTokens          int
	ContextKeepRecent         int
	SessionKey                string

	LocalModel        string
	LocalModelGeneral string
	LocalModelCoding  string
	LocalModelVision  string

	LogLevel   string
	StatusAddr string

	EncryptionKey string
}

// Load reads a .env file from pluginDir (if present) without overriding
// already-set shell variables, then builds a Config from the environment.
func Load(pluginDir string) (Config, error) {
	_ = godotenv.Load(filepath.Join(pluginDir, ".env"))

	cfg := Config{
		UseChainMode: getEnvBool("USE_CHAIN_MODE", false),

		BudgetDataDir: getEnv("BUDGET_DATA_DIR", defaultDataDir()),
		HostConfig:    getEnv("OPENCLAW_CONFIG", defaultHostConfigPath()),
		OllamaURL:     getEnv("OLLAMA_URL", "http://localhost:11434"),

		DailyBudgetUSD: getEnvFloat("DAILY_BUDGET_USD", 0),

		FailureThreshold:          getEnvInt("FAILURE_THRESHOLD", 3),
		AutoModelRouting:          getEnv("AUTO_MODEL_ROUTING", "advisory"),
		DisablePromptOptimization: getEnvBool("DISABLE_PROMPT_OPTIMIZATION", false),
		ContextTruncationEnabled:  getEnvBool("CONTEXT_TRUNCATION_ENABLED", true),
		ContextMaxTokens:          getEnvInt("CONTEXT_MAX_TOKENS", 120_000),
		ContextKeepRecent:         getEnvInt("CONTEXT_KEEP_RECENT", 20),
		SessionKey:                getEnv("SESSION_KEY", "agent:main:main"),

		LocalModel:        getEnv("LOCAL_MODEL", ""),
		LocalModelGeneral: getEnv("LOCAL_MODEL_GENERAL", ""),
		LocalModelCoding:  getEnv("LOCAL_MODEL_CODING", ""),
		LocalModelVision:  getEnv("LOCAL_MODEL_VISION", ""),

		LogLevel:   getEnv("CHAINROUTER_LOG_LEVEL", "info"),
		StatusAddr: getEnv("CHAINROUTER_STATUS_ADDR", ""),

		EncryptionKey: getEnv("CHAINROUTER_ENCRYPTION_KEY", ""),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks config values for obviously invalid settings.
func (c Config) Validate() error {
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("FAILURE_THRESHOLD must be > 0, got %d", c.FailureThreshold)
	}
	if c.DailyBudgetUSD < 0 {
		return fmt.Errorf("DAILY_BUDGET_USD must be >= 0, got %f", c.DailyBudgetUSD)
	}
	if c.ContextMaxTokens <= 0 {
		return fmt.Errorf("CONTEXT_MAX_TOKENS must be > 0, got %d", c.ContextMaxTokens)
	}
	if c.ContextKeepRecent <= 0 {
		return fmt.Errorf("CONTEXT_KEEP_RECENT must be > 0, got %d", c.ContextKeepRecent)
	}
	switch strings.ToLower(c.AutoModelRouting) {
	case "off", "advisory":
	default:
		return fmt.Errorf("AUTO_MODEL_ROUTING must be one of off/advisory, got %q", c.AutoModelRouting)
	}
	return nil
}

// Canonical file names under BudgetDataDir (spec.md §6).
const (
	FileProviderChain = "provider-chain.json"
	FileChainBudget   = "chain-budget.json"
	FileLegacyBudget  = "budget.json"
	FileFailure       = "failure-tracker.json"
	FileSwitcherState = "switcher-state.json"
)

// DataPath joins name onto BudgetDataDir, for the canonical per-component
// state files every command (plugin entry point and chainrouterctl) must
// agree on.
func (c Config) DataPath(name string) string {
	return filepath.Join(c.BudgetDataDir, name)
}

// LocalModelFor resolves the local model override for a task, falling back
// to LocalModel when no task-specific override is set.
func (c Config) LocalModelFor(task string) string {
	var override string
	switch strings.ToLower(task) {
	case "general":
		override = c.LocalModelGeneral
	case "coding":
		override = c.LocalModelCoding
	case "vision":
		override = c.LocalModelVision
	}
	if override != "" {
		return override
	}
	return c.LocalModel
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".chainrouter")
	}
	return ".chainrouter"
}

func defaultHostConfigPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".forge", "forge.json")
	}
	return ""
}
