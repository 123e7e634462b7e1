// Package config loads and merges distill's configuration.
//
// Settings are read from ~/.distill/config.json (or the file named by the
// --config flag bound in cmd/distill), then the API key is overridden by
// environment variables. Unlike the host
// assistant's own settings (which layer user/project/local/managed files),
// distill has a single global config file — per-project behavior is instead
// controlled by the .distill / .nodistill marker files (see ProjectEnabled).
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Annotator selects which annotation pipeline runs after on-stop.
const (
	AnnotatorSelf  = "self"
	AnnotatorHaiku = "haiku"
)

// Provider selects the LLM wire shape used by the haiku annotator.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

const (
	// DefaultTokenBudget is the default context budget for retrieval, in
	// approximate tokens (1 token ≈ 4 chars).
	DefaultTokenBudget = 4000

	defaultAPIBaseURL = "https://api.anthropic.com"
	defaultModel      = "claude-3-5-haiku-20241022"
)

// Config holds distill's merged configuration.
type Config struct {
	Annotator   string `json:"annotator"`
	Provider    string `json:"provider"`
	APIBaseURL  string `json:"apiBaseUrl"`
	APIKey      string `json:"apiKey"`
	Model       string `json:"model"`
	TokenBudget int    `json:"tokenBudget"`
	Enabled     bool   `json:"enabled"`
}

// rawConfig mirrors Config but uses a pointer for Enabled so Load can tell
// "absent from the file" (keep the default) apart from "explicitly false".
type rawConfig struct {
	Annotator   string `json:"annotator"`
	Provider    string `json:"provider"`
	APIBaseURL  string `json:"apiBaseUrl"`
	APIKey      string `json:"apiKey"`
	Model       string `json:"model"`
	TokenBudget int     `json:"tokenBudget"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

// Default returns the configuration used when no config file exists or it
// fails to parse: annotator falls back to self-annotation only.
func Default() *Config {
	return &Config{
		Annotator:   AnnotatorSelf,
		Provider:    ProviderAnthropic,
		APIBaseURL:  defaultAPIBaseURL,
		Model:       defaultModel,
		TokenBudget: DefaultTokenBudget,
		Enabled:     true,
	}
}

// HomeDir returns ~/.distill, creating it if necessary.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".distill")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// ConfigPath returns the path to the global config file.
func ConfigPath() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// SessionsDir returns the directory holding per-session SQLite databases.
func SessionsDir() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	sub := filepath.Join(dir, "sessions")
	if err := os.MkdirAll(sub, 0o700); err != nil {
		return "", err
	}
	return sub, nil
}

// BuffersDir returns the directory holding per-session tool-call buffers.
func BuffersDir() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	sub := filepath.Join(dir, "buffers")
	if err := os.MkdirAll(sub, 0o700); err != nil {
		return "", err
	}
	return sub, nil
}

// Load reads the config file, applies environment variable overrides, and
// returns the merged config. configPath overrides the default
// ~/.distill/config.json location when non-empty (the CLI's --config flag).
// Errors reading or parsing the file are non-fatal: Load falls back to
// Default() and returns nil error.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	path := configPath
	if path == "" {
		if p, err := ConfigPath(); err == nil {
			path = p
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err == nil {
		var raw rawConfig
		if err := v.Unmarshal(&raw); err == nil {
			mergeFileConfig(cfg, &raw)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// mergeFileConfig overlays non-zero fields from raw onto cfg.
func mergeFileConfig(cfg *Config, raw *rawConfig) {
	if raw.Annotator != "" {
		cfg.Annotator = raw.Annotator
	}
	if raw.Provider != "" {
		cfg.Provider = raw.Provider
	}
	if raw.APIBaseURL != "" {
		cfg.APIBaseURL = raw.APIBaseURL
	}
	if raw.APIKey != "" {
		cfg.APIKey = raw.APIKey
	}
	if raw.Model != "" {
		cfg.Model = raw.Model
	}
	if raw.TokenBudget != 0 {
		cfg.TokenBudget = raw.TokenBudget
	}
	if raw.Enabled != nil {
		cfg.Enabled = *raw.Enabled
	}
}

// applyEnv layers DISTILL_API_KEY then ANTHROPIC_API_KEY over cfg.APIKey.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DISTILL_API_KEY"); v != "" {
		cfg.APIKey = v
		return
	}
	if cfg.APIKey == "" {
		if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
			cfg.APIKey = v
		}
	}
}

// ProjectEnabled reports whether distill is enabled for the given project
// directory, honoring local .distill / .nodistill marker files which
// override the global Enabled flag.
func ProjectEnabled(cwd string, global bool) bool {
	if _, err := os.Stat(filepath.Join(cwd, ".nodistill")); err == nil {
		return false
	}
	if _, err := os.Stat(filepath.Join(cwd, ".distill")); err == nil {
		return true
	}
	return global
}
