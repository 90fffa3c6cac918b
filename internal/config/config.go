// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for gemrun.
//
// Configuration is a TOML file with sensible defaults and environment
// variable overrides. Locations, in order of precedence:
//   - $GEMRUN_CONFIG_DIR/config.toml
//   - ~/.gemrun/config.toml
//   - Built-in defaults
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/gemrun/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete gemrun configuration.
type Config struct {
	Version string `toml:"version"`

	// API configuration
	API APIConfig `toml:"api"`

	// History (transcript persistence) configuration
	History HistoryConfig `toml:"history"`

	// UI configuration
	UI UIConfig `toml:"ui"`
}

// APIConfig contains Gemini API configuration.
type APIConfig struct {
	// Key is the Gemini API key. Usually left empty here and supplied via
	// the GEMINI_API_KEY or GOOGLE_API_KEY environment variables.
	Key string `toml:"key"`
	// BaseURL overrides the API endpoint. Empty means the public endpoint.
	BaseURL string `toml:"base_url"`
	// Model is the model used for generation.
	Model string `toml:"model"`
	// TimeoutSecs is the per-request timeout in seconds.
	TimeoutSecs int `toml:"timeout_secs"`
	// MaxRetries is the total number of attempts for transient errors.
	MaxRetries int `toml:"max_retries"`
	// RetryDelayMillis is the fixed delay between attempts in milliseconds.
	RetryDelayMillis int `toml:"retry_delay_millis"`
	// RequestIntervalMillis spaces consecutive requests to stay under the
	// provider's per-minute quota. 0 disables pacing.
	RequestIntervalMillis int `toml:"request_interval_millis"`
}

// HistoryConfig contains transcript persistence configuration.
type HistoryConfig struct {
	// Enabled controls whether sessions are saved on exit.
	Enabled bool `toml:"enabled"`
	// MaxConversations caps the number of saved transcripts; the oldest
	// are pruned first. 0 means unlimited.
	MaxConversations int `toml:"max_conversations"`
}

// UIConfig contains presentation configuration.
type UIConfig struct {
	// Theme is "dark", "light", or "auto".
	Theme string `toml:"theme"`
	// ShowTokens displays token usage after each reply.
	ShowTokens bool `toml:"show_tokens"`
	// Markdown enables glamour rendering of replies on a TTY.
	Markdown bool `toml:"markdown"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		API: APIConfig{
			Model:                 "gemini-2.0-flash",
			TimeoutSecs:           60,
			MaxRetries:            3,
			RetryDelayMillis:      1000,
			RequestIntervalMillis: 0,
		},
		History: HistoryConfig{
			Enabled:          true,
			MaxConversations: 50,
		},
		UI: UIConfig{
			Theme:      "auto",
			ShowTokens: true,
			Markdown:   true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the gemrun configuration directory path.
// GEMRUN_CONFIG_DIR overrides the default ~/.gemrun.
func ConfigDir() (string, error) {
	if dir := os.Getenv("GEMRUN_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".gemrun"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConversationsDir returns the directory used for saved transcripts.
func ConversationsDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "conversations"), nil
}

// InputHistoryPath returns the path of the REPL input history file.
func InputHistoryPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "input_history"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on the config file.
// SECURITY: Config files should be 0600 (owner read/write only) because
// they may contain the API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load loads configuration from the config file, falling back to defaults
// when no file exists. Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()

	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := LoadFromPath(cfg, path); err != nil {
				return nil, err
			}
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath decodes a TOML config file over an existing Config.
// SECURITY: Checks and fixes file permissions on load.
func LoadFromPath(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	return nil
}

// Save writes the configuration to the config file.
// SECURITY: Creates the file with 0600 permissions (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString("# gemrun configuration file\n")
	buf.WriteString("# Generated by gemrun - edit with care\n")
	buf.WriteString("\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// validThemes is the set of accepted UI theme names.
var validThemes = map[string]bool{"dark": true, "light": true, "auto": true}

// Validate checks the configuration for invalid values. Out-of-range
// numeric values are clamped rather than rejected, so a hand-edited file
// degrades gracefully.
func (c *Config) Validate() error {
	if c.API.Model == "" {
		return ValidationError{Field: "api.model", Message: "must not be empty"}
	}
	if !validThemes[c.UI.Theme] {
		return ValidationError{Field: "ui.theme", Message: fmt.Sprintf("unknown theme %q", c.UI.Theme)}
	}

	// Clamp numeric ranges.
	if c.API.TimeoutSecs < 1 {
		c.API.TimeoutSecs = 1
	}
	if c.API.TimeoutSecs > 600 {
		c.API.TimeoutSecs = 600
	}
	if c.API.MaxRetries < 1 {
		c.API.MaxRetries = 1
	}
	if c.API.MaxRetries > 10 {
		c.API.MaxRetries = 10
	}
	if c.API.RetryDelayMillis < 0 {
		c.API.RetryDelayMillis = 0
	}
	if c.API.RequestIntervalMillis < 0 {
		c.API.RequestIntervalMillis = 0
	}
	if c.History.MaxConversations < 0 {
		c.History.MaxConversations = 0
	}
	return nil
}

// SetDefaults fills empty fields that a sparse config file left unset.
func (c *Config) SetDefaults() {
	def := Default()
	if c.Version == "" {
		c.Version = def.Version
	}
	if c.API.Model == "" {
		c.API.Model = def.API.Model
	}
	if c.API.TimeoutSecs == 0 {
		c.API.TimeoutSecs = def.API.TimeoutSecs
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = def.API.MaxRetries
	}
	if c.API.RetryDelayMillis == 0 {
		c.API.RetryDelayMillis = def.API.RetryDelayMillis
	}
	if c.UI.Theme == "" {
		c.UI.Theme = def.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
// GEMINI_API_KEY takes precedence over GOOGLE_API_KEY, matching the
// provider's own tooling.
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.API.Key = strings.TrimSpace(key)
	} else if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.API.Key = strings.TrimSpace(key)
	}

	if model := os.Getenv("GEMRUN_MODEL"); model != "" {
		c.API.Model = model
	}

	if u := os.Getenv("GEMRUN_BASE_URL"); u != "" {
		c.API.BaseURL = u
	}
}

// =============================================================================
// GLOBAL CONFIG ACCESS
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
			cfg.ApplyEnvOverrides()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state between test runs.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
