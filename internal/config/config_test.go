// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// =============================================================================
// LOAD / SAVE TESTS
// =============================================================================

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	t.Setenv("GEMRUN_CONFIG_DIR", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMRUN_MODEL", "")
	t.Setenv("GEMRUN_BASE_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.Model != "gemini-2.0-flash" {
		t.Errorf("default model = %q", cfg.API.Model)
	}
	if cfg.API.MaxRetries != 3 || cfg.API.RetryDelayMillis != 1000 {
		t.Errorf("retry defaults = %d/%dms", cfg.API.MaxRetries, cfg.API.RetryDelayMillis)
	}
	if !cfg.History.Enabled {
		t.Error("history should be enabled by default")
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	t.Setenv("GEMRUN_CONFIG_DIR", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMRUN_MODEL", "")
	t.Setenv("GEMRUN_BASE_URL", "")

	cfg := Default()
	cfg.API.Model = "gemini-1.5-pro"
	cfg.UI.ShowTokens = false
	cfg.History.MaxConversations = 7
	if err := Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.API.Model != "gemini-1.5-pro" {
		t.Errorf("Model = %q after round trip", loaded.API.Model)
	}
	if loaded.UI.ShowTokens {
		t.Error("ShowTokens should survive round trip as false")
	}
	if loaded.History.MaxConversations != 7 {
		t.Errorf("MaxConversations = %d", loaded.History.MaxConversations)
	}
}

func TestSave_SecurePermissions(t *testing.T) {
	t.Setenv("GEMRUN_CONFIG_DIR", t.TempDir())

	if err := Save(Default()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	path, _ := ConfigPath()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file permissions = %o, want 0600", perm)
	}
}

func TestLoad_FixesInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GEMRUN_CONFIG_DIR", dir)
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMRUN_MODEL", "")
	t.Setenv("GEMRUN_BASE_URL", "")

	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`[api]`+"\n"+`model = "gemini-2.0-flash"`+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	info, _ := os.Stat(path)
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions after load = %o, want 0600", perm)
	}
}

func TestLoad_SparseFileGetsDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GEMRUN_CONFIG_DIR", dir)
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMRUN_MODEL", "")
	t.Setenv("GEMRUN_BASE_URL", "")

	content := "[ui]\ntheme = \"light\"\n"
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.UI.Theme != "light" {
		t.Errorf("Theme = %q, want light", cfg.UI.Theme)
	}
	if cfg.API.Model != "gemini-2.0-flash" {
		t.Errorf("sparse file should keep default model, got %q", cfg.API.Model)
	}
	if cfg.API.TimeoutSecs != 60 {
		t.Errorf("sparse file should keep default timeout, got %d", cfg.API.TimeoutSecs)
	}
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestValidate_ClampsRanges(t *testing.T) {
	cfg := Default()
	cfg.API.TimeoutSecs = 100000
	cfg.API.MaxRetries = 0
	cfg.API.RetryDelayMillis = -5
	cfg.History.MaxConversations = -1

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.API.TimeoutSecs != 600 {
		t.Errorf("TimeoutSecs clamped to %d, want 600", cfg.API.TimeoutSecs)
	}
	if cfg.API.MaxRetries != 1 {
		t.Errorf("MaxRetries clamped to %d, want 1", cfg.API.MaxRetries)
	}
	if cfg.API.RetryDelayMillis != 0 {
		t.Errorf("RetryDelayMillis clamped to %d, want 0", cfg.API.RetryDelayMillis)
	}
	if cfg.History.MaxConversations != 0 {
		t.Errorf("MaxConversations clamped to %d, want 0", cfg.History.MaxConversations)
	}
}

func TestValidate_RejectsUnknownTheme(t *testing.T) {
	cfg := Default()
	cfg.UI.Theme = "solarized"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("unknown theme should fail validation")
	}
	if !strings.Contains(err.Error(), "ui.theme") {
		t.Errorf("error = %v, want field ui.theme named", err)
	}
}

func TestValidate_RejectsEmptyModel(t *testing.T) {
	cfg := Default()
	cfg.API.Model = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty model should fail validation")
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDE TESTS
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "  env-key  ")
	t.Setenv("GOOGLE_API_KEY", "other-key")
	t.Setenv("GEMRUN_MODEL", "gemini-1.5-flash")
	t.Setenv("GEMRUN_BASE_URL", "http://localhost:9999")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.API.Key != "env-key" {
		t.Errorf("Key = %q, want trimmed GEMINI_API_KEY to win over GOOGLE_API_KEY", cfg.API.Key)
	}
	if cfg.API.Model != "gemini-1.5-flash" {
		t.Errorf("Model = %q", cfg.API.Model)
	}
	if cfg.API.BaseURL != "http://localhost:9999" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
}

func TestApplyEnvOverrides_GoogleKeyFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if cfg.API.Key != "google-key" {
		t.Errorf("Key = %q, want GOOGLE_API_KEY fallback", cfg.API.Key)
	}
}

// =============================================================================
// GLOBAL ACCESS TESTS
// =============================================================================

// TestConfig_ConcurrentAccess verifies Global/SetGlobal/ReloadGlobal are safe
// under concurrency. Run with: go test -race ./internal/config/
func TestConfig_ConcurrentAccess(t *testing.T) {
	t.Setenv("GEMRUN_CONFIG_DIR", t.TempDir())
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetGlobal(Default())
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}

func TestConfigDir_EnvOverride(t *testing.T) {
	t.Setenv("GEMRUN_CONFIG_DIR", "/tmp/custom-gemrun")
	dir, err := ConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if dir != "/tmp/custom-gemrun" {
		t.Errorf("ConfigDir = %q", dir)
	}

	sub, _ := ConversationsDir()
	if sub != filepath.Join(dir, "conversations") {
		t.Errorf("ConversationsDir = %q", sub)
	}
}
