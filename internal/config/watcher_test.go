// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSiblingFile(dir string) error {
	return os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("unrelated"), 0644)
}

// =============================================================================
// CONFIG FILE WATCHING
// =============================================================================

// startWatcher runs Watch in a goroutine and returns channels for the
// reload callback and Watch's return value.
func startWatcher(t *testing.T, ctx context.Context) (<-chan *Config, <-chan error) {
	t.Helper()

	reloaded := make(chan *Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, func(c *Config) {
			select {
			case reloaded <- c:
			default:
			}
		})
	}()

	// Let the watcher register before the test writes anything.
	time.Sleep(100 * time.Millisecond)
	return reloaded, done
}

func TestWatch_ReloadsOnSave(t *testing.T) {
	t.Setenv("GEMRUN_CONFIG_DIR", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMRUN_MODEL", "")
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	cfg := Default()
	cfg.API.Model = "gemini-2.0-flash"
	if err := Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded, done := startWatcher(t, ctx)

	// Save goes through a temp file and rename, the editor-style
	// write the directory-level watch exists for.
	cfg.API.Model = "gemini-2.0-pro"
	if err := Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	select {
	case fresh := <-reloaded:
		if fresh.API.Model != "gemini-2.0-pro" {
			t.Errorf("reloaded model = %q, want gemini-2.0-pro", fresh.API.Model)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("onReload was not invoked after a config save")
	}

	// The global singleton saw the reload too.
	if got := Global().API.Model; got != "gemini-2.0-pro" {
		t.Errorf("Global().API.Model = %q, want gemini-2.0-pro", got)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Watch returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancellation")
	}
}

func TestWatch_IgnoresOtherFilesInDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GEMRUN_CONFIG_DIR", dir)
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMRUN_MODEL", "")
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	if err := Save(Default()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded, _ := startWatcher(t, ctx)

	// A sibling file changing must not trigger a reload.
	if err := writeSiblingFile(dir); err != nil {
		t.Fatalf("writing sibling file: %v", err)
	}

	select {
	case <-reloaded:
		t.Error("onReload fired for an unrelated file in the config dir")
	case <-time.After(600 * time.Millisecond):
		// Past the debounce window with no callback.
	}
}
