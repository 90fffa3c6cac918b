// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the burst of filesystem events an editor emits
// for a single save into one reload.
const debounceWindow = 250 * time.Millisecond

// Watch reloads the global configuration when the config file changes on
// disk and invokes onReload with the fresh config. It blocks until the
// context is cancelled, so callers run it in its own goroutine.
//
// The directory is watched rather than the file itself: editors that save
// via rename (vim, atomic writes) replace the inode, which silently breaks
// a file-level watch.
func Watch(ctx context.Context, onReload func(*Config)) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	var debounce *time.Timer
	reload := func() {
		if err := ReloadGlobal(); err != nil {
			log.Printf("config reload failed: %v", err)
			return
		}
		if onReload != nil {
			onReload(Global())
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("config watcher error: %v", err)
		}
	}
}
