// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides transcript persistence for gemrun.
//
// Conversations are stored as one JSON file per transcript under
// ~/.gemrun/conversations/. Writes are atomic (temp file, fsync, rename)
// so a crash mid-save never corrupts an existing transcript. The store
// prunes the oldest transcripts once a configured cap is exceeded.
package storage
