// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for the gemrun CLI:
// rune-safe string truncation, atomic file writes, and numeric
// formatting used across the chat, storage, and display layers.
package util
