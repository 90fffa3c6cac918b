// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gemini provides the client for the Google Gemini generateContent API.
//
// The generateContent endpoint is stateless: every request carries the full
// conversation history as an ordered list of contents, and the model replies
// with a set of candidates. This package implements secure communication with
// the API including bounded retry, error classification, and validation.
//
// # Key Types
//
//   - Client: HTTP client for the Gemini REST API with retry support
//   - Content: A single conversation turn in the API's wire format
//   - GenerateResponse: Response structure for generateContent calls
//
// # Errors
//
// Every failure surfaced by this package wraps exactly one of the sentinel
// error kinds (ErrInputTooLong, ErrNetwork, ErrRateLimited, ErrSafetyBlocked,
// ErrInvalidResponse), so callers classify with errors.Is and branch without
// string matching. Provider detail travels alongside in *APIError.
//
// # Usage
//
// Create a client and send a request:
//
//	client := gemini.NewClient(apiKey)
//	resp, err := client.Generate(ctx, "Hello")
//	if errors.Is(err, gemini.ErrRateLimited) {
//	    // back off and retry later
//	}
//
// # Security
//
// API keys are never logged; diagnostic output uses a SHA-256 fingerprint
// instead. Response bodies are size-limited to prevent memory exhaustion.
package gemini
