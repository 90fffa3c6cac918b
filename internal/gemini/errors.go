// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"context"
	"errors"
	"fmt"
)

// Error variables for the closed set of failure kinds. Every error returned
// by this package wraps exactly one of these (or ErrNotConfigured), so
// callers classify with errors.Is.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("Gemini API key not configured")

	// ErrInputTooLong indicates the history plus the new message exceeds the
	// model's context window. Detected locally, before any network call.
	ErrInputTooLong = errors.New("input exceeds context window")

	// ErrNetwork indicates a transport failure or a server-side (5xx) error.
	ErrNetwork = errors.New("network error")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrSafetyBlocked indicates the prompt was refused by the provider's
	// safety filters. Never retried: the same prompt gives the same answer.
	ErrSafetyBlocked = errors.New("blocked by safety filters")

	// ErrInvalidResponse indicates the API returned a payload this client
	// cannot use: a malformed body, no candidates, or an unexpected 4xx.
	ErrInvalidResponse = errors.New("invalid API response")
)

// APIError carries provider detail for an error response. It always wraps
// one of the sentinel error kinds, reachable through Unwrap.
type APIError struct {
	Kind    error  // one of the sentinel error variables
	Status  int    // HTTP status code
	Code    string // provider status string, e.g. "RESOURCE_EXHAUSTED"
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("Gemini error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("Gemini error (HTTP %d): %s", e.Status, e.Message)
}

// Unwrap exposes the error kind so errors.Is sees through APIError.
func (e *APIError) Unwrap() error {
	return e.Kind
}

// RetryClassifier decides whether a classified error should trigger another
// attempt. The default treats rate limiting and network failures as
// transient; everything else is permanent.
type RetryClassifier func(err error) bool

// DefaultRetryClassifier is the standard retryable boundary: rate limits and
// network errors retry, safety blocks and malformed responses do not, and
// context cancellation always stops the loop.
func DefaultRetryClassifier(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNetwork)
}
