// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Unified error handling for all gemrun CLI commands.
//
// Command handlers ALWAYS return errors; main decides how to display
// them and which exit code to use. Errors are never silently ignored.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jeranaias/gemrun/internal/config"
	"github.com/jeranaias/gemrun/internal/gemini"
	"github.com/jeranaias/gemrun/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates a configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates a missing or rejected API key
	ExitAuthError = 4
	// ExitNetworkError indicates a network or rate-limit failure
	ExitNetworkError = 5
	// ExitSafetyError indicates the request was blocked by safety filters
	ExitSafetyError = 6
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out or was cancelled
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command failure with context.
type CommandError struct {
	Command string // Command that failed (e.g., "history", "config")
	Action  string // Action being performed (e.g., "show", "delete")
	Reason  string // Human-readable reason
	Err     error  // Underlying error (if any)
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was provided
	Reason  string // Why validation failed
	Example string // Example of valid value (optional)
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	Resource string // Type of resource (e.g., "conversation", "model")
	ID       string // Identifier that was not found
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// =============================================================================
// ERROR CONSTRUCTION HELPERS
// =============================================================================

// NewCommandError creates a new command error.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{
		Command: command,
		Action:  action,
		Reason:  reason,
		Err:     err,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// ErrMissingArgument creates an error for a missing required argument.
func ErrMissingArgument(argName, usage string) error {
	return &ValidationError{
		Field:   argName,
		Reason:  "required argument missing",
		Example: usage,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError displays an error in a consistent format on stderr.
func DisplayError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("[Error]"), errorMessage(err))
}

// errorMessage picks a friendlier message for known API failures.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, gemini.ErrNotConfigured):
		return "no API key configured. Set GEMINI_API_KEY or run: gemrun config set api.key YOUR_KEY"
	case errors.Is(err, gemini.ErrInputTooLong):
		return err.Error() + " (use /clear to reset the conversation)"
	default:
		return err.Error()
	}
}

// GetExitCode determines the exit code for an error.
// Classification relies on errors.Is/As against the known error types
// rather than message sniffing.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ExitUsageError
	}
	var configErr config.ValidationError
	if errors.As(err, &configErr) {
		return ExitConfigError
	}
	var notFoundErr *NotFoundError
	if errors.As(err, &notFoundErr) {
		return ExitNotFoundError
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ExitNotFoundError
	case errors.Is(err, gemini.ErrNotConfigured):
		return ExitAuthError
	case errors.Is(err, gemini.ErrInputTooLong):
		return ExitUsageError
	case errors.Is(err, gemini.ErrSafetyBlocked):
		return ExitSafetyError
	case errors.Is(err, gemini.ErrRateLimited), errors.Is(err, gemini.ErrNetwork):
		return ExitNetworkError
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ExitTimeoutError
	}

	return ExitGeneralError
}

// HandleErrorAndExit displays an error and exits with its code.
// Use for fatal errors in main command handlers.
func HandleErrorAndExit(err error) {
	if err == nil {
		return
	}
	DisplayError(err)
	os.Exit(GetExitCode(err))
}
