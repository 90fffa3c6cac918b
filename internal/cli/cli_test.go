// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jeranaias/gemrun/internal/gemini"
	"github.com/jeranaias/gemrun/internal/storage"
)

// =============================================================================
// ARGUMENT PARSING
// =============================================================================

func TestParseArgs_DefaultIsChat(t *testing.T) {
	cmd, args := ParseArgs(nil)
	if cmd != CmdChat {
		t.Errorf("expected CmdChat, got %v", cmd)
	}
	if args.Model != "" || args.Quiet {
		t.Errorf("expected zero-value args, got %+v", args)
	}
}

func TestParseArgs_Commands(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want Command
	}{
		{"chat", []string{"chat"}, CmdChat},
		{"ask", []string{"ask", "hello"}, CmdAsk},
		{"history", []string{"history"}, CmdHistory},
		{"history alias", []string{"conversations"}, CmdHistory},
		{"models", []string{"models"}, CmdModels},
		{"config", []string{"config", "show"}, CmdConfig},
		{"version", []string{"version"}, CmdVersion},
		{"version flag", []string{"--version"}, CmdVersion},
		{"help", []string{"help"}, CmdHelp},
		{"help flag", []string{"-h"}, CmdHelp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, _ := ParseArgs(tt.argv)
			if cmd != tt.want {
				t.Errorf("ParseArgs(%v) = %v, want %v", tt.argv, cmd, tt.want)
			}
		})
	}
}

func TestParseArgs_BarePromptBecomesAsk(t *testing.T) {
	cmd, args := ParseArgs([]string{"what", "is", "a", "goroutine"})
	if cmd != CmdAsk {
		t.Fatalf("expected CmdAsk, got %v", cmd)
	}
	if args.Query != "what is a goroutine" {
		t.Errorf("query = %q", args.Query)
	}
}

func TestParseArgs_GlobalFlags(t *testing.T) {
	cmd, args := ParseArgs([]string{"--quiet", "--no-markdown", "--model", "gemini-2.0-pro", "chat"})
	if cmd != CmdChat {
		t.Fatalf("expected CmdChat, got %v", cmd)
	}
	if !args.Quiet || !args.NoMarkdown {
		t.Errorf("flags not parsed: %+v", args)
	}
	if args.Model != "gemini-2.0-pro" {
		t.Errorf("model = %q", args.Model)
	}
}

func TestParseArgs_ModelEqualsForm(t *testing.T) {
	_, args := ParseArgs([]string{"--model=gemini-2.0-pro", "ask", "hi"})
	if args.Model != "gemini-2.0-pro" {
		t.Errorf("model = %q", args.Model)
	}
}

func TestParseArgs_AskFileFlag(t *testing.T) {
	tests := []struct {
		name     string
		argv     []string
		wantFile string
		wantQ    string
	}{
		{"separate", []string{"ask", "review", "-f", "main.go"}, "main.go", "review"},
		{"long", []string{"ask", "review", "--file", "main.go"}, "main.go", "review"},
		{"equals", []string{"ask", "review", "--file=main.go"}, "main.go", "review"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := ParseArgs(tt.argv)
			if cmd != CmdAsk {
				t.Fatalf("expected CmdAsk, got %v", cmd)
			}
			if args.File != tt.wantFile {
				t.Errorf("file = %q, want %q", args.File, tt.wantFile)
			}
			if args.Query != tt.wantQ {
				t.Errorf("query = %q, want %q", args.Query, tt.wantQ)
			}
		})
	}
}

func TestParseArgs_HistorySubcommands(t *testing.T) {
	cmd, args := ParseArgs([]string{"history", "show", "3"})
	if cmd != CmdHistory {
		t.Fatalf("expected CmdHistory, got %v", cmd)
	}
	if args.Subcommand != "show" || args.Query != "3" {
		t.Errorf("subcommand=%q query=%q", args.Subcommand, args.Query)
	}

	_, args = ParseArgs([]string{"history"})
	if args.Subcommand != "list" {
		t.Errorf("bare history should default to list, got %q", args.Subcommand)
	}
}

func TestParseArgs_ConfigSet(t *testing.T) {
	_, args := ParseArgs([]string{"config", "set", "api.model", "gemini-2.0-flash"})
	if args.Subcommand != "set" {
		t.Errorf("subcommand = %q", args.Subcommand)
	}
	if args.ConfigKey != "api.model" || args.ConfigVal != "gemini-2.0-flash" {
		t.Errorf("key=%q val=%q", args.ConfigKey, args.ConfigVal)
	}
}

// =============================================================================
// EXIT CODES
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"generic", errors.New("boom"), ExitGeneralError},
		{"validation", NewValidationError("field", "x", "bad"), ExitUsageError},
		{"not found type", ErrNotFound("conversation", "9"), ExitNotFoundError},
		{"storage not found", storage.ErrNotFound, ExitNotFoundError},
		{"no api key", gemini.ErrNotConfigured, ExitAuthError},
		{"input too long", fmt.Errorf("%w: 40000 tokens", gemini.ErrInputTooLong), ExitUsageError},
		{"safety", &gemini.APIError{Kind: gemini.ErrSafetyBlocked}, ExitSafetyError},
		{"rate limited", &gemini.APIError{Kind: gemini.ErrRateLimited, Status: 429}, ExitNetworkError},
		{"network", fmt.Errorf("max retries exceeded: %w", gemini.ErrNetwork), ExitNetworkError},
		{"cancelled", context.Canceled, ExitTimeoutError},
		{"deadline", context.DeadlineExceeded, ExitTimeoutError},
		{"wrapped command error", NewCommandError("history", "show", "failed", storage.ErrNotFound), ExitNotFoundError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.want {
				t.Errorf("GetExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorMessage_NotConfiguredHint(t *testing.T) {
	msg := errorMessage(gemini.ErrNotConfigured)
	if !strings.Contains(msg, "GEMINI_API_KEY") {
		t.Errorf("expected hint about GEMINI_API_KEY, got %q", msg)
	}
}

// =============================================================================
// TEXT WRAPPING
// =============================================================================

func TestWrapText(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog"
	wrapped := WrapText(text, 20)

	for i, line := range strings.Split(wrapped, "\n") {
		if len(line) > 18 {
			t.Errorf("line %d exceeds width: %q (%d chars)", i, line, len(line))
		}
	}
	// Nothing lost in the wrap
	if strings.Join(strings.Fields(wrapped), " ") != text {
		t.Errorf("wrapped text lost content: %q", wrapped)
	}
}

func TestWrapText_PreservesNewlines(t *testing.T) {
	text := "line one\nline two"
	if got := WrapText(text, 80); got != text {
		t.Errorf("short lines should pass through, got %q", got)
	}
}

// =============================================================================
// VALIDATION ERRORS
// =============================================================================

func TestValidationError_Format(t *testing.T) {
	err := &ValidationError{
		Field:   "file",
		Value:   "missing.go",
		Reason:  "file too large",
		Example: "gemrun ask -f small.go",
	}
	msg := err.Error()
	for _, want := range []string{"file", "missing.go", "file too large", "Example:"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message missing %q: %s", want, msg)
		}
	}
}

func TestCommandError_Unwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := NewCommandError("history", "clear", "could not delete", inner)
	if !errors.Is(err, inner) {
		t.Error("CommandError should unwrap to the inner error")
	}
	if !strings.Contains(err.Error(), "history clear failed") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
