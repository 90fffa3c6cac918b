// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jeranaias/gemrun/internal/config"
)

// =============================================================================
// ASK COMMAND
// =============================================================================

func TestHandleAskCommand_RetriesAfterSlowAttempt(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out a transport timeout")
	}

	const body = `{"candidates":[{"content":{"role":"model","parts":[{"text":"answer"}]}}],
		"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":1,"totalTokenCount":2}}`

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Outlive the 1s transport timeout so the first attempt
			// fails as a network error.
			time.Sleep(1500 * time.Millisecond)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	defer server.Close()

	t.Setenv("GEMRUN_CONFIG_DIR", t.TempDir())
	config.ResetGlobalForTesting()
	t.Cleanup(config.ResetGlobalForTesting)

	cfg := config.Default()
	cfg.API.Key = "test-key"
	cfg.API.BaseURL = server.URL
	cfg.API.TimeoutSecs = 1
	cfg.API.MaxRetries = 3
	cfg.API.RetryDelayMillis = 1
	config.SetGlobal(cfg)

	err := HandleAskCommand(Args{Query: "hello", Quiet: true, NoMarkdown: true})
	if err != nil {
		t.Fatalf("expected the second attempt to succeed, got: %v", err)
	}
	if got := calls.Load(); got < 2 {
		t.Errorf("expected a retry after the timed-out attempt, got %d call(s)", got)
	}
}

func TestHandleAskCommand_EmptyQuery(t *testing.T) {
	err := HandleAskCommand(Args{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if GetExitCode(err) != ExitUsageError {
		t.Errorf("exit code = %d, want %d", GetExitCode(err), ExitUsageError)
	}
}

func TestReadAttachment_MissingFile(t *testing.T) {
	_, err := readAttachment("/nonexistent/file.go")
	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
