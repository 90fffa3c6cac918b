// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jeranaias/gemrun/internal/gemini"
	"github.com/jeranaias/gemrun/internal/session"
)

// =============================================================================
// LIVE MODEL CHANGES
// =============================================================================

func newChatTestState(client *gemini.Client) *chatState {
	return &chatState{
		session: session.New(client, nil),
		modelCh: make(chan string, 1),
	}
}

func TestChatState_QueuedModelNotAppliedUntilLoop(t *testing.T) {
	client := gemini.NewClient("test-key").WithModel("gemini-2.0-flash")
	state := newChatTestState(client)

	state.queueModelChange("gemini-2.0-pro")

	// Queueing alone must leave the client untouched; only the loop
	// goroutine mutates it.
	if got := state.session.Model(); got != "gemini-2.0-flash" {
		t.Fatalf("model changed before applyPendingModel: %q", got)
	}

	state.applyPendingModel()
	if got := state.session.Model(); got != "gemini-2.0-pro" {
		t.Errorf("model = %q, want gemini-2.0-pro", got)
	}
}

func TestChatState_LatestQueuedModelWins(t *testing.T) {
	client := gemini.NewClient("test-key").WithModel("gemini-2.0-flash")
	state := newChatTestState(client)

	state.queueModelChange("gemini-2.0-pro")
	state.queueModelChange("gemini-2.0-flash-lite")

	state.applyPendingModel()
	if got := state.session.Model(); got != "gemini-2.0-flash-lite" {
		t.Errorf("model = %q, want gemini-2.0-flash-lite", got)
	}

	// The queue is drained; a second apply is a no-op.
	state.applyPendingModel()
	if got := state.session.Model(); got != "gemini-2.0-flash-lite" {
		t.Errorf("model changed on empty queue: %q", got)
	}
}

func TestChatState_QueueSafeDuringInFlightRequest(t *testing.T) {
	const body = `{"candidates":[{"content":{"role":"model","parts":[{"text":"ok"}]}}],
		"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":1,"totalTokenCount":2}}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	defer server.Close()

	client := gemini.NewClient("test-key").
		WithBaseURL(server.URL).
		WithModel("gemini-2.0-flash")
	state := newChatTestState(client)

	// Queue changes while a request is in flight, the way the config
	// watcher does. The request must finish on the original model.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			state.queueModelChange("gemini-2.0-pro")
			time.Sleep(time.Millisecond)
		}
	}()

	reply, err := state.session.Send(context.Background(), "hello")
	<-done
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if reply != "ok" {
		t.Errorf("reply = %q", reply)
	}
	if got := state.session.Model(); got != "gemini-2.0-flash" {
		t.Errorf("model mutated mid-request: %q", got)
	}

	state.applyPendingModel()
	if got := state.session.Model(); got != "gemini-2.0-pro" {
		t.Errorf("queued model not applied: %q", got)
	}
}
