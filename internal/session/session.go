// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session ties a conversation, the API client, and the transcript
// store into a single chat session.
//
// All state lives on the Session value; there are no package-level sessions.
// A Session is driven from a single goroutine (the REPL loop), matching the
// conversation's concurrency contract.
package session

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/gemrun/internal/config"
	"github.com/jeranaias/gemrun/internal/gemini"
	"github.com/jeranaias/gemrun/internal/model"
	"github.com/jeranaias/gemrun/internal/storage"
)

// Stats tracks per-session usage.
type Stats struct {
	Queries    int
	Errors     int
	TokensUsed int
	// TotalDuration is the time spent waiting on the API.
	TotalDuration time.Duration
}

// Session is one interactive chat: the history buffer, the client that
// dispatches it, and the store that persists it on close.
type Session struct {
	// ID identifies the session in logs and stats output.
	ID string

	// Conversation is the in-memory history replayed on every request.
	Conversation *model.Conversation

	client *gemini.Client
	store  *storage.ConversationStore
	stats  Stats
	start  time.Time
}

// New creates a session around an existing client. store may be nil, which
// disables transcript persistence.
func New(client *gemini.Client, store *storage.ConversationStore) *Session {
	conv := model.NewConversationWithModel(client.Model())
	conv.MaxTokens = gemini.MaxContextTokens
	return &Session{
		ID:           uuid.New().String(),
		Conversation: conv,
		client:       client,
		store:        store,
		start:        time.Now(),
	}
}

// NewFromConfig builds a session with a client and store wired from the
// configuration.
func NewFromConfig(cfg *config.Config) (*Session, error) {
	client := gemini.NewClient(cfg.API.Key).
		WithModel(cfg.API.Model).
		WithTimeout(time.Duration(cfg.API.TimeoutSecs) * time.Second).
		WithMaxRetries(cfg.API.MaxRetries).
		WithRetryDelay(time.Duration(cfg.API.RetryDelayMillis) * time.Millisecond)
	if cfg.API.BaseURL != "" {
		client.WithBaseURL(cfg.API.BaseURL)
	}
	if cfg.API.RequestIntervalMillis > 0 {
		client.WithRequestInterval(time.Duration(cfg.API.RequestIntervalMillis) * time.Millisecond)
	}

	var store *storage.ConversationStore
	if cfg.History.Enabled {
		var err error
		store, err = storage.NewConversationStore()
		if err != nil {
			return nil, err
		}
		store.MaxConversations = cfg.History.MaxConversations
	}

	return New(client, store), nil
}

// Resume loads a saved transcript into a fresh session so the chat picks up
// where it left off.
func Resume(client *gemini.Client, store *storage.ConversationStore, id string) (*Session, error) {
	stored, err := store.Load(id)
	if err != nil {
		return nil, err
	}
	s := New(client, store)
	s.Conversation = stored.ToConversation()
	s.Conversation.MaxTokens = gemini.MaxContextTokens
	return s, nil
}

// Send forwards text to the model with the full history as context and
// returns the reply.
//
// The history is only extended after a successful round trip: a failed
// dispatch leaves the conversation exactly as it was, so the user can
// retry or move on without poisoning the context.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", model.ErrEmptyMessage
	}

	contents := gemini.ContentsFromMessages(s.Conversation.Snapshot())
	contents = append(contents, gemini.NewUserContent(text))

	startTime := time.Now()
	resp, err := s.client.GenerateContent(ctx, contents)
	duration := time.Since(startTime)

	if err != nil {
		s.stats.Errors++
		return "", err
	}

	reply := resp.Text()

	userMsg := model.NewUserMessage(text)
	modelMsg := model.NewModelMessage(reply)
	modelMsg.Duration = duration
	if usage := resp.UsageMetadata; usage != nil {
		modelMsg.TokenCount = usage.CandidatesTokenCount
	}
	if err := s.Conversation.Append(userMsg); err != nil {
		return "", err
	}
	if err := s.Conversation.Append(modelMsg); err != nil {
		return "", err
	}

	s.stats.Queries++
	s.stats.TokensUsed += resp.TotalTokens()
	s.stats.TotalDuration += duration

	return reply, nil
}

// Clear discards the conversation history. Session stats are kept.
func (s *Session) Clear() {
	s.Conversation.Clear()
}

// Stats returns a copy of the session's usage counters.
func (s *Session) Stats() Stats {
	return s.stats
}

// Duration returns the session's wall-clock age.
func (s *Session) Duration() time.Duration {
	return time.Since(s.start)
}

// Model returns the model this session dispatches to.
func (s *Session) Model() string {
	return s.client.Model()
}

// Client exposes the underlying API client for auxiliary calls
// (model listing, status display).
func (s *Session) Client() *gemini.Client {
	return s.client
}

// ContextPercent reports how much of the context window the history uses.
func (s *Session) ContextPercent() float64 {
	return s.Conversation.ContextPercent()
}

// Close persists the transcript when persistence is enabled and the
// conversation has content.
func (s *Session) Close() error {
	if s.store == nil || s.Conversation.IsEmpty() {
		return nil
	}
	_, err := s.store.Save(storage.FromConversation(s.Conversation))
	return err
}
