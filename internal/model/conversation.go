// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// ErrEmptyMessage is returned when appending a message with no content.
var ErrEmptyMessage = errors.New("message content is empty")

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds an ordered, append-only chat history together
// with session metadata. The history is replayed as context on every
// outbound request, so insertion order is significant.
//
// A Conversation belongs to exactly one chat session and is accessed
// from a single goroutine.
type Conversation struct {
	// Identity
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages, oldest first
	Messages []Message `json:"messages"`

	// Model configuration
	Model string `json:"model"`

	// Context tracking
	TokensUsed int `json:"tokens_used"`
	MaxTokens  int `json:"max_tokens"`
}

// NewConversation creates a new conversation with a generated ID.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        generateConversationID(),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]Message, 0),
	}
}

// NewConversationWithModel creates a new conversation bound to a model.
func NewConversationWithModel(modelName string) *Conversation {
	conv := NewConversation()
	conv.Model = modelName
	return conv
}

// =============================================================================
// HISTORY OPERATIONS
// =============================================================================

// Append adds a message to the end of the history. The only validation
// is non-empty content; user/model alternation is the expected usage
// pattern but is not enforced.
func (c *Conversation) Append(msg Message) error {
	if strings.TrimSpace(msg.Content) == "" {
		return ErrEmptyMessage
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	c.TokensUsed = c.EstimateTokens()
	c.updateTitle()
	return nil
}

// AppendUser creates and appends a user message.
func (c *Conversation) AppendUser(content string) error {
	return c.Append(NewUserMessage(content))
}

// AppendModel creates and appends a model message.
func (c *Conversation) AppendModel(content string) error {
	return c.Append(NewModelMessage(content))
}

// Snapshot returns the full ordered history as a copy. The caller may
// serialize it into a request without affecting the conversation.
func (c *Conversation) Snapshot() []Message {
	out := make([]Message, len(c.Messages))
	copy(out, c.Messages)
	return out
}

// Clear removes all messages from the conversation. Used in response
// to an explicit user reset command.
func (c *Conversation) Clear() {
	c.Messages = make([]Message, 0)
	c.TokensUsed = 0
	c.UpdatedAt = time.Now()
}

// LastMessage returns the most recent message, or a zero Message and
// false if the history is empty.
func (c *Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// TOKEN TRACKING
// =============================================================================

// EstimateTokens estimates the total token count of the history using
// the ~4 chars/token approximation plus a small per-message overhead
// for the request structure.
func (c *Conversation) EstimateTokens() int {
	total := 0
	for _, msg := range c.Messages {
		total += msg.EstimateTokens() + 4
	}
	return total
}

// ContextPercent returns the share of the context window in use, or 0
// if no window is configured.
func (c *Conversation) ContextPercent() float64 {
	if c.MaxTokens <= 0 {
		return 0
	}
	return float64(c.TokensUsed) / float64(c.MaxTokens) * 100
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// updateTitle auto-generates a title from the first user message if not set.
func (c *Conversation) updateTitle() {
	if c.Title != "" {
		return
	}
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			c.Title = msg.Preview(50)
			return
		}
	}
}

// GetTitle returns the conversation title or a default.
func (c *Conversation) GetTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "New Conversation"
}

// Preview returns a short one-line preview of the conversation.
func (c *Conversation) Preview() string {
	if len(c.Messages) == 0 {
		return "Empty conversation"
	}
	return c.Messages[0].Preview(100)
}

// =============================================================================
// METADATA
// =============================================================================

// ConversationMeta holds lightweight metadata for listing.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Preview      string    `json:"preview"`
}

// Meta returns metadata about the conversation.
func (c *Conversation) Meta() ConversationMeta {
	return ConversationMeta{
		ID:           c.ID,
		Title:        c.GetTitle(),
		Model:        c.Model,
		MessageCount: len(c.Messages),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Preview:      c.Preview(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateConversationID creates a unique conversation ID.
func generateConversationID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "conv_" + hex.EncodeToString(bytes)
}
