// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/jeranaias/gemrun/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message. The Gemini API uses "user"
// and "model" as its role vocabulary; these values go onto the wire
// unchanged.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleModel:
		return "Gemini"
	default:
		return string(r)
	}
}

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation. Messages are
// immutable once created; edits happen by appending new messages.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Content string `json:"content"`

	// Token statistics (reported by the API for model messages,
	// estimated otherwise)
	TokenCount int `json:"token_count,omitempty"`

	// Generation time for model messages
	Duration time.Duration `json:"duration_ns,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        generateID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewModelMessage creates a new model message.
func NewModelMessage(content string) Message {
	return NewMessage(RoleModel, content)
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Preview returns a one-line truncated preview of the message content.
func (m Message) Preview(maxLen int) string {
	return util.TruncateRunes(util.CollapseWhitespace(m.Content), maxLen)
}

// IsEmpty returns true if the message has no content.
func (m Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// EstimateTokens gives a rough estimate of token count using the
// approximation of ~4 characters per token.
func (m Message) EstimateTokens() int {
	if m.TokenCount > 0 {
		return m.TokenCount
	}
	return (len(m.Content) + 3) / 4
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateID creates a unique message ID.
func generateID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "msg_" + hex.EncodeToString(bytes)
}
