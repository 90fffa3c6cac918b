// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/gemrun/internal/config"
	"github.com/jeranaias/gemrun/internal/model"
	"github.com/jeranaias/gemrun/internal/util"
)

// ErrNotFound is returned when a transcript does not exist.
var ErrNotFound = errors.New("conversation not found")

// =============================================================================
// STORED TRANSCRIPT TYPES
// =============================================================================

// StoredConversation is the on-disk form of a transcript.
type StoredConversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []StoredMessage `json:"messages"`

	TokensUsed int `json:"tokens_used,omitempty"`
}

// StoredMessage is the on-disk form of a single turn.
type StoredMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" or "model"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	TokenCount int   `json:"token_count,omitempty"`
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// FromConversation converts an in-memory conversation for persistence.
func FromConversation(conv *model.Conversation) *StoredConversation {
	stored := &StoredConversation{
		ID:         conv.ID,
		Title:      conv.GetTitle(),
		Model:      conv.Model,
		CreatedAt:  conv.CreatedAt,
		UpdatedAt:  conv.UpdatedAt,
		TokensUsed: conv.TokensUsed,
		Messages:   make([]StoredMessage, 0, len(conv.Messages)),
	}
	for _, msg := range conv.Snapshot() {
		stored.Messages = append(stored.Messages, StoredMessage{
			ID:         msg.ID,
			Role:       msg.Role.String(),
			Content:    msg.Content,
			Timestamp:  msg.Timestamp,
			TokenCount: msg.TokenCount,
			DurationMs: msg.Duration.Milliseconds(),
		})
	}
	return stored
}

// ToConversation restores an in-memory conversation from its stored form.
func (c *StoredConversation) ToConversation() *model.Conversation {
	conv := model.NewConversationWithModel(c.Model)
	conv.ID = c.ID
	conv.Title = c.Title
	conv.CreatedAt = c.CreatedAt
	conv.UpdatedAt = c.UpdatedAt
	conv.TokensUsed = c.TokensUsed
	for _, msg := range c.Messages {
		conv.Messages = append(conv.Messages, model.Message{
			ID:         msg.ID,
			Role:       model.Role(msg.Role),
			Content:    msg.Content,
			Timestamp:  msg.Timestamp,
			TokenCount: msg.TokenCount,
			Duration:   time.Duration(msg.DurationMs) * time.Millisecond,
		})
	}
	return conv
}

// MessageCount returns the number of stored turns.
func (c *StoredConversation) MessageCount() int {
	return len(c.Messages)
}

// Preview returns the first user message, truncated for listings.
func (c *StoredConversation) Preview() string {
	for _, msg := range c.Messages {
		if msg.Role == "user" && msg.Content != "" {
			return util.TruncateRunes(util.CollapseWhitespace(msg.Content), 80)
		}
	}
	return ""
}

// ExportMarkdown renders the transcript as a markdown document.
func (c *StoredConversation) ExportMarkdown() string {
	var sb strings.Builder
	sb.WriteString("# " + c.Title + "\n\n")
	sb.WriteString(fmt.Sprintf("Model: %s  \nCreated: %s\n\n", c.Model, c.CreatedAt.Format(time.RFC3339)))
	for _, msg := range c.Messages {
		name := model.Role(msg.Role).DisplayName()
		sb.WriteString("## " + name + "\n\n")
		sb.WriteString(msg.Content + "\n\n")
	}
	return sb.String()
}

// ConversationMeta contains metadata for listing transcripts.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
}

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// ConversationStore handles transcript persistence.
type ConversationStore struct {
	// BaseDir is the directory holding transcript files.
	BaseDir string

	// MaxConversations limits stored transcripts (0 = unlimited).
	MaxConversations int
}

// NewConversationStore creates a store rooted at the configured
// conversations directory.
func NewConversationStore() (*ConversationStore, error) {
	baseDir, err := config.ConversationsDir()
	if err != nil {
		return nil, err
	}
	return NewConversationStoreWithDir(baseDir)
}

// NewConversationStoreWithDir creates a store with a custom directory.
func NewConversationStoreWithDir(baseDir string) (*ConversationStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &ConversationStore{
		BaseDir:          baseDir,
		MaxConversations: 50,
	}, nil
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// Save persists a transcript and returns its ID.
func (s *ConversationStore) Save(conv *StoredConversation) (string, error) {
	if conv.ID == "" {
		return "", errors.New("conversation has no ID")
	}
	if conv.Title == "" {
		conv.Title = conv.Preview()
	}

	conv.UpdatedAt = time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return "", err
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(s.filePath(conv.ID), data, 0644); err != nil {
		return "", err
	}

	if s.MaxConversations > 0 {
		s.enforceLimit()
	}

	return conv.ID, nil
}

// enforceLimit removes the oldest transcripts when over the cap.
func (s *ConversationStore) enforceLimit() {
	metas, err := s.List()
	if err != nil || len(metas) <= s.MaxConversations {
		return
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.Before(metas[j].UpdatedAt)
	})

	excess := len(metas) - s.MaxConversations
	for i := 0; i < excess; i++ {
		s.Delete(metas[i].ID)
	}
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// Load retrieves a transcript by ID.
func (s *ConversationStore) Load(id string) (*StoredConversation, error) {
	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var conv StoredConversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// LoadByIndex loads a transcript by its position in the listing
// (0 = most recent).
func (s *ConversationStore) LoadByIndex(index int) (*StoredConversation, error) {
	metas, err := s.List()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(metas) {
		return nil, ErrNotFound
	}
	return s.Load(metas[index].ID)
}

// List returns metadata for all saved transcripts, most recent first.
// Corrupted files are skipped rather than failing the whole listing.
func (s *ConversationStore) List() ([]ConversationMeta, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []ConversationMeta{}, nil
		}
		return nil, err
	}

	var metas []ConversationMeta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")
		conv, err := s.Load(id)
		if err != nil {
			continue
		}

		metas = append(metas, ConversationMeta{
			ID:           conv.ID,
			Title:        conv.Title,
			Model:        conv.Model,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
			MessageCount: conv.MessageCount(),
			Preview:      conv.Preview(),
		})
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Search finds transcripts whose title or preview matches the query.
func (s *ConversationStore) Search(query string) ([]ConversationMeta, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var results []ConversationMeta
	for _, meta := range all {
		if strings.Contains(strings.ToLower(meta.Title), query) ||
			strings.Contains(strings.ToLower(meta.Preview), query) {
			results = append(results, meta)
		}
	}
	return results, nil
}

// =============================================================================
// DELETE OPERATIONS
// =============================================================================

// Delete removes a transcript by ID.
func (s *ConversationStore) Delete(id string) error {
	if err := os.Remove(s.filePath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Clear removes all saved transcripts.
func (s *ConversationStore) Clear() error {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			os.Remove(filepath.Join(s.BaseDir, entry.Name()))
		}
	}
	return nil
}

// filePath returns the file path for a transcript ID.
func (s *ConversationStore) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}
