// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"github.com/jeranaias/gemrun/internal/model"
)

// Part is a single piece of content within a conversation turn. The API
// supports other part kinds (inline data, function calls); this client only
// sends and reads text.
type Part struct {
	Text string `json:"text"`
}

// Content represents a single turn in the conversation wire format.
type Content struct {
	Role  string `json:"role"` // "user" or "model"
	Parts []Part `json:"parts"`
}

// NewUserContent creates a user turn with a single text part.
func NewUserContent(text string) Content {
	return Content{Role: "user", Parts: []Part{{Text: text}}}
}

// NewModelContent creates a model turn with a single text part.
func NewModelContent(text string) Content {
	return Content{Role: "model", Parts: []Part{{Text: text}}}
}

// ContentsFromMessages converts a conversation history into the wire format,
// preserving order. Messages with unknown roles are skipped.
func ContentsFromMessages(messages []model.Message) []Content {
	contents := make([]Content, 0, len(messages))
	for _, msg := range messages {
		if !msg.Role.Valid() {
			continue
		}
		contents = append(contents, Content{
			Role:  msg.Role.String(),
			Parts: []Part{{Text: msg.Content}},
		})
	}
	return contents
}

// generateRequest is the request body for the generateContent endpoint.
type generateRequest struct {
	Contents []Content `json:"contents"`
}

// SafetyRating is a per-category safety assessment attached to a candidate
// or to the prompt feedback.
type SafetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
}

// PromptFeedback reports why the API refused to answer a prompt. A non-empty
// BlockReason means no candidates were generated.
type PromptFeedback struct {
	BlockReason   string         `json:"blockReason,omitempty"`
	SafetyRatings []SafetyRating `json:"safetyRatings,omitempty"`
}

// Candidate is a single generated reply.
type Candidate struct {
	Content       Content        `json:"content"`
	FinishReason  string         `json:"finishReason,omitempty"`
	SafetyRatings []SafetyRating `json:"safetyRatings,omitempty"`
}

// UsageMetadata reports token accounting for a request.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// GenerateResponse represents a response from the generateContent endpoint.
type GenerateResponse struct {
	Candidates     []Candidate    `json:"candidates"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
	UsageMetadata  *UsageMetadata  `json:"usageMetadata,omitempty"`
}

// Text returns the text of the first candidate's first part, or empty string
// if the response carries no usable candidate.
func (r *GenerateResponse) Text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	parts := r.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return ""
	}
	return parts[0].Text
}

// TotalTokens returns the total token count reported by the API, or 0 if the
// response carries no usage metadata.
func (r *GenerateResponse) TotalTokens() int {
	if r.UsageMetadata == nil {
		return 0
	}
	return r.UsageMetadata.TotalTokenCount
}

// ModelInfo represents information about an available model.
type ModelInfo struct {
	Name             string `json:"name"`
	DisplayName      string `json:"displayName"`
	Description      string `json:"description"`
	InputTokenLimit  int    `json:"inputTokenLimit"`
	OutputTokenLimit int    `json:"outputTokenLimit"`
}

// modelsResponse is the internal response structure for listing models.
type modelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// apiErrorResponse represents an error response body from the API.
type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
