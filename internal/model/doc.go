// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types used throughout gemrun for
// representing a chat conversation and the messages it holds.
//
// # Key Types
//
//   - Conversation: Ordered history of a chat session, replayed as
//     context on every request to the model endpoint
//   - Message: Single message with role, content, and timestamp
//   - Role: Message role enumeration (user, model)
//
// # Usage
//
// Create a conversation and append turns:
//
//	conv := model.NewConversation()
//	conv.Append(model.NewUserMessage("Hello!"))
//	history := conv.Snapshot()
//
// The conversation is intended for use from a single goroutine; the
// chat loop owns it for the lifetime of a session.
package model
