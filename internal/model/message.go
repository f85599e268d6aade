// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/morganforge/denali/internal/api"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
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
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE ID
// =============================================================================

// MessageID is a two-phase message identity. A message is born pending
// with a client-generated temp ID and settles to the server-assigned ID
// when the turn completes. The temp ID is never reused and never shown
// to the backend.
type MessageID struct {
	temp   string
	server string
}

// NewPendingID creates a fresh pending identity.
func NewPendingID() MessageID {
	return MessageID{temp: uuid.NewString()}
}

// SettledID creates an identity already settled to a server ID.
func SettledID(server string) MessageID {
	return MessageID{server: server}
}

// Settled reports whether the server has assigned this message an ID.
func (id MessageID) Settled() bool {
	return id.server != ""
}

// Server returns the server-assigned ID, or empty while pending.
func (id MessageID) Server() string {
	return id.server
}

// String returns a stable display form for either phase.
func (id MessageID) String() string {
	if id.Settled() {
		return id.server
	}
	return "tmp_" + id.temp
}

// =============================================================================
// CHAT MESSAGE
// =============================================================================

// ChatMessage is a single message in a conversation transcript.
type ChatMessage struct {
	ID         MessageID
	Role       Role
	Content    string
	Sources    []string
	Confidence *api.Confidence
	CreatedAt  time.Time

	// Streaming state (assistant messages only)
	// PERFORMANCE: strings.Builder avoids quadratic allocations while
	// tokens arrive.
	Streaming bool
	streamBuf strings.Builder

	// Failed marks a turn that ended in an error.
	Failed bool
}

// NewUserMessage creates a pending user message.
func NewUserMessage(content string) *ChatMessage {
	return &ChatMessage{
		ID:        NewPendingID(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewStreamingAssistantMessage creates a pending assistant message that
// accumulates tokens.
func NewStreamingAssistantMessage() *ChatMessage {
	return &ChatMessage{
		ID:        NewPendingID(),
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
		Streaming: true,
	}
}

// AppendToken appends a token to a streaming message.
func (m *ChatMessage) AppendToken(token string) {
	if m.Streaming {
		m.streamBuf.WriteString(token)
	}
}

// FinalizeStream merges the streamed tokens into Content and ends the
// streaming phase.
func (m *ChatMessage) FinalizeStream() {
	if !m.Streaming {
		return
	}
	m.Content = m.streamBuf.String()
	m.streamBuf.Reset()
	m.Streaming = false
}

// DisplayContent returns the content to render, live buffer included
// while streaming.
func (m *ChatMessage) DisplayContent() string {
	if m.Streaming {
		return m.streamBuf.String()
	}
	return m.Content
}

// IsEmpty returns true if the message has no content yet.
func (m *ChatMessage) IsEmpty() bool {
	return len(m.Content) == 0 && m.streamBuf.Len() == 0
}

// Preview returns a truncated single-line preview of the content.
func (m *ChatMessage) Preview(maxRunes int) string {
	content := strings.ReplaceAll(m.DisplayContent(), "\n", " ")
	runes := []rune(content)
	if len(runes) <= maxRunes {
		return content
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}
