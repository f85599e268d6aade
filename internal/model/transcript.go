// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"golang.org/x/text/cases"

	"github.com/morganforge/denali/internal/api"
)

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript is the ordered message history of one conversation as the
// client currently believes it to be, optimistic entries included.
type Transcript struct {
	ChatID   string
	messages []*ChatMessage
}

// NewTranscript creates an empty transcript for a chat.
func NewTranscript(chatID string) *Transcript {
	return &Transcript{ChatID: chatID}
}

// FromHistory builds a transcript from the backend's stored messages.
// Everything from the server is already settled.
func FromHistory(chatID string, history []api.Message) *Transcript {
	t := NewTranscript(chatID)
	for _, msg := range history {
		t.messages = append(t.messages, &ChatMessage{
			ID:        SettledID(msg.ID),
			Role:      Role(msg.Role),
			Content:   msg.Content,
			Sources:   DedupSources(msg.Sources),
			CreatedAt: msg.CreatedAt,
		})
	}
	return t
}

// Append adds a message to the end of the transcript.
func (t *Transcript) Append(msg *ChatMessage) {
	t.messages = append(t.messages, msg)
}

// Messages returns the transcript in order. The slice is shared; callers
// must not mutate it.
func (t *Transcript) Messages() []*ChatMessage {
	return t.messages
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// Last returns the most recent message, or nil when empty.
func (t *Transcript) Last() *ChatMessage {
	if len(t.messages) == 0 {
		return nil
	}
	return t.messages[len(t.messages)-1]
}

// ByID finds a message by identity, pending or settled.
func (t *Transcript) ByID(id MessageID) *ChatMessage {
	for _, msg := range t.messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// ByServerID finds a settled message by its server ID.
func (t *Transcript) ByServerID(server string) *ChatMessage {
	for _, msg := range t.messages {
		if msg.ID.Settled() && msg.ID.Server() == server {
			return msg
		}
	}
	return nil
}

// =============================================================================
// SOURCE DEDUPLICATION
// =============================================================================

// DedupSources removes case-insensitive duplicates from a source list,
// keeping order of first appearance and the casing seen first.
// UNICODE: case folding, not ASCII lowering, so "RÉSUMÉ.pdf" and
// "résumé.pdf" collapse correctly.
func DedupSources(sources []string) []string {
	if len(sources) == 0 {
		return nil
	}

	folder := cases.Fold()
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, src := range sources {
		if src == "" {
			continue
		}
		key := folder.String(src)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, src)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
