// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/morganforge/denali/internal/api"
	"github.com/morganforge/denali/internal/config"
)

// =============================================================================
// BUBBLE TEA MESSAGES
// =============================================================================

// TranscriptChangedMsg is sent from the reconciler's change callback when
// any transcript mutates (token arrival, settle, failure).
type TranscriptChangedMsg struct {
	ChatID string
}

// SessionLostMsg is sent when the session manager purges credentials:
// the user has to log in again.
type SessionLostMsg struct{}

// ConfigReloadedMsg carries a hot-reloaded configuration.
type ConfigReloadedMsg struct {
	Config config.Config
}

// chatsLoadedMsg delivers the sidebar chat list.
type chatsLoadedMsg struct {
	chats []api.Chat
}

// chatCreatedMsg delivers a freshly created chat.
type chatCreatedMsg struct {
	chat api.Chat
}

// chatDeletedMsg confirms a chat deletion.
type chatDeletedMsg struct {
	chatID string
}

// historyLoadedMsg confirms a chat's history is in the reconciler.
type historyLoadedMsg struct {
	chatID string
}

// turnFinishedMsg reports a settled turn. err is nil on success; in-flight
// display state is torn down either way.
type turnFinishedMsg struct {
	chatID string
	err    error
}

// feedbackSentMsg confirms a feedback submission.
type feedbackSentMsg struct {
	messageID string
	helpful   bool
}

// errMsg reports a failed background operation.
type errMsg struct {
	err error
}
