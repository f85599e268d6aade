// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/morganforge/denali/internal/model"
)

// requestTimeout bounds the non-streaming commands issued from the UI.
const requestTimeout = 30 * time.Second

// =============================================================================
// BACKGROUND COMMANDS
// =============================================================================

// loadChatsCmd fetches the sidebar chat list.
func (m *Model) loadChatsCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		chats, err := m.client.ListChats(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return chatsLoadedMsg{chats: chats}
	}
}

// openChatCmd loads a chat's history into the reconciler.
func (m *Model) openChatCmd(chatID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		detail, err := m.client.GetChat(ctx, chatID)
		if err != nil {
			return errMsg{err: err}
		}
		if err := m.reconciler.LoadHistory(chatID, detail.Messages); err != nil {
			// A turn is streaming into this chat; the live transcript wins.
			return historyLoadedMsg{chatID: chatID}
		}
		return historyLoadedMsg{chatID: chatID}
	}
}

// newChatCmd creates a conversation titled after the first question.
func (m *Model) newChatCmd(title string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		chat, err := m.client.CreateChat(ctx, title)
		if err != nil {
			return errMsg{err: err}
		}
		return chatCreatedMsg{chat: chat}
	}
}

// deleteChatCmd removes a conversation.
func (m *Model) deleteChatCmd(chatID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if err := m.client.DeleteChat(ctx, chatID); err != nil {
			return errMsg{err: err}
		}
		m.reconciler.DropTranscript(chatID)
		return chatDeletedMsg{chatID: chatID}
	}
}

// submitTurnCmd runs one streaming turn to completion. Token-by-token
// updates arrive separately through TranscriptChangedMsg; this command
// resolves when the turn settles.
func (m *Model) submitTurnCmd(chatID string, content string) tea.Cmd {
	return func() tea.Msg {
		// The turn's lifetime is governed by the stream's idle watchdog
		// and explicit cancellation, not a request timeout.
		err := m.reconciler.SubmitTurn(context.Background(), chatID, content)
		return turnFinishedMsg{chatID: chatID, err: err}
	}
}

// feedbackCmd records whether the last answer helped.
func (m *Model) feedbackCmd(messageID string, helpful bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if err := m.client.SubmitFeedback(ctx, messageID, helpful, ""); err != nil {
			return errMsg{err: err}
		}
		return feedbackSentMsg{messageID: messageID, helpful: helpful}
	}
}

// logoutCmd ends the session and quits.
func (m *Model) logoutCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		_ = m.session.Logout(ctx)
		return tea.Quit()
	}
}

// deriveTitle derives a sidebar title from the first question.
func deriveTitle(content string, maxRunes int) string {
	return model.NewUserMessage(content).Preview(maxRunes)
}
