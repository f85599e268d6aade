// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/morganforge/denali/internal/api"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update handles all incoming messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	// =========================================================================
	// BACKGROUND RESULTS
	// =========================================================================

	case chatsLoadedMsg:
		m.chats = msg.chats
		if m.selected >= len(m.chats) {
			m.selected = max(0, len(m.chats)-1)
		}
		return m, nil

	case chatCreatedMsg:
		// Newest chat goes first, matching server ordering.
		m.chats = append([]api.Chat{msg.chat}, m.chats...)
		m.selected = 0
		m.activeChat = msg.chat.ID
		m.lastErr = nil
		// A question may be waiting on this lazy creation.
		if content := m.pendingContent; content != "" {
			m.pendingContent = ""
			m.streaming = true
			return m, m.submitTurnCmd(msg.chat.ID, content)
		}
		return m, nil

	case chatDeletedMsg:
		if i := m.chatIndex(msg.chatID); i >= 0 {
			m.chats = append(m.chats[:i], m.chats[i+1:]...)
		}
		if m.selected >= len(m.chats) {
			m.selected = max(0, len(m.chats)-1)
		}
		if m.activeChat == msg.chatID {
			m.activeChat = ""
			m.streaming = false
			m.refreshViewport()
		}
		return m, nil

	case historyLoadedMsg:
		if msg.chatID == m.activeChat {
			m.refreshViewport()
			m.viewport.GotoBottom()
		}
		return m, nil

	case TranscriptChangedMsg:
		if msg.ChatID == m.activeChat {
			atBottom := m.viewport.AtBottom()
			m.refreshViewport()
			if atBottom {
				m.viewport.GotoBottom()
			}
		}
		return m, nil

	case turnFinishedMsg:
		if msg.chatID == m.activeChat {
			m.streaming = false
			m.refreshViewport()
			m.viewport.GotoBottom()
		}
		if msg.err != nil {
			m.lastErr = msg.err
		}
		// Titles and timestamps may have moved; refresh the sidebar.
		return m, m.loadChatsCmd()

	case feedbackSentMsg:
		if msg.helpful {
			m.status = "Feedback recorded: helpful"
		} else {
			m.status = "Feedback recorded: not helpful"
		}
		return m, nil

	case SessionLostMsg:
		return m, tea.Quit

	case ConfigReloadedMsg:
		m.cfg = msg.Config.UI
		m.refreshViewport()
		return m, nil

	case errMsg:
		m.lastErr = msg.err
		return m, nil
	}

	return m, nil
}

// handleResize lays the panes out for a new terminal size.
func (m *Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	vpWidth := msg.Width - m.sidebarWidth() - 1
	vpHeight := msg.Height - headerHeight - inputHeight - statusHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(vpWidth, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = vpWidth
		m.viewport.Height = vpHeight
	}
	m.input.Width = msg.Width - 4

	m.refreshViewport()
	return m, nil
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "ctrl+q":
		return m, m.logoutCmd()

	case "tab":
		if m.focus == focusInput {
			m.focus = focusSidebar
			m.input.Blur()
		} else {
			m.focus = focusInput
			m.input.Focus()
		}
		return m, nil

	case "ctrl+n":
		// Start a blank conversation; it is created on the first question.
		m.activeChat = ""
		m.streaming = false
		m.lastErr = nil
		m.focus = focusInput
		m.input.Focus()
		m.refreshViewport()
		return m, nil

	case "esc":
		if m.streaming && m.activeChat != "" {
			m.reconciler.CancelTurn(m.activeChat)
		}
		return m, nil

	case "ctrl+y", "ctrl+x":
		return m.handleFeedback(msg.String() == "ctrl+y")
	}

	if m.focus == focusSidebar {
		return m.handleSidebarKey(msg)
	}
	return m.handleInputKey(msg)
}

func (m *Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.chats)-1 {
			m.selected++
		}
	case "enter":
		if m.selected < len(m.chats) {
			chat := m.chats[m.selected]
			m.activeChat = chat.ID
			m.streaming = m.reconciler.InFlight(chat.ID)
			m.lastErr = nil
			m.focus = focusInput
			m.input.Focus()
			return m, m.openChatCmd(chat.ID)
		}
	case "ctrl+d", "delete":
		if m.selected < len(m.chats) {
			return m, m.deleteChatCmd(m.chats[m.selected].ID)
		}
	}
	return m, nil
}

func (m *Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return m.handleSubmit()
	case "up", "down", "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleSubmit sends the typed question as a turn, creating the chat
// first when none is open.
func (m *Model) handleSubmit() (tea.Model, tea.Cmd) {
	content := strings.TrimSpace(m.input.Value())
	if content == "" {
		return m, nil
	}
	if m.activeChat != "" && m.reconciler.InFlight(m.activeChat) {
		m.status = "Wait for the current answer to finish"
		return m, nil
	}

	m.input.Reset()
	m.lastErr = nil
	m.status = ""

	if m.activeChat == "" {
		m.pendingContent = content
		return m, m.newChatCmd(deriveTitle(content, m.cfg.TitleWidth))
	}

	m.streaming = true
	return m, m.submitTurnCmd(m.activeChat, content)
}

// handleFeedback rates the most recent settled assistant answer.
func (m *Model) handleFeedback(helpful bool) (tea.Model, tea.Cmd) {
	msgs := m.activeMessages()
	if len(msgs) == 0 {
		return m, nil
	}
	last := msgs[len(msgs)-1]
	if !last.ID.Settled() || last.Failed {
		return m, nil
	}
	return m, m.feedbackCmd(last.ID.Server(), helpful)
}
