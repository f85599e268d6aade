// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/morganforge/denali/internal/api"
	"github.com/morganforge/denali/internal/config"
	"github.com/morganforge/denali/internal/model"
	"github.com/morganforge/denali/internal/session"
	"github.com/morganforge/denali/internal/ui/styles"
)

// =============================================================================
// FOCUS
// =============================================================================

// focusArea tracks which pane receives key input.
type focusArea int

const (
	focusInput focusArea = iota
	focusSidebar
)

// =============================================================================
// MODEL
// =============================================================================

// Model is the root bubbletea model for the chat screen.
type Model struct {
	client     *api.Client
	session    *session.Manager
	reconciler *model.Reconciler
	theme      *styles.Theme
	cfg        config.UIConfig

	// Components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	// Cached glamour renderer, rebuilt on width change.
	mdRenderer *glamour.TermRenderer
	mdWidth    int

	// Chat list
	chats    []api.Chat
	selected int
	// activeChat is the open conversation; empty means none yet. The
	// first submitted question creates the chat lazily.
	activeChat string

	// pendingContent holds a question waiting on lazy chat creation.
	pendingContent string

	focus     focusArea
	streaming bool
	lastErr   error
	status    string

	width  int
	height int
	ready  bool
}

// New creates the chat screen model.
func New(client *api.Client, sess *session.Manager, rec *model.Reconciler, cfg config.UIConfig) *Model {
	theme := styles.New()

	input := textinput.New()
	input.Placeholder = "Ask the assistant..."
	input.CharLimit = 4000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	return &Model{
		client:     client,
		session:    sess,
		reconciler: rec,
		theme:      theme,
		cfg:        cfg,
		input:      input,
		spinner:    sp,
		focus:      focusInput,
	}
}

// Init loads the chat list on startup.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadChatsCmd(), m.spinner.Tick)
}

// activeMessages returns a render snapshot of the open chat, or nil.
// The copy is taken under the reconciler's lock, so rendering never
// races a streaming turn.
func (m *Model) activeMessages() []model.MessageView {
	if m.activeChat == "" {
		return nil
	}
	return m.reconciler.Snapshot(m.activeChat)
}

// chatIndex finds the sidebar index of a chat ID, or -1.
func (m *Model) chatIndex(chatID string) int {
	for i, c := range m.chats {
		if c.ID == chatID {
			return i
		}
	}
	return -1
}
