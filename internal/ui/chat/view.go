// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/morganforge/denali/internal/model"
)

// Fixed chrome heights used by the resize math.
const (
	headerHeight = 1
	inputHeight  = 2
	statusHeight = 1
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the full screen: header, sidebar beside the transcript
// viewport, then the input line and status bar.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.theme.Header.Render("Denali")

	sidebar := m.renderSidebar()
	transcript := m.viewport.View()
	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, transcript)

	input := m.theme.InputContainer.Width(m.width).Render(m.input.View())
	status := m.renderStatusBar()

	return lipgloss.JoinVertical(lipgloss.Left, header, body, input, status)
}

// =============================================================================
// SIDEBAR
// =============================================================================

// sidebarWidth returns the rendered sidebar width including its border.
func (m *Model) sidebarWidth() int {
	w := m.cfg.TitleWidth + 4
	if w > m.width/3 {
		w = m.width / 3
	}
	return w
}

func (m *Model) renderSidebar() string {
	var b strings.Builder
	b.WriteString(m.theme.SidebarTitle.Render("Chats"))
	b.WriteString("\n\n")

	if len(m.chats) == 0 {
		b.WriteString(m.theme.SidebarDim.Render("No chats yet"))
	}

	innerWidth := m.sidebarWidth() - 4
	for i, chat := range m.chats {
		title := truncateTitle(chat.Title, innerWidth)
		style := m.theme.SidebarItem
		prefix := "  "
		if i == m.selected && m.focus == focusSidebar {
			style = m.theme.SidebarSelected
			prefix = "> "
		} else if chat.ID == m.activeChat {
			style = m.theme.SidebarSelected
		}
		b.WriteString(style.Render(prefix + title))
		b.WriteString("\n")
	}

	height := m.height - headerHeight - inputHeight - statusHeight
	return m.theme.Sidebar.
		Width(m.sidebarWidth() - 1).
		Height(height).
		Render(b.String())
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// refreshViewport re-renders the active transcript into the viewport.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	msgs := m.activeMessages()
	if len(msgs) == 0 {
		m.viewport.SetContent(m.theme.SidebarDim.Render(
			"Ask a question to start a new conversation."))
		return
	}

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
}

// renderMessage renders one message with its role label and, for
// assistant answers, the source list and confidence badge.
func (m *Model) renderMessage(msg model.MessageView) string {
	var b strings.Builder
	b.WriteString(m.theme.RoleLabel.Render(msg.Role.DisplayName()))
	if msg.Streaming {
		b.WriteString(" " + m.spinner.View())
	}
	b.WriteString("\n")

	body := msg.Content
	switch {
	case msg.Failed:
		b.WriteString(m.theme.FailedBubble.Render(body))
	case msg.Role == model.RoleUser:
		b.WriteString(m.theme.UserBubble.Render(body))
	case !msg.Streaming && m.cfg.RenderMarkdown:
		b.WriteString(m.renderMarkdown(body))
	default:
		b.WriteString(m.theme.AssistantBubble.Render(body))
	}

	if len(msg.Sources) > 0 {
		b.WriteString("\n")
		b.WriteString(m.theme.SourceTag.Render("Sources: " + strings.Join(msg.Sources, ", ")))
	}
	if msg.Confidence != nil {
		b.WriteString("\n")
		badge := "Confidence: " + msg.Confidence.Level
		b.WriteString(m.theme.Confidence(msg.Confidence.Level).Render(badge))
	}
	return b.String()
}

// =============================================================================
// STATUS BAR
// =============================================================================

func (m *Model) renderStatusBar() string {
	if m.lastErr != nil {
		return m.theme.StatusBar.Render(
			m.theme.FailedBubble.Render("Error: " + m.lastErr.Error()))
	}

	var parts []string
	if m.streaming {
		parts = append(parts, m.spinner.View()+" answering, esc to cancel")
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	parts = append(parts,
		m.theme.HelpKey.Render("tab")+m.theme.HelpDesc.Render(" chats"),
		m.theme.HelpKey.Render("ctrl+n")+m.theme.HelpDesc.Render(" new"),
		m.theme.HelpKey.Render("ctrl+y/x")+m.theme.HelpDesc.Render(" rate"),
		m.theme.HelpKey.Render("ctrl+q")+m.theme.HelpDesc.Render(" logout"),
	)
	return m.theme.StatusBar.Render(strings.Join(parts, "  "))
}
