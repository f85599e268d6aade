// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-runewidth"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// renderMarkdown renders a settled assistant answer through glamour.
// The renderer is cached and rebuilt only when the viewport width
// changes; on any rendering failure the raw text is shown instead.
func (m *Model) renderMarkdown(content string) string {
	width := m.viewport.Width - 2
	if width < 20 {
		width = 20
	}

	if m.mdRenderer == nil || m.mdWidth != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return content
		}
		m.mdRenderer = r
		m.mdWidth = width
	}

	out, err := m.mdRenderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

// =============================================================================
// TEXT HELPERS
// =============================================================================

// truncateTitle fits a chat title to the sidebar, accounting for
// double-width runes.
func truncateTitle(title string, width int) string {
	if width <= 0 {
		return ""
	}
	title = strings.ReplaceAll(title, "\n", " ")
	if runewidth.StringWidth(title) <= width {
		return title
	}
	return runewidth.Truncate(title, width, "…")
}
