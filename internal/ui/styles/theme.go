// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the denali TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// LAYOUT STYLES
	// ==========================================================================

	Header    lipgloss.Style
	StatusBar lipgloss.Style

	// ==========================================================================
	// SIDEBAR STYLES
	// ==========================================================================

	Sidebar         lipgloss.Style
	SidebarTitle    lipgloss.Style
	SidebarItem     lipgloss.Style
	SidebarSelected lipgloss.Style
	SidebarDim      lipgloss.Style

	// ==========================================================================
	// MESSAGE STYLES
	// ==========================================================================

	UserBubble      lipgloss.Style
	AssistantBubble lipgloss.Style
	FailedBubble    lipgloss.Style
	RoleLabel       lipgloss.Style
	SourceTag       lipgloss.Style

	// ==========================================================================
	// CONFIDENCE BADGES
	// ==========================================================================

	ConfidenceHigh   lipgloss.Style
	ConfidenceMedium lipgloss.Style
	ConfidenceLow    lipgloss.Style

	// ==========================================================================
	// INPUT AND FEEDBACK STYLES
	// ==========================================================================

	InputContainer lipgloss.Style
	Spinner        lipgloss.Style
	ErrorBox       lipgloss.Style
	HelpKey        lipgloss.Style
	HelpDesc       lipgloss.Style
}

// New creates a theme adapted to the current terminal.
func New() *Theme {
	output := termenv.DefaultOutput()
	isDark := output.HasDarkBackground()

	accent := lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
	subtle := lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	danger := lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	good := lipgloss.AdaptiveColor{Light: "#047857", Dark: "#34D399"}
	warn := lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}

	return &Theme{
		IsDark:       isDark,
		ColorProfile: output.Profile,

		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent).
			Padding(0, 1),
		StatusBar: lipgloss.NewStyle().
			Foreground(subtle).
			Padding(0, 1),

		Sidebar: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(subtle).
			Padding(0, 1),
		SidebarTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),
		SidebarItem: lipgloss.NewStyle().
			Foreground(subtle),
		SidebarSelected: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),
		SidebarDim: lipgloss.NewStyle().
			Faint(true).
			Foreground(subtle),

		UserBubble: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#111827", Dark: "#F9FAFB"}),
		AssistantBubble: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#374151", Dark: "#E5E7EB"}),
		FailedBubble: lipgloss.NewStyle().
			Foreground(danger),
		RoleLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),
		SourceTag: lipgloss.NewStyle().
			Faint(true).
			Foreground(subtle),

		ConfidenceHigh:   lipgloss.NewStyle().Foreground(good),
		ConfidenceMedium: lipgloss.NewStyle().Foreground(warn),
		ConfidenceLow:    lipgloss.NewStyle().Foreground(danger),

		InputContainer: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(subtle),
		Spinner: lipgloss.NewStyle().
			Foreground(accent),
		ErrorBox: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(danger).
			Foreground(danger).
			Padding(0, 1),
		HelpKey: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),
		HelpDesc: lipgloss.NewStyle().
			Foreground(subtle),
	}
}

// Confidence returns the badge style for a confidence level.
func (t *Theme) Confidence(level string) lipgloss.Style {
	switch level {
	case "high":
		return t.ConfidenceHigh
	case "medium":
		return t.ConfidenceMedium
	default:
		return t.ConfidenceLow
	}
}
