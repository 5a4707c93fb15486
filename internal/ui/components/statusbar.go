// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/strand/internal/ui/styles"
)

// =============================================================================
// STATUS BAR
// =============================================================================

// StatusBar renders the bottom status line: model, enabled tools,
// chat state, and key hints.
type StatusBar struct {
	Model  string
	Tools  []string
	State  string
	Notice string
	Width  int
	theme  *styles.Theme
}

// NewStatusBar creates a status bar.
func NewStatusBar(theme *styles.Theme) *StatusBar {
	return &StatusBar{Width: 80, theme: theme}
}

// SetWidth sets the bar width.
func (s *StatusBar) SetWidth(width int) {
	s.Width = width
}

// View renders the status bar.
func (s *StatusBar) View() string {
	var left []string

	if s.Model != "" {
		left = append(left, s.theme.ModelName.Render(s.Model))
	}
	if len(s.Tools) > 0 {
		left = append(left, s.theme.ToolBadge.Render("["+strings.Join(s.Tools, " ")+"]"))
	}
	if s.State != "" && s.State != "idle" {
		left = append(left, lipgloss.NewStyle().Foreground(styles.Amber).Render(s.State))
	}
	if s.Notice != "" {
		left = append(left, lipgloss.NewStyle().Foreground(styles.TextMuted).Render(s.Notice))
	}

	leftView := strings.Join(left, "  ")
	rightView := s.theme.ShortcutKey.Render("?") + s.theme.ShortcutDesc.Render(" help  ") +
		s.theme.ShortcutKey.Render("C-c") + s.theme.ShortcutDesc.Render(" abort/quit")

	gap := s.Width - lipgloss.Width(leftView) - lipgloss.Width(rightView) - 2
	if gap < 1 {
		gap = 1
	}

	return s.theme.StatusBar.Width(s.Width).
		Render(leftView + strings.Repeat(" ", gap) + rightView)
}
