// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/strand/internal/ui/styles"
)

// =============================================================================
// WELCOME SCREEN
// =============================================================================

const logo = `
 ___| |_ _ __ __ _ _ __   __| |
/ __| __| '__/ _` + "`" + ` | '_ \ / _` + "`" + ` |
\__ \ |_| | | (_| | | | | (_| |
|___/\__|_|  \__,_|_| |_|\__,_|`

// Welcome renders the startup screen shown before the first message.
type Welcome struct {
	Version string
	Model   string
	Width   int
	theme   *styles.Theme
}

// NewWelcome creates a welcome screen.
func NewWelcome(version, model string, theme *styles.Theme) *Welcome {
	return &Welcome{
		Version: version,
		Model:   model,
		Width:   80,
		theme:   theme,
	}
}

// SetWidth sets the render width.
func (w *Welcome) SetWidth(width int) {
	w.Width = width
}

// View renders the welcome box.
func (w *Welcome) View() string {
	lines := []string{
		w.theme.WelcomeLogo.Render(strings.TrimPrefix(logo, "\n")),
		w.theme.WelcomeVersion.Render("v" + w.Version + "  -  " + w.Model),
		"",
		w.theme.WelcomeInfo.Render("Type a message and press " +
			w.theme.WelcomeKey.Render("Enter") + " to chat."),
		w.theme.WelcomeInfo.Render("Slash commands: " +
			w.theme.WelcomeKey.Render("/help") + " lists everything."),
	}

	box := w.theme.WelcomeBox.Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().Width(w.Width).Align(lipgloss.Center).Render(box)
}
