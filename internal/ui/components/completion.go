// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/strand/internal/ui/styles"
)

// =============================================================================
// COMPLETION POPUP
// =============================================================================

// CompletionEntry is one candidate shown in the popup.
type CompletionEntry struct {
	Text string
	Desc string
}

// CompletionPopup renders a list of candidates above the input, with
// fuzzy-match highlighting and a selection cursor.
type CompletionPopup struct {
	Entries  []CompletionEntry
	Query    string
	Selected int
	MaxShown int
	Width    int
	theme    *styles.Theme
}

// NewCompletionPopup creates an empty popup.
func NewCompletionPopup(theme *styles.Theme) *CompletionPopup {
	return &CompletionPopup{
		MaxShown: 8,
		Width:    40,
		theme:    theme,
	}
}

// View renders the popup, or nothing when there are no candidates.
func (p *CompletionPopup) View() string {
	if len(p.Entries) == 0 {
		return ""
	}

	shown := p.Entries
	offset := 0
	if len(shown) > p.MaxShown {
		// Keep the selection visible.
		offset = p.Selected - p.MaxShown + 1
		if offset < 0 {
			offset = 0
		}
		shown = shown[offset : offset+p.MaxShown]
	}

	var lines []string
	for i, e := range shown {
		line := p.renderEntry(e, offset+i == p.Selected)
		lines = append(lines, line)
	}

	return p.theme.CompletionPopup.Render(strings.Join(lines, "\n"))
}

func (p *CompletionPopup) renderEntry(e CompletionEntry, selected bool) string {
	text := p.highlight(e.Text)
	if selected {
		text = p.theme.CompletionSelected.Render("> ") + text
	} else {
		text = "  " + text
	}

	if e.Desc != "" {
		pad := p.Width - lipgloss.Width(text) - lipgloss.Width(e.Desc) - 2
		if pad < 2 {
			pad = 2
		}
		text += strings.Repeat(" ", pad) +
			lipgloss.NewStyle().Foreground(styles.TextMuted).Render(e.Desc)
	}
	return text
}

// highlight styles the runes of text matched by the current query.
func (p *CompletionPopup) highlight(text string) string {
	positions := HighlightMatch(p.Query, text)
	if len(positions) == 0 {
		return p.theme.CompletionItem.Render(text)
	}

	matched := make(map[int]bool, len(positions))
	for _, pos := range positions {
		matched[pos] = true
	}

	var b strings.Builder
	for i, r := range []rune(text) {
		if matched[i] {
			b.WriteString(p.theme.CompletionMatch.Render(string(r)))
		} else {
			b.WriteString(p.theme.CompletionItem.Render(string(r)))
		}
	}
	return b.String()
}
