// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/jeranaias/strand/internal/ui/components"
)

// =============================================================================
// SLASH COMPLETION
// =============================================================================

// completionCandidates fuzzy-filters the command table against the
// current input and returns popup entries, best match first.
func completionCandidates(input string) []components.CompletionEntry {
	query := strings.TrimPrefix(input, "/")

	names := make([]string, len(commandTable))
	descs := make(map[string]string, len(commandTable))
	for i, c := range commandTable {
		names[i] = c.Name
		descs[c.Name] = c.Desc
	}

	matches := components.FuzzyFilter(query, names)
	entries := make([]components.CompletionEntry, 0, len(matches))
	for _, match := range matches {
		entries = append(entries, components.CompletionEntry{
			Text: match.Target,
			Desc: descs[match.Target],
		})
	}
	return entries
}

// updateCompletion recomputes the popup for the current input. The popup
// is active only while the input is a single slash-prefixed word.
func (m *Model) updateCompletion() {
	input := m.textarea.Value()
	if !strings.HasPrefix(input, "/") || strings.ContainsAny(input, " \n") {
		m.closeCompletion()
		return
	}

	entries := completionCandidates(input)
	if len(entries) == 0 {
		m.closeCompletion()
		return
	}

	m.completionActive = true
	m.popup.Entries = entries
	m.popup.Query = strings.TrimPrefix(input, "/")
	if m.popup.Selected >= len(entries) {
		m.popup.Selected = 0
	}
}

// closeCompletion hides the popup and resets its selection.
func (m *Model) closeCompletion() {
	m.completionActive = false
	m.popup.Entries = nil
	m.popup.Selected = 0
}

// acceptCompletion replaces the input with the selected candidate plus a
// trailing space, ready for arguments.
func (m *Model) acceptCompletion() {
	if !m.completionActive || m.popup.Selected >= len(m.popup.Entries) {
		return
	}
	chosen := m.popup.Entries[m.popup.Selected].Text
	m.textarea.SetValue(chosen + " ")
	m.textarea.CursorEnd()
	m.closeCompletion()
}

// moveCompletion steps the popup selection, wrapping at the ends.
func (m *Model) moveCompletion(step int) {
	if !m.completionActive || len(m.popup.Entries) == 0 {
		return
	}
	n := len(m.popup.Entries)
	m.popup.Selected = (m.popup.Selected + step + n) % n
}
