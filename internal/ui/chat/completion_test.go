// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"testing"
)

func TestCompletionCandidates(t *testing.T) {
	entries := completionCandidates("/hel")
	if len(entries) == 0 {
		t.Fatal("no candidates for /hel")
	}
	if entries[0].Text != "/help" {
		t.Errorf("best match = %q, want /help", entries[0].Text)
	}

	if got := completionCandidates("/zzz"); len(got) != 0 {
		t.Errorf("candidates for /zzz = %v", got)
	}
}

func TestCompletionCandidates_EmptyQueryListsAll(t *testing.T) {
	entries := completionCandidates("/")
	if len(entries) != len(commandTable) {
		t.Errorf("candidates = %d, want %d", len(entries), len(commandTable))
	}
}

func TestUpdateCompletion_ActivationRules(t *testing.T) {
	m := testModel()

	m.textarea.SetValue("/he")
	m.updateCompletion()
	if !m.completionActive {
		t.Error("popup inactive for slash prefix")
	}

	m.textarea.SetValue("plain text")
	m.updateCompletion()
	if m.completionActive {
		t.Error("popup active for non-command input")
	}

	m.textarea.SetValue("/load conv_1")
	m.updateCompletion()
	if m.completionActive {
		t.Error("popup active after arguments began")
	}
}

func TestAcceptCompletion(t *testing.T) {
	m := testModel()
	m.textarea.SetValue("/he")
	m.updateCompletion()

	m.acceptCompletion()

	got := m.textarea.Value()
	if !strings.HasPrefix(got, "/help ") {
		t.Errorf("input = %q, want /help with trailing space", got)
	}
	if m.completionActive {
		t.Error("popup still active after accept")
	}
}

func TestMoveCompletion_Wraps(t *testing.T) {
	m := testModel()
	m.textarea.SetValue("/")
	m.updateCompletion()

	n := len(m.popup.Entries)
	m.moveCompletion(-1)
	if m.popup.Selected != n-1 {
		t.Errorf("selected = %d, want wrap to %d", m.popup.Selected, n-1)
	}
	m.moveCompletion(1)
	if m.popup.Selected != 0 {
		t.Errorf("selected = %d, want 0", m.popup.Selected)
	}
}
