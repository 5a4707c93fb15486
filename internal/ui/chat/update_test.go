// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"testing"

	"github.com/jeranaias/strand/internal/annotate"
	"github.com/jeranaias/strand/internal/model"
	"github.com/jeranaias/strand/internal/store"
)

func TestSubmit_EmptyComposerIsNoOp(t *testing.T) {
	m := testModel()
	m.ready = true

	_, cmd := m.submit()

	if cmd != nil {
		t.Error("empty composer must not start a turn")
	}
	if m.store.State() != store.StateIdle {
		t.Errorf("state = %s, want idle", m.store.State())
	}
}

func TestSubmit_EmptyComposerSendsPendingAnnotations(t *testing.T) {
	m := testModel()
	m.ready = true
	m.store.AddUserTurn("question")
	m.store.AddChatItem(model.NewMessageItem(model.RoleAssistant, "output_text", "the answer is forty two"))

	idx := m.lastAssistantIndex()
	m.overlay.Add(idx, annotate.TextAnnotation{ID: "a1", Text: "forty two", Comment: "should be 42"})

	_, cmd := m.submit()

	if cmd == nil {
		t.Fatal("pending annotations must submit without typed text")
	}
	if m.store.State() != store.StateWaiting {
		t.Errorf("state = %s, want waiting", m.store.State())
	}
	target, ok := m.store.ReplaceTarget()
	if !ok || target != idx {
		t.Errorf("replace target = %d, %v, want %d", target, ok, idx)
	}
	if m.overlay.Count() != 0 {
		t.Error("overlay not consumed by submit")
	}
}

func TestSubmit_KeepsDraftWhileBusy(t *testing.T) {
	m := testModel()
	m.ready = true
	m.store.SetState(store.StateResponding)
	m.textarea.SetValue("a follow-up question")

	_, cmd := m.submit()

	if cmd != nil {
		t.Error("must not start a second turn while one is running")
	}
	if m.textarea.Value() != "a follow-up question" {
		t.Errorf("draft = %q, want it kept", m.textarea.Value())
	}
}
