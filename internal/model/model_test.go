// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"testing"
)

// =============================================================================
// MESSAGE ITEM TESTS
// =============================================================================

func TestMessageItem_TextAccessors(t *testing.T) {
	msg := NewMessageItem(RoleAssistant, "output_text", "hello")
	if msg.Text() != "hello" {
		t.Errorf("Text() = %q, want %q", msg.Text(), "hello")
	}

	msg.SetText("goodbye")
	if msg.Text() != "goodbye" {
		t.Errorf("Text() after SetText = %q, want %q", msg.Text(), "goodbye")
	}

	// SetText on an empty message materializes content.
	empty := &MessageItem{Role: RoleAssistant}
	empty.SetText("x")
	if empty.Text() != "x" {
		t.Errorf("SetText on empty message: Text() = %q", empty.Text())
	}
}

func TestMessageItem_AddCitation(t *testing.T) {
	msg := NewMessageItem(RoleAssistant, "output_text", "see file")
	msg.AddCitation(Citation{Type: "container_file_citation", FileID: "file-1", ContainerID: "cntr-1"})

	if len(msg.Content[0].Annotations) != 1 {
		t.Fatalf("got %d annotations, want 1", len(msg.Content[0].Annotations))
	}
	if msg.Content[0].Annotations[0].FileID != "file-1" {
		t.Errorf("FileID = %q", msg.Content[0].Annotations[0].FileID)
	}
}

// =============================================================================
// VERSION TESTS
// =============================================================================

func TestMessageItem_EnsureVersions(t *testing.T) {
	msg := NewMessageItem(RoleAssistant, "output_text", "v1")
	original := CloneContent(msg.Content)

	msg.EnsureVersions(original)

	if len(msg.Versions) != 1 {
		t.Fatalf("got %d versions, want 1", len(msg.Versions))
	}
	if msg.Versions[0].Source != VersionOriginal {
		t.Errorf("Source = %q, want original", msg.Versions[0].Source)
	}
	if msg.Versions[0].WireID != msg.WireID {
		t.Error("original version should capture the message's wire ID")
	}

	// Idempotent: a second call must not add another original.
	msg.EnsureVersions(original)
	if len(msg.Versions) != 1 {
		t.Errorf("EnsureVersions not idempotent: %d versions", len(msg.Versions))
	}
}

func TestMessageItem_CurrentVersionFallback(t *testing.T) {
	msg := NewMessageItem(RoleAssistant, "output_text", "v1")
	if msg.CurrentVersion() != nil {
		t.Error("unversioned message should have nil CurrentVersion")
	}

	msg.EnsureVersions(msg.Content)
	msg.Versions = append(msg.Versions, MessageVersion{
		ID:      "edit-1",
		Content: TextContent("output_text", "v2"),
		Source:  VersionEdit,
	})

	msg.CurrentVersionID = "edit-1"
	if v := msg.CurrentVersion(); v == nil || v.ID != "edit-1" {
		t.Fatalf("CurrentVersion = %+v, want edit-1", v)
	}

	// Stale pointer falls back to the last version.
	msg.CurrentVersionID = "deleted-version"
	if v := msg.CurrentVersion(); v == nil || v.ID != "edit-1" {
		t.Fatalf("stale CurrentVersionID should fall back to last version, got %+v", v)
	}
}

func TestCloneContent_IsDeep(t *testing.T) {
	src := []ContentPart{{
		Type:        "output_text",
		Text:        "a",
		Annotations: []Citation{{FileID: "f1"}},
	}}

	dst := CloneContent(src)
	dst[0].Text = "b"
	dst[0].Annotations[0].FileID = "f2"

	if src[0].Text != "a" || src[0].Annotations[0].FileID != "f1" {
		t.Error("CloneContent should not share backing storage")
	}
}

// =============================================================================
// WIRE ITEM TESTS
// =============================================================================

func TestWireItem_Constructors(t *testing.T) {
	turn := NewWireTurn("wire_abc", RoleUser, "hi")
	if !turn.IsTurn() {
		t.Error("plain turn should report IsTurn")
	}

	out := NewFunctionCallOutput("call_1", `{"temp": 20}`)
	if out.IsTurn() {
		t.Error("tool output record should not report IsTurn")
	}
	if out.Type != "function_call_output" || out.Status != "completed" {
		t.Errorf("unexpected output record: %+v", out)
	}

	resp := NewApprovalResponse("apr_1", true)
	if resp.ApprovalRequestID != "apr_1" || resp.Approve == nil || !*resp.Approve {
		t.Errorf("unexpected approval response: %+v", resp)
	}
}

func TestNewWireID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewWireID()
		if seen[id] {
			t.Fatalf("duplicate wire ID %q", id)
		}
		seen[id] = true
	}
}
