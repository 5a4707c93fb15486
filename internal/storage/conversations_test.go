// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jeranaias/strand/internal/model"
	"github.com/jeranaias/strand/internal/store"
)

// seedStore builds a store with a short exchange including a tool trace.
func seedStore() *store.Store {
	st := store.New("How can I help you?")
	st.AddUserTurn("what's the weather in Oslo?")
	st.AddChatItem(&model.ToolCallItem{
		ToolType: model.ToolFunction,
		Status:   model.StatusCompleted,
		ID:       "fc_1",
		Name:     "get_weather",
		CallID:   "call_1",
		Output:   `{"temperature":"8 C"}`,
	})
	st.AddWireItem(model.NewFunctionCall("call_1", "get_weather", `{"location":"Oslo"}`))
	st.AddWireItem(model.NewFunctionCallOutput("call_1", `{"temperature":"8 C"}`))

	reply := model.NewMessageItem(model.RoleAssistant, "output_text", "It is 8 C in Oslo.")
	st.AddChatItem(reply)
	st.AddWireItem(model.NewWireTurn(reply.WireID, model.RoleAssistant, "It is 8 C in Oslo."))
	return st
}

func TestSnapshotRoundTrip(t *testing.T) {
	st := seedStore()
	conv := Snapshot(st, "gpt-4.1")

	if conv.Summary != "what's the weather in Oslo?" {
		t.Errorf("summary = %q", conv.Summary)
	}
	if conv.Model != "gpt-4.1" {
		t.Errorf("model = %q", conv.Model)
	}
	if len(conv.Items) != 4 {
		t.Fatalf("items = %d, want 4 (greeting, user, tool, assistant)", len(conv.Items))
	}
	if len(conv.Wire) != 4 {
		t.Fatalf("wire = %d, want 4", len(conv.Wire))
	}

	cs := NewConversationStoreAt(t.TempDir())
	if err := cs.Save(conv); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := cs.Load(conv.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	restored := store.New("unused greeting")
	loaded.RestoreInto(restored)

	chat := restored.ChatItems()
	if len(chat) != 4 {
		t.Fatalf("restored chat items = %d", len(chat))
	}
	last, ok := chat[3].(*model.MessageItem)
	if !ok || last.Text() != "It is 8 C in Oslo." {
		t.Errorf("last item = %#v", chat[3])
	}
	tc, ok := chat[2].(*model.ToolCallItem)
	if !ok || tc.Name != "get_weather" || tc.Status != model.StatusCompleted {
		t.Errorf("tool trace = %#v", chat[2])
	}

	wire := restored.WireItems()
	if len(wire) != 4 {
		t.Fatalf("restored wire items = %d", len(wire))
	}
	if wire[1].Type != "function_call" || wire[2].Type != "function_call_output" {
		t.Errorf("wire order = %q, %q", wire[1].Type, wire[2].Type)
	}
	// Shared IDs survive the round trip so the wire join keeps working.
	if last.WireID == "" || wire[3].ID != last.WireID {
		t.Errorf("wire id join lost: msg=%q wire=%q", last.WireID, wire[3].ID)
	}
}

func TestSnapshot_PreservesVersionHistory(t *testing.T) {
	st := seedStore()
	st.CreateMessageVersion(3, model.TextContent("output_text", "Rainy, 8 C."), model.VersionAnnotation, nil)

	cs := NewConversationStoreAt(t.TempDir())
	conv := Snapshot(st, "gpt-4.1")
	if err := cs.Save(conv); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := cs.Load(conv.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	restored := store.New("g")
	loaded.RestoreInto(restored)
	msg, _ := restored.LastMessage()
	if msg == nil {
		t.Fatal("no last message")
	}
	if len(msg.Versions) != 2 {
		t.Fatalf("versions = %d, want original + annotation", len(msg.Versions))
	}
	if msg.Versions[0].Source != model.VersionOriginal || msg.Versions[1].Source != model.VersionAnnotation {
		t.Errorf("version sources = %q, %q", msg.Versions[0].Source, msg.Versions[1].Source)
	}
	if msg.Text() != "Rainy, 8 C." {
		t.Errorf("current text = %q", msg.Text())
	}
}

func TestLoad_NotFound(t *testing.T) {
	cs := NewConversationStoreAt(t.TempDir())
	_, err := cs.Load("conv_missing")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("err = %v, want ErrConversationNotFound", err)
	}
}

func TestList_NewestFirst(t *testing.T) {
	cs := NewConversationStoreAt(t.TempDir())

	older := Snapshot(seedStore(), "gpt-4.1")
	if err := cs.Save(older); err != nil {
		t.Fatal(err)
	}
	// Save stamps UpdatedAt; push the first one into the past.
	older.UpdatedAt = time.Now().Add(-time.Hour)
	rewriteTimestamp(t, cs, older)

	newer := Snapshot(seedStore(), "gpt-4.1-mini")
	if err := cs.Save(newer); err != nil {
		t.Fatal(err)
	}

	metas, err := cs.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("metas = %d", len(metas))
	}
	if metas[0].ID != newer.ID {
		t.Errorf("newest first: got %s", metas[0].ID)
	}
	if metas[0].ItemCount != 4 {
		t.Errorf("item count = %d", metas[0].ItemCount)
	}
}

func TestSearch_MatchesMessageBody(t *testing.T) {
	cs := NewConversationStoreAt(t.TempDir())
	conv := Snapshot(seedStore(), "gpt-4.1")
	if err := cs.Save(conv); err != nil {
		t.Fatal(err)
	}

	hits, err := cs.Search("OSLO")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d", len(hits))
	}

	hits, err = cs.Search("reykjavik")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %d, want none", len(hits))
	}
}

func TestEnforceLimit_PrunesOldest(t *testing.T) {
	cs := NewConversationStoreAt(t.TempDir())
	cs.MaxConversations = 3

	var ids []string
	for i := 0; i < 5; i++ {
		conv := Snapshot(seedStore(), "gpt-4.1")
		if err := cs.Save(conv); err != nil {
			t.Fatal(err)
		}
		conv.UpdatedAt = time.Now().Add(time.Duration(i-5) * time.Hour)
		rewriteTimestamp(t, cs, conv)
		ids = append(ids, conv.ID)
	}
	// Trigger pruning with one more save.
	last := Snapshot(seedStore(), "gpt-4.1")
	if err := cs.Save(last); err != nil {
		t.Fatal(err)
	}

	metas, err := cs.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 3 {
		t.Fatalf("remaining = %d, want 3", len(metas))
	}
	if metas[0].ID != last.ID {
		t.Errorf("newest = %s, want %s", metas[0].ID, last.ID)
	}
	// The two oldest must be gone.
	for _, id := range ids[:2] {
		if _, err := cs.Load(id); !errors.Is(err, ErrConversationNotFound) {
			t.Errorf("conversation %s should be pruned, err = %v", id, err)
		}
	}
}

func TestDeleteAndClear(t *testing.T) {
	cs := NewConversationStoreAt(t.TempDir())
	conv := Snapshot(seedStore(), "gpt-4.1")
	if err := cs.Save(conv); err != nil {
		t.Fatal(err)
	}

	if err := cs.Delete(conv.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := cs.Delete(conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("double delete err = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := cs.Save(Snapshot(seedStore(), "gpt-4.1")); err != nil {
			t.Fatal(err)
		}
	}
	if err := cs.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	metas, err := cs.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 0 {
		t.Errorf("metas after clear = %d", len(metas))
	}
}

// rewriteTimestamp persists a conversation without Save's UpdatedAt stamp,
// so tests can order conversations deterministically.
func rewriteTimestamp(t *testing.T, cs *ConversationStore, conv *StoredConversation) {
	t.Helper()
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cs.path(conv.ID), data, 0644); err != nil {
		t.Fatal(err)
	}
}
