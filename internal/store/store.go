// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the shared conversation state: the display
// transcript, its wire mirror, per-message version history, and the
// cancellation handle for the in-flight turn.
//
// The store is an explicit object passed by reference; accessors return
// copies of the item slices. A mutex guards all state because mutation
// happens on the turn goroutine while the TUI reads during rendering.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/jeranaias/strand/internal/model"
)

// =============================================================================
// CHAT STATE
// =============================================================================

// ChatState is the single source of truth for where a turn stands.
type ChatState string

const (
	StateIdle       ChatState = "idle"
	StateWaiting    ChatState = "waiting_for_assistant"
	StateResponding ChatState = "assistant_responding"
)

// =============================================================================
// STORE TYPE
// =============================================================================

// Store is the transcript store.
type Store struct {
	mu sync.Mutex

	greeting  string
	chatItems []model.ChatItem
	wireItems []model.WireItem

	state ChatState

	// replaceTarget is the index of the message the next assistant reply
	// replaces (annotation flow); nil in the normal append flow.
	replaceTarget *int

	// cancel aborts the in-flight turn's stream fetch. Guarded by mu so
	// the TUI and the turn goroutine never race on it.
	cancel context.CancelFunc
}

// New creates a store seeded with the assistant greeting message.
func New(greeting string) *Store {
	s := &Store{greeting: greeting, state: StateIdle}
	s.reset()
	return s
}

// reset restores the initial state. Caller must hold mu (or be New).
func (s *Store) reset() {
	s.chatItems = []model.ChatItem{
		model.NewMessageItem(model.RoleAssistant, "output_text", s.greeting),
	}
	s.wireItems = nil
	s.state = StateIdle
	s.replaceTarget = nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

// ChatItems returns a copy of the display transcript.
func (s *Store) ChatItems() []model.ChatItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ChatItem(nil), s.chatItems...)
}

// WireItems returns a copy of the wire transcript.
func (s *Store) WireItems() []model.WireItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.WireItem(nil), s.wireItems...)
}

// ItemCount returns the number of display items.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chatItems)
}

// State returns the current chat state.
func (s *Store) State() ChatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState updates the chat state.
func (s *Store) SetState(state ChatState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// =============================================================================
// APPEND OPERATIONS
// =============================================================================

// AddChatItem appends a display item.
func (s *Store) AddChatItem(item model.ChatItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatItems = append(s.chatItems, item)
}

// AddWireItem appends a wire item.
func (s *Store) AddWireItem(item model.WireItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wireItems = append(s.wireItems, item)
}

// AddUserTurn appends a user message to both representations, joined by a
// shared wire ID, and returns the display item.
func (s *Store) AddUserTurn(text string) *model.MessageItem {
	msg := model.NewMessageItem(model.RoleUser, "input_text", text)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatItems = append(s.chatItems, msg)
	s.wireItems = append(s.wireItems, model.NewWireTurn(msg.WireID, model.RoleUser, text))
	return msg
}

// =============================================================================
// TARGETED MUTATION
// =============================================================================

// UpdateMessage runs fn on the message at index i under the lock.
// Returns false when i is out of range or not a message.
func (s *Store) UpdateMessage(i int, fn func(*model.MessageItem)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.messageAt(i)
	if msg == nil {
		return false
	}
	fn(msg)
	return true
}

// UpdateToolCall runs fn on the tool call with the given upstream item
// id. Returns false when no such trace exists.
func (s *Store) UpdateToolCall(itemID string, fn func(*model.ToolCallItem)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.chatItems {
		if tc, ok := item.(*model.ToolCallItem); ok && tc.ID == itemID {
			fn(tc)
			return true
		}
	}
	return false
}

// LastMessage returns the final display item when it is a message.
func (s *Store) LastMessage() (*model.MessageItem, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.chatItems) == 0 {
		return nil, -1
	}
	i := len(s.chatItems) - 1
	if msg, ok := s.chatItems[i].(*model.MessageItem); ok {
		return msg, i
	}
	return nil, -1
}

// messageAt returns the message at index i. Caller must hold mu.
func (s *Store) messageAt(i int) *model.MessageItem {
	if i < 0 || i >= len(s.chatItems) {
		return nil
	}
	msg, _ := s.chatItems[i].(*model.MessageItem)
	return msg
}

// =============================================================================
// WIRE MIRRORING
// =============================================================================

// MirrorAssistantText keeps the wire mirror in lockstep with a streaming
// assistant message. The mirror is located by shared wire ID; an item
// created before IDs were carried is found by last-assistant fallback and
// adopts the ID. With no mirror at all a new assistant wire turn is
// appended.
func (s *Store) MirrorAssistantText(wireID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.wireIndexByID(wireID); i >= 0 {
		s.wireItems[i].Content = text
		return
	}
	if i := s.lastWireIndexByRole(model.RoleAssistant); i >= 0 && s.wireItems[i].ID == "" {
		s.wireItems[i].ID = wireID
		s.wireItems[i].Content = text
		return
	}
	s.wireItems = append(s.wireItems, model.NewWireTurn(wireID, model.RoleAssistant, text))
}

// wireIndexByID finds a wire item by shared ID. Caller must hold mu.
func (s *Store) wireIndexByID(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.wireItems {
		if s.wireItems[i].ID == id {
			return i
		}
	}
	return -1
}

// lastWireIndexByRole finds the last plain turn with the given role.
// Caller must hold mu.
func (s *Store) lastWireIndexByRole(role model.Role) int {
	for i := len(s.wireItems) - 1; i >= 0; i-- {
		if s.wireItems[i].IsTurn() && s.wireItems[i].Role == role {
			return i
		}
	}
	return -1
}

// wireIndexFor locates the wire mirror of a message: id-join first,
// role+content match as the fallback for items that predate shared IDs.
// Caller must hold mu.
func (s *Store) wireIndexFor(msg *model.MessageItem) int {
	if i := s.wireIndexByID(msg.WireID); i >= 0 {
		return i
	}
	text := msg.Text()
	for i := range s.wireItems {
		if s.wireItems[i].IsTurn() && s.wireItems[i].Role == msg.Role && s.wireItems[i].Content == text {
			return i
		}
	}
	return -1
}

// =============================================================================
// DELETE OPERATIONS
// =============================================================================

// DeleteChatItem removes the display item at index i. When the item is a
// user or assistant message its wire mirror is removed too; a missing
// mirror is a silent no-op.
func (s *Store) DeleteChatItem(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.chatItems) {
		return
	}
	deleted := s.chatItems[i]
	s.chatItems = append(s.chatItems[:i], s.chatItems[i+1:]...)
	s.removeWireMirror(deleted)
}

// DeleteChatItemsAfter removes the display item at index i and everything
// after it, reconciling the wire mirror for each removed message.
func (s *Store) DeleteChatItemsAfter(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.chatItems) {
		return
	}
	removed := s.chatItems[i:]
	s.chatItems = s.chatItems[:i]
	for _, item := range removed {
		s.removeWireMirror(item)
	}
}

// removeWireMirror drops the wire item mirroring a deleted message.
// Caller must hold mu.
func (s *Store) removeWireMirror(item model.ChatItem) {
	msg, ok := item.(*model.MessageItem)
	if !ok {
		return
	}
	if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
		return
	}
	if i := s.wireIndexFor(msg); i >= 0 {
		s.wireItems = append(s.wireItems[:i], s.wireItems[i+1:]...)
	}
}

// =============================================================================
// EDIT AND VERSION OPERATIONS
// =============================================================================

// EditMessageText rewrites the body of the message at index i.
//
// The first edit of an unversioned message synthesizes an "original"
// version from the pre-edit content before recording the edit version.
// Subsequent edits overwrite current content without growing the history;
// the asymmetry matches long-standing observed behavior and is kept
// deliberately.
func (s *Store) EditMessageText(i int, newText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.messageAt(i)
	if msg == nil || len(msg.Content) == 0 {
		return
	}
	oldText := msg.Text()

	if msg.Versions == nil {
		msg.EnsureVersions(msg.Content)
		edited := model.MessageVersion{
			ID:        model.NewVersionID(model.VersionEdit),
			Content:   model.CloneContent(msg.Content),
			Timestamp: time.Now(),
			Source:    model.VersionEdit,
			WireID:    msg.WireID,
		}
		edited.Content[0].Text = newText
		msg.Versions = append(msg.Versions, edited)
		msg.CurrentVersionID = edited.ID
		msg.Content = model.CloneContent(edited.Content)
	} else {
		msg.SetText(newText)
	}

	// Mirror into the wire item. Fallback matches on the pre-edit text.
	if wi := s.wireIndexByID(msg.WireID); wi >= 0 {
		s.wireItems[wi].Content = newText
		return
	}
	for wi := range s.wireItems {
		if s.wireItems[wi].IsTurn() && s.wireItems[wi].Role == msg.Role && s.wireItems[wi].Content == oldText {
			s.wireItems[wi].Content = newText
			return
		}
	}
}

// CreateMessageVersion records newContent as a new version of the message
// at index i and makes it current. originalContent, when non-nil, seeds
// the synthesized "original" version for a previously unversioned message
// (the annotation flow captures pre-replacement content before streaming
// overwrites it).
func (s *Store) CreateMessageVersion(i int, newContent []model.ContentPart, source model.VersionSource, originalContent []model.ContentPart) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.messageAt(i)
	if msg == nil {
		return
	}

	seed := originalContent
	if seed == nil {
		seed = msg.Content
	}
	msg.EnsureVersions(seed)

	version := model.MessageVersion{
		ID:        model.NewVersionID(source),
		Content:   model.CloneContent(newContent),
		Timestamp: time.Now(),
		Source:    source,
		WireID:    msg.WireID,
	}
	msg.Versions = append(msg.Versions, version)
	msg.CurrentVersionID = version.ID
	msg.Content = model.CloneContent(newContent)

	s.mirrorVersionText(msg, &version)
}

// SelectMessageVersion swaps the displayed content of the message at
// index i to the chosen version and mirrors its text into the wire item.
// Selecting the already-current version is a no-op on the wire mirror.
func (s *Store) SelectMessageVersion(i int, versionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.messageAt(i)
	if msg == nil || msg.Versions == nil {
		return
	}
	if msg.CurrentVersionID == versionID {
		return
	}

	var selected *model.MessageVersion
	for vi := range msg.Versions {
		if msg.Versions[vi].ID == versionID {
			selected = &msg.Versions[vi]
			break
		}
	}
	if selected == nil {
		return
	}

	msg.CurrentVersionID = versionID
	msg.Content = model.CloneContent(selected.Content)
	s.mirrorVersionText(msg, selected)
}

// mirrorVersionText writes a version's text into the matching wire item:
// the version's captured wire ID first, the last turn of the message's
// role as fallback. Caller must hold mu.
func (s *Store) mirrorVersionText(msg *model.MessageItem, v *model.MessageVersion) {
	if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
		return
	}
	text := ""
	if len(v.Content) > 0 {
		text = v.Content[0].Text
	}
	if i := s.wireIndexByID(v.WireID); i >= 0 {
		s.wireItems[i].Content = text
		return
	}
	if i := s.lastWireIndexByRole(msg.Role); i >= 0 {
		s.wireItems[i].Content = text
	}
}

// CurrentVersionContent returns the displayed content of the message at
// index i, or nil when it is not a message.
func (s *Store) CurrentVersionContent(i int) []model.ContentPart {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.messageAt(i)
	if msg == nil {
		return nil
	}
	return model.CloneContent(msg.Content)
}

// ReplaceLastAssistantMessage records newText as an annotation-sourced
// version of the last assistant message.
func (s *Store) ReplaceLastAssistantMessage(newText string) {
	s.mu.Lock()
	idx := -1
	for i := len(s.chatItems) - 1; i >= 0; i-- {
		if msg, ok := s.chatItems[i].(*model.MessageItem); ok && msg.Role == model.RoleAssistant {
			idx = i
			break
		}
	}
	s.mu.Unlock()

	if idx < 0 {
		return
	}
	s.CreateMessageVersion(idx, model.TextContent("output_text", newText), model.VersionAnnotation, nil)
}

// =============================================================================
// REPLACE TARGET
// =============================================================================

// SetReplaceTarget marks the message the next assistant reply replaces.
// Pass a negative index to clear.
func (s *Store) SetReplaceTarget(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 {
		s.replaceTarget = nil
		return
	}
	s.replaceTarget = &i
}

// ReplaceTarget returns the pending replace index, if any.
func (s *Store) ReplaceTarget() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceTarget == nil {
		return 0, false
	}
	return *s.replaceTarget, true
}

// =============================================================================
// CANCELLATION
// =============================================================================

// BeginTurn cancels any in-flight turn and installs a fresh cancellation
// scope for the next one. At most one turn is ever active.
func (s *Store) BeginTurn(parent context.Context) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	return ctx
}

// Abort cancels the in-flight turn, if any, and returns to idle.
// Cancellation is a normal terminal state, not an error.
func (s *Store) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.state = StateIdle
}

// EndTurn releases the cancellation scope installed by BeginTurn.
func (s *Store) EndTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Restore replaces both transcripts wholesale, aborting any in-flight
// turn. Used when loading a saved conversation from disk.
func (s *Store) Restore(chat []model.ChatItem, wire []model.WireItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.chatItems = append([]model.ChatItem(nil), chat...)
	s.wireItems = append([]model.WireItem(nil), wire...)
	s.state = StateIdle
	s.replaceTarget = nil
}

// =============================================================================
// RESET
// =============================================================================

// Clear aborts any in-flight turn and restores the initial state.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.reset()
}
