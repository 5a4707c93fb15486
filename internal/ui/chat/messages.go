// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/jeranaias/strand/internal/config"
	"github.com/jeranaias/strand/internal/storage"
)

// =============================================================================
// MESSAGE TYPES
// =============================================================================

// TranscriptChangedMsg signals that the store mutated and the viewport
// may need a redraw. Posted by the turn processor's Notify hook via
// Program.Send, so it can arrive from any goroutine.
type TranscriptChangedMsg struct{}

// TurnFinishedMsg signals that a conversation turn completed. Err is nil
// on success and on user abort.
type TurnFinishedMsg struct {
	Err error
}

// StreamTickMsg drives the render batcher while a turn is streaming.
type StreamTickMsg struct {
	Time time.Time
}

// EphemeralResultMsg carries the answer to a side-channel question.
type EphemeralResultMsg struct {
	Answer string
	Err    error
}

// ConvSavedMsg reports the outcome of a snapshot save.
type ConvSavedMsg struct {
	ID  string
	Err error
}

// ConvListMsg carries conversation metadata for the list overlay.
type ConvListMsg struct {
	Metas []storage.ConversationMeta
	Query string
	Err   error
}

// ConvLoadedMsg carries a snapshot loaded from disk.
type ConvLoadedMsg struct {
	Conv *storage.StoredConversation
	Err  error
}

// ConvDeletedMsg reports the outcome of a snapshot delete.
type ConvDeletedMsg struct {
	ID  string
	Err error
}

// ExportDoneMsg reports the outcome of a transcript export.
type ExportDoneMsg struct {
	Path string
	Err  error
}

// ApprovalSubmittedMsg reports the outcome of an MCP approval decision.
type ApprovalSubmittedMsg struct {
	ID  string
	Err error
}

// ConfigReloadedMsg carries a fresh configuration after the watcher saw
// the file change on disk.
type ConfigReloadedMsg struct {
	Cfg *config.Config
}

// StatusMsg sets a transient notice in the status bar.
type StatusMsg struct {
	Text string
}

// ErrorMsg surfaces a non-fatal error to the user.
type ErrorMsg struct {
	Err error
}
