// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/strand/internal/ephemeral"
	"github.com/jeranaias/strand/internal/export"
	"github.com/jeranaias/strand/internal/storage"
)

// =============================================================================
// BACKGROUND COMMANDS
// =============================================================================
//
// Everything here runs off the UI goroutine and reports back through a
// message. Snapshot and export work reads the store through Snapshot(),
// which copies under the store lock.

// startTurnCmd runs a conversation turn to completion.
func (m *Model) startTurnCmd(text string) tea.Cmd {
	processor := m.processor
	return func() tea.Msg {
		return TurnFinishedMsg{Err: processor.Run(context.Background(), text)}
	}
}

// submitApprovalCmd answers an MCP approval request and resumes the turn.
func (m *Model) submitApprovalCmd(id string, approve bool) tea.Cmd {
	processor := m.processor
	return func() tea.Msg {
		if err := processor.SubmitApproval(context.Background(), id, approve); err != nil {
			return ApprovalSubmittedMsg{ID: id, Err: err}
		}
		return TurnFinishedMsg{}
	}
}

// ephemeralAskCmd asks a side-channel question. The answer streams from
// the proxy but is delivered whole; partial answers are not worth a
// second render path for a modal overlay.
func (m *Model) ephemeralAskCmd(q ephemeral.Query) tea.Cmd {
	ctx := m.cancelMgr.Install(context.Background())
	client := m.ephemeral
	return func() tea.Msg {
		var b strings.Builder
		err := client.AskStream(ctx, q, func(delta string) {
			b.WriteString(delta)
		})
		return EphemeralResultMsg{Answer: b.String(), Err: err}
	}
}

// saveConversationCmd snapshots the transcript to disk.
func (m *Model) saveConversationCmd() tea.Cmd {
	st, cs, name := m.store, m.conversations, m.modelName()
	return func() tea.Msg {
		conv := storage.Snapshot(st, name)
		if err := cs.Save(conv); err != nil {
			return ConvSavedMsg{Err: err}
		}
		return ConvSavedMsg{ID: conv.ID}
	}
}

// loadConversationCmd loads a snapshot by ID, or by 1-based list number.
func (m *Model) loadConversationCmd(ref string) tea.Cmd {
	cs := m.conversations
	return func() tea.Msg {
		if n, err := strconv.Atoi(ref); err == nil && n > 0 {
			conv, err := cs.LoadByIndex(n)
			return ConvLoadedMsg{Conv: conv, Err: err}
		}
		conv, err := cs.Load(ref)
		return ConvLoadedMsg{Conv: conv, Err: err}
	}
}

// listConversationsCmd fetches snapshot metadata, optionally filtered.
func (m *Model) listConversationsCmd(query string) tea.Cmd {
	cs := m.conversations
	return func() tea.Msg {
		if query != "" {
			metas, err := cs.Search(query)
			return ConvListMsg{Metas: metas, Query: query, Err: err}
		}
		metas, err := cs.List()
		return ConvListMsg{Metas: metas, Err: err}
	}
}

// deleteConversationCmd removes a snapshot from disk.
func (m *Model) deleteConversationCmd(id string) tea.Cmd {
	cs := m.conversations
	return func() tea.Msg {
		return ConvDeletedMsg{ID: id, Err: cs.Delete(id)}
	}
}

// exportCmd writes the transcript to a file in the given format.
func (m *Model) exportCmd(format string) tea.Cmd {
	st, name := m.store, m.modelName()
	opts := export.DefaultOptions()
	// Opening a browser or editor from inside the TUI would fight over
	// the terminal; just report the path.
	opts.OpenAfterExport = false
	return func() tea.Msg {
		conv := storage.Snapshot(st, name)
		path, err := export.ExportConversation(conv, format, opts)
		return ExportDoneMsg{Path: path, Err: err}
	}
}
