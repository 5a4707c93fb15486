// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/strand/internal/store"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case TranscriptChangedMsg:
		m.renderBuf.Write()
		if m.renderBuf.ShouldFlush() {
			m.renderBuf.Flush()
			m.refreshViewport()
		}
		return m, nil

	case StreamTickMsg:
		if m.renderBuf.Pending() > 0 {
			m.renderBuf.Flush()
			m.refreshViewport()
		}
		m.armApproval()
		if m.busy() {
			return m, streamTickCmd()
		}
		return m, nil

	case TurnFinishedMsg:
		return m.handleTurnFinished(msg)

	case ApprovalSubmittedMsg:
		if msg.Err != nil {
			m.setNotice("approval failed: " + msg.Err.Error())
		}
		m.refreshViewport()
		return m, nil

	case EphemeralResultMsg:
		m.cancelMgr.Clear()
		m.ephemeralPending = false
		if msg.Err != nil {
			m.mode = ModeComposing
			m.setNotice("ask failed: " + msg.Err.Error())
			return m, nil
		}
		m.ephemeralAnswer = msg.Answer
		return m, nil

	case ConvSavedMsg:
		if msg.Err != nil {
			m.setNotice("save failed: " + msg.Err.Error())
		} else {
			m.setNotice("saved as " + msg.ID)
		}
		return m, nil

	case ConvListMsg:
		return m.handleConvList(msg)

	case ConvLoadedMsg:
		return m.handleConvLoaded(msg)

	case ConvDeletedMsg:
		if msg.Err != nil {
			m.setNotice("delete failed: " + msg.Err.Error())
		} else {
			m.setNotice("deleted " + msg.ID)
		}
		return m, nil

	case ExportDoneMsg:
		if msg.Err != nil {
			m.setNotice("export failed: " + msg.Err.Error())
		} else {
			m.setNotice("exported to " + msg.Path)
		}
		return m, nil

	case ConfigReloadedMsg:
		if msg.Cfg != nil {
			m.cfg = msg.Cfg
			m.setNotice("configuration reloaded")
		}
		return m, nil

	case StatusMsg:
		m.setNotice(msg.Text)
		return m, nil

	case ErrorMsg:
		if msg.Err != nil {
			m.setNotice("error: " + msg.Err.Error())
		}
		return m, nil
	}

	// Spinner frames and cursor blink arrive as component-private ticks.
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	if cmd != nil {
		cmds = append(cmds, cmd)
	}
	m.textarea, cmd = m.textarea.Update(msg)
	if cmd != nil {
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// resize propagates a terminal size change to every component.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.theme.SetSize(width, height)

	inputHeight := m.textarea.Height() + 2
	chromeHeight := 1 + 1 + inputHeight // header + status bar + input
	vpHeight := height - chromeHeight
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = width
	m.viewport.Height = vpHeight
	m.textarea.SetWidth(width - 2)
	m.status.SetWidth(width)

	m.ready = true
	m.refreshViewport()
}

// handleTurnFinished closes out a turn: final redraw, error surfacing,
// approval re-check (the turn may have paused on an MCP request).
func (m *Model) handleTurnFinished(msg TurnFinishedMsg) (tea.Model, tea.Cmd) {
	m.spinner.Stop()
	m.renderBuf.Flush()
	m.refreshViewport()
	m.armApproval()
	if msg.Err != nil {
		m.setNotice("turn failed: " + msg.Err.Error())
	}
	return m, nil
}

// armApproval switches into approval mode when the transcript holds an
// undecided MCP request.
func (m *Model) armApproval() {
	if m.mode != ModeComposing {
		return
	}
	if req := m.unansweredApproval(); req != nil {
		m.pendingApproval = req
		m.approvalYes = true
		m.mode = ModeApproval
	}
}

func (m *Model) handleConvList(msg ConvListMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.setNotice("list failed: " + msg.Err.Error())
		return m, nil
	}
	if len(msg.Metas) == 0 {
		if msg.Query != "" {
			m.setNotice("no snapshots match " + msg.Query)
		} else {
			m.setNotice("no saved snapshots")
		}
		return m, nil
	}
	m.convList = msg.Metas
	m.convQuery = msg.Query
	m.convSelected = 0
	m.mode = ModeConvList
	return m, nil
}

func (m *Model) handleConvLoaded(msg ConvLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.setNotice("load failed: " + msg.Err.Error())
		return m, nil
	}
	msg.Conv.RestoreInto(m.store)
	m.overlay.Clear()
	m.renderBuf.Reset()
	m.answeredApprovals = make(map[string]bool)
	m.pendingApproval = nil
	m.mode = ModeComposing
	m.refreshViewport()
	m.viewport.GotoBottom()
	m.setNotice(fmt.Sprintf("loaded %s (%d items)", msg.Conv.ID, msg.Conv.ItemCount()))
	return m, nil
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case ModeHelp:
		return m.handleHelpKey(msg)
	case ModeApproval:
		return m.handleApprovalKey(msg)
	case ModeConvList:
		return m.handleConvListKey(msg)
	case ModeEphemeral:
		return m.handleEphemeralKey(msg)
	default:
		return m.handleComposingKey(msg)
	}
}

func (m *Model) handleHelpKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	default:
		m.mode = ModeComposing
		return m, nil
	}
}

func (m *Model) handleApprovalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	req := m.pendingApproval
	if req == nil {
		m.mode = ModeComposing
		return m, nil
	}

	decide := func(approve bool) (tea.Model, tea.Cmd) {
		m.answeredApprovals[req.ID] = true
		m.pendingApproval = nil
		m.mode = ModeComposing
		m.setNotice("resuming turn")
		return m, tea.Batch(
			m.spinner.Start(),
			m.submitApprovalCmd(req.ID, approve),
			streamTickCmd(),
		)
	}

	switch {
	case key.Matches(msg, m.keys.Approve):
		return decide(true)
	case key.Matches(msg, m.keys.Deny), key.Matches(msg, m.keys.Abort):
		return decide(false)
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case msg.String() == "left", msg.String() == "right", msg.String() == "tab":
		m.approvalYes = !m.approvalYes
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		return decide(m.approvalYes)
	}
	return m, nil
}

func (m *Model) handleConvListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Abort):
		m.mode = ModeComposing
		return m, nil
	case key.Matches(msg, m.keys.CompUp):
		if m.convSelected > 0 {
			m.convSelected--
		}
		return m, nil
	case key.Matches(msg, m.keys.CompDown):
		if m.convSelected < len(m.convList)-1 {
			m.convSelected++
		}
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		if m.convSelected < len(m.convList) {
			id := m.convList[m.convSelected].ID
			m.mode = ModeComposing
			return m, m.loadConversationCmd(id)
		}
		return m, nil
	case msg.String() == "d":
		if m.convSelected < len(m.convList) {
			id := m.convList[m.convSelected].ID
			m.convList = append(m.convList[:m.convSelected], m.convList[m.convSelected+1:]...)
			if m.convSelected >= len(m.convList) && m.convSelected > 0 {
				m.convSelected--
			}
			if len(m.convList) == 0 {
				m.mode = ModeComposing
			}
			return m, m.deleteConversationCmd(id)
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleEphemeralKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancelMgr.Cancel()
		return m, tea.Quit
	default:
		if m.ephemeralPending {
			m.cancelMgr.Cancel()
			m.ephemeralPending = false
		}
		m.ephemeralAnswer = ""
		m.mode = ModeComposing
		return m, nil
	}
}

func (m *Model) handleComposingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.busy() {
			m.store.Abort()
			m.setNotice("turn aborted")
			return m, nil
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Abort):
		if m.completionActive {
			m.closeCompletion()
			return m, nil
		}
		if m.busy() {
			m.store.Abort()
			m.setNotice("turn aborted")
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.InsertLine):
		m.textarea.InsertString("\n")
		return m, nil

	case key.Matches(msg, m.keys.AcceptComp) && m.completionActive:
		m.acceptCompletion()
		return m, nil

	case key.Matches(msg, m.keys.CompUp) && m.completionActive:
		m.moveCompletion(-1)
		return m, nil

	case key.Matches(msg, m.keys.CompDown) && m.completionActive:
		m.moveCompletion(1)
		return m, nil

	case key.Matches(msg, m.keys.ScrollUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.PrevVersion):
		if idx := m.lastAssistantIndex(); idx >= 0 {
			m.cycleVersion(idx, -1)
			m.refreshViewport()
		}
		return m, nil

	case key.Matches(msg, m.keys.NextVersion):
		if idx := m.lastAssistantIndex(); idx >= 0 {
			m.cycleVersion(idx, +1)
			m.refreshViewport()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	m.updateCompletion()
	return m, cmd
}

// submit sends the composed input: slash inputs dispatch as commands,
// everything else starts a turn.
func (m *Model) submit() (tea.Model, tea.Cmd) {
	// An empty composer still submits when annotations are pending: the
	// formatted annotation block is the whole message then.
	text := strings.TrimSpace(m.textarea.Value())
	if text == "" && m.overlay.Count() == 0 {
		return m, nil
	}

	if strings.HasPrefix(text, "/") {
		m.textarea.Reset()
		m.closeCompletion()
		m.notice = ""
		return m, m.runCommand(text)
	}

	// Keep the draft in the composer when a turn is still running.
	if m.busy() {
		m.setNotice("a turn is already running (esc to abort)")
		return m, nil
	}

	m.textarea.Reset()
	m.closeCompletion()
	m.notice = ""

	// Pending annotations fold into this message and redirect the reply
	// to the annotated message instead of appending.
	body, target, annotated := m.overlay.BuildRequest(text)
	if annotated {
		m.store.SetReplaceTarget(target)
	} else {
		m.store.SetReplaceTarget(-1)
	}

	m.store.SetState(store.StateWaiting)
	m.refreshViewport()
	return m, tea.Batch(
		m.spinner.Start(),
		m.startTurnCmd(body),
		streamTickCmd(),
	)
}
