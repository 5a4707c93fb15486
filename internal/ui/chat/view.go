// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/strand/internal/model"
	"github.com/jeranaias/strand/internal/store"
	"github.com/jeranaias/strand/internal/ui/components"
)

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "starting..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.mode {
	case ModeHelp:
		b.WriteString(m.renderHelp())
	case ModeConvList:
		b.WriteString(m.renderConvList())
	case ModeEphemeral:
		b.WriteString(m.renderEphemeral())
	default:
		if m.showingWelcome() {
			b.WriteString(m.renderWelcome())
		} else {
			b.WriteString(m.viewport.View())
		}
	}
	b.WriteString("\n")

	if m.mode == ModeApproval && m.pendingApproval != nil {
		b.WriteString(m.renderApproval())
		b.WriteString("\n")
	}

	if m.completionActive {
		b.WriteString(m.popup.View())
		b.WriteString("\n")
	}
	b.WriteString(m.theme.InputContainer.Render(m.textarea.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())

	return b.String()
}

// renderHeader renders the one-line title bar.
func (m *Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("strand")
	sub := m.theme.HeaderSubtitle.Render(m.modelName() + "  v" + m.version)
	line := title + "  " + sub

	if m.busy() {
		line += "  " + m.spinner.View()
	}
	return m.theme.Header.Width(m.width).Render(line)
}

// renderStatusBar renders the bottom line.
func (m *Model) renderStatusBar() string {
	state := ""
	switch m.store.State() {
	case store.StateWaiting:
		state = "thinking"
	case store.StateResponding:
		state = "responding"
	default:
		state = "idle"
	}

	m.status.Model = m.modelName()
	m.status.Tools = m.enabledToolNames()
	m.status.State = state
	m.status.Notice = m.notice
	return m.status.View()
}

// renderWelcome renders the empty-transcript welcome screen.
func (m *Model) renderWelcome() string {
	w := components.NewWelcome(m.version, m.modelName(), m.theme)
	w.SetWidth(m.width)
	box := w.View()

	// Pad to viewport height so the input stays anchored at the bottom.
	lines := strings.Count(box, "\n") + 1
	if pad := m.viewport.Height - lines; pad > 0 {
		box += strings.Repeat("\n", pad)
	}
	return box
}

// renderApproval renders the MCP decision prompt above the input.
func (m *Model) renderApproval() string {
	v := components.NewApprovalView(m.pendingApproval, m.theme)
	v.Width = m.width - 4
	v.YesSelected = m.approvalYes
	return v.View()
}

// renderEphemeral renders the side-channel answer overlay.
func (m *Model) renderEphemeral() string {
	width := m.width - 8
	if width < 30 {
		width = 30
	}

	var body string
	if m.ephemeralPending {
		body = m.spinner.View()
		if body == "" {
			body = "asking..."
		}
	} else {
		body = components.RenderMarkdown(m.ephemeralAnswer, width-4)
	}

	title := m.theme.AnnotationTitle.Render("side question")
	hint := m.theme.ShortcutDesc.Render("esc to dismiss; this answer is not part of the conversation")
	box := m.theme.AnnotationBox.Width(width).Render(title + "\n\n" + strings.TrimSpace(body) + "\n\n" + hint)

	return m.centerBlock(box)
}

// renderConvList renders the saved-snapshot picker.
func (m *Model) renderConvList() string {
	title := "saved conversations"
	if m.convQuery != "" {
		title = fmt.Sprintf("snapshots matching %q", m.convQuery)
	}

	var lines []string
	lines = append(lines, m.theme.HeaderTitle.Render(title))
	lines = append(lines, "")
	for i, meta := range m.convList {
		label := fmt.Sprintf("%2d. %s  %s  %d items", i+1,
			m.theme.ConvID.Render(meta.ID),
			meta.UpdatedAt.Format("2006-01-02 15:04"),
			meta.ItemCount)
		if meta.Summary != "" {
			label += "  " + m.theme.ConvMeta.Render(components.Truncate(meta.Summary, 40))
		}
		if i == m.convSelected {
			lines = append(lines, m.theme.ConvItemSelected.Render("> "+label))
		} else {
			lines = append(lines, m.theme.ConvItem.Render("  "+label))
		}
	}
	lines = append(lines, "")
	lines = append(lines, m.theme.ShortcutDesc.Render("enter load  d delete  esc close"))

	return m.fitToViewport(m.theme.ConvList.Render(strings.Join(lines, "\n")))
}

// renderHelp renders the command and key reference.
func (m *Model) renderHelp() string {
	var lines []string
	lines = append(lines, m.theme.HeaderTitle.Render("commands"))
	for _, c := range commandTable {
		lines = append(lines, fmt.Sprintf("  %s  %s",
			m.theme.ShortcutKey.Render(padRight(c.Name, 12)),
			m.theme.ShortcutDesc.Render(c.Desc)))
	}

	lines = append(lines, "")
	lines = append(lines, m.theme.HeaderTitle.Render("keys"))
	for _, group := range m.keys.FullHelp() {
		for _, binding := range group {
			h := binding.Help()
			lines = append(lines, fmt.Sprintf("  %s  %s",
				m.theme.ShortcutKey.Render(padRight(h.Key, 12)),
				m.theme.ShortcutDesc.Render(h.Desc)))
		}
	}
	lines = append(lines, "")
	lines = append(lines, m.theme.ShortcutDesc.Render("any key to close"))

	return m.fitToViewport(strings.Join(lines, "\n"))
}

// =============================================================================
// TRANSCRIPT RENDERING
// =============================================================================

// refreshViewport rebuilds the viewport content from the store. Sticky
// scroll: a viewport already at the bottom follows new content.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTranscript())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// renderTranscript renders every transcript item.
func (m *Model) renderTranscript() string {
	items := m.store.ChatItems()
	responding := m.store.State() == store.StateResponding

	var blocks []string
	for i, item := range items {
		switch it := item.(type) {
		case *model.MessageItem:
			v := components.NewMessageView(it, m.theme)
			v.SetWidth(m.viewport.Width)
			v.Streaming = responding && i == len(items)-1 && it.Role == model.RoleAssistant
			blocks = append(blocks, v.View())

		case *model.ToolCallItem:
			v := components.NewToolCallView(it, m.theme)
			v.SetWidth(m.viewport.Width)
			blocks = append(blocks, v.View())

		case *model.McpListToolsItem:
			v := components.NewMcpListView(it, m.theme)
			v.Width = m.viewport.Width
			blocks = append(blocks, v.View())

		case *model.McpApprovalRequestItem:
			// The decision UI lives above the input; the transcript
			// keeps a one-line trace.
			line := "approval request: " + it.ServerLabel + " / " + it.Name
			if m.answeredApprovals[it.ID] {
				line += " (answered)"
			}
			blocks = append(blocks, m.theme.ThinkingText.Render(line))
		}
	}
	return strings.Join(blocks, "\n\n")
}

// =============================================================================
// LAYOUT HELPERS
// =============================================================================

// fitToViewport pads or leaves content so overlays occupy the same
// vertical slot as the transcript.
func (m *Model) fitToViewport(content string) string {
	lines := strings.Count(content, "\n") + 1
	if pad := m.viewport.Height - lines; pad > 0 {
		content += strings.Repeat("\n", pad)
	}
	return content
}

// centerBlock centers a block horizontally and pads to viewport height.
func (m *Model) centerBlock(block string) string {
	centered := lipgloss.PlaceHorizontal(m.width, lipgloss.Center, block)
	return m.fitToViewport(centered)
}

// padRight pads s with spaces to width.
func padRight(s string, width int) string {
	for len(s) < width {
		s += " "
	}
	return s
}
