// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/strand/internal/model"
	"github.com/jeranaias/strand/internal/ui/styles"
)

// =============================================================================
// TOOL CALL TRACE
// =============================================================================

// ToolCallView renders a tool call trace: status, arguments, executed
// code, output, and produced files.
type ToolCallView struct {
	Call  *model.ToolCallItem
	Width int
	theme *styles.Theme
}

// NewToolCallView creates a trace view.
func NewToolCallView(call *model.ToolCallItem, theme *styles.Theme) *ToolCallView {
	return &ToolCallView{
		Call:  call,
		Width: 80,
		theme: theme,
	}
}

// SetWidth sets the render width.
func (v *ToolCallView) SetWidth(width int) {
	v.Width = width
}

// View renders the trace.
func (v *ToolCallView) View() string {
	if v.Call == nil {
		return ""
	}

	header := v.renderHeader()
	body := v.renderBody()

	style := v.bubbleStyle()
	if body == "" {
		return header
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, style.Render(body))
}

// renderHeader renders the status indicator and tool label.
func (v *ToolCallView) renderHeader() string {
	var icon, iconColor = styles.StatusIndicators.Pending, styles.Amber
	switch v.Call.Status {
	case model.StatusCompleted:
		icon, iconColor = styles.StatusIndicators.Success, styles.Emerald
	case model.StatusFailed:
		icon, iconColor = styles.StatusIndicators.Error, styles.Rose
	}

	iconView := lipgloss.NewStyle().Foreground(iconColor).Bold(true).Render(icon)
	nameView := lipgloss.NewStyle().Foreground(styles.TextSecondary).Bold(true).
		Render(ToolLabel(v.Call))

	header := iconView + " " + nameView
	if v.Call.Status == model.StatusInProgress || v.Call.Status == model.StatusSearching {
		header += " " + lipgloss.NewStyle().Foreground(styles.TextMuted).Italic(true).
			Render(string(v.Call.Status))
	}
	return header
}

// renderBody renders arguments, code, output, and files.
func (v *ToolCallView) renderBody() string {
	width := v.Width - 8
	if width < 30 {
		width = 30
	}

	var sections []string

	if args := strings.TrimSpace(v.Call.Arguments); args != "" && v.Call.ToolType != model.ToolCodeInterpreter {
		sections = append(sections, labelLine("args")+" "+Truncate(args, width))
	}

	if v.Call.Code != "" {
		cb := NewCodeBlock("python", v.Call.Code)
		cb.SetMaxWidth(width)
		sections = append(sections, cb.Render())
	}

	if out := strings.TrimSpace(v.Call.Output); out != "" {
		sections = append(sections, labelLine("result")+"\n"+TruncateLines(WordWrap(out, width), 20))
	}

	if len(v.Call.Files) > 0 {
		var files []string
		files = append(files, labelLine("files"))
		for _, f := range v.Call.Files {
			name := f.Filename
			if name == "" {
				name = f.FileID
			}
			files = append(files, "  "+name+" ("+f.MimeType+")")
		}
		sections = append(sections, strings.Join(files, "\n"))
	}

	return strings.Join(sections, "\n")
}

func (v *ToolCallView) bubbleStyle() lipgloss.Style {
	switch v.Call.Status {
	case model.StatusFailed:
		return v.theme.ToolError
	case model.StatusCompleted:
		return v.theme.ToolSuccess
	default:
		return v.theme.ToolPending
	}
}

func labelLine(label string) string {
	return lipgloss.NewStyle().Foreground(styles.TextMuted).Render(label + ":")
}

// ToolLabel returns the display name for a tool call.
func ToolLabel(call *model.ToolCallItem) string {
	if call.Name != "" {
		return call.Name
	}
	switch call.ToolType {
	case model.ToolWebSearch:
		return "web search"
	case model.ToolFileSearch:
		return "file search"
	case model.ToolCodeInterpreter:
		return "code interpreter"
	case model.ToolMcp:
		return "remote tool"
	default:
		return "tool"
	}
}

// =============================================================================
// MCP TOOL LISTING
// =============================================================================

// McpListView renders the tool listing surfaced by a remote MCP server.
type McpListView struct {
	Item  *model.McpListToolsItem
	Width int
	theme *styles.Theme
}

// NewMcpListView creates a listing view.
func NewMcpListView(item *model.McpListToolsItem, theme *styles.Theme) *McpListView {
	return &McpListView{Item: item, Width: 80, theme: theme}
}

// View renders the listing.
func (v *McpListView) View() string {
	if v.Item == nil {
		return ""
	}

	title := lipgloss.NewStyle().Foreground(styles.TextSecondary).Bold(true).
		Render("remote server: " + v.Item.ServerLabel)

	var lines []string
	lines = append(lines, title)
	for _, t := range v.Item.Tools {
		line := "  " + t.Name
		if t.Description != "" {
			line += " - " + Truncate(t.Description, v.Width-len(t.Name)-10)
		}
		lines = append(lines, lipgloss.NewStyle().Foreground(styles.TextMuted).Render(line))
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// APPROVAL PROMPT
// =============================================================================

// ApprovalView renders a pending yes/no gate for a remote tool call.
// The user answers with keyboard shortcuts; YesSelected tracks the
// highlighted button.
type ApprovalView struct {
	Request     *model.McpApprovalRequestItem
	YesSelected bool
	Width       int
	theme       *styles.Theme
}

// NewApprovalView creates an approval prompt, defaulting to deny.
func NewApprovalView(req *model.McpApprovalRequestItem, theme *styles.Theme) *ApprovalView {
	return &ApprovalView{Request: req, Width: 80, theme: theme}
}

// View renders the prompt.
func (v *ApprovalView) View() string {
	if v.Request == nil {
		return ""
	}

	title := v.theme.ApprovalTitle.Render("approval required")
	tool := v.theme.ApprovalTool.Render(v.Request.ServerLabel + " / " + v.Request.Name)

	detail := ""
	if args := strings.TrimSpace(v.Request.Arguments); args != "" {
		detail = lipgloss.NewStyle().Foreground(styles.TextMuted).
			Render(Truncate(args, v.Width-12))
	}

	yes, no := v.theme.ApprovalButton, v.theme.ApprovalButtonActive
	if v.YesSelected {
		yes, no = v.theme.ApprovalButtonActive, v.theme.ApprovalButton
	}
	buttons := yes.Render("[y] approve") + no.Render("[n] deny")

	parts := []string{title, tool}
	if detail != "" {
		parts = append(parts, detail)
	}
	parts = append(parts, buttons)

	return v.theme.ApprovalBox.Render(strings.Join(parts, "\n"))
}
