// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/strand/internal/model"
	"github.com/jeranaias/strand/internal/storage"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a conversation to Markdown format.
func (e *MarkdownExporter) Export(conv *storage.StoredConversation) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}
	if len(conv.Items) == 0 {
		return nil, fmt.Errorf("conversation has no items")
	}

	var sb strings.Builder

	// YAML frontmatter with metadata
	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		sb.WriteString(fmt.Sprintf("title: %s\n", escapeYAML(conv.Summary)))
		sb.WriteString(fmt.Sprintf("model: %s\n", conv.Model))
		sb.WriteString(fmt.Sprintf("date: %s\n", conv.CreatedAt.Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("updated: %s\n", conv.UpdatedAt.Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("items: %d\n", len(conv.Items)))
		sb.WriteString(fmt.Sprintf("exported: %s\n", time.Now().Format(time.RFC3339)))
		sb.WriteString("generator: strand\n")
		sb.WriteString("---\n\n")
	}

	// Title
	sb.WriteString(fmt.Sprintf("# %s\n\n", escapeMarkdown(conv.Summary)))

	// Metadata section
	if e.options.IncludeMetadata {
		sb.WriteString("## Session Information\n\n")
		sb.WriteString(fmt.Sprintf("- **Model**: %s\n", conv.Model))
		sb.WriteString(fmt.Sprintf("- **Created**: %s\n", formatTimestamp(conv.CreatedAt)))
		sb.WriteString(fmt.Sprintf("- **Last Updated**: %s\n", formatTimestamp(conv.UpdatedAt)))
		sb.WriteString(fmt.Sprintf("- **Items**: %d\n", len(conv.Items)))
		sb.WriteString("\n---\n\n")
	}

	// Conversation items
	sb.WriteString("## Conversation\n\n")

	rendered := 0
	for _, item := range conv.Items {
		section := e.renderItem(item)
		if section == "" {
			continue
		}
		if rendered > 0 {
			sb.WriteString("---\n\n")
		}
		sb.WriteString(section)
		rendered++
	}

	// Footer
	sb.WriteString("\n---\n\n")
	sb.WriteString(fmt.Sprintf("*Exported from strand on %s*\n",
		time.Now().Format("January 2, 2006 at 3:04 PM")))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// ITEM RENDERING
// =============================================================================

// renderItem renders one transcript item, or returns "" when the item is
// excluded by options.
func (e *MarkdownExporter) renderItem(item storage.StoredItem) string {
	switch {
	case item.Message != nil:
		return e.renderMessage(item.Message)
	case item.ToolCall != nil:
		if !e.options.IncludeToolCalls {
			return ""
		}
		return e.renderToolCall(item.ToolCall)
	case item.McpListTools != nil:
		if !e.options.IncludeToolCalls {
			return ""
		}
		return e.renderMcpListTools(item.McpListTools)
	case item.McpApprovalRequest != nil:
		if !e.options.IncludeToolCalls {
			return ""
		}
		return fmt.Sprintf("### [Approval Request]\n\n`%s` on server `%s`\n\n",
			item.McpApprovalRequest.Name, item.McpApprovalRequest.ServerLabel)
	}
	return ""
}

// renderMessage renders a message with its citations and version note.
func (e *MarkdownExporter) renderMessage(msg *model.MessageItem) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("### %s\n\n", roleLabel(msg.Role)))
	sb.WriteString(strings.TrimSpace(msg.Text()))
	sb.WriteString("\n\n")

	// Citations as a footnote list.
	if len(msg.Content) > 0 && len(msg.Content[0].Annotations) > 0 {
		sb.WriteString("**Sources**:\n\n")
		for _, c := range msg.Content[0].Annotations {
			switch {
			case c.URL != "":
				title := c.Title
				if title == "" {
					title = c.URL
				}
				sb.WriteString(fmt.Sprintf("- [%s](%s)\n", escapeMarkdown(title), c.URL))
			case c.Filename != "":
				sb.WriteString(fmt.Sprintf("- `%s`\n", c.Filename))
			case c.FileID != "":
				sb.WriteString(fmt.Sprintf("- `%s`\n", c.FileID))
			}
		}
		sb.WriteString("\n")
	}

	// Revision note for messages that were replaced or edited.
	if e.options.IncludeMetadata && len(msg.Versions) > 1 {
		current := msg.CurrentVersion()
		if current != nil && current.Source != model.VersionOriginal {
			sb.WriteString(fmt.Sprintf("<sub>Revision: %s (%d versions)</sub>\n\n",
				current.Source, len(msg.Versions)))
		}
	}

	return sb.String()
}

// renderToolCall renders a tool call trace with its arguments and output.
func (e *MarkdownExporter) renderToolCall(tc *model.ToolCallItem) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("### [Tool: %s]\n\n", toolLabel(tc)))
	sb.WriteString(fmt.Sprintf("**Status**: %s\n\n", tc.Status))

	if tc.Arguments != "" {
		sb.WriteString("**Arguments**:\n```json\n")
		sb.WriteString(strings.TrimSpace(tc.Arguments))
		sb.WriteString("\n```\n\n")
	}
	if tc.Code != "" {
		sb.WriteString("**Code**:\n```python\n")
		sb.WriteString(strings.TrimSpace(tc.Code))
		sb.WriteString("\n```\n\n")
	}
	if tc.Output != "" {
		status := "[OK]"
		if tc.Status == model.StatusFailed {
			status = "[FAIL]"
		}
		sb.WriteString(fmt.Sprintf("**Result** %s:\n```\n", status))
		sb.WriteString(strings.TrimSpace(tc.Output))
		sb.WriteString("\n```\n\n")
	}
	if len(tc.Files) > 0 {
		sb.WriteString("**Files**:\n\n")
		for _, f := range tc.Files {
			name := f.Filename
			if name == "" {
				name = f.FileID
			}
			sb.WriteString(fmt.Sprintf("- `%s` (%s)\n", name, f.MimeType))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// renderMcpListTools renders a remote server's tool listing.
func (e *MarkdownExporter) renderMcpListTools(lt *model.McpListToolsItem) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("### [Server: %s]\n\n", lt.ServerLabel))
	for _, tool := range lt.Tools {
		if tool.Description != "" {
			sb.WriteString(fmt.Sprintf("- `%s` — %s\n", tool.Name, tool.Description))
		} else {
			sb.WriteString(fmt.Sprintf("- `%s`\n", tool.Name))
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

// =============================================================================
// LABEL HELPERS
// =============================================================================

// roleLabel returns a formatted label for a message role.
func roleLabel(role model.Role) string {
	switch role {
	case model.RoleUser:
		return "[User]"
	case model.RoleAssistant:
		return "[Assistant]"
	case model.RoleSystem:
		return "[System]"
	case "":
		return "Unknown"
	default:
		runes := []rune(string(role))
		return strings.ToUpper(string(runes[0])) + string(runes[1:])
	}
}

// toolLabel returns a display name for a tool call trace.
func toolLabel(tc *model.ToolCallItem) string {
	if tc.Name != "" {
		return tc.Name
	}
	switch tc.ToolType {
	case model.ToolWebSearch:
		return "web search"
	case model.ToolFileSearch:
		return "file search"
	case model.ToolCodeInterpreter:
		return "code interpreter"
	case model.ToolMcp:
		return "remote tool"
	default:
		return string(tc.ToolType)
	}
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML escapes special YAML characters in values.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
