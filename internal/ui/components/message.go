// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/strand/internal/model"
	"github.com/jeranaias/strand/internal/ui/styles"
)

// =============================================================================
// MARKDOWN RENDERER
// =============================================================================

// markdownRenderer caches glamour renderers per wrap width. Building a
// TermRenderer is expensive; message re-renders at a stable width are not.
type markdownRenderer struct {
	mu       sync.Mutex
	width    int
	renderer *glamour.TermRenderer
}

var sharedMarkdown markdownRenderer

// RenderMarkdown renders markdown for terminal display at the given
// wrap width. Falls back to the raw text when glamour fails.
func RenderMarkdown(text string, width int) string {
	if width < 20 {
		width = 20
	}

	sharedMarkdown.mu.Lock()
	defer sharedMarkdown.mu.Unlock()

	if sharedMarkdown.renderer == nil || sharedMarkdown.width != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return text
		}
		sharedMarkdown.renderer = r
		sharedMarkdown.width = width
	}

	out, err := sharedMarkdown.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

// =============================================================================
// MESSAGE VIEW
// =============================================================================

// MessageView renders one transcript message: role header, body,
// citations, and version badge.
type MessageView struct {
	Message   *model.MessageItem
	Width     int
	Streaming bool
	Selected  bool
	theme     *styles.Theme
}

// NewMessageView creates a message view at a default width.
func NewMessageView(msg *model.MessageItem, theme *styles.Theme) *MessageView {
	return &MessageView{
		Message: msg,
		Width:   80,
		theme:   theme,
	}
}

// SetWidth sets the render width.
func (v *MessageView) SetWidth(width int) {
	v.Width = width
}

// View renders the message.
func (v *MessageView) View() string {
	if v.Message == nil {
		return ""
	}
	switch v.Message.Role {
	case model.RoleUser:
		return v.renderUser()
	default:
		return v.renderAssistant()
	}
}

func (v *MessageView) renderUser() string {
	text := v.Message.Text()
	if text == "" {
		text = "..."
	}

	width := v.contentWidth()
	body := v.theme.UserBubble.Render(WordWrap(text, width))

	header := v.headerLine("you")
	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}

func (v *MessageView) renderAssistant() string {
	text := v.Message.Text()

	var body string
	if v.Streaming {
		// Markdown re-rendering mid-stream flickers on unclosed fences,
		// so streaming text stays plain until the message completes.
		if text == "" {
			text = "..."
		}
		cursor := lipgloss.NewStyle().Foreground(styles.Purple).Render("_")
		body = v.theme.AssistantBubble.Render(WordWrap(text, v.contentWidth()) + cursor)
	} else {
		if text == "" {
			text = "..."
		}
		body = v.theme.AssistantBubble.Render(RenderMarkdown(text, v.contentWidth()))
	}

	parts := []string{v.headerLine("assistant"), body}
	if cites := v.renderCitations(); cites != "" {
		parts = append(parts, cites)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// headerLine renders the role label plus, when the message has revision
// history, a version badge like "v2/3 (annotation)".
func (v *MessageView) headerLine(role string) string {
	label := lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Italic(true).
		Render(role)

	badge := v.versionBadge()
	if badge == "" {
		return label
	}
	return label + " " + badge
}

func (v *MessageView) versionBadge() string {
	if len(v.Message.Versions) < 2 {
		return ""
	}

	current := 0
	for i, ver := range v.Message.Versions {
		if ver.ID == v.Message.CurrentVersionID {
			current = i
			break
		}
	}

	cur := v.Message.CurrentVersion()
	label := "v" + itoa(current+1) + "/" + itoa(len(v.Message.Versions))
	if cur != nil && cur.Source != model.VersionOriginal {
		label += " (" + string(cur.Source) + ")"
	}
	return v.theme.VersionBadge.Render(label)
}

// renderCitations lists the message's citations below the body.
func (v *MessageView) renderCitations() string {
	var cites []model.Citation
	for _, part := range v.Message.Content {
		cites = append(cites, part.Annotations...)
	}
	if len(cites) == 0 {
		return ""
	}

	labelStyle := lipgloss.NewStyle().Foreground(styles.TextMuted)
	var b strings.Builder
	b.WriteString(labelStyle.Render("sources:"))
	for i, c := range cites {
		b.WriteString("\n  ")
		b.WriteString(labelStyle.Render("[" + itoa(i+1) + "] "))
		b.WriteString(v.theme.Citation.Render(citationLabel(c)))
	}
	return b.String()
}

// citationLabel picks the most useful display string for a citation.
func citationLabel(c model.Citation) string {
	switch {
	case c.Title != "" && c.URL != "":
		return c.Title + " - " + c.URL
	case c.URL != "":
		return c.URL
	case c.Filename != "":
		return c.Filename
	case c.FileID != "":
		return c.FileID
	default:
		return c.Type
	}
}

func (v *MessageView) contentWidth() int {
	w := v.Width - 6
	if w < 20 {
		w = 20
	}
	return w
}

// itoa converts a small non-negative int without fmt.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
