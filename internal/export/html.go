// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/jeranaias/strand/internal/model"
	"github.com/jeranaias/strand/internal/storage"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations to HTML format with embedded CSS.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// Export converts a conversation to HTML format.
func (e *HTMLExporter) Export(conv *storage.StoredConversation) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}
	if len(conv.Items) == 0 {
		return nil, fmt.Errorf("conversation has no items")
	}

	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", html.EscapeString(conv.Summary)))
	sb.WriteString("    <meta name=\"generator\" content=\"strand\">\n")
	sb.WriteString(fmt.Sprintf("    <meta name=\"date\" content=\"%s\">\n", conv.CreatedAt.Format(time.RFC3339)))

	sb.WriteString(e.getCSS())

	sb.WriteString("</head>\n")
	sb.WriteString(fmt.Sprintf("<body class=\"%s-theme\">\n", e.options.Theme))

	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		sb.WriteString(e.renderHeader(conv))
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for _, item := range conv.Items {
		sb.WriteString(e.renderItem(item))
	}
	sb.WriteString("        </main>\n")

	sb.WriteString("        <footer class=\"footer\">\n")
	sb.WriteString(fmt.Sprintf("            <p>Exported from <strong>strand</strong> on %s</p>\n",
		time.Now().Format("January 2, 2006 at 3:04 PM")))
	sb.WriteString("        </footer>\n")

	sb.WriteString("    </div>\n")

	sb.WriteString(e.getScript())

	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

// renderHeader renders the header section with metadata.
func (e *HTMLExporter) renderHeader(conv *storage.StoredConversation) string {
	var sb strings.Builder

	sb.WriteString("        <header class=\"header\">\n")
	sb.WriteString(fmt.Sprintf("            <h1>%s</h1>\n", html.EscapeString(conv.Summary)))
	sb.WriteString("            <div class=\"metadata\">\n")
	sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Model:</strong> %s</span>\n", html.EscapeString(conv.Model)))
	sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Created:</strong> %s</span>\n", formatTimestamp(conv.CreatedAt)))
	sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Items:</strong> %d</span>\n", len(conv.Items)))
	sb.WriteString("                <button class=\"theme-toggle\" onclick=\"toggleTheme()\" title=\"Toggle theme\">[Theme]</button>\n")
	sb.WriteString("            </div>\n")
	sb.WriteString("        </header>\n")

	return sb.String()
}

// renderItem renders one transcript item.
func (e *HTMLExporter) renderItem(item storage.StoredItem) string {
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
		return fmt.Sprintf("            <div class=\"message tool-message\">\n                <div class=\"message-header\"><span class=\"role-label\">[Approval Request]</span></div>\n                <div class=\"message-content\"><p><code>%s</code> on server <code>%s</code></p></div>\n            </div>\n",
			html.EscapeString(item.McpApprovalRequest.Name), html.EscapeString(item.McpApprovalRequest.ServerLabel))
	}
	return ""
}

// renderMessage renders a single message.
func (e *HTMLExporter) renderMessage(msg *model.MessageItem) string {
	var sb strings.Builder

	roleClass := strings.ToLower(string(msg.Role))
	sb.WriteString(fmt.Sprintf("            <div class=\"message %s-message\">\n", roleClass))

	sb.WriteString("                <div class=\"message-header\">\n")
	sb.WriteString(fmt.Sprintf("                    <span class=\"role-label\">%s</span>\n", roleLabel(msg.Role)))
	if e.options.IncludeMetadata && len(msg.Versions) > 1 {
		if current := msg.CurrentVersion(); current != nil && current.Source != model.VersionOriginal {
			sb.WriteString(fmt.Sprintf("                    <span class=\"timestamp\">revision: %s</span>\n", current.Source))
		}
	}
	sb.WriteString("                </div>\n")

	sb.WriteString("                <div class=\"message-content\">\n")
	sb.WriteString(e.formatContent(msg.Text()))
	sb.WriteString("                </div>\n")

	if citations := e.renderCitations(msg); citations != "" {
		sb.WriteString(citations)
	}

	sb.WriteString("            </div>\n")

	return sb.String()
}

// renderCitations renders a message's citation list.
func (e *HTMLExporter) renderCitations(msg *model.MessageItem) string {
	if len(msg.Content) == 0 || len(msg.Content[0].Annotations) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("                <div class=\"citations\">\n")
	for _, c := range msg.Content[0].Annotations {
		switch {
		case c.URL != "":
			title := c.Title
			if title == "" {
				title = c.URL
			}
			sb.WriteString(fmt.Sprintf("                    <a class=\"citation\" href=\"%s\">%s</a>\n",
				html.EscapeString(c.URL), html.EscapeString(title)))
		case c.Filename != "":
			sb.WriteString(fmt.Sprintf("                    <span class=\"citation\">%s</span>\n", html.EscapeString(c.Filename)))
		case c.FileID != "":
			sb.WriteString(fmt.Sprintf("                    <span class=\"citation\">%s</span>\n", html.EscapeString(c.FileID)))
		}
	}
	sb.WriteString("                </div>\n")
	return sb.String()
}

// renderToolCall renders a tool call trace.
func (e *HTMLExporter) renderToolCall(tc *model.ToolCallItem) string {
	var sb strings.Builder

	sb.WriteString("            <div class=\"message tool-message\">\n")
	sb.WriteString("                <div class=\"message-header\">\n")
	sb.WriteString(fmt.Sprintf("                    <span class=\"role-label\">[Tool: %s]</span>\n", html.EscapeString(toolLabel(tc))))

	statusClass := "success"
	if tc.Status == model.StatusFailed {
		statusClass = "error"
	}
	sb.WriteString(fmt.Sprintf("                    <span class=\"timestamp %s\">%s</span>\n", statusClass, tc.Status))
	sb.WriteString("                </div>\n")

	sb.WriteString("                <div class=\"message-content\">\n")
	if tc.Arguments != "" {
		sb.WriteString("<p><strong>Arguments:</strong></p>\n")
		sb.WriteString(fmt.Sprintf("<pre><code>%s</code></pre>\n", html.EscapeString(tc.Arguments)))
	}
	if tc.Code != "" {
		sb.WriteString("<p><strong>Code:</strong></p>\n")
		sb.WriteString(fmt.Sprintf("<pre><code>%s</code></pre>\n", html.EscapeString(tc.Code)))
	}
	if tc.Output != "" {
		sb.WriteString("<p><strong>Result:</strong></p>\n")
		sb.WriteString(fmt.Sprintf("<pre><code>%s</code></pre>\n", html.EscapeString(tc.Output)))
	}
	if len(tc.Files) > 0 {
		sb.WriteString("<p><strong>Files:</strong></p>\n<ul>\n")
		for _, f := range tc.Files {
			name := f.Filename
			if name == "" {
				name = f.FileID
			}
			sb.WriteString(fmt.Sprintf("<li><code>%s</code> (%s)</li>\n", html.EscapeString(name), html.EscapeString(f.MimeType)))
		}
		sb.WriteString("</ul>\n")
	}
	sb.WriteString("                </div>\n")
	sb.WriteString("            </div>\n")

	return sb.String()
}

// renderMcpListTools renders a remote server's tool listing.
func (e *HTMLExporter) renderMcpListTools(lt *model.McpListToolsItem) string {
	var sb strings.Builder
	sb.WriteString("            <div class=\"message tool-message\">\n")
	sb.WriteString(fmt.Sprintf("                <div class=\"message-header\"><span class=\"role-label\">[Server: %s]</span></div>\n",
		html.EscapeString(lt.ServerLabel)))
	sb.WriteString("                <div class=\"message-content\">\n<ul>\n")
	for _, tool := range lt.Tools {
		if tool.Description != "" {
			sb.WriteString(fmt.Sprintf("<li><code>%s</code> — %s</li>\n",
				html.EscapeString(tool.Name), html.EscapeString(tool.Description)))
		} else {
			sb.WriteString(fmt.Sprintf("<li><code>%s</code></li>\n", html.EscapeString(tool.Name)))
		}
	}
	sb.WriteString("</ul>\n                </div>\n")
	sb.WriteString("            </div>\n")
	return sb.String()
}

// =============================================================================
// CONTENT FORMATTING
// =============================================================================

// formatContent formats message content with code block handling.
func (e *HTMLExporter) formatContent(content string) string {
	// Escape first so nothing in the body can inject markup.
	content = html.EscapeString(content)

	// Handle code blocks with language specification.
	codeBlockRegex := regexp.MustCompile("```([a-zA-Z0-9_+-]*)\n([\\s\\S]*?)```")
	content = codeBlockRegex.ReplaceAllStringFunc(content, func(match string) string {
		parts := codeBlockRegex.FindStringSubmatch(match)
		if len(parts) != 3 {
			return match
		}
		lang := parts[1]
		code := parts[2]

		langLabel := ""
		if lang != "" {
			langLabel = fmt.Sprintf("<div class=\"code-lang\">%s</div>", html.EscapeString(lang))
		}

		return fmt.Sprintf("<div class=\"code-block\">%s<pre><code class=\"language-%s\">%s</code></pre></div>",
			langLabel, html.EscapeString(lang), strings.TrimSpace(code))
	})

	// Handle inline code.
	inlineCodeRegex := regexp.MustCompile("`([^`]+)`")
	content = inlineCodeRegex.ReplaceAllString(content, "<code class=\"inline-code\">$1</code>")

	// Wrap plain lines in paragraphs while leaving code block markup alone.
	lines := strings.Split(content, "\n")
	var formatted []string
	inParagraph := false

	for i, line := range lines {
		line = strings.TrimSpace(line)

		if strings.Contains(line, "<div class=\"code-block\">") ||
			strings.Contains(line, "</div>") ||
			strings.Contains(line, "<pre>") ||
			strings.Contains(line, "</pre>") {
			formatted = append(formatted, lines[i])
			inParagraph = false
			continue
		}

		if line == "" {
			if inParagraph {
				formatted = append(formatted, "</p>")
				inParagraph = false
			}
			formatted = append(formatted, "")
		} else {
			if !inParagraph && !strings.HasPrefix(line, "<") {
				formatted = append(formatted, "<p>"+line)
				inParagraph = true
			} else {
				formatted = append(formatted, line)
			}
		}
	}

	if inParagraph {
		formatted = append(formatted, "</p>")
	}

	return strings.Join(formatted, "\n")
}

// =============================================================================
// EMBEDDED CSS
// =============================================================================

// getCSS returns the embedded CSS for the HTML export.
func (e *HTMLExporter) getCSS() string {
	return `    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }

        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
            --font-mono: "SF Mono", "Monaco", "Inconsolata", "Fira Code", "Source Code Pro", monospace;
        }

        .dark-theme {
            --bg-primary: #1a1b26;
            --bg-secondary: #24283b;
            --bg-tertiary: #414868;
            --text-primary: #c0caf5;
            --text-secondary: #a9b1d6;
            --text-muted: #565f89;
            --border-color: #414868;
            --user-bg: #1f2335;
            --assistant-bg: #24283b;
            --code-bg: #1a1b26;
            --accent-blue: #7aa2f7;
            --accent-green: #9ece6a;
            --accent-purple: #bb9af7;
            --accent-red: #f7768e;
        }

        .light-theme {
            --bg-primary: #ffffff;
            --bg-secondary: #f7f8fa;
            --bg-tertiary: #e1e4e8;
            --text-primary: #24292e;
            --text-secondary: #586069;
            --text-muted: #6a737d;
            --border-color: #e1e4e8;
            --user-bg: #f6f8fa;
            --assistant-bg: #ffffff;
            --code-bg: #f6f8fa;
            --accent-blue: #0366d6;
            --accent-green: #22863a;
            --accent-purple: #6f42c1;
            --accent-red: #d73a49;
        }

        body {
            font-family: var(--font-sans);
            font-size: 16px;
            line-height: 1.6;
            color: var(--text-primary);
            background: var(--bg-primary);
            padding: 20px;
            transition: background 0.3s ease, color 0.3s ease;
        }

        .container {
            max-width: 900px;
            margin: 0 auto;
            background: var(--bg-secondary);
            border-radius: 12px;
            box-shadow: 0 4px 6px rgba(0, 0, 0, 0.1);
            overflow: hidden;
        }

        .header {
            padding: 32px;
            background: var(--bg-tertiary);
            border-bottom: 2px solid var(--border-color);
        }

        .header h1 {
            font-size: 28px;
            font-weight: 700;
            margin-bottom: 16px;
            color: var(--text-primary);
        }

        .metadata {
            display: flex;
            flex-wrap: wrap;
            gap: 16px;
            font-size: 14px;
            color: var(--text-secondary);
            align-items: center;
        }

        .meta-item {
            display: inline-flex;
            align-items: center;
            gap: 4px;
        }

        .theme-toggle {
            margin-left: auto;
            background: var(--bg-secondary);
            border: 1px solid var(--border-color);
            border-radius: 6px;
            padding: 6px 12px;
            cursor: pointer;
            font-size: 14px;
            transition: all 0.2s ease;
        }

        .theme-toggle:hover {
            background: var(--bg-primary);
        }

        .conversation {
            padding: 24px 32px;
        }

        .message {
            margin-bottom: 24px;
            padding: 20px;
            border-radius: 8px;
            border-left: 4px solid transparent;
        }

        .user-message {
            background: var(--user-bg);
            border-left-color: var(--accent-blue);
        }

        .assistant-message {
            background: var(--assistant-bg);
            border-left-color: var(--accent-green);
        }

        .system-message {
            background: var(--bg-tertiary);
            border-left-color: var(--accent-purple);
        }

        .tool-message {
            background: var(--bg-tertiary);
            border-left-color: var(--accent-purple);
        }

        .message-header {
            display: flex;
            justify-content: space-between;
            align-items: center;
            margin-bottom: 12px;
            font-size: 14px;
        }

        .role-label {
            font-weight: 600;
            color: var(--text-primary);
        }

        .timestamp {
            color: var(--text-muted);
            font-size: 13px;
            font-family: var(--font-mono);
        }

        .message-content {
            color: var(--text-primary);
            line-height: 1.7;
        }

        .message-content p {
            margin-bottom: 12px;
        }

        .message-content p:last-child {
            margin-bottom: 0;
        }

        .code-block {
            margin: 16px 0;
            border-radius: 8px;
            overflow: hidden;
            background: var(--code-bg);
            border: 1px solid var(--border-color);
        }

        .code-lang {
            padding: 8px 16px;
            background: var(--bg-tertiary);
            font-size: 12px;
            font-weight: 600;
            color: var(--text-secondary);
            text-transform: uppercase;
            letter-spacing: 0.5px;
        }

        .code-block pre {
            margin: 0;
            padding: 16px;
            overflow-x: auto;
        }

        .code-block code {
            font-family: var(--font-mono);
            font-size: 14px;
            line-height: 1.5;
            color: var(--text-primary);
        }

        .inline-code {
            font-family: var(--font-mono);
            font-size: 14px;
            padding: 2px 6px;
            background: var(--code-bg);
            border: 1px solid var(--border-color);
            border-radius: 4px;
            color: var(--accent-purple);
        }

        .citations {
            margin-top: 12px;
            padding-top: 12px;
            border-top: 1px solid var(--border-color);
            display: flex;
            flex-wrap: wrap;
            gap: 8px;
            font-size: 13px;
        }

        .citation {
            padding: 2px 8px;
            background: var(--code-bg);
            border: 1px solid var(--border-color);
            border-radius: 10px;
            color: var(--accent-blue);
            text-decoration: none;
        }

        .footer {
            padding: 20px 32px;
            text-align: center;
            font-size: 14px;
            color: var(--text-muted);
            border-top: 1px solid var(--border-color);
        }

        .success {
            color: var(--accent-green);
        }

        .error {
            color: var(--accent-red);
        }

        @media print {
            body {
                padding: 0;
            }

            .container {
                box-shadow: none;
                border-radius: 0;
            }

            .theme-toggle {
                display: none;
            }

            .message {
                page-break-inside: avoid;
            }
        }

        @media (max-width: 768px) {
            body {
                padding: 10px;
            }

            .header, .conversation, .footer {
                padding: 16px;
            }

            .message {
                padding: 16px;
            }
        }
    </style>
`
}

// =============================================================================
// EMBEDDED JAVASCRIPT
// =============================================================================

// getScript returns the embedded JavaScript for theme toggling.
func (e *HTMLExporter) getScript() string {
	return `    <script>
        function toggleTheme() {
            const body = document.body;
            if (body.classList.contains('dark-theme')) {
                body.classList.remove('dark-theme');
                body.classList.add('light-theme');
                localStorage.setItem('theme', 'light');
            } else {
                body.classList.remove('light-theme');
                body.classList.add('dark-theme');
                localStorage.setItem('theme', 'dark');
            }
        }

        document.addEventListener('DOMContentLoaded', function() {
            const savedTheme = localStorage.getItem('theme');
            if (savedTheme) {
                document.body.classList.remove('dark-theme', 'light-theme');
                document.body.classList.add(savedTheme + '-theme');
            }
        });
    </script>
`
}
