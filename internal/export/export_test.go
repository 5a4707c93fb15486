// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/strand/internal/model"
	"github.com/jeranaias/strand/internal/storage"
)

// testConversation builds a conversation with a message exchange, a web
// search citation, and a function call trace.
func testConversation() *storage.StoredConversation {
	assistant := model.NewMessageItem(model.RoleAssistant, "output_text", "It is 8 C in Oslo.")
	assistant.AddCitation(model.Citation{
		Type:  "url_citation",
		URL:   "https://weather.example.com/oslo",
		Title: "Oslo forecast",
	})

	return &storage.StoredConversation{
		ID:        "conv_test1",
		Summary:   "what's the weather in Oslo?",
		Model:     "gpt-4.1",
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC),
		Items: []storage.StoredItem{
			{Kind: "message", Message: model.NewMessageItem(model.RoleUser, "input_text", "what's the weather in Oslo?")},
			{Kind: "tool_call", ToolCall: &model.ToolCallItem{
				ToolType:  model.ToolFunction,
				Status:    model.StatusCompleted,
				ID:        "fc_1",
				Name:      "get_weather",
				CallID:    "call_1",
				Arguments: `{"location":"Oslo"}`,
				Output:    `{"temperature":"8 C"}`,
			}},
			{Kind: "message", Message: assistant},
		},
	}
}

// =============================================================================
// MARKDOWN
// =============================================================================

func TestMarkdownExport(t *testing.T) {
	out, err := NewMarkdownExporter(nil).Export(testConversation())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	md := string(out)

	for _, want := range []string{
		"title:",
		"model: gpt-4.1",
		"generator: strand",
		"### [User]",
		"### [Assistant]",
		"It is 8 C in Oslo.",
		"### [Tool: get_weather]",
		"```json",
		`{"location":"Oslo"}`,
		"[Oslo forecast](https://weather.example.com/oslo)",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestMarkdownExport_SkipsToolCallsWhenDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.IncludeToolCalls = false

	out, err := NewMarkdownExporter(opts).Export(testConversation())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if strings.Contains(string(out), "get_weather") {
		t.Error("tool trace should be excluded")
	}
	if !strings.Contains(string(out), "It is 8 C in Oslo.") {
		t.Error("messages must survive filtering")
	}
}

func TestMarkdownExport_RevisionNote(t *testing.T) {
	conv := testConversation()
	msg := conv.Items[2].Message
	msg.EnsureVersions(msg.Content)
	msg.Versions = append(msg.Versions, model.MessageVersion{
		ID:      model.NewVersionID(model.VersionAnnotation),
		Content: model.TextContent("output_text", "Rainy, 8 C."),
		Source:  model.VersionAnnotation,
	})
	msg.CurrentVersionID = msg.Versions[1].ID
	msg.Content = model.CloneContent(msg.Versions[1].Content)

	out, err := NewMarkdownExporter(nil).Export(conv)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(string(out), "Revision: annotation (2 versions)") {
		t.Errorf("revision note missing:\n%s", out)
	}
}

func TestMarkdownExport_EmptyConversation(t *testing.T) {
	if _, err := NewMarkdownExporter(nil).Export(&storage.StoredConversation{}); err == nil {
		t.Fatal("empty conversation must error")
	}
	if _, err := NewMarkdownExporter(nil).Export(nil); err == nil {
		t.Fatal("nil conversation must error")
	}
}

// =============================================================================
// ESCAPING
// =============================================================================

func TestEscapeYAML_NewlinesAndQuotes(t *testing.T) {
	got := escapeYAML("line1\nline2 \"quoted\"")
	if strings.Contains(got, "\n") {
		t.Errorf("raw newline survives: %q", got)
	}
	if !strings.HasPrefix(got, "\"") || !strings.HasSuffix(got, "\"") {
		t.Errorf("special value must be quoted: %q", got)
	}
	if !strings.Contains(got, `\n`) || !strings.Contains(got, `\"`) {
		t.Errorf("escapes missing: %q", got)
	}
}

func TestEscapeYAML_PlainValue(t *testing.T) {
	if got := escapeYAML("plain summary"); got != "plain summary" {
		t.Errorf("plain value changed: %q", got)
	}
}

func TestHTMLExport_EscapesScript(t *testing.T) {
	conv := testConversation()
	conv.Summary = `<script>alert("xss")</script>`
	conv.Items[0].Message.SetText(`<img src=x onerror=alert(1)>`)

	out, err := NewHTMLExporter(nil).Export(conv)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	page := string(out)
	if strings.Contains(page, `<script>alert`) {
		t.Error("summary script not escaped")
	}
	if strings.Contains(page, "<img src=x") {
		t.Error("message markup not escaped")
	}
}

// =============================================================================
// HTML
// =============================================================================

func TestHTMLExport(t *testing.T) {
	out, err := NewHTMLExporter(nil).Export(testConversation())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	page := string(out)

	for _, want := range []string{
		"<!DOCTYPE html>",
		`content="strand"`,
		"dark-theme",
		"[User]",
		"[Assistant]",
		"[Tool: get_weather]",
		`href="https://weather.example.com/oslo"`,
		"Oslo forecast",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestHTMLExport_CodeBlocks(t *testing.T) {
	conv := testConversation()
	conv.Items[2].Message.SetText("Here:\n```go\nfmt.Println(\"hi\")\n```\nDone.")

	out, err := NewHTMLExporter(nil).Export(conv)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	page := string(out)
	if !strings.Contains(page, `class="code-lang">go</div>`) {
		t.Error("code language label missing")
	}
	if !strings.Contains(page, `class="language-go"`) {
		t.Error("language class missing")
	}
}

// =============================================================================
// JSON
// =============================================================================

func TestJSONExport_RoundTrips(t *testing.T) {
	conv := testConversation()
	out, err := NewJSONExporter(nil).Export(conv)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	var back storage.StoredConversation
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != conv.ID || len(back.Items) != len(conv.Items) {
		t.Errorf("round trip lost data: %+v", back)
	}
	if back.Items[1].ToolCall == nil || back.Items[1].ToolCall.Name != "get_weather" {
		t.Errorf("tool trace lost: %+v", back.Items[1])
	}
}

// =============================================================================
// FILE OUTPUT
// =============================================================================

func TestExportToFile(t *testing.T) {
	opts := DefaultOptions()
	opts.OutputDir = t.TempDir()
	opts.OpenAfterExport = false

	path, err := ExportConversation(testConversation(), "markdown", opts)
	if err != nil {
		t.Fatalf("ExportConversation: %v", err)
	}
	if !strings.HasSuffix(path, ".md") {
		t.Errorf("path = %q", path)
	}
	if !strings.Contains(path, "what's_the_weather") {
		t.Errorf("summary not in filename: %q", path)
	}
}

func TestExportConversation_UnknownFormat(t *testing.T) {
	if _, err := ExportConversation(testConversation(), "pdf", nil); err == nil {
		t.Fatal("unknown format must error")
	}
}

func TestSanitizeFilename(t *testing.T) {
	got := sanitizeFilename(`a/b\c:d?e "f" <g>|h i`)
	if strings.ContainsAny(got, `/\:?"<>| `) {
		t.Errorf("unsafe characters survive: %q", got)
	}
	if sanitizeFilename("") != "conversation" {
		t.Error("empty summary must fall back")
	}
}
