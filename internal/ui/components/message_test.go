// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"

	"github.com/jeranaias/strand/internal/model"
	"github.com/jeranaias/strand/internal/ui/styles"
)

func TestMessageView_User(t *testing.T) {
	theme := styles.NewTheme()
	msg := model.NewMessageItem(model.RoleUser, "input_text", "hello there")

	out := NewMessageView(msg, theme).View()
	if !strings.Contains(out, "you") {
		t.Error("role label missing")
	}
	if !strings.Contains(out, "hello there") {
		t.Error("body missing")
	}
}

func TestMessageView_StreamingShowsCursor(t *testing.T) {
	theme := styles.NewTheme()
	msg := model.NewMessageItem(model.RoleAssistant, "output_text", "partial rep")

	v := NewMessageView(msg, theme)
	v.Streaming = true
	out := v.View()
	if !strings.Contains(out, "partial rep") {
		t.Error("streaming body missing")
	}
	if !strings.Contains(out, "_") {
		t.Error("streaming cursor missing")
	}
}

func TestMessageView_Citations(t *testing.T) {
	theme := styles.NewTheme()
	msg := model.NewMessageItem(model.RoleAssistant, "output_text", "see sources")
	msg.AddCitation(model.Citation{Type: "url_citation", URL: "https://example.com", Title: "Example"})
	msg.AddCitation(model.Citation{Type: "container_file_citation", Filename: "plot.png"})

	v := NewMessageView(msg, theme)
	v.Streaming = true // plain render path keeps the assertion simple
	out := v.View()

	for _, want := range []string{"sources:", "Example", "plot.png"} {
		if !strings.Contains(out, want) {
			t.Errorf("citations missing %q:\n%s", want, out)
		}
	}
}

func TestMessageView_VersionBadge(t *testing.T) {
	theme := styles.NewTheme()
	msg := model.NewMessageItem(model.RoleAssistant, "output_text", "first")
	msg.EnsureVersions(msg.Content)
	msg.Versions = append(msg.Versions, model.MessageVersion{
		ID:      model.NewVersionID(model.VersionAnnotation),
		Content: model.TextContent("output_text", "second"),
		Source:  model.VersionAnnotation,
	})
	msg.CurrentVersionID = msg.Versions[1].ID
	msg.Content = model.CloneContent(msg.Versions[1].Content)

	v := NewMessageView(msg, theme)
	v.Streaming = true
	out := v.View()

	if !strings.Contains(out, "v2/2") {
		t.Errorf("version badge missing:\n%s", out)
	}
	if !strings.Contains(out, "annotation") {
		t.Errorf("version source missing:\n%s", out)
	}
}

func TestCitationLabel(t *testing.T) {
	tests := []struct {
		name string
		c    model.Citation
		want string
	}{
		{"title and url", model.Citation{Title: "T", URL: "https://u"}, "T - https://u"},
		{"url only", model.Citation{URL: "https://u"}, "https://u"},
		{"filename", model.Citation{Filename: "f.png"}, "f.png"},
		{"file id", model.Citation{FileID: "cfile_1"}, "cfile_1"},
		{"type fallback", model.Citation{Type: "url_citation"}, "url_citation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := citationLabel(tt.c); got != tt.want {
				t.Errorf("citationLabel = %q, want %q", got, tt.want)
			}
		})
	}
}
