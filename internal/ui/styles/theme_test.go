// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"
)

func TestNewTheme(t *testing.T) {
	th := NewTheme()
	if th == nil {
		t.Fatal("NewTheme returned nil")
	}
	// A few representative styles must be initialized.
	if th.UserBubble.GetPaddingLeft() == 0 {
		t.Error("UserBubble not initialized")
	}
	if !th.HeaderTitle.GetBold() {
		t.Error("HeaderTitle must be bold")
	}
}

func TestGetLayoutMode(t *testing.T) {
	tests := []struct {
		width int
		want  LayoutMode
	}{
		{40, LayoutNarrow},
		{59, LayoutNarrow},
		{60, LayoutMedium},
		{99, LayoutMedium},
		{100, LayoutWide},
		{200, LayoutWide},
	}

	th := NewTheme()
	for _, tt := range tests {
		th.SetSize(tt.width, 40)
		if got := th.GetLayoutMode(); got != tt.want {
			t.Errorf("width %d: mode = %v, want %v", tt.width, got, tt.want)
		}
	}
}

func TestStatusRenderers(t *testing.T) {
	if !strings.Contains(RenderSuccess("saved"), "[OK]") {
		t.Error("success indicator missing")
	}
	if !strings.Contains(RenderError("failed"), "[X]") {
		t.Error("error indicator missing")
	}
	if !strings.Contains(RenderWarning("careful"), "[!]") {
		t.Error("warning indicator missing")
	}
	if !strings.Contains(RenderInfo("note"), "note") {
		t.Error("info text missing")
	}
}
