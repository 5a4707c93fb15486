// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles defines the lipgloss theme for the strand TUI.
//
// Colors are AdaptiveColor pairs so the same theme works on light and
// dark terminals; termenv detects the color profile at startup. The
// Theme struct groups ready-to-use styles per surface (messages, tool
// traces, input, status bar, approval prompt, annotation overlay).
package styles
