// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides the visual building blocks of the strand
// TUI: message rendering (glamour markdown with citations and version
// badges), tool call traces, chroma-highlighted code blocks, the MCP
// approval prompt, spinners, the status bar, and the slash-command
// completion popup.
//
// Components are plain structs with a View() method; state lives in the
// chat model, not here. Everything renders through the shared
// styles.Theme so light/dark adaptation happens in one place.
package components
