// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders saved conversations to shareable formats.
//
// Three formats are supported:
//
//   - Markdown: human-readable, with tool traces and citation footnotes
//   - HTML: self-contained page with embedded CSS and a theme toggle
//   - JSON: the complete stored conversation document, re-importable
//
// Markdown and HTML exports can filter tool call traces via Options;
// JSON always exports everything.
//
// # Usage
//
//	conv := storage.Snapshot(st, cfg.Model)
//	path, err := export.ExportConversation(conv, "markdown", nil)
package export
