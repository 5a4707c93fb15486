// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the interactive chat screen: a Bubble Tea
// model wrapping the shared transcript store, the turn processor, slash
// commands, annotation and version flows, and the MCP approval prompt.
//
// The turn processor runs on its own goroutine and mutates the store
// directly; its Notify hook posts TranscriptChangedMsg back into the
// program, and a render batcher coalesces those pings so a fast token
// stream does not redraw the viewport on every delta.
package chat
