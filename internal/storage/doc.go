// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversations and caches container files.
//
// Conversations are saved as JSON documents under ~/.strand/conversations,
// one file per conversation, holding both the display transcript and its
// wire mirror so a restored session can continue exactly where it left
// off. The store keeps at most MaxConversations files, pruning oldest
// first.
//
// Container files produced by code interpreter runs are cached in a
// SQLite database because their upstream containers expire minutes after
// the run finishes; see FileCache.
package storage
