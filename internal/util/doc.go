// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared across packages: crash-safe
// file writes for config and snapshot persistence, and rune-aware
// string truncation for summaries.
package util
