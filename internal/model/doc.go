// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for the transcript: the rich
// chat items rendered in the UI and the flattened wire items sent back to
// the Responses API.
//
// The two representations are kept in lockstep by the store; every display
// message carries the ID of its wire mirror so reconciliation joins on
// identity rather than content equality.
package model
