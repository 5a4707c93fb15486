// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server implements the local proxy between the TUI and the
// upstream Responses API.
//
// The proxy exists so the API key lives in exactly one process. It
// accepts the flattened wire transcript, forwards it upstream with the
// configured key, and re-frames the upstream SSE stream into envelope
// events:
//
//	data: {"event":"response.output_text.delta","data":{...}}
//
// ending with a literal "data: [DONE]" marker. The TUI's stream parser
// consumes only this envelope format.
//
// Besides the turn endpoint the proxy serves:
//
//   - POST /api/ephemeral_query: side-channel questions about
//     transcript content, stateless with respect to the conversation
//   - GET /api/container_files/content: code interpreter output files,
//     cached in SQLite because upstream containers expire
//   - GET /api/functions/*: local implementations backing the
//     function tools (weather via open-meteo, jokes)
//   - GET /health: status probe
//
// All routes run behind recovery, logging, local-origin CORS, and
// per-IP rate limiting middleware.
package server
