// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// WireItem is the flattened record sent back to the Responses API: either
// a plain {role, content} turn or a tool-output record. It deliberately
// carries none of the display item's richness (no versions, no content
// parts).
type WireItem struct {
	// ID joins this record to its display mirror. Never sent upstream.
	ID string `json:"-"`

	// Plain turn fields.
	Role    Role   `json:"role,omitempty"`
	Content string `json:"content,omitempty"`

	// Tool record fields.
	Type      string `json:"type,omitempty"` // "function_call", "function_call_output", "mcp_approval_response"
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
	Status    string `json:"status,omitempty"`

	// Approval response fields.
	ApprovalRequestID string `json:"approval_request_id,omitempty"`
	Approve           *bool  `json:"approve,omitempty"`
}

// NewWireTurn creates a plain conversation turn joined to the display
// item with the given id.
func NewWireTurn(id string, role Role, content string) WireItem {
	return WireItem{ID: id, Role: role, Content: content}
}

// NewFunctionCall creates the wire record echoing a model-issued function
// call. It must precede the matching output record in the wire transcript.
func NewFunctionCall(callID, name, arguments string) WireItem {
	return WireItem{
		Type:      "function_call",
		CallID:    callID,
		Name:      name,
		Arguments: arguments,
	}
}

// NewFunctionCallOutput creates the tool-output record for a completed
// local function call.
func NewFunctionCallOutput(callID, output string) WireItem {
	return WireItem{
		Type:   "function_call_output",
		CallID: callID,
		Status: "completed",
		Output: output,
	}
}

// NewApprovalResponse creates the wire record answering an MCP approval
// request.
func NewApprovalResponse(approvalRequestID string, approve bool) WireItem {
	return WireItem{
		Type:              "mcp_approval_response",
		ApprovalRequestID: approvalRequestID,
		Approve:           &approve,
	}
}

// IsTurn reports whether the item is a plain {role, content} turn rather
// than a tool-output record.
func (w WireItem) IsTurn() bool {
	return w.Type == "" && w.Role != ""
}
