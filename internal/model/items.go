// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	// RoleDeveloper is the instruction role understood by the Responses API.
	RoleDeveloper Role = "developer"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// CONTENT PARTS
// =============================================================================

// Citation is citation metadata attached by the model to output text:
// a file reference from file search or a container file from the code
// interpreter. Upstream payloads use snake_case keys.
type Citation struct {
	Type        string `json:"type,omitempty"`
	FileID      string `json:"file_id,omitempty"`
	ContainerID string `json:"container_id,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Index       int    `json:"index,omitempty"`
	Title       string `json:"title,omitempty"`
	URL         string `json:"url,omitempty"`
}

// ContentPart is one piece of message content. content[0].Text is the
// authoritative body of a message.
type ContentPart struct {
	Type        string     `json:"type"` // "input_text" or "output_text"
	Text        string     `json:"text"`
	Annotations []Citation `json:"annotations,omitempty"`
}

// TextContent builds a single-part content slice.
func TextContent(partType, text string) []ContentPart {
	return []ContentPart{{Type: partType, Text: text}}
}

// CloneContent deep-copies a content slice.
func CloneContent(content []ContentPart) []ContentPart {
	out := make([]ContentPart, len(content))
	copy(out, content)
	for i := range out {
		if len(content[i].Annotations) > 0 {
			out[i].Annotations = append([]Citation(nil), content[i].Annotations...)
		}
	}
	return out
}

// =============================================================================
// MESSAGE VERSIONS
// =============================================================================

// VersionSource records how a message version came to exist.
type VersionSource string

const (
	VersionOriginal   VersionSource = "original"
	VersionAnnotation VersionSource = "annotation"
	VersionEdit       VersionSource = "edit"
)

// MessageVersion is one saved revision of a message body.
type MessageVersion struct {
	ID        string        `json:"id"`
	Content   []ContentPart `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
	Source    VersionSource `json:"source"`

	// WireID is the wire item this version mirrors, captured at creation
	// so selecting the version later can re-target the exact wire item.
	WireID string `json:"wire_id,omitempty"`
}

// NewVersionID generates a version ID tagged with its source.
func NewVersionID(source VersionSource) string {
	return string(source) + "-" + uuid.NewString()[:8]
}

// =============================================================================
// CHAT ITEMS
// =============================================================================

// ChatItem is one entry in the displayed transcript: a message, a tool
// call trace, a remote server's tool listing, or a pending approval gate.
type ChatItem interface {
	itemKind() string
}

func (*MessageItem) itemKind() string            { return "message" }
func (*ToolCallItem) itemKind() string           { return "tool_call" }
func (*McpListToolsItem) itemKind() string       { return "mcp_list_tools" }
func (*McpApprovalRequestItem) itemKind() string { return "mcp_approval_request" }

// MessageItem is a rendered conversation message.
type MessageItem struct {
	ID      string        `json:"id,omitempty"`
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`

	// Version history. Nil until the message is first edited or replaced;
	// once non-nil it always contains a version with source "original".
	Versions         []MessageVersion `json:"versions,omitempty"`
	CurrentVersionID string           `json:"current_version_id,omitempty"`

	// WireID is the identifier shared with this message's wire mirror.
	WireID string `json:"wire_id,omitempty"`
}

// NewMessageItem creates a message with a generated wire ID.
func NewMessageItem(role Role, partType, text string) *MessageItem {
	return &MessageItem{
		Role:    role,
		Content: TextContent(partType, text),
		WireID:  NewWireID(),
	}
}

// Text returns the authoritative message body.
func (m *MessageItem) Text() string {
	if len(m.Content) == 0 {
		return ""
	}
	return m.Content[0].Text
}

// SetText overwrites the authoritative message body in place.
func (m *MessageItem) SetText(text string) {
	if len(m.Content) == 0 {
		m.Content = TextContent("output_text", text)
		return
	}
	m.Content[0].Text = text
}

// AddCitation appends citation metadata to the message body.
func (m *MessageItem) AddCitation(c Citation) {
	if len(m.Content) == 0 {
		m.Content = TextContent("output_text", "")
	}
	m.Content[0].Annotations = append(m.Content[0].Annotations, c)
}

// CurrentVersion resolves CurrentVersionID against Versions.
//
// A stale or absent CurrentVersionID falls back to the last version; this
// is the documented fallback, not silent corruption. Returns nil when the
// message has no version history at all.
func (m *MessageItem) CurrentVersion() *MessageVersion {
	if len(m.Versions) == 0 {
		return nil
	}
	for i := range m.Versions {
		if m.Versions[i].ID == m.CurrentVersionID {
			return &m.Versions[i]
		}
	}
	return &m.Versions[len(m.Versions)-1]
}

// EnsureVersions initializes the version history with an original entry
// built from originalContent. No-op when history already exists.
func (m *MessageItem) EnsureVersions(originalContent []ContentPart) {
	if m.Versions != nil {
		return
	}
	m.Versions = []MessageVersion{{
		ID:        "original",
		Content:   CloneContent(originalContent),
		Timestamp: time.Now().Add(-time.Second),
		Source:    VersionOriginal,
		WireID:    m.WireID,
	}}
}

// =============================================================================
// TOOL CALL ITEMS
// =============================================================================

// ToolType identifies which kind of tool a call trace belongs to.
type ToolType string

const (
	ToolFileSearch      ToolType = "file_search_call"
	ToolWebSearch       ToolType = "web_search_call"
	ToolFunction        ToolType = "function_call"
	ToolMcp             ToolType = "mcp_call"
	ToolCodeInterpreter ToolType = "code_interpreter_call"
)

// ToolStatus is the lifecycle state of a tool call trace. Calls are
// marked completed or failed terminally and never reopened.
type ToolStatus string

const (
	StatusInProgress ToolStatus = "in_progress"
	StatusSearching  ToolStatus = "searching"
	StatusCompleted  ToolStatus = "completed"
	StatusFailed     ToolStatus = "failed"
)

// ContainerFile is a file produced by a code interpreter run.
type ContainerFile struct {
	FileID      string `json:"file_id"`
	MimeType    string `json:"mime_type"`
	ContainerID string `json:"container_id,omitempty"`
	Filename    string `json:"filename,omitempty"`
}

// ToolCallItem is a tool call trace shown in the transcript.
type ToolCallItem struct {
	ToolType ToolType   `json:"tool_type"`
	Status   ToolStatus `json:"status"`
	ID       string     `json:"id"`
	Name     string     `json:"name,omitempty"`
	CallID   string     `json:"call_id,omitempty"`

	// Arguments is the raw (possibly still streaming) argument string;
	// ParsedArguments is the best-effort parse of it.
	Arguments       string                 `json:"arguments,omitempty"`
	ParsedArguments map[string]interface{} `json:"parsed_arguments,omitempty"`

	Output string          `json:"output,omitempty"`
	Code   string          `json:"code,omitempty"`
	Files  []ContainerFile `json:"files,omitempty"`
}

// McpTool is one entry of a remote server's tool listing.
type McpTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// McpListToolsItem is the static listing of tools exposed by a remote
// MCP server, surfaced once per server.
type McpListToolsItem struct {
	ID          string    `json:"id"`
	ServerLabel string    `json:"server_label"`
	Tools       []McpTool `json:"tools"`
}

// McpApprovalRequestItem is a pending yes/no gate for a remote tool call.
type McpApprovalRequestItem struct {
	ID          string `json:"id"`
	ServerLabel string `json:"server_label"`
	Name        string `json:"name"`
	Arguments   string `json:"arguments,omitempty"`
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// NewWireID creates the shared identifier joining a display item to its
// wire mirror.
func NewWireID() string {
	return "wire_" + uuid.NewString()[:12]
}
