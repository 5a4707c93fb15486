// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/strand/internal/model"
	"github.com/jeranaias/strand/internal/store"
	"github.com/jeranaias/strand/internal/util"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

const (
	// MaxConversations caps how many saved conversations are kept on disk.
	// The oldest are pruned when the limit is exceeded.
	MaxConversations = 100

	// SummaryMaxRunes is the length of the generated conversation summary.
	SummaryMaxRunes = 50
)

// ErrConversationNotFound indicates the requested conversation does not exist.
var ErrConversationNotFound = &ConversationError{Op: "load", Err: "conversation not found"}

// ConversationError describes a failure in a conversation store operation.
type ConversationError struct {
	Op  string
	ID  string
	Err string
}

func (e *ConversationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("conversation %s: %s: %s", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("conversation %s: %s", e.Op, e.Err)
}

// Is reports whether target is a ConversationError with the same message,
// so errors.Is(err, ErrConversationNotFound) works across IDs.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Err == t.Err
}

// =============================================================================
// STORED TYPES
// =============================================================================

// StoredItem is the tagged on-disk form of one display transcript entry.
// Exactly one of the pointer fields is set, selected by Kind.
type StoredItem struct {
	Kind string `json:"kind"`

	Message            *model.MessageItem            `json:"message,omitempty"`
	ToolCall           *model.ToolCallItem           `json:"tool_call,omitempty"`
	McpListTools       *model.McpListToolsItem       `json:"mcp_list_tools,omitempty"`
	McpApprovalRequest *model.McpApprovalRequestItem `json:"mcp_approval_request,omitempty"`
}

// StoredWireItem persists a wire item together with its shared ID, which
// the wire JSON form deliberately omits.
type StoredWireItem struct {
	WireID string `json:"wire_id,omitempty"`
	model.WireItem
}

// StoredConversation is a complete saved conversation: both transcripts
// plus metadata, written as one JSON document.
type StoredConversation struct {
	ID        string    `json:"id"`
	Summary   string    `json:"summary"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []StoredItem     `json:"items"`
	Wire  []StoredWireItem `json:"wire"`
}

// ConversationMeta is the lightweight listing view of a saved conversation.
type ConversationMeta struct {
	ID        string    `json:"id"`
	Summary   string    `json:"summary"`
	Model     string    `json:"model"`
	UpdatedAt time.Time `json:"updated_at"`
	ItemCount int       `json:"item_count"`
}

// =============================================================================
// SNAPSHOT / RESTORE
// =============================================================================

// Snapshot captures the store's transcripts as a StoredConversation.
// The summary is derived from the first user message.
func Snapshot(st *store.Store, modelName string) *StoredConversation {
	chat := st.ChatItems()
	wire := st.WireItems()

	conv := &StoredConversation{
		ID:        generateConversationID(),
		Model:     modelName,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Items:     make([]StoredItem, 0, len(chat)),
		Wire:      make([]StoredWireItem, 0, len(wire)),
	}

	for _, item := range chat {
		switch v := item.(type) {
		case *model.MessageItem:
			conv.Items = append(conv.Items, StoredItem{Kind: "message", Message: v})
			if conv.Summary == "" && v.Role == model.RoleUser {
				conv.Summary = generateSummary(v.Text())
			}
		case *model.ToolCallItem:
			conv.Items = append(conv.Items, StoredItem{Kind: "tool_call", ToolCall: v})
		case *model.McpListToolsItem:
			conv.Items = append(conv.Items, StoredItem{Kind: "mcp_list_tools", McpListTools: v})
		case *model.McpApprovalRequestItem:
			conv.Items = append(conv.Items, StoredItem{Kind: "mcp_approval_request", McpApprovalRequest: v})
		}
	}
	for _, wi := range wire {
		conv.Wire = append(conv.Wire, StoredWireItem{WireID: wi.ID, WireItem: wi})
	}

	if conv.Summary == "" {
		conv.Summary = "(empty conversation)"
	}
	return conv
}

// Transcripts rebuilds the in-memory transcript forms. The result feeds
// store.Restore.
func (c *StoredConversation) Transcripts() ([]model.ChatItem, []model.WireItem) {
	chat := make([]model.ChatItem, 0, len(c.Items))
	for _, item := range c.Items {
		switch {
		case item.Message != nil:
			chat = append(chat, item.Message)
		case item.ToolCall != nil:
			chat = append(chat, item.ToolCall)
		case item.McpListTools != nil:
			chat = append(chat, item.McpListTools)
		case item.McpApprovalRequest != nil:
			chat = append(chat, item.McpApprovalRequest)
		}
	}

	wire := make([]model.WireItem, 0, len(c.Wire))
	for _, swi := range c.Wire {
		wi := swi.WireItem
		wi.ID = swi.WireID
		wire = append(wire, wi)
	}
	return chat, wire
}

// RestoreInto loads the saved transcripts into the store, replacing its
// current contents.
func (c *StoredConversation) RestoreInto(st *store.Store) {
	chat, wire := c.Transcripts()
	st.Restore(chat, wire)
}

// ItemCount returns the number of display items in the conversation.
func (c *StoredConversation) ItemCount() int {
	return len(c.Items)
}

// Preview returns the first user message, truncated for listings.
func (c *StoredConversation) Preview() string {
	for _, item := range c.Items {
		if item.Message != nil && item.Message.Role == model.RoleUser {
			return util.TruncateRunes(item.Message.Text(), SummaryMaxRunes)
		}
	}
	return c.Summary
}

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// ConversationStore persists conversations as JSON files in a directory.
type ConversationStore struct {
	// BaseDir is the directory holding conversation files.
	BaseDir string

	// MaxConversations caps the number of stored conversations.
	MaxConversations int
}

// NewConversationStore creates a store rooted at ~/.strand/conversations.
func NewConversationStore() (*ConversationStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, &ConversationError{Op: "init", Err: err.Error()}
	}
	return &ConversationStore{
		BaseDir:          filepath.Join(home, ".strand", "conversations"),
		MaxConversations: MaxConversations,
	}, nil
}

// NewConversationStoreAt creates a store rooted at the given directory.
func NewConversationStoreAt(dir string) *ConversationStore {
	return &ConversationStore{BaseDir: dir, MaxConversations: MaxConversations}
}

// Save writes the conversation to disk and prunes beyond the limit.
// A conversation without an ID is assigned one.
func (cs *ConversationStore) Save(conv *StoredConversation) error {
	if conv == nil {
		return &ConversationError{Op: "save", Err: "nil conversation"}
	}
	if conv.ID == "" {
		conv.ID = generateConversationID()
	}
	conv.UpdatedAt = time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}

	if err := os.MkdirAll(cs.BaseDir, 0755); err != nil {
		return &ConversationError{Op: "save", ID: conv.ID, Err: err.Error()}
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return &ConversationError{Op: "save", ID: conv.ID, Err: err.Error()}
	}
	if err := util.AtomicWriteFile(cs.path(conv.ID), data, 0644); err != nil {
		return &ConversationError{Op: "save", ID: conv.ID, Err: err.Error()}
	}

	return cs.enforceLimit()
}

// Load reads a conversation by ID.
func (cs *ConversationStore) Load(id string) (*StoredConversation, error) {
	data, err := os.ReadFile(cs.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ConversationError{Op: "load", ID: id, Err: ErrConversationNotFound.Err}
		}
		return nil, &ConversationError{Op: "load", ID: id, Err: err.Error()}
	}

	var conv StoredConversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, &ConversationError{Op: "load", ID: id, Err: err.Error()}
	}
	return &conv, nil
}

// LoadByIndex reads the nth most recent conversation (1-based).
func (cs *ConversationStore) LoadByIndex(n int) (*StoredConversation, error) {
	metas, err := cs.List()
	if err != nil {
		return nil, err
	}
	if n < 1 || n > len(metas) {
		return nil, &ConversationError{Op: "load", Err: ErrConversationNotFound.Err}
	}
	return cs.Load(metas[n-1].ID)
}

// List returns metadata for all saved conversations, newest first.
func (cs *ConversationStore) List() ([]ConversationMeta, error) {
	entries, err := os.ReadDir(cs.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &ConversationError{Op: "list", Err: err.Error()}
	}

	var metas []ConversationMeta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		conv, err := cs.Load(id)
		if err != nil {
			// Unreadable files are skipped, not fatal.
			continue
		}
		metas = append(metas, ConversationMeta{
			ID:        conv.ID,
			Summary:   conv.Summary,
			Model:     conv.Model,
			UpdatedAt: conv.UpdatedAt,
			ItemCount: conv.ItemCount(),
		})
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Search returns conversations whose summary or message text contains the
// query, case-insensitive, newest first.
func (cs *ConversationStore) Search(query string) ([]ConversationMeta, error) {
	metas, err := cs.List()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return metas, nil
	}

	var matched []ConversationMeta
	for _, meta := range metas {
		if strings.Contains(strings.ToLower(meta.Summary), q) {
			matched = append(matched, meta)
			continue
		}
		conv, err := cs.Load(meta.ID)
		if err != nil {
			continue
		}
		if conversationContains(conv, q) {
			matched = append(matched, meta)
		}
	}
	return matched, nil
}

// Delete removes a conversation by ID.
func (cs *ConversationStore) Delete(id string) error {
	err := os.Remove(cs.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return &ConversationError{Op: "delete", ID: id, Err: ErrConversationNotFound.Err}
		}
		return &ConversationError{Op: "delete", ID: id, Err: err.Error()}
	}
	return nil
}

// Clear removes all saved conversations.
func (cs *ConversationStore) Clear() error {
	metas, err := cs.List()
	if err != nil {
		return err
	}
	for _, meta := range metas {
		if err := cs.Delete(meta.ID); err != nil && !errors.Is(err, ErrConversationNotFound) {
			return err
		}
	}
	return nil
}

// =============================================================================
// INTERNAL
// =============================================================================

// path returns the file path for a conversation ID.
func (cs *ConversationStore) path(id string) string {
	return filepath.Join(cs.BaseDir, id+".json")
}

// enforceLimit prunes the oldest conversations beyond MaxConversations.
func (cs *ConversationStore) enforceLimit() error {
	limit := cs.MaxConversations
	if limit <= 0 {
		limit = MaxConversations
	}

	metas, err := cs.List()
	if err != nil {
		return err
	}
	for i := limit; i < len(metas); i++ {
		if err := cs.Delete(metas[i].ID); err != nil {
			return err
		}
	}
	return nil
}

// conversationContains reports whether any message body contains q.
// q must already be lowercase.
func conversationContains(conv *StoredConversation, q string) bool {
	for _, item := range conv.Items {
		if item.Message != nil && strings.Contains(strings.ToLower(item.Message.Text()), q) {
			return true
		}
	}
	return false
}

// generateConversationID creates a unique conversation identifier.
func generateConversationID() string {
	return "conv_" + uuid.NewString()[:8]
}

// generateSummary derives a short summary from message text.
func generateSummary(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	return util.TruncateRunes(text, SummaryMaxRunes)
}
