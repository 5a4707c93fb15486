// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package turn

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/jeranaias/strand/internal/jsonx"
	"github.com/jeranaias/strand/internal/model"
	"github.com/jeranaias/strand/internal/store"
	"github.com/jeranaias/strand/internal/stream"
)

// =============================================================================
// EVENT PAYLOADS
// =============================================================================

// outputItem is the shape shared by output_item.added/done payloads and
// the entries of the final response output array. Only the fields
// relevant to an item's Type are set.
type outputItem struct {
	Type        string              `json:"type"`
	ID          string              `json:"id"`
	Status      string              `json:"status"`
	Role        string              `json:"role"`
	Content     []model.ContentPart `json:"content"`
	Name        string              `json:"name"`
	CallID      string              `json:"call_id"`
	Arguments   string              `json:"arguments"`
	Output      string              `json:"output"`
	Code        string              `json:"code"`
	Error       json.RawMessage     `json:"error"`
	ServerLabel string              `json:"server_label"`
	Tools       []model.McpTool     `json:"tools"`
}

// text returns the concatenated text of the item's content parts.
func (it *outputItem) text() string {
	var b strings.Builder
	for _, part := range it.Content {
		b.WriteString(part.Text)
	}
	return b.String()
}

// failed reports whether the item carries a non-null error payload.
func (it *outputItem) failed() bool {
	return len(it.Error) > 0 && string(it.Error) != "null"
}

type itemEnvelope struct {
	Item outputItem `json:"item"`
}

type textDelta struct {
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

type annotationAdded struct {
	ItemID     string         `json:"item_id"`
	Annotation model.Citation `json:"annotation"`
}

type argumentsDelta struct {
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

type argumentsDone struct {
	ItemID    string `json:"item_id"`
	Arguments string `json:"arguments"`
}

type codeDelta struct {
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

type codeDone struct {
	ItemID string `json:"item_id"`
	Code   string `json:"code"`
}

type callCompleted struct {
	ItemID string `json:"item_id"`
}

type responseCompleted struct {
	Response struct {
		Output []outputItem `json:"output"`
	} `json:"response"`
}

// =============================================================================
// FOLD STATE
// =============================================================================

// pendingCall is a function call awaiting local execution.
type pendingCall struct {
	itemID string
	callID string
	name   string
	args   map[string]interface{}
}

// fold accumulates one response stream into the store.
type fold struct {
	p *Processor

	// Streaming assistant message, if one is open.
	msgIndex int
	wireID   string
	buf      strings.Builder

	// Replace-target flow: the message being overwritten and its content
	// captured before the first delta landed.
	replaceIdx int
	original   []model.ContentPart

	pending []pendingCall
}

func newFold(p *Processor) *fold {
	return &fold{p: p, msgIndex: -1, replaceIdx: -1}
}

// apply folds one event into the store. Unknown event types are ignored
// so new upstream event kinds never break older clients.
func (f *fold) apply(ev *stream.Event) {
	var err error
	switch ev.Type {
	case "response.output_item.added":
		var env itemEnvelope
		if err = ev.Decode(&env); err == nil {
			f.onItemAdded(&env.Item)
		}
	case "response.output_item.done":
		var env itemEnvelope
		if err = ev.Decode(&env); err == nil {
			f.onItemDone(&env.Item)
		}
	case "response.output_text.delta":
		var d textDelta
		if err = ev.Decode(&d); err == nil {
			f.onTextDelta(&d)
		}
	case "response.output_text.annotation.added":
		var d annotationAdded
		if err = ev.Decode(&d); err == nil {
			f.onAnnotation(&d)
		}
	case "response.function_call_arguments.delta":
		var d argumentsDelta
		if err = ev.Decode(&d); err == nil {
			f.onArgumentsDelta(&d)
		}
	case "response.function_call_arguments.done":
		var d argumentsDone
		if err = ev.Decode(&d); err == nil {
			f.onArgumentsDone(&d)
		}
	case "response.mcp_call_arguments.delta":
		var d argumentsDelta
		if err = ev.Decode(&d); err == nil {
			f.onArgumentsDelta(&d)
		}
	case "response.mcp_call_arguments.done":
		var d argumentsDone
		if err = ev.Decode(&d); err == nil {
			f.onArgumentsDone(&d)
		}
	case "response.web_search_call.completed", "response.file_search_call.completed":
		var d callCompleted
		if err = ev.Decode(&d); err == nil {
			f.markCompleted(d.ItemID)
		}
	case "response.code_interpreter_call_code.delta":
		var d codeDelta
		if err = ev.Decode(&d); err == nil {
			f.onCodeDelta(&d)
		}
	case "response.code_interpreter_call_code.done":
		var d codeDone
		if err = ev.Decode(&d); err == nil {
			f.onCodeDone(&d)
		}
	case "response.code_interpreter_call.completed":
		var d callCompleted
		if err = ev.Decode(&d); err == nil {
			f.markCompleted(d.ItemID)
		}
	case "response.completed":
		var d responseCompleted
		if err = ev.Decode(&d); err == nil {
			f.onCompleted(&d)
		}
	}
	if err != nil {
		log.Printf("TURN | skipping undecodable %s: %v", ev.Type, err)
	}
}

// =============================================================================
// MESSAGE FOLDING
// =============================================================================

// openMessage makes sure a streaming assistant message exists. With a
// pending replace target the target message is reused in place; otherwise
// a fresh message is appended.
func (f *fold) openMessage() {
	if f.msgIndex >= 0 {
		return
	}
	f.buf.Reset()

	if i, ok := f.p.store.ReplaceTarget(); ok && f.replaceIdx < 0 {
		f.replaceIdx = i
		f.msgIndex = i
		f.original = f.p.store.CurrentVersionContent(i)
		f.p.store.UpdateMessage(i, func(m *model.MessageItem) {
			f.wireID = m.WireID
		})
		return
	}

	msg := model.NewMessageItem(model.RoleAssistant, "output_text", "")
	f.p.store.AddChatItem(msg)
	f.msgIndex = f.p.store.ItemCount() - 1
	f.wireID = msg.WireID
}

func (f *fold) onTextDelta(d *textDelta) {
	f.p.store.SetState(store.StateResponding)
	f.openMessage()

	f.buf.WriteString(d.Delta)
	text := f.buf.String()
	f.p.store.UpdateMessage(f.msgIndex, func(m *model.MessageItem) {
		m.SetText(text)
	})
	f.p.store.MirrorAssistantText(f.wireID, text)
	f.p.ping()
}

func (f *fold) onAnnotation(d *annotationAdded) {
	if f.msgIndex < 0 {
		return
	}
	c := d.Annotation
	f.p.store.UpdateMessage(f.msgIndex, func(m *model.MessageItem) {
		m.AddCitation(c)
	})
	f.p.ping()
}

// closeMessage finalizes the streaming message with its authoritative
// final text. Replace-flow bookkeeping stays pending until the response
// completes; some upstreams end a stream without an output_item.done.
func (f *fold) closeMessage(final string) {
	if f.msgIndex < 0 {
		return
	}
	if final == "" {
		final = f.buf.String()
	}

	f.p.store.UpdateMessage(f.msgIndex, func(m *model.MessageItem) {
		m.SetText(final)
	})
	f.p.store.MirrorAssistantText(f.wireID, final)

	f.msgIndex = -1
	f.wireID = ""
	f.buf.Reset()
	f.p.ping()
}

// =============================================================================
// OUTPUT ITEM LIFECYCLE
// =============================================================================

func (f *fold) onItemAdded(it *outputItem) {
	switch it.Type {
	case "message":
		f.p.store.SetState(store.StateResponding)
		f.openMessage()
		f.seedMessage(it)
	case "function_call":
		parsed, _ := jsonx.ParsePartial(it.Arguments)
		f.p.store.AddChatItem(&model.ToolCallItem{
			ToolType:        model.ToolFunction,
			Status:          model.StatusInProgress,
			ID:              it.ID,
			Name:            it.Name,
			CallID:          it.CallID,
			Arguments:       it.Arguments,
			ParsedArguments: parsed,
		})
	case "web_search_call":
		f.p.store.AddChatItem(&model.ToolCallItem{
			ToolType: model.ToolWebSearch,
			Status:   statusOr(it.Status, model.StatusSearching),
			ID:       it.ID,
		})
	case "file_search_call":
		f.p.store.AddChatItem(&model.ToolCallItem{
			ToolType: model.ToolFileSearch,
			Status:   statusOr(it.Status, model.StatusSearching),
			ID:       it.ID,
		})
	case "mcp_call":
		f.p.store.AddChatItem(&model.ToolCallItem{
			ToolType:  model.ToolMcp,
			Status:    model.StatusInProgress,
			ID:        it.ID,
			Name:      it.Name,
			Arguments: it.Arguments,
		})
	case "code_interpreter_call":
		f.p.store.AddChatItem(&model.ToolCallItem{
			ToolType: model.ToolCodeInterpreter,
			Status:   model.StatusInProgress,
			ID:       it.ID,
			Code:     it.Code,
		})
	case "mcp_list_tools":
		f.p.store.AddChatItem(&model.McpListToolsItem{
			ID:          it.ID,
			ServerLabel: it.ServerLabel,
			Tools:       it.Tools,
		})
	case "mcp_approval_request":
		f.p.store.AddChatItem(&model.McpApprovalRequestItem{
			ID:          it.ID,
			ServerLabel: it.ServerLabel,
			Name:        it.Name,
			Arguments:   it.Arguments,
		})
	default:
		return
	}
	f.p.ping()
}

// seedMessage applies text and citations already present on a freshly
// added message item. Items can arrive partially formed when the
// upstream buffered before the stream was attached.
func (f *fold) seedMessage(it *outputItem) {
	if seed := it.text(); seed != "" && f.buf.Len() == 0 {
		f.buf.WriteString(seed)
		f.p.store.UpdateMessage(f.msgIndex, func(m *model.MessageItem) {
			m.SetText(seed)
		})
		f.p.store.MirrorAssistantText(f.wireID, seed)
	}
	for _, part := range it.Content {
		for _, a := range part.Annotations {
			c := a
			f.p.store.UpdateMessage(f.msgIndex, func(m *model.MessageItem) {
				m.AddCitation(c)
			})
		}
	}
}

func (f *fold) onItemDone(it *outputItem) {
	switch it.Type {
	case "message":
		f.closeMessage(it.text())

	case "function_call":
		args, err := jsonx.ParseStrict(it.Arguments)
		if err != nil {
			// Final arguments should be complete JSON; fall back to the
			// repaired parse so the handler still gets something usable.
			args, _ = jsonx.ParsePartial(it.Arguments)
		}
		f.p.store.UpdateToolCall(it.ID, func(tc *model.ToolCallItem) {
			tc.Arguments = it.Arguments
			tc.ParsedArguments = args
		})
		// The call itself goes on the wire so the output record that
		// follows has its antecedent.
		f.p.store.AddWireItem(model.NewFunctionCall(it.CallID, it.Name, it.Arguments))
		f.pending = append(f.pending, pendingCall{
			itemID: it.ID,
			callID: it.CallID,
			name:   it.Name,
			args:   args,
		})

	case "web_search_call", "file_search_call":
		f.markCompleted(it.ID)

	case "mcp_call":
		f.p.store.UpdateToolCall(it.ID, func(tc *model.ToolCallItem) {
			tc.Output = it.Output
			if it.failed() {
				tc.Status = model.StatusFailed
			} else {
				tc.Status = model.StatusCompleted
			}
		})

	case "code_interpreter_call":
		f.p.store.UpdateToolCall(it.ID, func(tc *model.ToolCallItem) {
			if it.Code != "" {
				tc.Code = it.Code
			}
			tc.Status = model.StatusCompleted
		})
	}
	f.p.ping()
}

// =============================================================================
// TOOL CALL DETAIL EVENTS
// =============================================================================

func (f *fold) onArgumentsDelta(d *argumentsDelta) {
	f.p.store.UpdateToolCall(d.ItemID, func(tc *model.ToolCallItem) {
		tc.Arguments += d.Delta
		if parsed, err := jsonx.ParsePartial(tc.Arguments); err == nil {
			tc.ParsedArguments = parsed
		}
	})
	f.p.ping()
}

func (f *fold) onArgumentsDone(d *argumentsDone) {
	f.p.store.UpdateToolCall(d.ItemID, func(tc *model.ToolCallItem) {
		tc.Arguments = d.Arguments
		if parsed, err := jsonx.ParseStrict(d.Arguments); err == nil {
			tc.ParsedArguments = parsed
		}
	})
	f.p.ping()
}

func (f *fold) onCodeDelta(d *codeDelta) {
	f.p.store.UpdateToolCall(d.ItemID, func(tc *model.ToolCallItem) {
		tc.Code += d.Delta
	})
	f.p.ping()
}

func (f *fold) onCodeDone(d *codeDone) {
	f.p.store.UpdateToolCall(d.ItemID, func(tc *model.ToolCallItem) {
		tc.Code = d.Code
	})
	f.p.ping()
}

func (f *fold) markCompleted(itemID string) {
	f.p.store.UpdateToolCall(itemID, func(tc *model.ToolCallItem) {
		tc.Status = model.StatusCompleted
	})
	f.p.ping()
}

// =============================================================================
// RESPONSE COMPLETION
// =============================================================================

// onCompleted reconciles the final response object: any still-open
// message is finalized, the replace-flow version is materialized, MCP
// items that only appear in the final output array are surfaced, and
// container files cited in the output are attached to the code
// interpreter trace that produced them.
func (f *fold) onCompleted(d *responseCompleted) {
	f.closeMessage("")
	f.materializeReplace()
	f.surfaceFinalItems(d.Response.Output)
	f.attachContainerFiles(d.Response.Output)
}

// materializeReplace records the replace-flow overwrite as an
// annotation-sourced version and consumes the target. This runs at
// response completion, not message close, so a stream that never emits
// output_item.done still gets its version pair and a stale target can
// never redirect the next turn's reply.
func (f *fold) materializeReplace() {
	if f.replaceIdx < 0 {
		return
	}
	final := f.p.store.CurrentVersionContent(f.replaceIdx)
	f.p.store.CreateMessageVersion(f.replaceIdx, final, model.VersionAnnotation, f.original)
	f.p.store.SetReplaceTarget(-1)
	f.replaceIdx = -1
	f.original = nil
	f.p.ping()
}

// surfaceFinalItems adds mcp_list_tools and mcp_approval_request items
// present only in the final output array. Items already surfaced through
// output_item.added are skipped by id.
func (f *fold) surfaceFinalItems(output []outputItem) {
	for i := range output {
		it := &output[i]
		if it.Type != "mcp_list_tools" && it.Type != "mcp_approval_request" {
			continue
		}
		if f.hasDisplayItem(it.ID) {
			continue
		}
		f.onItemAdded(it)
	}
}

// hasDisplayItem reports whether an MCP display item with the given
// upstream id is already in the transcript.
func (f *fold) hasDisplayItem(id string) bool {
	for _, item := range f.p.store.ChatItems() {
		switch v := item.(type) {
		case *model.McpListToolsItem:
			if v.ID == id {
				return true
			}
		case *model.McpApprovalRequestItem:
			if v.ID == id {
				return true
			}
		}
	}
	return false
}

// attachContainerFiles collects container file citations from the final
// output messages onto the code interpreter trace that produced them.
func (f *fold) attachContainerFiles(output []outputItem) {
	var files []model.ContainerFile
	for _, it := range output {
		if it.Type != "message" {
			continue
		}
		for _, part := range it.Content {
			for _, a := range part.Annotations {
				if a.Type != "container_file_citation" {
					continue
				}
				files = append(files, model.ContainerFile{
					FileID:      a.FileID,
					ContainerID: a.ContainerID,
					Filename:    a.Filename,
				})
			}
		}
	}
	if len(files) == 0 {
		return
	}

	if id := f.lastCodeInterpreterID(); id != "" {
		f.p.store.UpdateToolCall(id, func(tc *model.ToolCallItem) {
			tc.Files = append(tc.Files, files...)
		})
		f.p.ping()
	}
}

// lastCodeInterpreterID finds the most recent code interpreter trace.
func (f *fold) lastCodeInterpreterID() string {
	items := f.p.store.ChatItems()
	for i := len(items) - 1; i >= 0; i-- {
		if tc, ok := items[i].(*model.ToolCallItem); ok && tc.ToolType == model.ToolCodeInterpreter {
			return tc.ID
		}
	}
	return ""
}

// statusOr maps an upstream status string, defaulting when absent.
func statusOr(s string, def model.ToolStatus) model.ToolStatus {
	if s == "" {
		return def
	}
	return model.ToolStatus(s)
}
