// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/strand/internal/annotate"
	"github.com/jeranaias/strand/internal/ephemeral"
	"github.com/jeranaias/strand/internal/model"
)

// =============================================================================
// COMMAND TABLE
// =============================================================================

// commandSpec is one slash command.
type commandSpec struct {
	Name    string
	Desc    string
	Handler func(m *Model, args string) tea.Cmd
}

// commandTable lists every slash command, in /help order.
var commandTable = []commandSpec{
	{"/help", "show commands and key bindings", cmdHelp},
	{"/clear", "reset the conversation", cmdClear},
	{"/save", "save a conversation snapshot", cmdSave},
	{"/load", "load a snapshot by id or list number", cmdLoad},
	{"/list", "list saved snapshots", cmdList},
	{"/search", "search saved snapshots", cmdSearch},
	{"/delete", "delete a snapshot by id", cmdDelete},
	{"/export", "export transcript (markdown|json|html)", cmdExport},
	{"/model", "show or change the model", cmdModel},
	{"/tools", "show enabled tools", cmdTools},
	{"/annotate", "annotate the last reply: <text> :: <comment>", cmdAnnotate},
	{"/ask", "ephemeral question about the last reply", cmdAsk},
	{"/version", "switch reply version: next|prev|<n>", cmdVersion},
	{"/edit", "rewrite the last user message", cmdEdit},
	{"/undo", "remove the last exchange", cmdUndo},
	{"/quit", "exit", cmdQuit},
}

// lookupCommand finds a command by exact name.
func lookupCommand(name string) *commandSpec {
	for i := range commandTable {
		if commandTable[i].Name == name {
			return &commandTable[i]
		}
	}
	return nil
}

// parseCommand splits a slash input into command name and argument rest.
func parseCommand(input string) (name, args string) {
	input = strings.TrimSpace(input)
	if i := strings.IndexAny(input, " \t"); i >= 0 {
		return input[:i], strings.TrimSpace(input[i+1:])
	}
	return input, ""
}

// runCommand dispatches a slash input. Unknown commands become a notice.
func (m *Model) runCommand(input string) tea.Cmd {
	name, args := parseCommand(input)
	spec := lookupCommand(name)
	if spec == nil {
		m.setNotice(fmt.Sprintf("unknown command %s (try /help)", name))
		return nil
	}
	return spec.Handler(m, args)
}

// =============================================================================
// SESSION COMMANDS
// =============================================================================

func cmdHelp(m *Model, _ string) tea.Cmd {
	m.mode = ModeHelp
	return nil
}

func cmdClear(m *Model, _ string) tea.Cmd {
	m.store.Clear()
	m.overlay.Clear()
	m.renderBuf.Reset()
	m.answeredApprovals = make(map[string]bool)
	m.pendingApproval = nil
	m.refreshViewport()
	m.setNotice("conversation cleared")
	return nil
}

func cmdQuit(m *Model, _ string) tea.Cmd {
	m.store.Abort()
	return tea.Quit
}

func cmdModel(m *Model, args string) tea.Cmd {
	if args == "" {
		m.setNotice("model: " + m.modelName())
		return nil
	}
	// Copy-on-write: published snapshots are never mutated, so the proxy
	// and turn processor can read them without locking.
	fresh := *m.cfg
	fresh.Model = args
	m.cfg = &fresh
	if m.applyConfig != nil {
		m.applyConfig(m.cfg)
	}
	m.setNotice("model set to " + args + " (next turn)")
	return nil
}

func cmdTools(m *Model, _ string) tea.Cmd {
	names := m.enabledToolNames()
	if len(names) == 0 {
		m.setNotice("no tools enabled")
		return nil
	}
	m.setNotice("tools: " + strings.Join(names, ", "))
	return nil
}

// =============================================================================
// SNAPSHOT COMMANDS
// =============================================================================

func cmdSave(m *Model, _ string) tea.Cmd {
	if m.conversations == nil {
		m.setNotice("snapshot storage unavailable")
		return nil
	}
	if m.showingWelcome() {
		m.setNotice("nothing to save yet")
		return nil
	}
	return m.saveConversationCmd()
}

func cmdLoad(m *Model, args string) tea.Cmd {
	if m.conversations == nil {
		m.setNotice("snapshot storage unavailable")
		return nil
	}
	if args == "" {
		m.setNotice("usage: /load <id|number>")
		return nil
	}
	if m.busy() {
		m.setNotice("abort the current turn first")
		return nil
	}
	return m.loadConversationCmd(args)
}

func cmdList(m *Model, _ string) tea.Cmd {
	if m.conversations == nil {
		m.setNotice("snapshot storage unavailable")
		return nil
	}
	return m.listConversationsCmd("")
}

func cmdSearch(m *Model, args string) tea.Cmd {
	if m.conversations == nil {
		m.setNotice("snapshot storage unavailable")
		return nil
	}
	if args == "" {
		m.setNotice("usage: /search <text>")
		return nil
	}
	return m.listConversationsCmd(args)
}

func cmdDelete(m *Model, args string) tea.Cmd {
	if m.conversations == nil {
		m.setNotice("snapshot storage unavailable")
		return nil
	}
	if args == "" {
		m.setNotice("usage: /delete <id>")
		return nil
	}
	return m.deleteConversationCmd(args)
}

func cmdExport(m *Model, args string) tea.Cmd {
	format := strings.ToLower(strings.TrimSpace(args))
	if format == "" {
		format = "markdown"
	}
	switch format {
	case "markdown", "md", "json", "html":
	default:
		m.setNotice("usage: /export markdown|json|html")
		return nil
	}
	if m.showingWelcome() {
		m.setNotice("nothing to export yet")
		return nil
	}
	return m.exportCmd(format)
}

// =============================================================================
// ANNOTATION, EPHEMERAL, VERSIONS
// =============================================================================

// cmdAnnotate attaches a comment to a span of the last assistant reply.
// Syntax: /annotate <quoted or bare text> :: <comment>, or
// /annotate clear to drop pending annotations.
func cmdAnnotate(m *Model, args string) tea.Cmd {
	if args == "clear" {
		m.overlay.Clear()
		m.setNotice("annotations cleared")
		return nil
	}

	target, comment, ok := strings.Cut(args, "::")
	if !ok {
		m.setNotice("usage: /annotate <text> :: <comment>")
		return nil
	}
	target = strings.Trim(strings.TrimSpace(target), `"`)
	comment = strings.TrimSpace(comment)
	if target == "" || comment == "" {
		m.setNotice("usage: /annotate <text> :: <comment>")
		return nil
	}

	idx := m.lastAssistantIndex()
	if idx < 0 {
		m.setNotice("no assistant message to annotate")
		return nil
	}
	items := m.store.ChatItems()
	msg := items[idx].(*model.MessageItem)
	body := msg.Text()

	start := strings.Index(body, target)
	if start < 0 {
		m.setNotice("text not found in the last reply")
		return nil
	}

	m.overlay.Add(idx, annotate.TextAnnotation{
		ID:         annotate.NewID(),
		Text:       target,
		Comment:    comment,
		StartIndex: start,
		EndIndex:   start + len(target),
	})
	m.setNotice(fmt.Sprintf("%d annotation(s) pending; next message sends them", m.overlay.Count()))
	return nil
}

// cmdAsk sends a side-channel question about the last assistant reply.
// The answer is shown in an overlay and never enters the transcript.
func cmdAsk(m *Model, args string) tea.Cmd {
	if args == "" {
		m.setNotice("usage: /ask <question>")
		return nil
	}
	if m.ephemeral == nil {
		m.setNotice("side-channel questions unavailable")
		return nil
	}

	contextBody := ""
	if idx := m.lastAssistantIndex(); idx >= 0 {
		items := m.store.ChatItems()
		contextBody = items[idx].(*model.MessageItem).Text()
	}

	q := ephemeral.Query{
		Query:   args,
		Context: ephemeral.BuildContext(contextBody, ""),
	}
	m.mode = ModeEphemeral
	m.ephemeralAnswer = ""
	m.ephemeralPending = true
	return m.ephemeralAskCmd(q)
}

// cmdVersion switches the displayed version of the last assistant reply.
func cmdVersion(m *Model, args string) tea.Cmd {
	idx := m.lastAssistantIndex()
	if idx < 0 {
		m.setNotice("no assistant message")
		return nil
	}

	switch args {
	case "next":
		m.cycleVersion(idx, +1)
	case "prev":
		m.cycleVersion(idx, -1)
	default:
		n, err := strconv.Atoi(args)
		if err != nil || n < 1 {
			m.setNotice("usage: /version next|prev|<n>")
			return nil
		}
		m.selectVersionByNumber(idx, n)
	}
	m.refreshViewport()
	return nil
}

// cmdEdit rewrites the last user message in both transcripts. The next
// turn sends the edited history.
func cmdEdit(m *Model, args string) tea.Cmd {
	if args == "" {
		m.setNotice("usage: /edit <new text>")
		return nil
	}
	idx := m.lastUserIndex()
	if idx < 0 {
		m.setNotice("no user message to edit")
		return nil
	}
	m.store.EditMessageText(idx, args)
	m.refreshViewport()
	m.setNotice("message edited")
	return nil
}

// cmdUndo removes the last user message and everything after it, so the
// exchange can be retried or rephrased.
func cmdUndo(m *Model, _ string) tea.Cmd {
	if m.busy() {
		m.setNotice("abort the current turn first")
		return nil
	}
	idx := m.lastUserIndex()
	if idx < 0 {
		m.setNotice("nothing to undo")
		return nil
	}
	m.store.DeleteChatItemsAfter(idx)
	m.refreshViewport()
	m.setNotice("last exchange removed")
	return nil
}

// =============================================================================
// VERSION HELPERS
// =============================================================================

// cycleVersion steps the message at idx forward or back through its
// version history, clamped at the ends.
func (m *Model) cycleVersion(idx, step int) {
	items := m.store.ChatItems()
	msg, ok := items[idx].(*model.MessageItem)
	if !ok || len(msg.Versions) < 2 {
		m.setNotice("no other versions")
		return
	}

	cur := 0
	for i := range msg.Versions {
		if msg.Versions[i].ID == msg.CurrentVersionID {
			cur = i
			break
		}
	}
	next := cur + step
	if next < 0 || next >= len(msg.Versions) {
		m.setNotice("no more versions")
		return
	}
	m.store.SelectMessageVersion(idx, msg.Versions[next].ID)
	m.setNotice(fmt.Sprintf("showing version %d/%d", next+1, len(msg.Versions)))
}

// selectVersionByNumber switches to the 1-based version n.
func (m *Model) selectVersionByNumber(idx, n int) {
	items := m.store.ChatItems()
	msg, ok := items[idx].(*model.MessageItem)
	if !ok || msg.Versions == nil || n > len(msg.Versions) {
		m.setNotice("no such version")
		return
	}
	m.store.SelectMessageVersion(idx, msg.Versions[n-1].ID)
	m.setNotice(fmt.Sprintf("showing version %d/%d", n, len(msg.Versions)))
}
