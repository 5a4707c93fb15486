// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/strand/internal/annotate"
	"github.com/jeranaias/strand/internal/config"
	"github.com/jeranaias/strand/internal/ephemeral"
	"github.com/jeranaias/strand/internal/model"
	"github.com/jeranaias/strand/internal/storage"
	"github.com/jeranaias/strand/internal/store"
	"github.com/jeranaias/strand/internal/turn"
	"github.com/jeranaias/strand/internal/ui/components"
	"github.com/jeranaias/strand/internal/ui/styles"
)

// =============================================================================
// MODES
// =============================================================================

// Mode is the chat screen's input mode. Composing is the default; the
// other modes route keys to an overlay until it is dismissed.
type Mode int

const (
	ModeComposing Mode = iota
	ModeApproval
	ModeConvList
	ModeEphemeral
	ModeHelp
)

// =============================================================================
// MODEL
// =============================================================================

// Deps carries the collaborators the chat screen needs. All fields
// except Conversations are required.
type Deps struct {
	Store         *store.Store
	Processor     *turn.Processor
	Overlay       *annotate.Overlay
	Ephemeral     *ephemeral.Client
	Conversations *storage.ConversationStore
	Config        *config.Config
	Version       string

	// ApplyConfig publishes a config snapshot the UI built (e.g. a
	// /model change) to the rest of the app. May be nil.
	ApplyConfig func(*config.Config)
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	store         *store.Store
	processor     *turn.Processor
	overlay       *annotate.Overlay
	ephemeral     *ephemeral.Client
	conversations *storage.ConversationStore
	cfg           *config.Config
	applyConfig   func(*config.Config)

	theme *styles.Theme
	keys  KeyMap

	viewport viewport.Model
	textarea textarea.Model
	spinner  components.Spinner
	status   *components.StatusBar
	popup    *components.CompletionPopup

	renderBuf *StreamingBuffer
	cancelMgr *cancelManager

	mode Mode

	// Approval prompts already answered this session, by request ID.
	// The transcript keeps the item; this set stops it from re-arming
	// the overlay on every redraw.
	answeredApprovals map[string]bool
	pendingApproval   *model.McpApprovalRequestItem
	approvalYes       bool

	ephemeralAnswer  string
	ephemeralPending bool

	convList     []storage.ConversationMeta
	convQuery    string
	convSelected int

	completionActive bool

	notice  string
	version string

	width  int
	height int
	ready  bool
}

// New creates the chat screen model.
func New(deps Deps) *Model {
	theme := styles.NewTheme()

	ta := textarea.New()
	ta.Placeholder = "Message, or / for commands"
	ta.Prompt = "> "
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.Focus()

	vp := viewport.New(80, 20)

	return &Model{
		store:             deps.Store,
		processor:         deps.Processor,
		overlay:           deps.Overlay,
		ephemeral:         deps.Ephemeral,
		conversations:     deps.Conversations,
		cfg:               deps.Config,
		applyConfig:       deps.ApplyConfig,
		theme:             theme,
		keys:              DefaultKeyMap(),
		viewport:          vp,
		textarea:          ta,
		spinner:           components.NewThinkingSpinner(),
		status:            components.NewStatusBar(theme),
		popup:             components.NewCompletionPopup(theme),
		renderBuf:         NewStreamingBuffer(),
		cancelMgr:         newCancelManager(),
		answeredApprovals: make(map[string]bool),
		version:           deps.Version,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return textarea.Blink
}

// =============================================================================
// TRANSCRIPT HELPERS
// =============================================================================

// lastAssistantIndex returns the index of the last assistant message in
// the display transcript, or -1.
func (m *Model) lastAssistantIndex() int {
	items := m.store.ChatItems()
	for i := len(items) - 1; i >= 0; i-- {
		if msg, ok := items[i].(*model.MessageItem); ok && msg.Role == model.RoleAssistant {
			return i
		}
	}
	return -1
}

// lastUserIndex returns the index of the last user message, or -1.
func (m *Model) lastUserIndex() int {
	items := m.store.ChatItems()
	for i := len(items) - 1; i >= 0; i-- {
		if msg, ok := items[i].(*model.MessageItem); ok && msg.Role == model.RoleUser {
			return i
		}
	}
	return -1
}

// unansweredApproval scans the transcript for an approval request the
// user has not decided yet.
func (m *Model) unansweredApproval() *model.McpApprovalRequestItem {
	items := m.store.ChatItems()
	for i := len(items) - 1; i >= 0; i-- {
		if req, ok := items[i].(*model.McpApprovalRequestItem); ok {
			if !m.answeredApprovals[req.ID] {
				return req
			}
			return nil
		}
	}
	return nil
}

// busy reports whether a turn is in flight.
func (m *Model) busy() bool {
	return m.store.State() != store.StateIdle
}

// setNotice sets a transient status-bar notice.
func (m *Model) setNotice(text string) {
	m.notice = text
}

// enabledToolNames lists the tools switched on in the config, for the
// status bar.
func (m *Model) enabledToolNames() []string {
	if m.cfg == nil {
		return nil
	}
	var names []string
	if m.cfg.Tools.WebSearch.Enabled {
		names = append(names, "web")
	}
	if m.cfg.Tools.FileSearch.Enabled {
		names = append(names, "files")
	}
	if m.cfg.Tools.CodeInterpreter {
		names = append(names, "code")
	}
	if m.cfg.Tools.Functions {
		names = append(names, "fn")
	}
	for _, srv := range m.cfg.Tools.McpServers {
		names = append(names, "mcp:"+srv.Label)
	}
	return names
}

// showingWelcome reports whether the transcript is still just the
// greeting, in which case the welcome screen replaces the viewport.
func (m *Model) showingWelcome() bool {
	return m.store.ItemCount() <= 1 && len(m.store.WireItems()) == 0
}

// modelName returns the configured model, for display.
func (m *Model) modelName() string {
	if m.cfg == nil || strings.TrimSpace(m.cfg.Model) == "" {
		return "gpt-4.1"
	}
	return m.cfg.Model
}
