// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/key"
)

// =============================================================================
// KEY MAP
// =============================================================================

// KeyMap holds the chat screen's key bindings.
type KeyMap struct {
	Submit      key.Binding
	InsertLine  key.Binding
	Abort       key.Binding
	Quit        key.Binding
	ScrollUp    key.Binding
	ScrollDown  key.Binding
	PrevVersion key.Binding
	NextVersion key.Binding
	Approve     key.Binding
	Deny        key.Binding
	AcceptComp  key.Binding
	CompUp      key.Binding
	CompDown    key.Binding
}

// DefaultKeyMap returns the standard bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		InsertLine: key.NewBinding(
			key.WithKeys("ctrl+j"),
			key.WithHelp("ctrl+j", "newline"),
		),
		Abort: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "abort / close"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "abort / quit"),
		),
		ScrollUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		ScrollDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
		PrevVersion: key.NewBinding(
			key.WithKeys("alt+left"),
			key.WithHelp("alt+←", "previous version"),
		),
		NextVersion: key.NewBinding(
			key.WithKeys("alt+right"),
			key.WithHelp("alt+→", "next version"),
		),
		Approve: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "approve"),
		),
		Deny: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "deny"),
		),
		AcceptComp: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "complete"),
		),
		CompUp: key.NewBinding(
			key.WithKeys("up"),
			key.WithHelp("↑", "previous candidate"),
		),
		CompDown: key.NewBinding(
			key.WithKeys("down"),
			key.WithHelp("↓", "next candidate"),
		),
	}
}

// ShortHelp returns the bindings shown in the one-line hint.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Abort, k.Quit}
}

// FullHelp returns bindings grouped for the help overlay.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.InsertLine, k.Abort, k.Quit},
		{k.ScrollUp, k.ScrollDown, k.PrevVersion, k.NextVersion},
		{k.AcceptComp, k.CompUp, k.CompDown, k.Approve, k.Deny},
	}
}
