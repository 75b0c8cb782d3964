package app

import (
	"github.com/charmbracelet/bubbles/key"

	helpview "github.com/callboard/callboard/internal/views/help"
)

// KeyMap defines all keyboard bindings for the console.
type KeyMap struct {
	Up        key.Binding
	Down      key.Binding
	Left      key.Binding
	Right     key.Binding
	Enter     key.Binding
	Escape    key.Binding
	Quit      key.Binding
	Hangup    key.Binding
	Kick      key.Binding
	Destroy   key.Binding
	Listen    key.Binding
	Whisper   key.Binding
	Barge     key.Binding
	HangupAll key.Binding
	Confirm   key.Binding
	Refresh   key.Binding
	Audit     key.Binding
	Help      key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "prev call"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next call"),
		),
		Left: key.NewBinding(
			key.WithKeys("h", "left", "shift+tab"),
			key.WithHelp("h/←", "prev member"),
		),
		Right: key.NewBinding(
			key.WithKeys("l", "right", "tab"),
			key.WithHelp("l/→/tab", "next member"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "call detail"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Hangup: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "hang up selected member"),
		),
		Kick: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "kick selected member from the call"),
		),
		Destroy: key.NewBinding(
			key.WithKeys("D"),
			key.WithHelp("D", "destroy the whole call"),
		),
		Listen: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "monitor selected member (listen)"),
		),
		Whisper: key.NewBinding(
			key.WithKeys("w"),
			key.WithHelp("w", "whisper to selected member"),
		),
		Barge: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "barge into the call"),
		),
		HangupAll: key.NewBinding(
			key.WithKeys("X"),
			key.WithHelp("X", "hang up every channel (asks first)"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "confirm"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "re-list channels from the switch"),
		),
		Audit: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "audit trail"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
	}
}

// ShortHelp feeds the footer.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Right, k.Enter, k.Hangup, k.Kick, k.Destroy, k.Listen, k.Audit, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	groups := k.Groups()
	out := make([][]key.Binding, len(groups))
	for i, g := range groups {
		out[i] = g.Bindings
	}
	return out
}

// Groups lays the bindings out for the help overlay.
func (k KeyMap) Groups() []helpview.Group {
	return []helpview.Group{
		{Title: "Navigation", Bindings: []key.Binding{k.Up, k.Down, k.Left, k.Right, k.Enter, k.Escape}},
		{Title: "Call control", Bindings: []key.Binding{k.Hangup, k.Kick, k.Destroy, k.HangupAll, k.Refresh}},
		{Title: "Supervision", Bindings: []key.Binding{k.Listen, k.Whisper, k.Barge}},
		{Title: "Views", Bindings: []key.Binding{k.Audit, k.Help, k.Quit}},
	}
}
