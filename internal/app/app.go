// Package app is the bubbletea program: it pumps notifications into the
// console between frames, renders the board and turns keys into intents.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/callboard/callboard/internal/ami"
	"github.com/callboard/callboard/internal/console"
	"github.com/callboard/callboard/internal/control"
	"github.com/callboard/callboard/internal/theme"
	auditview "github.com/callboard/callboard/internal/views/audit"
	"github.com/callboard/callboard/internal/views/board"
	"github.com/callboard/callboard/internal/views/detail"
	helpview "github.com/callboard/callboard/internal/views/help"
	"github.com/callboard/callboard/internal/views/status"
)

// Console is what the program needs from the console facade.
// *console.Console implements it.
type Console interface {
	Snapshot() console.Board
	Pump(ctx context.Context) []ami.Message
	Apply(batch []ami.Message) int
	Submit(ctx context.Context, in console.Intent) error
}

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDetail
	OverlayAudit
	OverlayHelp
)

var errNotConnected = errors.New("not connected")

type batchMsg []ami.Message

// lostMsg reports that the manager connection is gone for good.
type lostMsg struct{}

type resultMsg struct {
	intent console.Intent
	err    error
}

// Model is the root Bubble Tea model.
type Model struct {
	console Console
	lost    <-chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc

	keys   KeyMap
	help   help.Model
	width  int
	height int

	session  ami.Status
	overlay  Overlay
	detailID string
	confirm  bool // hangup-all awaiting confirmation
	dead     bool

	statusBar status.Model
	board     board.Model
	audit     auditview.Model
	helpPanel helpview.Model
}

// New creates the root model. lost is closed when the connection ends;
// nil means it never does.
func New(c Console, lost <-chan struct{}) Model {
	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		console:   c,
		lost:      lost,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		statusBar: status.New(),
		board:     board.New(),
		audit:     auditview.New(),
	}
	m.refresh()
	return m
}

// Init starts the notification pump and the connection watch.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.pump(), m.watch())
}

// Disconnected reports whether the connection was lost while running.
func (m Model) Disconnected() bool { return m.dead }

func (m Model) pump() tea.Cmd {
	ctx, c := m.ctx, m.console
	return func() tea.Msg {
		return batchMsg(c.Pump(ctx))
	}
}

func (m Model) watch() tea.Cmd {
	ctx, lost := m.ctx, m.lost
	return func() tea.Msg {
		select {
		case <-lost:
			return lostMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) submit(in console.Intent) tea.Cmd {
	ctx, c := m.ctx, m.console
	return func() tea.Msg {
		return resultMsg{intent: in, err: c.Submit(ctx, in)}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.board.Width = msg.Width
		m.board.Height = msg.Height - 8
		m.help.Width = msg.Width
		if m.overlay == OverlayHelp {
			m.helpPanel = helpview.New(m.keys.Groups(), msg.Width)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case batchMsg:
		if m.ctx.Err() != nil {
			return m, nil
		}
		if len(msg) > 0 {
			m.console.Apply(msg)
		}
		m.refresh()
		return m, m.pump()

	case lostMsg:
		m.dead = true
		m.confirm = false
		m.refresh()
		return m, nil

	case resultMsg:
		if msg.err != nil {
			m.setNotice(fmt.Sprintf("%s: %v", msg.intent, msg.err), true)
		} else {
			m.setNotice(fmt.Sprintf("%s accepted", msg.intent), false)
		}
		m.refresh()
		return m, nil
	}

	return m, nil
}

func (m *Model) refresh() {
	b := m.console.Snapshot()
	m.session = b.Session
	m.board.SetCalls(b.Calls)
	m.statusBar.SetBoard(b)
	m.audit.SetEntries(b.Audit)
	m.audit.Seen = b.AuditSeen
}

func (m *Model) setNotice(text string, isErr bool) {
	m.statusBar.Notice = text
	m.statusBar.NoticeErr = isErr
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) && !m.confirm {
		m.cancel()
		return m, tea.Quit
	}

	if m.confirm {
		m.confirm = false
		if key.Matches(msg, m.keys.Confirm) {
			return m.act(console.Intent{Kind: console.HangupAll})
		}
		m.setNotice("hangup all cancelled", false)
		return m, nil
	}

	switch m.overlay {
	case OverlayAudit:
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Audit):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.audit.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.audit.ScrollDown(1)
		}
		return m, nil

	case OverlayHelp:
		if key.Matches(msg, m.keys.Escape) || key.Matches(msg, m.keys.Help) {
			m.overlay = OverlayNone
		}
		return m, nil

	case OverlayDetail:
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.overlay = OverlayNone
			m.detailID = ""
			return m, nil
		case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down), key.Matches(msg, m.keys.Enter):
			return m, nil
		}
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		m.board.MoveDown()

	case key.Matches(msg, m.keys.Up):
		m.board.MoveUp()

	case key.Matches(msg, m.keys.Right):
		m.board.NextMember()

	case key.Matches(msg, m.keys.Left):
		m.board.PrevMember()

	case key.Matches(msg, m.keys.Enter):
		if c, ok := m.board.Selected(); ok {
			m.overlay = OverlayDetail
			m.detailID = c.ID
		}

	case key.Matches(msg, m.keys.Audit):
		m.overlay = OverlayAudit

	case key.Matches(msg, m.keys.Help):
		m.overlay = OverlayHelp
		m.helpPanel = helpview.New(m.keys.Groups(), m.width)

	case key.Matches(msg, m.keys.Hangup):
		if leg, ok := m.member(); ok {
			return m.act(console.Intent{Kind: console.Hangup, Channel: leg.Name})
		}

	case key.Matches(msg, m.keys.Kick):
		if c, ok := m.call(); ok {
			if leg, ok := m.member(); ok {
				return m.act(console.Intent{Kind: console.Kick, Bridge: c.ID, Channel: leg.Name})
			}
		}

	case key.Matches(msg, m.keys.Destroy):
		if c, ok := m.call(); ok {
			return m.act(console.Intent{Kind: console.Destroy, Bridge: c.ID})
		}

	case key.Matches(msg, m.keys.Listen):
		return m.monitor(control.Listen)

	case key.Matches(msg, m.keys.Whisper):
		return m.monitor(control.Whisper)

	case key.Matches(msg, m.keys.Barge):
		return m.monitor(control.Barge)

	case key.Matches(msg, m.keys.HangupAll):
		if m.dead {
			m.setNotice("hangup all: "+errNotConnected.Error(), true)
			return m, nil
		}
		m.confirm = true

	case key.Matches(msg, m.keys.Refresh):
		return m.act(console.Intent{Kind: console.Refresh})
	}

	return m, nil
}

func (m Model) monitor(mode control.Mode) (tea.Model, tea.Cmd) {
	if leg, ok := m.member(); ok {
		return m.act(console.Intent{Kind: console.Monitor, Channel: leg.Name, Mode: mode})
	}
	return m, nil
}

// act submits an intent unless the connection is gone.
func (m Model) act(in console.Intent) (tea.Model, tea.Cmd) {
	if m.dead {
		m.setNotice(fmt.Sprintf("%s: %v", in, errNotConnected), true)
		return m, nil
	}
	m.setNotice(in.String()+"...", false)
	return m, m.submit(in)
}

// call returns the targeted call. With the detail overlay open it must be
// the call the overlay was opened on.
func (m Model) call() (console.Call, bool) {
	c, ok := m.board.Selected()
	if !ok {
		return console.Call{}, false
	}
	if m.overlay == OverlayDetail && c.ID != m.detailID {
		return console.Call{}, false
	}
	return c, true
}

func (m Model) member() (console.Leg, bool) {
	if _, ok := m.call(); !ok {
		return console.Leg{}, false
	}
	return m.board.SelectedMember()
}

// View renders the full console.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	main := m.board.View()
	switch {
	case m.dead:
		main = m.renderDisconnected()
	case m.overlay == OverlayDetail:
		main = m.renderDetail()
	case m.overlay == OverlayAudit:
		main = m.audit.View(m.width, m.height-4)
	case m.overlay == OverlayHelp:
		main = m.helpPanel.View()
	}

	footer := m.help.View(m.keys)
	if m.confirm {
		footer = theme.StyleDanger.Render("  Hang up EVERY channel? y to confirm, any other key cancels")
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.statusBar.View(), main, footer)
}

func (m Model) renderDetail() string {
	c, ok := m.board.Selected()
	if !ok || c.ID != m.detailID {
		d := detail.New(console.Call{ID: m.detailID}, 0)
		d.Present = false
		return d.View()
	}
	return detail.New(c, m.board.MemberIdx).View()
}

func (m Model) renderDisconnected() string {
	reason := m.session.Reason
	if reason == "" {
		reason = "connection closed"
	}
	box := lipgloss.NewStyle().
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorDanger).
		Padding(1, 4).
		Align(lipgloss.Center).
		Render(lipgloss.JoinVertical(lipgloss.Center,
			theme.StyleDanger.Render("DISCONNECTED"),
			"",
			reason,
			theme.StyleDimmed.Render("The manager connection was lost. Press q to quit."),
		))
	h := m.height - 6
	if h < 7 {
		h = 7
	}
	return lipgloss.Place(m.width, h, lipgloss.Center, lipgloss.Center, box)
}
