// Package board renders the list of live calls, longest first, with a
// cursor over calls and over the members of the selected call.
package board

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/callboard/callboard/internal/console"
	"github.com/callboard/callboard/internal/theme"
)

// Model holds the call list and the cursor.
type Model struct {
	calls []console.Call

	SelectedIdx int
	MemberIdx   int

	Width  int
	Height int
}

func New() Model {
	return Model{}
}

// SetCalls replaces the list. The cursor follows the selected call by id
// when it is still present and is clamped otherwise.
func (m *Model) SetCalls(calls []console.Call) {
	var selectedID, memberName string
	if c, ok := m.Selected(); ok {
		selectedID = c.ID
		if leg, ok := m.SelectedMember(); ok {
			memberName = leg.Name
		}
	}
	m.calls = calls

	if selectedID != "" {
		for i, c := range calls {
			if c.ID != selectedID {
				continue
			}
			m.SelectedIdx = i
			m.MemberIdx = 0
			for j, leg := range c.Members {
				if leg.Name == memberName {
					m.MemberIdx = j
				}
			}
			return
		}
	}
	m.clampSelection()
}

// Calls returns the rendered list.
func (m Model) Calls() []console.Call { return m.calls }

func (m *Model) MoveDown() {
	if len(m.calls) > 0 {
		m.SelectedIdx = (m.SelectedIdx + 1) % len(m.calls)
		m.MemberIdx = 0
	}
}

func (m *Model) MoveUp() {
	if len(m.calls) > 0 {
		m.SelectedIdx = (m.SelectedIdx - 1 + len(m.calls)) % len(m.calls)
		m.MemberIdx = 0
	}
}

// NextMember cycles the member cursor within the selected call.
func (m *Model) NextMember() {
	if c, ok := m.Selected(); ok && len(c.Members) > 0 {
		m.MemberIdx = (m.MemberIdx + 1) % len(c.Members)
	}
}

func (m *Model) PrevMember() {
	if c, ok := m.Selected(); ok && len(c.Members) > 0 {
		m.MemberIdx = (m.MemberIdx - 1 + len(c.Members)) % len(c.Members)
	}
}

// Selected returns the call under the cursor.
func (m Model) Selected() (console.Call, bool) {
	if m.SelectedIdx >= 0 && m.SelectedIdx < len(m.calls) {
		return m.calls[m.SelectedIdx], true
	}
	return console.Call{}, false
}

// SelectedMember returns the leg under the member cursor.
func (m Model) SelectedMember() (console.Leg, bool) {
	c, ok := m.Selected()
	if !ok || m.MemberIdx < 0 || m.MemberIdx >= len(c.Members) {
		return console.Leg{}, false
	}
	return c.Members[m.MemberIdx], true
}

func (m Model) View() string {
	width := m.Width
	if width < 60 {
		width = 60
	}

	headerText := "═══ CALLS "
	fill := width - len(headerText) - 2
	if fill < 4 {
		fill = 4
	}
	sections := []string{theme.StyleHeader.Render(headerText + strings.Repeat("═", fill))}

	if len(m.calls) == 0 {
		sections = append(sections, theme.StyleDimmed.Render("  No active calls"))
		return lipgloss.JoinVertical(lipgloss.Left, sections...)
	}

	limit := len(m.calls)
	if m.Height > 2 && limit > m.Height-1 {
		limit = m.Height - 1
	}
	start := 0
	if m.SelectedIdx >= limit {
		start = m.SelectedIdx - limit + 1
	}
	for i := start; i < start+limit && i < len(m.calls); i++ {
		selected := i == m.SelectedIdx
		sections = append(sections, m.renderCall(m.calls[i], selected, width))
	}
	if hidden := len(m.calls) - limit; hidden > 0 {
		sections = append(sections, theme.StyleDimmed.Render(fmt.Sprintf("  … %d more", hidden)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderCall(c console.Call, selected bool, width int) string {
	prefix := "  "
	if selected {
		prefix = "> "
	}
	dir := c.Direction.String()
	dirStr := lipgloss.NewStyle().
		Foreground(theme.DirectionColor(dir)).
		Width(12).
		Render(theme.DirectionGlyph(dir) + " " + dir)

	idStyle := theme.StyleDimmed
	if selected {
		idStyle = theme.StyleSelected
	}
	id := idStyle.Render(fmt.Sprintf("%-10s", Truncate(c.ID, 10)))

	parts := make([]string, len(c.Members))
	for i, leg := range c.Members {
		label := PartyLabel(leg)
		if selected && i == m.MemberIdx {
			label = theme.StyleSelected.Underline(true).Render(label)
		}
		parts[i] = label
	}
	members := strings.Join(parts, theme.StyleDimmed.Render(" ⇄ "))

	line := prefix + dirStr + " " + FormatDuration(c.Duration) + "  " + id + "  " + members
	return lipgloss.NewStyle().MaxWidth(width).Render(line)
}

// PartyLabel names a leg the way an operator reads it: caller name and
// number when known, otherwise the channel peer.
func PartyLabel(leg console.Leg) string {
	switch {
	case leg.CallerName != "" && leg.CallerNum != "":
		return fmt.Sprintf("%s <%s>", leg.CallerName, leg.CallerNum)
	case leg.CallerNum != "":
		return leg.CallerNum
	case leg.Peer != "":
		return leg.Peer
	}
	return leg.Name
}

// FormatDuration renders d as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s/60%60, s%60)
}

func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func (m *Model) clampSelection() {
	if len(m.calls) == 0 {
		m.SelectedIdx = 0
		m.MemberIdx = 0
		return
	}
	if m.SelectedIdx >= len(m.calls) {
		m.SelectedIdx = len(m.calls) - 1
	}
	if m.SelectedIdx < 0 {
		m.SelectedIdx = 0
	}
	m.MemberIdx = 0
}
