// Package audit provides the scrollable audit trail overlay.
package audit

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	trail "github.com/callboard/callboard/internal/audit"
	"github.com/callboard/callboard/internal/theme"
)

// Model holds the entries on screen and the scroll position.
type Model struct {
	Entries []trail.Entry
	Offset  int    // scroll offset (from bottom)
	Seen    uint64 // entries ever recorded, evicted ones included
}

func New() Model {
	return Model{}
}

// SetEntries replaces the entries. A scrolled view stays on the same
// entries as new ones arrive; an unscrolled view follows the tail.
func (m *Model) SetEntries(entries []trail.Entry) {
	if m.Offset > 0 {
		m.Offset += len(entries) - len(m.Entries)
	}
	m.Entries = entries
	m.clamp()
}

// ScrollUp moves the viewport up.
func (m *Model) ScrollUp(n int) {
	m.Offset += n
	m.clamp()
}

// ScrollDown moves the viewport down.
func (m *Model) ScrollDown(n int) {
	m.Offset -= n
	m.clamp()
}

func (m *Model) clamp() {
	max := len(m.Entries) - 1
	if max < 0 {
		max = 0
	}
	if m.Offset > max {
		m.Offset = max
	}
	if m.Offset < 0 {
		m.Offset = 0
	}
}

func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)
}

// View renders the trail as an overlay panel.
func (m Model) View(width, height int) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}
	visibleLines := height - 6
	if visibleLines < 3 {
		visibleLines = 3
	}

	title := theme.StyleHeader.Render(" AUDIT TRAIL ")
	count := fmt.Sprintf("%d entries", len(m.Entries))
	if m.Seen > uint64(len(m.Entries)) {
		count = fmt.Sprintf("last %d of %d entries", len(m.Entries), m.Seen)
	}
	help := theme.StyleDimmed.Render("j/k:scroll  esc:close  " + count)

	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("  Nothing recorded yet.")
		content := lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help)
		return panelStyle(innerW).Render(content)
	}

	end := len(m.Entries) - m.Offset
	start := end - visibleLines
	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = 0
	}

	var lines []string
	for i := start; i < end; i++ {
		lines = append(lines, renderEntry(m.Entries[i], innerW))
	}

	body := strings.Join(lines, "\n")
	scrollIndicator := ""
	if m.Offset > 0 {
		scrollIndicator = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.Offset))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, body, scrollIndicator, help)
	return panelStyle(innerW).Render(content)
}

func renderEntry(e trail.Entry, width int) string {
	tsStr := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
	kindStr := lipgloss.NewStyle().Foreground(theme.KindColor(string(e.Kind))).Width(4).Render(string(e.Kind))
	msgStr := e.Message
	if len(msgStr) > width-20 && width > 23 {
		msgStr = msgStr[:width-23] + "..."
	}
	return fmt.Sprintf("%s %s %s", tsStr, kindStr, msgStr)
}
