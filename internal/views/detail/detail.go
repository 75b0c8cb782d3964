// Package detail renders the call detail flyout: one row block per member
// with caller, connected line, state and leg age.
package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/callboard/callboard/internal/console"
	"github.com/callboard/callboard/internal/theme"
	"github.com/callboard/callboard/internal/views/board"
)

const (
	panelWidth = 72
	labelWidth = 12
)

var (
	stylePanel = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Padding(0, 1)

	styleLabel = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed).
			Width(labelWidth)

	styleValue = lipgloss.NewStyle().
			Foreground(theme.ColorBright)

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorBright)

	styleFooter = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed)

	styleSectionHeader = lipgloss.NewStyle().
				Bold(true).
				Foreground(theme.ColorDimmed)
)

// Model holds the call shown in the flyout and the member cursor.
type Model struct {
	Call      console.Call
	MemberIdx int
	Present   bool // false once the call has ended
}

// New creates a detail model for the given call.
func New(c console.Call, memberIdx int) Model {
	return Model{Call: c, MemberIdx: memberIdx, Present: true}
}

// View renders the detail panel.
func (m Model) View() string {
	return stylePanel.Width(panelWidth).Render(m.renderInner())
}

func (m Model) renderInner() string {
	var b strings.Builder
	c := m.Call

	b.WriteString(styleTitle.Render("Call: "+c.ID) + "\n")
	b.WriteString(strings.Repeat("─", panelWidth-4) + "\n")

	if !m.Present {
		b.WriteString(theme.StyleDanger.Render("This call has ended.") + "\n\n")
		b.WriteString(styleFooter.Render("[esc] close"))
		return b.String()
	}

	dir := c.Direction.String()
	writeRow(&b, "Direction", lipgloss.NewStyle().Foreground(theme.DirectionColor(dir)).Render(dir))
	writeRow(&b, "Duration", board.FormatDuration(c.Duration))
	if c.Type != "" {
		writeRow(&b, "Bridge type", c.Type)
	}
	b.WriteString("\n")

	b.WriteString(styleSectionHeader.Render(fmt.Sprintf("Members (%d)", len(c.Members))) + "\n")
	for i, leg := range c.Members {
		b.WriteString(renderLeg(leg, i == m.MemberIdx))
	}

	b.WriteString("\n")
	b.WriteString(styleFooter.Render("←/→ member  x hangup  e kick  D destroy  m/w/b monitor  [esc] close"))
	return b.String()
}

func renderLeg(leg console.Leg, selected bool) string {
	var b strings.Builder
	marker := "  "
	name := leg.Name
	if selected {
		marker = "> "
		name = theme.StyleSelected.Render(name)
	}
	dir := leg.Direction.String()
	b.WriteString(marker + name + "  " +
		lipgloss.NewStyle().Foreground(theme.DirectionColor(dir)).Render(dir) + "\n")

	writeRow(&b, "  Caller", party(leg.CallerName, leg.CallerNum))
	writeRow(&b, "  Connected", party(leg.ConnectedName, leg.ConnectedNum))
	if leg.State != "" {
		writeRow(&b, "  State", leg.State)
	}
	if leg.Context != "" {
		writeRow(&b, "  Context", fmt.Sprintf("%s,%s,%s", leg.Context, orDash(leg.Exten), orDash(leg.Priority)))
	}
	writeRow(&b, "  Age", board.FormatDuration(leg.Age))
	return b.String()
}

func party(name, num string) string {
	switch {
	case name != "" && num != "":
		return fmt.Sprintf("%s <%s>", name, num)
	case num != "":
		return num
	case name != "":
		return name
	}
	return "-"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeRow(b *strings.Builder, label, value string) {
	b.WriteString(styleLabel.Render(label+":") + styleValue.Render(value) + "\n")
}
