package status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/callboard/callboard/internal/ami"
	"github.com/callboard/callboard/internal/console"
	"github.com/callboard/callboard/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Session   ami.Status
	Calls     int
	Channels  int
	Unbridged int
	Health    console.Health
	Notice    string // last action outcome
	NoticeErr bool
	Width     int
}

func New() Model {
	return Model{}
}

// SetBoard copies the counts and health from a board.
func (m *Model) SetBoard(b console.Board) {
	m.Session = b.Session
	m.Calls = len(b.Calls)
	m.Channels = b.Channels
	m.Unbridged = b.Unbridged
	m.Health = b.Health
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	state := m.Session.State.String()
	connStr := lipgloss.NewStyle().Foreground(theme.StateColor(state)).Render(stateLabel(m.Session))

	counts := fmt.Sprintf("%d calls  %d channels  %d unbridged", m.Calls, m.Channels, m.Unbridged)

	h := m.Health
	var load float64
	if h.QueueCap > 0 {
		load = float64(h.QueueDepth) / float64(h.QueueCap)
	}
	healthParts := []string{
		lipgloss.NewStyle().Foreground(theme.LoadColor(load)).Render(fmt.Sprintf("queue %d/%d", h.QueueDepth, h.QueueCap)),
	}
	if h.Dropped > 0 {
		healthParts = append(healthParts, lipgloss.NewStyle().Foreground(theme.ColorWarning).Render(fmt.Sprintf("dropped %d", h.Dropped)))
	}
	if h.Malformed > 0 {
		healthParts = append(healthParts, lipgloss.NewStyle().Foreground(theme.ColorWarning).Render(fmt.Sprintf("malformed %d", h.Malformed)))
	}
	if h.Pending > 0 {
		healthParts = append(healthParts, fmt.Sprintf("pending %d", h.Pending))
	}
	if h.RSS > 0 {
		healthParts = append(healthParts, theme.StyleDimmed.Render(fmt.Sprintf("rss %s", formatBytes(h.RSS))))
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + counts + sep + strings.Join(healthParts, "  ")
	if m.Notice != "" {
		color := theme.ColorHealthy
		if m.NoticeErr {
			color = theme.ColorDanger
		}
		content += "\n" + lipgloss.NewStyle().Foreground(color).Render(m.Notice)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func stateLabel(s ami.Status) string {
	switch s.State {
	case ami.Authenticated:
		return "● Connected"
	case ami.Connecting, ami.Authenticating:
		return "◌ Connecting..."
	case ami.Failed:
		if s.Reason != "" {
			return "✗ Failed: " + s.Reason
		}
		return "✗ Failed"
	}
	return "○ Disconnected"
}

func formatBytes(n uint64) string {
	const mb = 1 << 20
	if n >= mb {
		return fmt.Sprintf("%.1fM", float64(n)/mb)
	}
	return fmt.Sprintf("%dk", n>>10)
}
