// Package help renders the key reference overlay from markdown.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/callboard/callboard/internal/theme"
)

// Group is one titled section of bindings.
type Group struct {
	Title    string
	Bindings []key.Binding
}

// Model holds the rendered reference. Rendering happens once per size.
type Model struct {
	content string
}

// New renders groups for the given terminal width.
func New(groups []Group, width int) Model {
	wrap := width - 8
	if wrap < 40 {
		wrap = 40
	}
	return Model{content: Render(groups, wrap)}
}

// Markdown lays out groups as a markdown document.
func Markdown(groups []Group) string {
	var b strings.Builder
	b.WriteString("# Keys\n\n")
	for _, g := range groups {
		fmt.Fprintf(&b, "## %s\n\n", g.Title)
		for _, kb := range g.Bindings {
			h := kb.Help()
			if h.Key == "" {
				continue
			}
			fmt.Fprintf(&b, "- `%s` %s\n", h.Key, h.Desc)
		}
		b.WriteString("\n")
	}
	b.WriteString("Actions are confirmed by the switch. The board changes only when the\n")
	b.WriteString("switch reports it, so a call that stays put means the action was refused.\n")
	return b.String()
}

// Render turns groups into styled terminal text, or plain markdown when
// the renderer is unavailable.
func Render(groups []Group, wrap int) string {
	md := Markdown(groups)
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// View renders the overlay panel.
func (m Model) View() string {
	footer := theme.StyleDimmed.Render("esc/?: close")
	return lipgloss.NewStyle().
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(strings.TrimRight(m.content, "\n") + "\n\n" + footer)
}
