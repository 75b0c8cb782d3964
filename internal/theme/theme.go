// Package theme provides the Lip Gloss color palette and reusable styles
// for the callboard console. It is a leaf package: callers pass plain
// strings so it never imports the domain packages.
package theme

import "github.com/charmbracelet/lipgloss"

// Direction colors.
var (
	ColorInbound  = lipgloss.Color("#3b82f6")
	ColorOutbound = lipgloss.Color("#d97706")
	ColorInternal = lipgloss.Color("#22c55e")
	ColorDefault  = lipgloss.Color("#9ca3af")
)

// Session state colors.
var (
	ColorConnecting = lipgloss.Color("#7c3aed")
	ColorUp         = lipgloss.Color("#16a34a")
	ColorFailed     = lipgloss.Color("#dc2626")
	ColorDown       = lipgloss.Color("#374151")
)

// Queue load thresholds.
var (
	ColorLoadLow  = lipgloss.Color("#22c55e") // <50%
	ColorLoadMid  = lipgloss.Color("#d97706") // 50-80%
	ColorLoadHigh = lipgloss.Color("#dc2626") // >80%
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// DirectionColor returns the color for a call direction name.
func DirectionColor(direction string) lipgloss.Color {
	switch direction {
	case "inbound":
		return ColorInbound
	case "outbound":
		return ColorOutbound
	case "internal":
		return ColorInternal
	default:
		return ColorDefault
	}
}

// DirectionGlyph returns a short arrow for a call direction name.
func DirectionGlyph(direction string) string {
	switch direction {
	case "inbound":
		return "→]"
	case "outbound":
		return "[→"
	case "internal":
		return "⇄"
	default:
		return "·"
	}
}

// StateColor returns the color for a session state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "authenticated":
		return ColorUp
	case "connecting", "authenticating":
		return ColorConnecting
	case "failed":
		return ColorFailed
	default:
		return ColorDown
	}
}

// KindColor returns the color for an audit entry kind.
func KindColor(kind string) lipgloss.Color {
	switch kind {
	case "evt":
		return ColorInbound
	case "act":
		return ColorHealthy
	case "err":
		return ColorDanger
	case "conn":
		return ColorConnecting
	default:
		return ColorDimmed
	}
}

// LoadColor returns the color for a queue fill ratio.
func LoadColor(pct float64) lipgloss.Color {
	switch {
	case pct > 0.8:
		return ColorLoadHigh
	case pct > 0.5:
		return ColorLoadMid
	default:
		return ColorLoadLow
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDanger = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorDanger)
)
