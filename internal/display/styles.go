// Package display renders the engine's events.Event stream for a terminal
// or for machine consumption (spec.md §6's three output modes), without
// the installer ever writing to a terminal itself.
package display

import "github.com/charmbracelet/lipgloss"

// Color palette, carried from the teacher's TUI unchanged: this is a
// thin front-end, not a redesign of the look.
var (
	ColorPrimary   = lipgloss.Color("#7C3AED")
	ColorSecondary = lipgloss.Color("#A78BFA")
	ColorAccent    = lipgloss.Color("#34D399")
	ColorWarning   = lipgloss.Color("#FBBF24")
	ColorError     = lipgloss.Color("#EF4444")
	ColorMuted     = lipgloss.Color("#626262")
	ColorText      = lipgloss.Color("#FAFAFA")
	ColorSubtle    = lipgloss.Color("#A1A1AA")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText).
			Background(ColorPrimary).
			Padding(0, 1)

	PhaseStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)
)
