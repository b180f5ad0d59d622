package theme

import (
	"charm.land/lipgloss/v2"
)

// Color palette
var (
	Primary   = lipgloss.Color("#8B5CF6") // Vivid Purple
	Secondary = lipgloss.Color("#14B8A6") // Teal
	Accent    = lipgloss.Color("#F97316") // Orange
	Success   = lipgloss.Color("#22C55E") // Green
	Error     = lipgloss.Color("#F43F5E") // Rose
	Text      = lipgloss.Color("#F8FAFC") // White
	TextDim   = lipgloss.Color("#94A3B8") // Slate
	Border    = lipgloss.Color("#334155") // Slate
)

// Typography
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Body = lipgloss.NewStyle().
		Foreground(Text)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)

	Warning = lipgloss.NewStyle().
		Foreground(Accent)
)

// Changes in mastery
var (
	Up = lipgloss.NewStyle().
		Foreground(Success).
		Bold(true)

	Down = lipgloss.NewStyle().
		Foreground(Error).
		Bold(true)

	Flat = lipgloss.NewStyle().
		Foreground(TextDim)
)

// Components
var (
	ProgressEmpty = lipgloss.NewStyle().
			Background(Border)
)

// StateColor returns the bar color for a mastery lifecycle state.
func StateColor(state string) lipgloss.Style {
	switch state {
	case "mastered":
		return lipgloss.NewStyle().Background(Success)
	case "rusty":
		return lipgloss.NewStyle().Background(Accent)
	case "learning":
		return lipgloss.NewStyle().Background(Secondary)
	default:
		return lipgloss.NewStyle().Background(Primary)
	}
}
