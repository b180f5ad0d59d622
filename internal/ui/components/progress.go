package components

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/skilltrace/internal/ui/theme"
)

// ProgressBar displays a horizontal mastery bar.
type ProgressBar struct {
	Label string
	// LabelWidth pads the label so bars line up in a list.
	LabelWidth  int
	Percent     float64 // 0..1
	ShowPercent bool
	Width       int
	Fill        lipgloss.Style
}

// NewProgressBar creates a new progress bar filled with the color for state.
func NewProgressBar(label string, percent float64, state string, width int) ProgressBar {
	return ProgressBar{
		Label:       label,
		Percent:     percent,
		ShowPercent: true,
		Width:       width,
		Fill:        theme.StateColor(state),
	}
}

// View renders the progress bar.
func (p ProgressBar) View() string {
	var result string

	if p.Label != "" {
		label := p.Label
		if pad := p.LabelWidth - lipgloss.Width(label); pad > 0 {
			label += strings.Repeat(" ", pad)
		}
		result += theme.Body.Render(label) + "  "
	}

	labelWidth := lipgloss.Width(result)
	percentWidth := 0
	if p.ShowPercent {
		percentWidth = 8 // "  100.0%"
	}

	barWidth := p.Width - labelWidth - percentWidth
	if barWidth < 4 {
		barWidth = 4
	}

	filled := int(float64(barWidth) * p.Percent)
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}
	empty := barWidth - filled

	result += p.Fill.Render(strings.Repeat(" ", filled))
	result += theme.ProgressEmpty.Render(strings.Repeat(" ", empty))

	if p.ShowPercent {
		result += theme.Hint.UnsetItalic().
			Render(fmt.Sprintf("%8s", fmt.Sprintf("%.1f%%", p.Percent*100)))
	}

	return result
}

// Delta renders a change in mastery such as "30.0% → 64.6% (+34.6)".
func Delta(before, after float64) string {
	diff := (after - before) * 100
	style := theme.Flat
	switch {
	case diff > 0.05:
		style = theme.Up
	case diff < -0.05:
		style = theme.Down
	}
	return fmt.Sprintf("%.1f%% → %.1f%% %s", before*100, after*100, style.Render(fmt.Sprintf("(%+.1f)", diff)))
}
