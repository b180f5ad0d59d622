package components

import (
	"strings"
	"testing"

	"charm.land/lipgloss/v2"
)

func TestProgressBar_Width(t *testing.T) {
	for _, pct := range []float64{0, 0.3, 0.646, 1, 1.5, -0.2} {
		bar := NewProgressBar("fractions", pct, "learning", 40)
		bar.LabelWidth = 12
		got := lipgloss.Width(bar.View())
		if got != 40 {
			t.Errorf("percent %v: width = %d, want 40", pct, got)
		}
	}
}

func TestProgressBar_MinimumBar(t *testing.T) {
	bar := NewProgressBar("a-very-long-skill-name", 0.5, "new", 10)
	bar.ShowPercent = false
	view := bar.View()
	want := lipgloss.Width("a-very-long-skill-name  ") + 4
	if got := lipgloss.Width(view); got != want {
		t.Errorf("width = %d, want %d", got, want)
	}
}

func TestProgressBar_ShowsPercent(t *testing.T) {
	view := NewProgressBar("add", 0.646, "learning", 30).View()
	if !strings.Contains(view, "64.6%") {
		t.Errorf("view %q does not contain 64.6%%", view)
	}
	if !strings.Contains(view, "add") {
		t.Errorf("view %q does not contain the label", view)
	}
}

func TestDelta(t *testing.T) {
	tests := []struct {
		before, after float64
		want          string
	}{
		{0.3, 0.646, "(+34.6)"},
		{0.646, 0.276, "(-37.0)"},
		{0.5, 0.5, "(+0.0)"},
	}
	for _, tt := range tests {
		got := Delta(tt.before, tt.after)
		if !strings.Contains(got, tt.want) {
			t.Errorf("Delta(%v, %v) = %q, want it to contain %q", tt.before, tt.after, got, tt.want)
		}
	}
}
