package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/nixlim/burnbar/internal/alert"
	"github.com/nixlim/burnbar/internal/usage"
)

const barWidth = 20

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	greenBar    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellowBar   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	redBar      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	criticalBar = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

func (m Model) renderBars(now time.Time) []string {
	lines := make([]string, 0, len(m.snapshot.Windows))
	for i, w := range m.snapshot.Windows {
		var ws alert.WindowState
		if i < len(m.alerts.Windows) {
			ws = m.alerts.Windows[i]
		}
		lines = append(lines, m.renderBar(w, ws, now))
	}
	return lines
}

// renderBar draws one window as "label [████░░...] 38%  42m". A bar in
// alert hides its fill on the dark blink phase; a dismissed alert keeps
// its color without blinking.
func (m Model) renderBar(w usage.Window, ws alert.WindowState, now time.Time) string {
	filled := int(w.Utilization*barWidth + 0.5)
	if filled > barWidth {
		filled = barWidth
	}

	hidden := ws.Active && !ws.Dismissed && !m.alerts.BlinkVisible

	var bar string
	if hidden {
		bar = strings.Repeat(" ", barWidth)
	} else {
		bar = m.barStyle(w, ws).Render(strings.Repeat("█", filled)) +
			dimStyle.Render(strings.Repeat("░", barWidth-filled))
	}

	line := fmt.Sprintf("%-14s [%s] %3.0f%%", w.Label, bar, w.Utilization*100)
	if cd := usage.FormatCountdown(w.ResetEpoch, now); cd != "" {
		line += "  " + dimStyle.Render(cd)
	}
	return line
}

func (m Model) barStyle(w usage.Window, ws alert.WindowState) lipgloss.Style {
	if ws.Critical {
		return criticalBar
	}
	remaining := (1 - w.Utilization) * 100
	switch {
	case remaining <= m.thresholds.RedPct:
		return redBar
	case remaining <= m.thresholds.YellowPct:
		return yellowBar
	default:
		return greenBar
	}
}
