// Package tui renders the always-visible quota display: one bar per
// monitored window, colored by the configured thresholds, blinking when
// a window is in alert. The model is passive; the application pushes
// updates in through the program's message queue and receives user
// intent back through callbacks.
package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nixlim/burnbar/internal/alert"
	"github.com/nixlim/burnbar/internal/usage"
)

// UsageMsg carries a fresh snapshot and the alert state computed for it.
type UsageMsg struct {
	Snapshot   usage.Snapshot
	Thresholds alert.Thresholds
	Alerts     alert.State
	UpdatedAt  time.Time
}

// ErrorMsg replaces the display with an error line until the next
// successful check.
type ErrorMsg struct {
	Message string
	At      time.Time
}

// BlinkMsg flips the blink phase of the alerting bars.
type BlinkMsg struct {
	State alert.State
}

// StatusLinesMsg updates the informational lines under the bars.
type StatusLinesMsg struct {
	Lines []string
}

// ShutdownMsg tells the display to exit its event loop.
type ShutdownMsg struct{}

type tickMsg time.Time

type Model struct {
	width  int
	height int
	keys   KeyMap

	snapshot   *usage.Snapshot
	thresholds alert.Thresholds
	alerts     alert.State
	errMsg     string
	statusLine []string
	updatedAt  time.Time

	quitting bool

	onRefresh func()
	onDismiss func()
	onExit    func()
}

func NewModel(opts ...ModelOption) Model {
	m := Model{
		keys:       DefaultKeyMap(),
		thresholds: alert.DefaultThresholds(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

type ModelOption func(*Model)

// WithOnRefresh sets the manual-refresh callback.
func WithOnRefresh(fn func()) ModelOption {
	return func(m *Model) { m.onRefresh = fn }
}

// WithOnDismiss sets the alert-dismiss callback.
func WithOnDismiss(fn func()) ModelOption {
	return func(m *Model) { m.onDismiss = fn }
}

// WithOnExit sets the callback run when the user quits the display.
func WithOnExit(fn func()) ModelOption {
	return func(m *Model) { m.onExit = fn }
}

// WithThresholds sets the initial coloring thresholds.
func WithThresholds(th alert.Thresholds) ModelOption {
	return func(m *Model) { m.thresholds = th }
}

func (m Model) Init() tea.Cmd {
	return m.tickCmd()
}

// tickCmd keeps the countdowns current between polls.
func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, m.tickCmd()

	case UsageMsg:
		snap := msg.Snapshot
		m.snapshot = &snap
		m.thresholds = msg.Thresholds
		m.alerts = msg.Alerts
		m.errMsg = ""
		m.updatedAt = msg.UpdatedAt
		return m, nil

	case ErrorMsg:
		m.snapshot = nil
		m.errMsg = msg.Message
		m.updatedAt = msg.At
		return m, nil

	case BlinkMsg:
		m.alerts = msg.State
		return m, nil

	case StatusLinesMsg:
		m.statusLine = msg.Lines
		return m, nil

	case ShutdownMsg:
		m.quitting = true
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		if m.onExit != nil {
			m.onExit()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Refresh):
		if m.onRefresh != nil {
			m.onRefresh()
		}
		return m, nil

	case key.Matches(msg, m.keys.Dismiss):
		if m.onDismiss != nil {
			m.onDismiss()
		}
		return m, nil
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var lines []string
	lines = append(lines, titleStyle.Render("burnbar"))
	lines = append(lines, "")

	switch {
	case m.errMsg != "":
		lines = append(lines, errorStyle.Render("Error: "+m.errMsg))
	case m.snapshot == nil:
		lines = append(lines, dimStyle.Render("Waiting for first check..."))
	default:
		lines = append(lines, m.renderBars(time.Now())...)
		if m.snapshot.HasReset() {
			if rd := m.snapshot.ResetDisplay(time.Now()); rd != "" {
				lines = append(lines, dimStyle.Render("Resets: "+rd))
			}
		}
	}

	for _, sl := range m.statusLine {
		lines = append(lines, dimStyle.Render(sl))
	}
	if !m.updatedAt.IsZero() {
		lines = append(lines, dimStyle.Render("Updated "+m.updatedAt.Format("3:04:05 PM")))
	}

	lines = append(lines, "")
	lines = append(lines, m.helpLine())

	out := strings.Join(lines, "\n")
	if m.height > 0 {
		split := strings.Split(out, "\n")
		if len(split) > m.height {
			out = strings.Join(split[:m.height], "\n")
		}
	}
	return out
}

func (m Model) helpLine() string {
	parts := []string{
		m.keys.Refresh.Help().Key + " " + m.keys.Refresh.Help().Desc,
		m.keys.Dismiss.Help().Key + " " + m.keys.Dismiss.Help().Desc,
		m.keys.Quit.Help().Key + " " + m.keys.Quit.Help().Desc,
	}
	return dimStyle.Render(strings.Join(parts, "  "))
}
