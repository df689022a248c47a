package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nixlim/burnbar/internal/alert"
	"github.com/nixlim/burnbar/internal/usage"
)

// Surface runs the display program and is the handle other goroutines
// use to push updates into it. Program.Send is safe to call from any
// goroutine, including before Run has started the event loop.
type Surface struct {
	prog *tea.Program
}

// NewSurface wraps a Model in a bubbletea program.
func NewSurface(m Model) *Surface {
	return &Surface{prog: tea.NewProgram(m, tea.WithAltScreen())}
}

// Run blocks on the display event loop until shutdown.
func (s *Surface) Run() error {
	_, err := s.prog.Run()
	return err
}

// PushUsage shows a fresh snapshot with its alert state.
func (s *Surface) PushUsage(snap usage.Snapshot, th alert.Thresholds, st alert.State, at time.Time) {
	s.prog.Send(UsageMsg{Snapshot: snap, Thresholds: th, Alerts: st, UpdatedAt: at})
}

// PushError shows an error in place of the bars.
func (s *Surface) PushError(msg string, at time.Time) {
	s.prog.Send(ErrorMsg{Message: msg, At: at})
}

// PushBlink updates the blink phase.
func (s *Surface) PushBlink(st alert.State) {
	s.prog.Send(BlinkMsg{State: st})
}

// PushStatusLines updates the informational lines under the bars.
func (s *Surface) PushStatusLines(lines []string) {
	s.prog.Send(StatusLinesMsg{Lines: lines})
}

// Shutdown asks the display to exit; Run returns once it has.
func (s *Surface) Shutdown() {
	s.prog.Send(ShutdownMsg{})
}
