// Package alert decides when the quota display must demand attention.
// Evaluation is pure: each poll outcome plus the previous alert state
// yields the next state, and the dispatch consumer owns the only copy.
package alert

import (
	"time"

	"github.com/nixlim/burnbar/internal/usage"
)

// redSlack widens the red threshold slightly so a window sitting exactly
// on the boundary still alerts after float round-trips through the
// utilization headers.
const redSlack = 0.1

// epsilon absorbs the rounding noise of (1-utilization)*100 so a window
// at exactly the critical percentage classifies as critical.
const epsilon = 1e-9

const (
	criticalBlink = 500 * time.Millisecond
	normalBlink   = time.Second
)

// Thresholds are remaining-capacity percentages. A window at or below
// RedPct is active, at or below CriticalPct it blinks fast. YellowPct
// only affects coloring, never alerting.
type Thresholds struct {
	YellowPct   float64
	RedPct      float64
	CriticalPct float64
}

// DefaultThresholds returns the stock 25/5/3 thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{YellowPct: 25, RedPct: 5, CriticalPct: 3}
}

// WindowState is the alert status of one quota window.
type WindowState struct {
	Active    bool
	Critical  bool
	Dismissed bool
}

// actionable reports whether this window should currently blink.
func (w WindowState) actionable() bool {
	return w.Active && !w.Dismissed
}

// State is the alert status of the whole display. Windows is positional,
// matching the snapshot's window order.
type State struct {
	Windows      []WindowState
	BlinkVisible bool
}

// AnyActionable reports whether any window should currently blink.
func (s State) AnyActionable() bool {
	for _, w := range s.Windows {
		if w.actionable() {
			return true
		}
	}
	return false
}

// AnyCritical reports whether any actionable window is critical.
func (s State) AnyCritical() bool {
	for _, w := range s.Windows {
		if w.actionable() && w.Critical {
			return true
		}
	}
	return false
}

// BlinkInterval is the cadence of the blink timer: the fastest severity
// among the actionable windows wins.
func (s State) BlinkInterval() time.Duration {
	if s.AnyCritical() {
		return criticalBlink
	}
	return normalBlink
}

// Evaluate folds a poll outcome into the alert state. A nil snapshot
// (error outcome, or nothing polled yet) deactivates everything. A
// snapshot whose window count differs from prev's (the account switched
// shapes) is treated as a fresh start: no dismissals carry over.
func Evaluate(snap *usage.Snapshot, th Thresholds, prev State) State {
	if snap == nil {
		return State{BlinkVisible: true}
	}

	if len(prev.Windows) != len(snap.Windows) {
		prev = State{BlinkVisible: prev.BlinkVisible}
	}

	next := State{
		Windows:      make([]WindowState, len(snap.Windows)),
		BlinkVisible: prev.BlinkVisible,
	}
	for i, w := range snap.Windows {
		remaining := (1 - w.Utilization) * 100
		ws := WindowState{
			Active:   remaining <= th.RedPct+redSlack,
			Critical: remaining <= th.CriticalPct+epsilon,
		}
		// A dismissal latches for as long as the window stays active
		// and clears itself once the quota recovers.
		if ws.Active && i < len(prev.Windows) && prev.Windows[i].Dismissed {
			ws.Dismissed = true
		}
		next.Windows[i] = ws
	}

	// The phase carries over only while an alert is ongoing. Entering
	// alert restarts on the visible half so the user sees the bar
	// immediately; leaving alert resets to visible so nothing is left
	// stranded on the dark half.
	if !prev.AnyActionable() || !next.AnyActionable() {
		next.BlinkVisible = true
	}
	return next
}

// Dismiss latches a dismissal on every currently active window and
// restores the visible phase. Inactive windows are untouched.
func Dismiss(prev State) State {
	next := State{
		Windows:      make([]WindowState, len(prev.Windows)),
		BlinkVisible: true,
	}
	for i, w := range prev.Windows {
		if w.Active {
			w.Dismissed = true
		}
		next.Windows[i] = w
	}
	return next
}

// TogglePhase flips the blink phase. The blink ticker calls this at the
// cadence BlinkInterval reports.
func TogglePhase(prev State) State {
	prev.BlinkVisible = !prev.BlinkVisible
	return prev
}
