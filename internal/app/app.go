// Package app wires the pieces together: configuration, credentials,
// the API client, the poll scheduler, the alert engine, and the display.
// All mutable state (the state store, the alert state, the blink timer
// chain) is touched only from the dispatch consumer goroutine.
package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nixlim/burnbar/internal/alert"
	"github.com/nixlim/burnbar/internal/api"
	"github.com/nixlim/burnbar/internal/auth"
	"github.com/nixlim/burnbar/internal/config"
	"github.com/nixlim/burnbar/internal/dispatch"
	"github.com/nixlim/burnbar/internal/notify"
	"github.com/nixlim/burnbar/internal/poll"
	"github.com/nixlim/burnbar/internal/state"
	"github.com/nixlim/burnbar/internal/tui"
	"github.com/nixlim/burnbar/internal/usage"
)

// maxErrorLen caps error text shown on the display.
const maxErrorLen = 80

// Display is the presentation surface the app pushes updates to.
// Implemented by tui.Surface.
type Display interface {
	PushUsage(snap usage.Snapshot, th alert.Thresholds, st alert.State, at time.Time)
	PushError(msg string, at time.Time)
	PushBlink(st alert.State)
	PushStatusLines(lines []string)
	Shutdown()
}

var _ Display = (*tui.Surface)(nil)

type App struct {
	log      zerolog.Logger
	cfg      *config.Store
	creds    *auth.Manager
	store    *state.MemoryStore
	loop     *dispatch.Loop
	sched    *poll.Scheduler
	display  Display
	notifier notify.Notifier

	// runDisplay blocks on the display event loop; split from Display
	// so tests can run the app against a fake surface.
	runDisplay func() error

	// Consumer-goroutine state. blinkGen invalidates in-flight blink
	// timers whenever the alert state is recomputed.
	alerts   alert.State
	blinkGen int

	stopOnce sync.Once
}

// New assembles the application around a loaded config store.
func New(cfg *config.Store, log zerolog.Logger) *App {
	a := &App{
		log:      log.With().Str("component", "app").Logger(),
		cfg:      cfg,
		creds:    auth.NewManager(cfg, log),
		store:    state.NewMemoryStore(),
		loop:     dispatch.NewLoop(dispatch.NewQueue(), log),
		notifier: notify.NewPlatformNotifier(cfg.SystemNotify(), log),
	}

	client := api.New(log, api.WithEndpointMode(api.EndpointMode(cfg.EndpointMode())))
	a.sched = poll.NewScheduler(client, a.creds, cfg.PollInterval, a.publish, log)

	model := tui.NewModel(
		tui.WithThresholds(cfg.Thresholds()),
		tui.WithOnRefresh(a.sched.RefreshNow),
		tui.WithOnDismiss(a.RequestDismiss),
	)
	surface := tui.NewSurface(model)
	a.display = surface
	a.runDisplay = surface.Run
	return a
}

// Run starts the background machinery and blocks on the display until
// the user quits or Stop is called.
func (a *App) Run() error {
	a.log.Info().
		Bool("oauth_mode", a.cfg.OAuthMode()).
		Bool("credentials_present", a.creds.Available()).
		Msg("starting")

	if a.cfg.OAuthMode() && !a.creds.Available() {
		if ok, err := a.creds.ImportAndSave(); err != nil {
			a.log.Warn().Err(err).Msg("credential import failed")
		} else if ok {
			a.log.Info().Msg("imported Claude Code credentials")
		}
	}

	go a.loop.Run()
	a.sched.Start()
	a.loop.Push(func() {
		a.display.PushStatusLines(a.statusLines())
	})

	err := a.runDisplay()
	a.teardown()
	return err
}

// Stop shuts the application down from outside the display loop, e.g.
// on a signal. Safe to call more than once.
func (a *App) Stop() {
	a.display.Shutdown()
}

func (a *App) teardown() {
	a.stopOnce.Do(func() {
		a.sched.Stop()
		a.loop.Shutdown(func() {
			a.log.Info().Msg("stopped")
		})
	})
}

// RequestDismiss asks the consumer to latch a dismissal on the active
// alerts. Called from the display goroutine.
func (a *App) RequestDismiss() {
	a.loop.Push(a.dismiss)
}

// publish hands a poll outcome to the consumer goroutine. Called from
// the scheduler and from manual-refresh goroutines; whichever outcome
// is enqueued last wins.
func (a *App) publish(o poll.Outcome) {
	a.loop.Push(func() { a.handleOutcome(o) })
}

func (a *App) handleOutcome(o poll.Outcome) {
	th := a.cfg.Thresholds()

	if o.Err != nil {
		msg := truncate(o.Err.Error(), maxErrorLen)
		a.store.SetError(msg, o.At)
		a.alerts = alert.Evaluate(nil, th, a.alerts)
		a.blinkGen++
		a.display.PushError(msg, o.At)
	} else {
		a.store.SetSnapshot(*o.Snapshot, o.At)
		wasActionable := a.alerts.AnyActionable()
		a.alerts = alert.Evaluate(o.Snapshot, th, a.alerts)
		a.blinkGen++
		a.display.PushUsage(*o.Snapshot, th, a.alerts, o.At)
		if a.alerts.AnyActionable() {
			a.scheduleBlink(a.blinkGen, a.alerts.BlinkInterval())
			if !wasActionable {
				a.notifyAlert(o.Snapshot)
			}
		}
	}
	a.display.PushStatusLines(a.statusLines())
}

func (a *App) dismiss() {
	if !a.alerts.AnyActionable() {
		return
	}
	a.log.Info().Msg("alert dismissed")
	a.alerts = alert.Dismiss(a.alerts)
	a.blinkGen++
	a.display.PushBlink(a.alerts)
}

// notifyAlert sends one desktop notification naming the worst window.
// Only fired on the transition into alert, never on every poll.
func (a *App) notifyAlert(snap *usage.Snapshot) {
	if a.notifier == nil {
		return
	}
	worst := -1
	for i, ws := range a.alerts.Windows {
		if !ws.Active || ws.Dismissed {
			continue
		}
		if worst < 0 || snap.Windows[i].Utilization > snap.Windows[worst].Utilization {
			worst = i
		}
	}
	if worst < 0 {
		return
	}
	w := snap.Windows[worst]
	a.notifier.Notify(notify.Notification{
		Title:    "BurnBar quota alert",
		Body:     fmt.Sprintf("%s at %.0f%% used", w.Label, w.Utilization*100),
		Critical: a.alerts.AnyCritical(),
	})
}

// scheduleBlink arms one blink half-period. The fired timer re-enters
// through the dispatch queue, so the toggle itself runs on the consumer
// goroutine; a stale generation means the alert state moved on and the
// chain dies here.
func (a *App) scheduleBlink(gen int, d time.Duration) {
	time.AfterFunc(d, func() {
		a.loop.Push(func() { a.blinkTick(gen) })
	})
}

func (a *App) blinkTick(gen int) {
	if gen != a.blinkGen || !a.alerts.AnyActionable() {
		return
	}
	a.alerts = alert.TogglePhase(a.alerts)
	a.display.PushBlink(a.alerts)
	a.scheduleBlink(gen, a.alerts.BlinkInterval())
}

// statusLines mirrors the informational lines under the bars.
func (a *App) statusLines() []string {
	cur := a.store.Get()
	var lines []string

	switch {
	case cur.Err != "":
		lines = append(lines, "Error: "+cur.Err)
	case cur.Snapshot == nil:
		if !a.creds.Available() {
			mode := "API key"
			if a.cfg.OAuthMode() {
				mode = "OAuth token"
			}
			lines = append(lines, mode+" not set, edit "+config.DefaultConfigPath())
		} else {
			lines = append(lines, "Connecting...")
		}
	default:
		snap := cur.Snapshot
		lines = append(lines, fmt.Sprintf("%.0f%% capacity remaining", snap.RemainingPct()))
		lines = append(lines, snap.DetailLine())
	}

	if !cur.UpdatedAt.IsZero() {
		lines = append(lines, "Updated: "+cur.UpdatedAt.Format("3:04:05 PM"))
	}
	return lines
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
