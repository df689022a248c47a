// Package poll runs the periodic usage checks. The scheduler owns one
// background goroutine; manual refreshes run as independent one-shots so
// a stuck scheduled check never blocks the user, and whichever check
// finishes last wins.
package poll

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nixlim/burnbar/internal/api"
	"github.com/nixlim/burnbar/internal/auth"
	"github.com/nixlim/burnbar/internal/usage"
)

const (
	// initialDelay gives the UI a beat to come up before the first check.
	initialDelay = time.Second

	// minInterval is the floor on the poll interval regardless of config.
	minInterval = 10 * time.Second

	// sleepStep is how often the inter-poll sleep checks for stop.
	sleepStep = 100 * time.Millisecond
)

// Outcome is the result of one completed check: a snapshot or an error
// message, stamped with when the check finished.
type Outcome struct {
	Snapshot *usage.Snapshot
	Err      error
	At       time.Time
}

// Checker performs one usage check. Implemented by api.Client.
type Checker interface {
	CheckUsage(ctx context.Context, cred auth.Credential) (usage.Snapshot, error)
}

var _ Checker = (*api.Client)(nil)

// CredentialSource supplies the credential for each check. Implemented
// by auth.Manager.
type CredentialSource interface {
	// Available reports whether a credential is configured at all.
	Available() bool
	// EnsureValid refreshes an expired OAuth token before use.
	EnsureValid(ctx context.Context) error
	// Current returns the credential to probe with.
	Current() auth.Credential
}

var _ CredentialSource = (*auth.Manager)(nil)

// Scheduler drives the poll cadence. Each completed check is handed to
// the publish callback, possibly from concurrent goroutines; the
// callback is expected to enqueue onto the dispatch loop rather than
// mutate state directly.
type Scheduler struct {
	checker Checker
	creds   CredentialSource
	publish func(Outcome)
	// interval returns the configured poll interval so settings changes
	// take effect on the next cycle without a restart.
	interval func() time.Duration
	log      zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewScheduler creates a Scheduler. interval is consulted before every
// sleep; publish receives every outcome, scheduled or manual.
func NewScheduler(checker Checker, creds CredentialSource, interval func() time.Duration, publish func(Outcome), log zerolog.Logger) *Scheduler {
	return &Scheduler{
		checker:  checker,
		creds:    creds,
		publish:  publish,
		interval: interval,
		log:      log.With().Str("component", "poll").Logger(),
		now:      time.Now,
	}
}

// Start launches the poll goroutine. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
}

// Stop halts the poll goroutine and waits for it to exit. In-flight
// manual refreshes are not waited for; their outcomes still go through
// publish when they land.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()
	<-done
}

// RefreshNow runs one check on its own goroutine, independent of the
// scheduled cadence. The scheduled loop keeps its own rhythm; whichever
// outcome publishes last is the one that sticks.
func (s *Scheduler) RefreshNow() {
	s.log.Debug().Msg("manual refresh requested")
	go s.checkOnce()
}

func (s *Scheduler) loop(stop, done chan struct{}) {
	defer close(done)
	s.log.Debug().Msg("poll loop started")

	if !s.sleep(stop, initialDelay) {
		return
	}
	for {
		s.checkOnce()
		if !s.sleep(stop, s.effectiveInterval()) {
			return
		}
	}
}

// sleep waits for d in small steps, returning false when stopped.
func (s *Scheduler) sleep(stop chan struct{}, d time.Duration) bool {
	deadline := s.now().Add(d)
	for s.now().Before(deadline) {
		select {
		case <-stop:
			return false
		case <-time.After(sleepStep):
		}
	}
	return true
}

func (s *Scheduler) effectiveInterval() time.Duration {
	d := s.interval()
	if d < minInterval {
		d = minInterval
	}
	return d
}

// checkOnce performs one full check and publishes the outcome. A missing
// credential publishes nothing: the display keeps whatever it had.
func (s *Scheduler) checkOnce() {
	if !s.creds.Available() {
		s.log.Debug().Msg("no credentials configured, skipping check")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	at := s.now()
	if err := s.creds.EnsureValid(ctx); err != nil {
		s.log.Error().Err(err).Msg("credential refresh failed")
		s.publish(Outcome{Err: err, At: at})
		return
	}

	snap, err := s.checker.CheckUsage(ctx, s.creds.Current())
	if err != nil {
		s.log.Error().Err(err).Msg("usage check failed")
		s.publish(Outcome{Err: err, At: at})
		return
	}
	s.log.Info().Float64("remaining_pct", snap.RemainingPct()).Msg("usage check completed")
	s.publish(Outcome{Snapshot: &snap, At: at})
}
