package dispatch

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// tickInterval bounds how long a freshly queued action waits before
	// the consumer picks it up.
	tickInterval = 20 * time.Millisecond

	// drainBatch caps how many actions run per tick so a burst of
	// producers cannot starve the stop check.
	drainBatch = 64
)

// Loop owns the consumer goroutine. Actions pushed through it run
// one at a time, in order, on that goroutine.
type Loop struct {
	queue *Queue
	log   zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewLoop creates a Loop draining the given queue.
func NewLoop(q *Queue, log zerolog.Logger) *Loop {
	return &Loop{
		queue: q,
		log:   log.With().Str("component", "dispatch").Logger(),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Push enqueues an action for the consumer goroutine.
func (l *Loop) Push(fn func()) {
	l.queue.Push(fn)
}

// Run drains the queue until Stop is called, then runs whatever is
// still queued and returns. It blocks; callers usually run it on a
// dedicated goroutine.
func (l *Loop) Run() {
	defer close(l.done)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			l.runBatch(l.queue.Drain(0))
			l.log.Debug().Msg("dispatch loop stopped")
			return
		case <-ticker.C:
			l.runBatch(l.queue.Drain(drainBatch))
		}
	}
}

// Stop asks the loop to finish. It is idempotent and returns once the
// consumer goroutine has drained the queue and exited.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
}

// Shutdown enqueues a final action and then stops the loop. Because the
// teardown goes through the queue it runs after every action enqueued
// before it, on the same goroutine that ran them.
func (l *Loop) Shutdown(teardown func()) {
	l.Push(teardown)
	l.Stop()
}

func (l *Loop) runBatch(batch []func()) {
	for _, fn := range batch {
		fn()
	}
}
