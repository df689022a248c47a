// Package dispatch serializes state mutations onto a single consumer
// goroutine. Producers (the poll scheduler, the blink ticker, the UI)
// enqueue closures; the loop drains and runs them in FIFO order, so the
// state they touch needs no locking of its own.
package dispatch

import "sync"

// Queue is an unbounded, thread-safe FIFO of pending actions.
// All methods are safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	pending []func()
}

// NewQueue creates a new empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends an action to the queue.
func (q *Queue) Push(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, fn)
}

// Drain removes and returns up to max queued actions in FIFO order,
// or all of them when max <= 0. It returns nil when the queue is empty.
func (q *Queue) Drain(max int) []func() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	n := len(q.pending)
	if max > 0 && max < n {
		n = max
	}
	batch := q.pending[:n]
	q.pending = append([]func(){}, q.pending[n:]...)
	return batch
}

// Len returns the number of queued actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
