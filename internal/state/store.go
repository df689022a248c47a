// Package state holds the latest observed usage state. It is the single
// source of truth the display reads from: a snapshot or an error, never
// both, plus the time of the last completed check.
package state

import (
	"sync"
	"time"

	"github.com/nixlim/burnbar/internal/usage"
)

// Current is one observation. Exactly one of Snapshot and Err is set;
// a fresh store carries neither until the first check completes.
type Current struct {
	Snapshot  *usage.Snapshot
	Err       string
	UpdatedAt time.Time
}

// HasData reports whether a snapshot is present.
func (c Current) HasData() bool { return c.Snapshot != nil }

// Store is the interface for the usage state store.
// All methods must be thread-safe.
type Store interface {
	// SetSnapshot records a successful check, clearing any prior error.
	SetSnapshot(snap usage.Snapshot, at time.Time)

	// SetError records a failed check, clearing any prior snapshot.
	SetError(msg string, at time.Time)

	// Get returns a copy of the current observation.
	Get() Current
}

// MemoryStore is a thread-safe in-memory implementation of Store.
type MemoryStore struct {
	mu      sync.RWMutex
	current Current
}

// NewMemoryStore creates a new empty MemoryStore ready for use.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SetSnapshot records a successful check. Any prior error is cleared:
// the two outcomes are mutually exclusive and the newest one wins.
func (ms *MemoryStore) SetSnapshot(snap usage.Snapshot, at time.Time) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.current = Current{Snapshot: &snap, UpdatedAt: at}
}

// SetError records a failed check, discarding any prior snapshot so the
// display never shows stale quota numbers next to an error.
func (ms *MemoryStore) SetError(msg string, at time.Time) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.current = Current{Err: msg, UpdatedAt: at}
}

// Get returns a copy of the current observation. The snapshot pointer
// refers to a value owned by the store; callers treat it as read-only.
func (ms *MemoryStore) Get() Current {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.current
}
