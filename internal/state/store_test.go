package state

import (
	"sync"
	"testing"
	"time"

	"github.com/nixlim/burnbar/internal/usage"
)

func TestMemoryStore(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	t.Run("empty store has neither outcome", func(t *testing.T) {
		ms := NewMemoryStore()
		cur := ms.Get()
		if cur.HasData() || cur.Err != "" || !cur.UpdatedAt.IsZero() {
			t.Errorf("fresh store = %+v, want zero value", cur)
		}
	})

	t.Run("snapshot clears prior error", func(t *testing.T) {
		ms := NewMemoryStore()
		ms.SetError("network unreachable", t0)
		ms.SetSnapshot(usage.NewUnified(0.5, 0.1, 0, 0, 0, 0), t0.Add(time.Minute))

		cur := ms.Get()
		if !cur.HasData() {
			t.Fatal("Get() has no snapshot after SetSnapshot")
		}
		if cur.Err != "" {
			t.Errorf("Err = %q, want cleared", cur.Err)
		}
		if !cur.UpdatedAt.Equal(t0.Add(time.Minute)) {
			t.Errorf("UpdatedAt = %v", cur.UpdatedAt)
		}
	})

	t.Run("error clears prior snapshot wholesale", func(t *testing.T) {
		ms := NewMemoryStore()
		ms.SetSnapshot(usage.NewSingle(100, 1000, 10, 100, 0), t0)
		ms.SetError("HTTP 500", t0.Add(time.Minute))

		cur := ms.Get()
		if cur.HasData() {
			t.Error("snapshot survived SetError, want it cleared")
		}
		if cur.Err != "HTTP 500" {
			t.Errorf("Err = %q", cur.Err)
		}
	})

	t.Run("get returns a stable copy", func(t *testing.T) {
		ms := NewMemoryStore()
		ms.SetSnapshot(usage.NewSingle(100, 1000, 10, 100, 0), t0)
		cur := ms.Get()
		ms.SetError("later failure", t0.Add(time.Second))
		if !cur.HasData() || cur.Snapshot.TokensRemaining != 100 {
			t.Errorf("earlier copy mutated: %+v", cur)
		}
	})

	t.Run("concurrent writers and readers", func(t *testing.T) {
		ms := NewMemoryStore()
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					if i%2 == 0 {
						ms.SetSnapshot(usage.NewUnified(0.1, 0, 0, 0, 0, 0), t0)
					} else {
						ms.SetError("x", t0)
					}
					cur := ms.Get()
					if cur.HasData() && cur.Err != "" {
						t.Error("store held both a snapshot and an error")
					}
				}
			}(i)
		}
		wg.Wait()
	})
}
