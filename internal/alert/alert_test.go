package alert

import (
	"testing"
	"time"

	"github.com/nixlim/burnbar/internal/usage"
)

func unified(u5h, u7d, uSonnet float64) *usage.Snapshot {
	s := usage.NewUnified(u5h, u7d, uSonnet, 0, 0, 0)
	return &s
}

func single(remaining, limit int64) *usage.Snapshot {
	s := usage.NewSingle(remaining, limit, 100, 1000, 0)
	return &s
}

func TestEvaluate(t *testing.T) {
	th := DefaultThresholds()

	t.Run("healthy windows stay inactive", func(t *testing.T) {
		st := Evaluate(unified(0.62, 0.19, 0.01), th, State{})
		for i, w := range st.Windows {
			if w.Active || w.Critical {
				t.Errorf("Windows[%d] = %+v, want inactive", i, w)
			}
		}
		if st.AnyActionable() {
			t.Error("healthy snapshot is actionable")
		}
	})

	t.Run("red threshold with slack activates without critical", func(t *testing.T) {
		// 50/1000 tokens is exactly 5% remaining: active under the
		// slackened red threshold, above the 3% critical line.
		st := Evaluate(single(50, 1000), th, State{})
		if len(st.Windows) != 1 {
			t.Fatalf("got %d windows, want 1", len(st.Windows))
		}
		if !st.Windows[0].Active {
			t.Error("5%% remaining not active")
		}
		if st.Windows[0].Critical {
			t.Error("5%% remaining marked critical")
		}
	})

	t.Run("critical threshold", func(t *testing.T) {
		st := Evaluate(unified(0.97, 0.10, 0), th, State{})
		if !st.Windows[0].Critical || !st.Windows[0].Active {
			t.Errorf("Windows[0] = %+v, want active and critical", st.Windows[0])
		}
		if st.Windows[1].Active {
			t.Error("healthy weekly window activated")
		}
	})

	t.Run("nil snapshot deactivates everything", func(t *testing.T) {
		prev := Evaluate(unified(0.99, 0, 0), th, State{})
		st := Evaluate(nil, th, prev)
		if len(st.Windows) != 0 || st.AnyActionable() {
			t.Errorf("state after error = %+v, want no windows", st)
		}
	})

	t.Run("entering alert restarts blink visible", func(t *testing.T) {
		prev := State{Windows: []WindowState{{}, {}, {}}, BlinkVisible: false}
		st := Evaluate(unified(0.99, 0, 0), th, prev)
		if !st.BlinkVisible {
			t.Error("BlinkVisible not reset on none-to-any transition")
		}
	})

	t.Run("leaving alert resets the phase to visible", func(t *testing.T) {
		prev := Evaluate(unified(0.99, 0, 0), th, State{})
		prev = TogglePhase(prev)
		st := Evaluate(unified(0.10, 0, 0), th, prev)
		if st.AnyActionable() {
			t.Fatal("recovered window still actionable")
		}
		if !st.BlinkVisible {
			t.Error("phase not reset to visible on recovery")
		}
	})

	t.Run("error outcome resets the phase to visible", func(t *testing.T) {
		prev := Evaluate(unified(0.99, 0, 0), th, State{})
		prev = TogglePhase(prev)
		st := Evaluate(nil, th, prev)
		if !st.BlinkVisible {
			t.Error("phase not reset to visible after an error")
		}
	})

	t.Run("phase preserved while already alerting", func(t *testing.T) {
		prev := Evaluate(unified(0.99, 0, 0), th, State{})
		prev = TogglePhase(prev)
		if prev.BlinkVisible {
			t.Fatal("toggle did not hide")
		}
		st := Evaluate(unified(0.99, 0, 0), th, prev)
		if st.BlinkVisible {
			t.Error("re-evaluation reset the phase mid-blink")
		}
	})

	t.Run("shape switch drops stale dismissals", func(t *testing.T) {
		prev := Evaluate(single(10, 1000), th, State{})
		prev = Dismiss(prev)
		st := Evaluate(unified(0.99, 0, 0), th, prev)
		if st.Windows[0].Dismissed {
			t.Error("dismissal survived a window-count change")
		}
		if !st.AnyActionable() {
			t.Error("critical window not actionable after shape switch")
		}
	})
}

func TestDismissLatch(t *testing.T) {
	th := DefaultThresholds()

	t.Run("dismissal holds while active", func(t *testing.T) {
		st := Evaluate(unified(0.99, 0, 0), th, State{})
		st = Dismiss(st)
		if st.AnyActionable() {
			t.Fatal("dismissed window still actionable")
		}
		if !st.BlinkVisible {
			t.Error("dismiss did not restore the visible phase")
		}

		st = Evaluate(unified(0.99, 0, 0), th, st)
		if !st.Windows[0].Dismissed {
			t.Error("dismissal dropped while window stayed active")
		}
	})

	t.Run("dismissal auto-clears on recovery", func(t *testing.T) {
		st := Evaluate(unified(0.99, 0, 0), th, State{})
		st = Dismiss(st)
		st = Evaluate(unified(0.50, 0, 0), th, st)
		if st.Windows[0].Dismissed {
			t.Error("dismissal survived recovery")
		}

		st = Evaluate(unified(0.99, 0, 0), th, st)
		if !st.AnyActionable() {
			t.Error("re-triggered window not actionable after recovery cycle")
		}
	})

	t.Run("dismiss only latches active windows", func(t *testing.T) {
		st := Evaluate(unified(0.99, 0.10, 0), th, State{})
		st = Dismiss(st)
		if st.Windows[1].Dismissed || st.Windows[2].Dismissed {
			t.Error("inactive windows were dismissed")
		}
	})
}

func TestBlinkInterval(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name string
		st   State
		want time.Duration
	}{
		{"no alert", Evaluate(unified(0.10, 0, 0), th, State{}), time.Second},
		{"active only", Evaluate(unified(0.96, 0, 0), th, State{}), time.Second},
		{"critical", Evaluate(unified(0.99, 0, 0), th, State{}), 500 * time.Millisecond},
		{"critical dismissed", Dismiss(Evaluate(unified(0.99, 0, 0), th, State{})), time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.st.BlinkInterval(); got != tt.want {
				t.Errorf("BlinkInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}
