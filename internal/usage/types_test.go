package usage

import (
	"strings"
	"testing"
	"time"
)

func TestSingleRemainingPct(t *testing.T) {
	tests := []struct {
		name      string
		remaining int64
		limit     int64
		want      float64
	}{
		{"half remaining", 500, 1000, 50},
		{"exhausted", 0, 1000, 0},
		{"full", 1000, 1000, 100},
		{"five percent", 50, 1000, 5},
		{"zero limit reports full", 120, 0, 100},
		{"negative limit reports full", 120, -1, 100},
		{"remaining above limit clamps to 100", 2000, 1000, 100},
		{"negative remaining clamps to 0", -5, 1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSingle(tt.remaining, tt.limit, 0, 0, 0)
			if got := s.RemainingPct(); got != tt.want {
				t.Errorf("RemainingPct() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnifiedRemainingPct(t *testing.T) {
	tests := []struct {
		name          string
		u5h, u7d, uSn float64
		want          float64
	}{
		{"most utilized window wins", 0.97, 0.10, 0.02, 3},
		{"all idle", 0, 0, 0, 100},
		{"fully utilized", 1.0, 0.5, 0.5, 0},
		{"over-reported utilization clamps", 1.4, 0, 0, 0},
		{"sonnet window wins", 0.1, 0.2, 0.9, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewUnified(tt.u5h, tt.u7d, tt.uSn, 0, 0, 0)
			if got := s.RemainingPct(); !approxEqual(got, tt.want) {
				t.Errorf("RemainingPct() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSingleWindowShape(t *testing.T) {
	s := NewSingle(50, 1000, 10, 100, 1700000000)

	if s.Kind != KindSingle {
		t.Fatalf("Kind = %v, want KindSingle", s.Kind)
	}
	if len(s.Windows) != 1 {
		t.Fatalf("len(Windows) = %d, want 1", len(s.Windows))
	}
	w := s.Windows[0]
	if w.Label != LabelSession {
		t.Errorf("Label = %q, want %q", w.Label, LabelSession)
	}
	if !approxEqual(w.Utilization, 0.95) {
		t.Errorf("Utilization = %v, want 0.95", w.Utilization)
	}
	if w.ResetEpoch != 1700000000 {
		t.Errorf("ResetEpoch = %d, want 1700000000", w.ResetEpoch)
	}
}

func TestUnifiedWindowShape(t *testing.T) {
	s := NewUnified(0.62, 0.19, 0.01, 100, 200, 300)

	if len(s.Windows) != 3 {
		t.Fatalf("len(Windows) = %d, want 3", len(s.Windows))
	}
	wantLabels := []string{LabelSession, LabelWeek, LabelWeekSonnet}
	wantResets := []int64{100, 200, 300}
	for i, w := range s.Windows {
		if w.Label != wantLabels[i] {
			t.Errorf("Windows[%d].Label = %q, want %q", i, w.Label, wantLabels[i])
		}
		if w.ResetEpoch != wantResets[i] {
			t.Errorf("Windows[%d].ResetEpoch = %d, want %d", i, w.ResetEpoch, wantResets[i])
		}
	}
}

func TestSummary(t *testing.T) {
	t.Run("single shape includes token counts", func(t *testing.T) {
		s := NewSingle(1500, 1000000, 0, 0, 0)
		got := s.Summary()
		if !strings.Contains(got, "1,500") || !strings.Contains(got, "1,000,000") {
			t.Errorf("Summary() = %q, want grouped token counts", got)
		}
	})

	t.Run("unified shape is percentage only", func(t *testing.T) {
		s := NewUnified(0.25, 0.1, 0.1, 0, 0, 0)
		if got := s.Summary(); got != "75% remaining" {
			t.Errorf("Summary() = %q, want %q", got, "75% remaining")
		}
	})
}

func TestDetailLine(t *testing.T) {
	s := NewUnified(0.62, 0.19, 0.01, 0, 0, 0)
	want := "5h: 62% | 7d: 19% | Sonnet: 1%"
	if got := s.DetailLine(); got != want {
		t.Errorf("DetailLine() = %q, want %q", got, want)
	}
}

func TestTooltipUnified(t *testing.T) {
	// Whole seconds: the reset epoch has no sub-second part, so a
	// fractional now would shave the 37 minutes down to 36.
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local)
	s := NewUnified(0.62, 0.19, 0.01,
		now.Add(37*time.Minute).Unix(), 0, 0)

	got := s.Tooltip(now)
	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("Tooltip() has %d lines, want 3: %q", len(lines), got)
	}
	if lines[0] != "Session 62% 37 min" {
		t.Errorf("line 0 = %q, want %q", lines[0], "Session 62% 37 min")
	}
	if lines[1] != "Week 19% unknown" {
		t.Errorf("line 1 = %q, want %q", lines[1], "Week 19% unknown")
	}
	if !strings.HasPrefix(lines[2], "Sonnet 1%") {
		t.Errorf("line 2 = %q, want Sonnet 1%% prefix", lines[2])
	}
}

func TestFormatResetTime(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local)

	tests := []struct {
		name  string
		epoch int64
		want  string
	}{
		{"unknown", 0, "unknown"},
		{"negative", -5, "unknown"},
		{"past", now.Add(-time.Minute).Unix(), "now"},
		{"under a minute rounds up", now.Add(30 * time.Second).Unix(), "1 min"},
		{"minutes", now.Add(37 * time.Minute).Unix(), "37 min"},
		{"same day", now.Add(5 * time.Hour).Unix(), "5:00 PM"},
		{"beyond a day", now.Add(26 * time.Hour).Unix(), "Tue 2:00 PM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatResetTime(tt.epoch, now); got != tt.want {
				t.Errorf("FormatResetTime(%d) = %q, want %q", tt.epoch, got, tt.want)
			}
		})
	}
}

func TestFormatCountdown(t *testing.T) {
	now := time.Unix(1700000000, 0)

	tests := []struct {
		name  string
		epoch int64
		want  string
	}{
		{"unknown", 0, ""},
		{"expired", now.Unix() - 10, "0m"},
		{"minutes", now.Unix() + 42*60, "42m"},
		{"sub-minute rounds up", now.Unix() + 30, "1m"},
		{"hours", now.Unix() + 7*3600, "7h"},
		{"days", now.Unix() + 3*86400, "3d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatCountdown(tt.epoch, now); got != tt.want {
				t.Errorf("FormatCountdown(%d) = %q, want %q", tt.epoch, got, tt.want)
			}
		})
	}
}

func TestResetDisplayPicksMostUtilized(t *testing.T) {
	s := NewUnified(0.2, 0.8, 0.1, 0, time.Now().Add(2*time.Hour).Unix(), 0)
	got := s.ResetDisplay(time.Now())
	if !strings.Contains(got, LabelWeek) {
		t.Errorf("ResetDisplay() = %q, want the %s window", got, LabelWeek)
	}
}

func approxEqual(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
