// Package usage defines the normalized rate-limit snapshot model shared by
// the API client, the alert engine, and the presentation surface. A snapshot
// is immutable once built; each successful poll replaces the previous one
// wholesale.
package usage

import (
	"fmt"
	"strings"
	"time"
)

// Kind discriminates the two snapshot shapes the API can report.
type Kind int

const (
	// KindSingle is the single-window shape parsed from the standard
	// anthropic-ratelimit-* headers (API-key accounts).
	KindSingle Kind = iota
	// KindUnified is the three-window shape parsed from the
	// anthropic-ratelimit-unified-* headers (subscription accounts).
	KindUnified
)

// Window labels. The set is fixed; a snapshot never carries any other label.
const (
	LabelSession    = "session/5h"
	LabelWeek       = "week/7d"
	LabelWeekSonnet = "week-Sonnet/7d"
)

// Window is one monitored quota window.
type Window struct {
	Label       string
	Utilization float64 // clamped to [0, 1]
	ResetEpoch  int64   // unix seconds; 0 means unknown
}

// Snapshot is an ordered, fixed-length set of quota windows: one window for
// KindSingle, three for KindUnified. The token/request fields are populated
// only for KindSingle.
type Snapshot struct {
	Kind    Kind
	Windows []Window

	TokensRemaining   int64
	TokensLimit       int64
	RequestsRemaining int64
	RequestsLimit     int64
}

// NewSingle builds a single-window snapshot from the standard header values.
func NewSingle(tokensRemaining, tokensLimit, requestsRemaining, requestsLimit, resetEpoch int64) Snapshot {
	s := Snapshot{
		Kind:              KindSingle,
		TokensRemaining:   tokensRemaining,
		TokensLimit:       tokensLimit,
		RequestsRemaining: requestsRemaining,
		RequestsLimit:     requestsLimit,
	}
	s.Windows = []Window{{
		Label:       LabelSession,
		Utilization: clamp01(1 - s.RemainingPct()/100),
		ResetEpoch:  resetEpoch,
	}}
	return s
}

// NewUnified builds a three-window snapshot from the unified header values.
// Utilizations are clamped to [0, 1].
func NewUnified(u5h, u7d, u7dSonnet float64, reset5h, reset7d, reset7dSonnet int64) Snapshot {
	return Snapshot{
		Kind: KindUnified,
		Windows: []Window{
			{Label: LabelSession, Utilization: clamp01(u5h), ResetEpoch: reset5h},
			{Label: LabelWeek, Utilization: clamp01(u7d), ResetEpoch: reset7d},
			{Label: LabelWeekSonnet, Utilization: clamp01(u7dSonnet), ResetEpoch: reset7dSonnet},
		},
	}
}

// RemainingPct is the remaining capacity as a 0-100 percentage. For the
// single shape this is tokensRemaining/tokensLimit; a non-positive limit
// reports 100. For the unified shape it is derived from the most utilized
// window.
func (s Snapshot) RemainingPct() float64 {
	if s.Kind == KindSingle {
		if s.TokensLimit <= 0 {
			return 100
		}
		return clampPct(float64(s.TokensRemaining) / float64(s.TokensLimit) * 100)
	}
	var used float64
	for _, w := range s.Windows {
		if w.Utilization > used {
			used = w.Utilization
		}
	}
	return clampPct((1 - used) * 100)
}

// Summary is the one-line description shown in menus and the -check output.
func (s Snapshot) Summary() string {
	if s.Kind == KindSingle {
		return fmt.Sprintf("%.0f%% (%s / %s tokens)",
			s.RemainingPct(), groupThousands(s.TokensRemaining), groupThousands(s.TokensLimit))
	}
	return fmt.Sprintf("%.0f%% remaining", s.RemainingPct())
}

// DetailLine is the second status line: raw token counts for the single
// shape, per-window percentages for the unified shape.
func (s Snapshot) DetailLine() string {
	if s.Kind == KindSingle {
		return fmt.Sprintf("%s / %s tokens",
			groupThousands(s.TokensRemaining), groupThousands(s.TokensLimit))
	}
	return fmt.Sprintf("5h: %.0f%% | 7d: %.0f%% | Sonnet: %.0f%%",
		s.Windows[0].Utilization*100, s.Windows[1].Utilization*100, s.Windows[2].Utilization*100)
}

// HasReset reports whether any window carries a known reset time.
func (s Snapshot) HasReset() bool {
	for _, w := range s.Windows {
		if w.ResetEpoch > 0 {
			return true
		}
	}
	return false
}

// ResetDisplay is the human-readable reset time of the most utilized window,
// e.g. "7:00 PM (week/7d)". Empty when no reset time is known.
func (s Snapshot) ResetDisplay(now time.Time) string {
	var best *Window
	for i := range s.Windows {
		if best == nil || s.Windows[i].Utilization > best.Utilization {
			best = &s.Windows[i]
		}
	}
	if best == nil || best.ResetEpoch <= 0 {
		return ""
	}
	t := time.Unix(best.ResetEpoch, 0).Local()
	if s.Kind == KindSingle {
		return t.Format("3:04 PM")
	}
	return fmt.Sprintf("%s (%s)", t.Format("3:04 PM"), best.Label)
}

// Tooltip renders the multi-line hover text. Unified shape:
//
//	Session 62% 37 min
//	Week 19% Mon 7:00 PM
//	Sonnet 1% Mon 7:00 PM
func (s Snapshot) Tooltip(now time.Time) string {
	if s.Kind == KindSingle {
		lines := []string{
			fmt.Sprintf("%.0f%% remaining", s.RemainingPct()),
			s.DetailLine(),
		}
		if rd := s.ResetDisplay(now); rd != "" {
			lines = append(lines, "Resets: "+rd)
		}
		return strings.Join(lines, "\n")
	}
	names := []string{"Session", "Week", "Sonnet"}
	lines := make([]string, 0, 3)
	for i, w := range s.Windows {
		lines = append(lines, fmt.Sprintf("%s %.0f%% %s",
			names[i], w.Utilization*100, FormatResetTime(w.ResetEpoch, now)))
	}
	return strings.Join(lines, "\n")
}

// FormatResetTime renders a reset epoch relative to now: "X min" under an
// hour, a clock time under a day, day + clock time beyond that. Unknown or
// past times render as "unknown" and "now".
func FormatResetTime(epoch int64, now time.Time) string {
	if epoch <= 0 {
		return "unknown"
	}
	t := time.Unix(epoch, 0).Local()
	secs := int64(t.Sub(now).Seconds())
	switch {
	case secs <= 0:
		return "now"
	case secs < 3600:
		mins := secs / 60
		if mins < 1 {
			mins = 1
		}
		return fmt.Sprintf("%d min", mins)
	case secs < 86400:
		return t.Format("3:04 PM")
	default:
		return t.Format("Mon 3:04 PM")
	}
}

// FormatCountdown renders a reset epoch as the compact countdown shown next
// to each bar: "3d", "7h", or "42m". Empty when the reset time is unknown.
func FormatCountdown(epoch int64, now time.Time) string {
	if epoch <= 0 {
		return ""
	}
	remaining := epoch - now.Unix()
	switch {
	case remaining <= 0:
		return "0m"
	case remaining >= 86400:
		return fmt.Sprintf("%dd", remaining/86400)
	case remaining >= 3600:
		return fmt.Sprintf("%dh", remaining/3600)
	default:
		mins := remaining / 60
		if mins < 1 {
			mins = 1
		}
		return fmt.Sprintf("%dm", mins)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// groupThousands formats n with comma separators ("1,000,000").
func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
