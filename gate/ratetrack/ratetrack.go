package ratetrack

import (
	"time"
)

type Config struct {
	// zero disables the limit
	MaxMessages int
	Window      time.Duration
}

// Prune returns the entries of history within the closed interval [now-window, now], in their original order. The input slice is not modified.
func Prune(history []time.Time, now time.Time, window time.Duration) []time.Time {
	start := now.Add(-window)
	out := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.Before(start) || ts.After(now) {
			continue
		}
		out = append(out, ts)
	}
	return out
}

// Track prunes history to the rate window, appends the message being evaluated at now, and reports whether the resulting count is over the limit.
func Track(history []time.Time, now time.Time, cfg Config) (bool, []time.Time) {
	window := append(Prune(history, now, cfg.Window), now)
	if cfg.MaxMessages <= 0 {
		return false, window
	}
	return len(window) > cfg.MaxMessages, window
}
