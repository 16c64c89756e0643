package engine

import (
	"math"
	"time"

	"github.com/bluesky-social/promptguard/gate/analyzer"
	"github.com/bluesky-social/promptguard/gate/ledger"
	"github.com/bluesky-social/promptguard/gate/ratetrack"
	"github.com/bluesky-social/promptguard/gate/settings"
)

// Decide runs one decision cycle for a message from the user owning rec, mutating rec into the state that must be persisted before the verdict is acted on.
//
// Users are in one of three states: active, suspended for rate limiting, or suspended for content. Content is checked before frequency, so when a message would trigger both, the content suspension is the one applied. Infraction-level reset and timestamp pruning happen lazily here; there are no timers.
func Decide(rec *ledger.UserRecord, text string, now time.Time, s *settings.Settings) Verdict {
	now = now.UTC()

	if rec.IsSuspended(now) {
		// rejected outright: the existing suspension is neither extended nor counted
		reason := ReasonContent
		if rec.SuspensionReason == ledger.ReasonRateLimit {
			reason = ReasonRateLimit
		}
		return denial(s, reason, RemainingMinutes(*rec.SuspendedUntil, now), "")
	}
	if rec.SuspendedUntil != nil {
		// expired, equivalent to never set
		rec.SuspendedUntil = nil
		rec.SuspensionReason = ""
	}

	res := analyzer.Analyze(text, s.AnalyzerConfig())
	if res.IsViolation() {
		return contentViolation(rec, res, now, s)
	}

	exceeded, window := ratetrack.Track(rec.MessageTimestamps, now, s.RateConfig())
	// a denied message stays in the window; only admitted ones count toward the total
	rec.MessageTimestamps = window
	if exceeded {
		d := s.RateLimitSuspension()
		suspend(rec, now, d, ledger.ReasonRateLimit)
		return denial(s, ReasonRateLimit, durationMinutes(d), ledger.ReasonRateLimit)
	}
	rec.TotalMessageCount++
	return Admit()
}

func contentViolation(rec *ledger.UserRecord, res analyzer.Result, now time.Time, s *settings.Settings) Verdict {
	ResetStaleInfractions(rec, now, s.ContentResetWindow())

	idx := rec.ContentInfractionLevel
	if res.Kind == analyzer.Forbidden && s.JailbreakSeverityLevel > idx {
		idx = s.JailbreakSeverityLevel
	}
	rec.ContentInfractionLevel = idx + 1

	d := s.ContentSuspension(idx)
	suspend(rec, now, d, ledger.ReasonContent)
	t := now
	rec.LastContentInfractionAt = &t
	// counted as a message, but kept out of the rate window: it has already been penalized
	rec.TotalMessageCount++
	return denial(s, ReasonContent, durationMinutes(d), res.Kind.String())
}

// ResetStaleInfractions zeroes the content infraction level when more than window has passed since the last content infraction. A zero window disables the reset.
func ResetStaleInfractions(rec *ledger.UserRecord, now time.Time, window time.Duration) {
	if window <= 0 || rec.ContentInfractionLevel == 0 || rec.LastContentInfractionAt == nil {
		return
	}
	if now.Sub(*rec.LastContentInfractionAt) > window {
		rec.ContentInfractionLevel = 0
	}
}

func suspend(rec *ledger.UserRecord, now time.Time, d time.Duration, reason string) {
	until := now.Add(d)
	rec.SuspendedUntil = &until
	rec.SuspensionReason = reason
}

// RemainingMinutes rounds the time left until `until` up to whole minutes.
func RemainingMinutes(until, now time.Time) int {
	return int(math.Ceil(until.Sub(now).Minutes()))
}

func durationMinutes(d time.Duration) int {
	return int(math.Ceil(d.Minutes()))
}
