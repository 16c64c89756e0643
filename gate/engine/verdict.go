package engine

import (
	"strconv"
	"strings"

	"github.com/bluesky-social/promptguard/gate/ledger"
	"github.com/bluesky-social/promptguard/gate/settings"
)

type Outcome string

const (
	OutcomeAdmit = Outcome("admit")
	OutcomeDeny  = Outcome("deny")
	// user state couldn't be read or written; the caller must not treat this as admit
	OutcomeUnavailable = Outcome("unavailable")
)

type Reason string

const (
	ReasonNone      = Reason("")
	ReasonRateLimit = Reason(ledger.ReasonRateLimit)
	ReasonContent   = Reason(ledger.ReasonContent)
)

// Verdict is the result of evaluating one inbound message.
type Verdict struct {
	Outcome          Outcome `json:"outcome"`
	Reason           Reason  `json:"reason,omitempty"`
	RemainingMinutes int     `json:"remaining_minutes,omitempty"`
	// user-facing text for denials
	Message string `json:"message,omitempty"`
	// what triggered a new suspension: an analyzer kind, or "rate-limit". Empty for admits and for messages rejected because of an existing suspension.
	Violation string `json:"violation,omitempty"`
}

func Admit() Verdict {
	return Verdict{Outcome: OutcomeAdmit}
}

func Unavailable() Verdict {
	return Verdict{Outcome: OutcomeUnavailable}
}

func (v Verdict) Admitted() bool {
	return v.Outcome == OutcomeAdmit
}

func denial(s *settings.Settings, reason Reason, minutes int, violation string) Verdict {
	tmpl := s.UserBlockedMessageTemplate
	if reason == ReasonRateLimit {
		tmpl = s.UserLimitedMessageTemplate
	}
	return Verdict{
		Outcome:          OutcomeDeny,
		Reason:           reason,
		RemainingMinutes: minutes,
		Message:          strings.ReplaceAll(tmpl, settings.MinutesPlaceholder, strconv.Itoa(minutes)),
		Violation:        violation,
	}
}
