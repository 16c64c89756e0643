package gate

import (
	"github.com/bluesky-social/promptguard/gate/engine"
	"github.com/bluesky-social/promptguard/gate/ledger"
	"github.com/bluesky-social/promptguard/gate/settings"
)

type Verdict = engine.Verdict
type Outcome = engine.Outcome
type Reason = engine.Reason
type Settings = settings.Settings
type UserRecord = ledger.UserRecord

var (
	OutcomeAdmit       = engine.OutcomeAdmit
	OutcomeDeny        = engine.OutcomeDeny
	OutcomeUnavailable = engine.OutcomeUnavailable

	ReasonRateLimit = engine.ReasonRateLimit
	ReasonContent   = engine.ReasonContent
)
