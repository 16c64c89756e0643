// Inline message gate: admits, rate-limits or content-blocks each inbound user message, and keeps per-user disciplinary state (infraction level, suspension expiry, message counters) in a durable ledger.
//
// A decision runs the lexical content analyzer (`gate/analyzer`), then the sliding-window frequency check (`gate/ratetrack`), through the suspension state machine (`gate/engine`), and persists the resulting user record (`gate/ledger`) before the verdict is returned. Settings (`gate/settings`) are an immutable value supplied per decision.
//
// See `cmd/promptguard` for a daemon built on this package.
package gate
