package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var verdictCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "promptguard_verdicts",
	Help: "Number of message verdicts, by outcome and reason",
}, []string{"outcome", "reason"})

var violationCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "promptguard_new_suspensions",
	Help: "Number of new suspensions, by triggering violation",
}, []string{"violation"})

var storeErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "promptguard_ledger_errors",
	Help: "Number of decisions which failed to load or persist user state",
})

var verdictDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "promptguard_verdict_duration_sec",
	Help: "Duration of message evaluation, including the ledger write",
})
