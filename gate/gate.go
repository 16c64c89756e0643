package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bluesky-social/promptguard/gate/engine"
	"github.com/bluesky-social/promptguard/gate/ledger"
	"github.com/bluesky-social/promptguard/gate/settings"

	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("promptguard")

// ErrStoreUnavailable wraps any failure to read or persist user state.
var ErrStoreUnavailable = errors.New("user ledger unavailable")

// Gate decides whether inbound messages are admitted, and owns the per-user state those decisions depend on.
//
// Decisions for the same user are serialized with a per-user mutex, held across the whole read-decide-write cycle; decisions for different users share no lock.
type Gate struct {
	Logger *slog.Logger
	Ledger ledger.Store

	locks *xsync.MapOf[string, *sync.Mutex]
}

func NewGate(store ledger.Store, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		Logger: logger,
		Ledger: store,
		locks:  xsync.NewMapOf[string, *sync.Mutex](),
	}
}

// userLock returns the mutex serializing decisions for userID. Entries are never evicted, so the map holds one mutex per distinct user seen by this process, the same set the ledger keeps forever.
func (g *Gate) userLock(userID string) *sync.Mutex {
	mu, _ := g.locks.LoadOrCompute(userID, func() *sync.Mutex {
		return &sync.Mutex{}
	})
	return mu
}

// Evaluate decides on one message from userID at time now.
//
// When the gate is disabled the message is admitted without touching the ledger. If user state can't be loaded or the new state can't be persisted, the verdict is Unavailable and the error wraps ErrStoreUnavailable; such messages must not be treated as admitted.
func (g *Gate) Evaluate(ctx context.Context, userID, text string, now time.Time, s *settings.Settings) (engine.Verdict, error) {
	ctx, span := tracer.Start(ctx, "Evaluate")
	defer span.End()

	start := time.Now()
	v, err := g.evaluate(ctx, userID, text, now, s)
	verdictDuration.Observe(time.Since(start).Seconds())
	verdictCount.WithLabelValues(string(v.Outcome), string(v.Reason)).Inc()

	span.SetAttributes(
		attribute.String("outcome", string(v.Outcome)),
		attribute.String("reason", string(v.Reason)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		storeErrorCount.Inc()
		g.Logger.Error("message gate unavailable", "user", userID, "err", err)
		return v, err
	}

	if v.Violation != "" {
		violationCount.WithLabelValues(v.Violation).Inc()
	}
	if v.Outcome == engine.OutcomeDeny {
		g.Logger.Info("message denied",
			"user", userID,
			"reason", v.Reason,
			"violation", v.Violation,
			"remainingMinutes", v.RemainingMinutes,
		)
	}
	return v, nil
}

func (g *Gate) evaluate(ctx context.Context, userID, text string, now time.Time, s *settings.Settings) (engine.Verdict, error) {
	if !s.Enabled {
		return engine.Admit(), nil
	}

	mu := g.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := g.Ledger.Get(ctx, userID)
	if err != nil {
		return engine.Unavailable(), fmt.Errorf("%w: loading %s: %w", ErrStoreUnavailable, userID, err)
	}

	v := engine.Decide(rec, text, now, s)

	if err := g.Ledger.Put(ctx, userID, rec); err != nil {
		// the decision was not recorded, so it can't be acted on either way
		return engine.Unavailable(), fmt.Errorf("%w: persisting %s: %w", ErrStoreUnavailable, userID, err)
	}
	return v, nil
}

// Inspect returns the stored state for a user, or a zero-state record for an unseen user.
func (g *Gate) Inspect(ctx context.Context, userID string) (*ledger.UserRecord, error) {
	mu := g.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := g.Ledger.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading %s: %w", ErrStoreUnavailable, userID, err)
	}
	return rec, nil
}
