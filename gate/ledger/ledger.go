package ledger

import (
	"context"
	"errors"
	"time"
)

const (
	ReasonRateLimit = "rate-limit"
	ReasonContent   = "content"
)

// ErrClosed is returned by stores which have been closed.
var ErrClosed = errors.New("ledger store closed")

// UserRecord is the disciplinary state tracked for a single user.
type UserRecord struct {
	UserID string `json:"user_id"`
	// ordered; only entries inside the current rate window are meaningful
	MessageTimestamps       []time.Time `json:"message_timestamps,omitempty"`
	ContentInfractionLevel  int         `json:"content_infraction_level"`
	LastContentInfractionAt *time.Time  `json:"last_content_infraction_at,omitempty"`
	// a past value means "not suspended"
	SuspendedUntil *time.Time `json:"suspended_until,omitempty"`
	// why SuspendedUntil was last set: ReasonRateLimit or ReasonContent
	SuspensionReason  string `json:"suspension_reason,omitempty"`
	TotalMessageCount int64  `json:"total_message_count"`
}

func NewUserRecord(userID string) *UserRecord {
	return &UserRecord{UserID: userID}
}

func (r *UserRecord) IsSuspended(now time.Time) bool {
	return r.SuspendedUntil != nil && r.SuspendedUntil.After(now)
}

// Clone returns a deep copy, so that stores never hand out references to their own state.
func (r *UserRecord) Clone() *UserRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.MessageTimestamps != nil {
		out.MessageTimestamps = append([]time.Time(nil), r.MessageTimestamps...)
	}
	if r.LastContentInfractionAt != nil {
		t := *r.LastContentInfractionAt
		out.LastContentInfractionAt = &t
	}
	if r.SuspendedUntil != nil {
		t := *r.SuspendedUntil
		out.SuspendedUntil = &t
	}
	return &out
}

// Store is durable storage of UserRecords keyed by user identifier.
//
// Get returns a fresh zero-state record (without persisting it) when the user has never been seen. A read error must never be reported as an absent user. Put must be durable when it returns nil, and must leave the previous record intact when it fails.
//
// Implementations are safe for concurrent use; serializing decisions for the same user is the caller's job.
type Store interface {
	Get(ctx context.Context, userID string) (*UserRecord, error)
	Put(ctx context.Context, userID string, rec *UserRecord) error
	Close() error
}
