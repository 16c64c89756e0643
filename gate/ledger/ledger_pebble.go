package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

var pebbleKeyPrefix = []byte("user/")

// PebbleStore keeps one JSON-encoded record per key in an embedded pebble database. Every Put is a synced write.
type PebbleStore struct {
	db *pebble.DB
}

var _ Store = (*PebbleStore)(nil)

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func pebbleKey(userID string) []byte {
	key := make([]byte, 0, len(pebbleKeyPrefix)+len(userID))
	key = append(key, pebbleKeyPrefix...)
	return append(key, userID...)
}

func (s *PebbleStore) Get(ctx context.Context, userID string) (*UserRecord, error) {
	val, closer, err := s.db.Get(pebbleKey(userID))
	if closer != nil {
		defer closer.Close()
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return NewUserRecord(userID), nil
	} else if err != nil {
		return nil, fmt.Errorf("pebble get: %w", err)
	}

	var rec UserRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("decoding ledger record for %s: %w", userID, err)
	}
	return &rec, nil
}

func (s *PebbleStore) Put(ctx context.Context, userID string, rec *UserRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding ledger record: %w", err)
	}
	if err := s.db.Set(pebbleKey(userID), raw, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
