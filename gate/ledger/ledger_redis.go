package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var redisLedgerPrefix string = "ledger/"

// RedisStore keeps one JSON-encoded record per key, without expiry. Durability depends on the server's persistence configuration (AOF with fsync is recommended).
type RedisStore struct {
	Client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{Client: rdb}, nil
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*UserRecord, error) {
	raw, err := s.Client.Get(ctx, redisLedgerPrefix+userID).Bytes()
	if err == redis.Nil {
		return NewUserRecord(userID), nil
	} else if err != nil {
		return nil, err
	}

	var rec UserRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding ledger record for %s: %w", userID, err)
	}
	return &rec, nil
}

func (s *RedisStore) Put(ctx context.Context, userID string, rec *UserRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding ledger record: %w", err)
	}
	// no expiration: retention of stale users is handled outside the gate
	return s.Client.Set(ctx, redisLedgerPrefix+userID, raw, 0).Err()
}

func (s *RedisStore) Close() error {
	return s.Client.Close()
}
