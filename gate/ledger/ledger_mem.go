package ledger

import (
	"context"
	"sync"
)

// MemStore keeps records in process memory only. Not durable; for tests and throwaway deployments.
type MemStore struct {
	mu      sync.RWMutex
	Records map[string]*UserRecord
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		Records: make(map[string]*UserRecord),
	}
}

func (s *MemStore) Get(ctx context.Context, userID string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.Records[userID]
	if !ok {
		return NewUserRecord(userID), nil
	}
	return rec.Clone(), nil
}

func (s *MemStore) Put(ctx context.Context, userID string, rec *UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Records[userID] = rec.Clone()
	return nil
}

func (s *MemStore) Close() error {
	return nil
}
