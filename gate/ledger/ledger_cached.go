package ledger

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore is a write-through LRU cache in front of another Store.
//
// This is only correct while a single process writes to the backing store, which is the deployment model of the gate. The cache is updated after the backing write succeeds, so a failed Put never leaves a cached value the backend doesn't have.
type CachedStore struct {
	Backend Store
	cache   *lru.Cache[string, *UserRecord]
}

var _ Store = (*CachedStore)(nil)

func NewCachedStore(backend Store, size int) (*CachedStore, error) {
	c, err := lru.New[string, *UserRecord](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{
		Backend: backend,
		cache:   c,
	}, nil
}

func (s *CachedStore) Get(ctx context.Context, userID string) (*UserRecord, error) {
	if rec, ok := s.cache.Get(userID); ok {
		return rec.Clone(), nil
	}
	rec, err := s.Backend.Get(ctx, userID)
	if err != nil {
		// never cache a failed read
		return nil, err
	}
	s.cache.Add(userID, rec.Clone())
	return rec, nil
}

func (s *CachedStore) Put(ctx context.Context, userID string, rec *UserRecord) error {
	if err := s.Backend.Put(ctx, userID, rec); err != nil {
		s.cache.Remove(userID)
		return err
	}
	s.cache.Add(userID, rec.Clone())
	return nil
}

func (s *CachedStore) Close() error {
	s.cache.Purge()
	return s.Backend.Close()
}
