package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps every record in a single JSON document on disk, loaded once at startup and rewritten on every Put.
//
// Writes go to a temporary file in the same directory which is fsync'd and then renamed over the original, so a crash leaves either the old or the new document, never a partial one. Suited to small deployments; every write serializes the full ledger.
type FileStore struct {
	path string

	mu      sync.Mutex
	records map[string]*UserRecord
	closed  bool
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	s := &FileStore{
		path:    path,
		records: make(map[string]*UserRecord),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("opening ledger file: %w", err)
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("reading ledger file: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	// unlike the original plugin, a corrupt ledger is an error rather than an empty one: starting empty would lift every suspension
	if err := json.Unmarshal(raw, &s.records); err != nil {
		return fmt.Errorf("parsing ledger file %s: %w", s.path, err)
	}
	if s.records == nil {
		s.records = make(map[string]*UserRecord)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, userID string) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	rec, ok := s.records[userID]
	if !ok {
		return NewUserRecord(userID), nil
	}
	return rec.Clone(), nil
}

func (s *FileStore) Put(ctx context.Context, userID string, rec *UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	prev, existed := s.records[userID]
	s.records[userID] = rec.Clone()
	if err := s.flush(); err != nil {
		if existed {
			s.records[userID] = prev
		} else {
			delete(s.records, userID)
		}
		return err
	}
	return nil
}

// caller holds the lock
func (s *FileStore) flush() error {
	raw, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary ledger file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(raw); err != nil {
		cleanup()
		return fmt.Errorf("writing ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("syncing ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing ledger: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing ledger file: %w", err)
	}

	// persist the rename itself; not all platforms support syncing a directory
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
