package ledger

import (
	"context"
	"fmt"
	"strings"
)

// Open creates a Store from a URL-style location string:
//
//   - "mem://" (not durable)
//   - "file://path/to/ledger.json"
//   - "pebble://path/to/dir"
//   - "redis://<user>:<pass>@<hostname>:6379/<db>" (also "rediss://")
//   - "sqlite://path/to/ledger.db", or any postgres URL/DSN accepted by OpenDatabase
func Open(ctx context.Context, location string, maxConnections int) (Store, error) {
	switch {
	case location == "mem://" || location == "mem":
		return NewMemStore(), nil
	case strings.HasPrefix(location, "file://"):
		return NewFileStore(strings.TrimPrefix(location, "file://"))
	case strings.HasPrefix(location, "pebble://"):
		return NewPebbleStore(strings.TrimPrefix(location, "pebble://"))
	case strings.HasPrefix(location, "redis://"), strings.HasPrefix(location, "rediss://"):
		return NewRedisStore(ctx, location)
	case strings.HasPrefix(location, "sqlite"), strings.HasPrefix(location, "postgres"):
		db, err := OpenDatabase(location, maxConnections)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db)
	default:
		// only the scheme is reported, the rest may hold credentials
		scheme, _, _ := strings.Cut(location, ":")
		return nil, fmt.Errorf("unsupported ledger location scheme: %q", scheme)
	}
}
