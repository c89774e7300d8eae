package cache

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Backend stores opaque values with a TTL. Implementations must be
// safe for concurrent use.
type Backend interface {
	// Get returns the value for key. A missing or expired key is
	// (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set writes value under key, replacing any previous value and
	// restarting its TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Purge deletes every entry this backend owns.
	Purge(ctx context.Context) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Dialer opens a backend connection. The store calls it lazily and
// again after a connection is dropped.
type Dialer func(ctx context.Context) (Backend, error)

// DialerFor returns the dialer for a cache connection string:
//
//	memory://                   in-process LRU (maxEntries bound)
//	sqlite:///var/lib/cv.db     local SQLite file
//	redis://host:6379/0         Redis; rediss:// for TLS
//
// An empty string selects memory://. The memory backend is created
// once and returned by every dial, so dropping the handle does not
// lose entries. Each dial restarts its janitor if a Close stopped it.
func DialerFor(raw string, maxEntries int) (Dialer, error) {
	if raw == "" {
		raw = "memory://"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse cache url: %w", err)
	}

	switch u.Scheme {
	case "memory":
		return memoryDialer(NewMemory(maxEntries, time.Minute)), nil
	case "sqlite":
		path := u.Path
		if u.Host != "" {
			// sqlite://relative/path.db
			path = u.Host + u.Path
		}
		if path == "" {
			return nil, fmt.Errorf("cache url %q: missing sqlite path", raw)
		}
		return func(ctx context.Context) (Backend, error) { return OpenSQLite(ctx, path) }, nil
	case "redis", "rediss":
		return func(ctx context.Context) (Backend, error) { return OpenRedis(ctx, raw) }, nil
	default:
		return nil, fmt.Errorf("cache url %q: unsupported scheme %q", raw, u.Scheme)
	}
}

func memoryDialer(mem *Memory) Dialer {
	return func(context.Context) (Backend, error) {
		mem.startJanitor()
		return mem, nil
	}
}
