// Package cache memoizes per-query documents behind a content-addressed
// key with a sliding TTL.
//
// A [Store] owns one lazily dialed backend connection (memory, SQLite
// or Redis). Reads never fail: any backend problem is logged and
// reported as a miss so callers fall back to fetching directly. Writes
// are read-modify-write merges of a single section with no locking;
// two writers racing on the same key resolve as last-writer-wins.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/clairevue/internal/events"
)

// DefaultTTL is how long a document lives after its latest write.
const DefaultTTL = 72 * time.Hour

// Options configures a Store.
type Options struct {
	TTL      time.Duration // default DefaultTTL
	Compress bool
	Logger   *slog.Logger
	Events   *events.Bus

	// OnFailure runs after a backend operation fails, typically to
	// nudge the connection watcher. Optional.
	OnFailure func(error)
}

// Store is the process-wide cache handle. Construct one in the
// composition root and share it.
type Store struct {
	dial      Dialer
	ttl       time.Duration
	codec     *codec
	logger    *slog.Logger
	events    *events.Bus
	onFailure func(error)

	mu      sync.Mutex
	backend Backend
}

// NewStore creates a store that dials through dial on first use.
func NewStore(dial Dialer, opts Options) (*Store, error) {
	c, err := newCodec(opts.Compress)
	if err != nil {
		return nil, err
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		dial:      dial,
		ttl:       opts.TTL,
		codec:     c,
		logger:    opts.Logger.With("component", "cache"),
		events:    opts.Events,
		onFailure: opts.OnFailure,
	}, nil
}

// Open builds a store for a cache connection string (see DialerFor).
func Open(rawURL string, maxEntries int, opts Options) (*Store, error) {
	dial, err := DialerFor(rawURL, maxEntries)
	if err != nil {
		return nil, err
	}
	return NewStore(dial, opts)
}

// SetFailureHook replaces the hook run after backend failures. The
// composition root uses it to nudge a watcher created after the store.
func (s *Store) SetFailureHook(fn func(error)) {
	s.mu.Lock()
	s.onFailure = fn
	s.mu.Unlock()
}

// handle returns the live backend, dialing if there is none.
func (s *Store) handle(ctx context.Context) (Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend != nil {
		return s.backend, nil
	}
	b, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial cache backend: %w", err)
	}
	s.logger.Debug("cache backend connected")
	s.backend = b
	return b, nil
}

// fail drops b if it is still the current handle so the next call
// redials, then runs the failure hook.
func (s *Store) fail(b Backend, err error) {
	s.mu.Lock()
	if b != nil && s.backend == b {
		s.backend = nil
		go b.Close()
	}
	hook := s.onFailure
	s.mu.Unlock()

	if hook != nil {
		hook(err)
	}
}

// Reset drops the current connection. Called when the watcher sees
// the backend go down.
func (s *Store) Reset() {
	s.mu.Lock()
	b := s.backend
	s.backend = nil
	s.mu.Unlock()

	if b != nil {
		b.Close()
	}
}

// Get returns the document stored under key. Any backend or decoding
// failure is logged and reported as a miss.
func (s *Store) Get(ctx context.Context, key string) (*Document, bool) {
	b, err := s.handle(ctx)
	if err != nil {
		s.swallow(key, "get", nil, err)
		return nil, false
	}

	data, ok, err := b.Get(ctx, key)
	if err != nil {
		s.swallow(key, "get", b, err)
		return nil, false
	}
	if !ok {
		s.events.Emit(events.SourceCache, events.KindCacheMiss, map[string]any{"key": key})
		return nil, false
	}

	doc, err := s.codec.decode(data)
	if err != nil {
		s.logger.Warn("discarding undecodable cache entry", "key", key, "error", err)
		return nil, false
	}

	s.events.Emit(events.SourceCache, events.KindCacheHit, map[string]any{
		"key":      key,
		"sections": doc.Sections(),
	})
	return &doc, true
}

// Put merges the sections present in fragment into the document under
// key and writes it back, restarting the TTL for the whole document.
// The caller should treat a returned error as non-fatal.
func (s *Store) Put(ctx context.Context, key string, fragment Document) error {
	b, err := s.handle(ctx)
	if err != nil {
		s.swallow(key, "put", nil, err)
		return err
	}

	var existing Document
	data, ok, err := b.Get(ctx, key)
	if err != nil {
		s.swallow(key, "put", b, err)
		return fmt.Errorf("read %s: %w", key, err)
	}
	if ok {
		if existing, err = s.codec.decode(data); err != nil {
			s.logger.Warn("overwriting undecodable cache entry", "key", key, "error", err)
			existing = Document{}
		}
	}

	fragment.UpdatedAt = time.Now().UTC()
	merged := Merge(existing, fragment)

	out, err := s.codec.encode(merged)
	if err != nil {
		return err
	}
	if err := b.Set(ctx, key, out, s.ttl); err != nil {
		s.swallow(key, "put", b, err)
		return fmt.Errorf("write %s: %w", key, err)
	}

	s.logger.Debug("cache document written",
		"key", key,
		"sections", merged.Sections(),
		"bytes", len(out),
	)
	return nil
}

// Purge deletes every cached document.
func (s *Store) Purge(ctx context.Context) error {
	b, err := s.handle(ctx)
	if err != nil {
		return err
	}
	if err := b.Purge(ctx); err != nil {
		s.fail(b, err)
		return err
	}
	return nil
}

// Ping dials if needed and checks the backend. It serves as the
// connection watcher's probe.
func (s *Store) Ping(ctx context.Context) error {
	b, err := s.handle(ctx)
	if err != nil {
		return err
	}
	if err := b.Ping(ctx); err != nil {
		s.mu.Lock()
		if s.backend == b {
			s.backend = nil
			go b.Close()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Close releases the backend connection and codec resources.
func (s *Store) Close() error {
	s.mu.Lock()
	b := s.backend
	s.backend = nil
	s.mu.Unlock()

	s.codec.close()
	if b != nil {
		return b.Close()
	}
	return nil
}

func (s *Store) swallow(key, op string, b Backend, err error) {
	s.logger.Warn("cache unavailable, continuing without it",
		"key", key,
		"op", op,
		"error", err,
	)
	s.events.Emit(events.SourceCache, events.KindCacheError, map[string]any{
		"key":   key,
		"op":    op,
		"error": err.Error(),
	})
	s.fail(b, err)
}
