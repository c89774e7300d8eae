package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/nugget/clairevue/internal/events"
	"github.com/nugget/clairevue/internal/models"
	"github.com/nugget/clairevue/internal/search"
)

// flakyBackend wraps a Memory backend and fails while down is set.
type flakyBackend struct {
	*Memory
	down   *atomic.Bool
	closed atomic.Bool
}

var errDown = errors.New("connection reset by peer")

func (f *flakyBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.down.Load() {
		return nil, false, errDown
	}
	return f.Memory.Get(ctx, key)
}

func (f *flakyBackend) Set(ctx context.Context, key string, v []byte, ttl time.Duration) error {
	if f.down.Load() {
		return errDown
	}
	return f.Memory.Set(ctx, key, v, ttl)
}

func (f *flakyBackend) Close() error {
	f.closed.Store(true)
	return nil
}

// flakyDialer counts dials and hands out flakyBackends sharing one
// memory so data survives redials.
type flakyDialer struct {
	mem     *Memory
	down    atomic.Bool
	refuse  atomic.Bool
	dials   atomic.Int32
	mu      sync.Mutex
	handles []*flakyBackend
}

func (d *flakyDialer) dial(context.Context) (Backend, error) {
	d.dials.Add(1)
	if d.refuse.Load() {
		return nil, errors.New("connection refused")
	}
	b := &flakyBackend{Memory: d.mem, down: &d.down}
	d.mu.Lock()
	d.handles = append(d.handles, b)
	d.mu.Unlock()
	return b, nil
}

func newTestStore(t *testing.T, dial Dialer, opts Options) *Store {
	t.Helper()
	s, err := NewStore(dial, opts)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutGetMergesSections(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(10, 0)
	s := newTestStore(t, func(context.Context) (Backend, error) { return mem, nil }, Options{Compress: true})
	key := Key(KindQuery, "etna", "it")

	if _, ok := s.Get(ctx, key); ok {
		t.Fatal("expected miss on empty cache")
	}

	if err := s.Put(ctx, key, Document{Images: &ImagesBundle{Images: []search.Image{{Title: "lava"}}}}); err != nil {
		t.Fatalf("Put images: %v", err)
	}
	if err := s.Put(ctx, key, Document{Search: &models.State{Query: "etna", Answer: "Etna is..."}}); err != nil {
		t.Fatalf("Put search: %v", err)
	}

	doc, ok := s.Get(ctx, key)
	if !ok {
		t.Fatal("expected hit")
	}
	if doc.Images == nil || doc.Images.Images[0].Title != "lava" {
		t.Error("images section lost by the later search write")
	}
	if doc.Search == nil || doc.Search.Answer != "Etna is..." {
		t.Error("search section missing")
	}
	if doc.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}
}

func TestStore_PutRefreshesTTLForWholeDocument(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	dial, err := DialerFor("redis://"+mr.Addr(), 0)
	if err != nil {
		t.Fatal(err)
	}
	s := newTestStore(t, dial, Options{TTL: 72 * time.Hour})
	key := Key(KindQuery, "q", "en")

	s.Put(ctx, key, Document{Search: &models.State{Query: "q"}})
	mr.FastForward(48 * time.Hour)
	s.Put(ctx, key, Document{YouTube: &YouTubeBundle{Videos: []search.Video{{ID: "v"}}}})

	if ttl := mr.TTL(redisKeyPrefix + key); ttl != 72*time.Hour {
		t.Errorf("TTL after second write = %v, want a fresh 72h", ttl)
	}

	mr.FastForward(71 * time.Hour)
	doc, ok := s.Get(ctx, key)
	if !ok || doc.Search == nil || doc.YouTube == nil {
		t.Fatalf("both sections should live until the refreshed TTL: %+v", doc)
	}

	mr.FastForward(2 * time.Hour)
	if _, ok := s.Get(ctx, key); ok {
		t.Error("document should have expired as a whole")
	}
}

func TestStore_BackendFailureIsAMissAndRedials(t *testing.T) {
	ctx := context.Background()
	d := &flakyDialer{mem: NewMemory(10, 0)}
	var failures atomic.Int32
	bus := events.New()
	evCh := bus.Subscribe(16)
	defer bus.Unsubscribe(evCh)

	s := newTestStore(t, d.dial, Options{
		Events:    bus,
		OnFailure: func(error) { failures.Add(1) },
	})
	key := Key(KindQuery, "q", "en")

	if err := s.Put(ctx, key, Document{Search: &models.State{Query: "q"}}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	d.down.Store(true)
	if _, ok := s.Get(ctx, key); ok {
		t.Error("Get during outage should be a miss")
	}
	if err := s.Put(ctx, key, Document{}); err == nil {
		t.Error("Put during outage should report the failure")
	}
	if failures.Load() == 0 {
		t.Error("failure hook not called")
	}

	d.down.Store(false)
	doc, ok := s.Get(ctx, key)
	if !ok || doc.Search.Query != "q" {
		t.Fatal("expected hit after recovery")
	}
	if got := d.dials.Load(); got < 2 {
		t.Errorf("dials = %d, want a redial after the failure", got)
	}

	sawError := false
	for len(evCh) > 0 {
		if e := <-evCh; e.Kind == events.KindCacheError {
			sawError = true
		}
	}
	if !sawError {
		t.Error("no cache_error event published")
	}
}

func TestStore_DialFailureIsAMiss(t *testing.T) {
	ctx := context.Background()
	d := &flakyDialer{mem: NewMemory(10, 0)}
	d.refuse.Store(true)
	s := newTestStore(t, d.dial, Options{})

	if _, ok := s.Get(ctx, "k"); ok {
		t.Error("expected miss")
	}
	if err := s.Put(ctx, "k", Document{}); err == nil {
		t.Error("expected Put error while undialable")
	}
	if err := s.Ping(ctx); err == nil {
		t.Error("expected Ping error while undialable")
	}

	d.refuse.Store(false)
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping after recovery: %v", err)
	}
}

func TestStore_ResetClosesHandle(t *testing.T) {
	ctx := context.Background()
	d := &flakyDialer{mem: NewMemory(10, 0)}
	s := newTestStore(t, d.dial, Options{})

	s.Get(ctx, "k")
	s.Reset()
	s.Get(ctx, "k")

	if got := d.dials.Load(); got != 2 {
		t.Errorf("dials = %d, want 2", got)
	}
	if !d.handles[0].closed.Load() {
		t.Error("Reset did not close the dropped handle")
	}
}

func TestStore_ResetKeepsMemoryJanitorAlive(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(10, 2*time.Millisecond)
	s := newTestStore(t, memoryDialer(mem), Options{})

	s.Get(ctx, "k")
	s.Reset()
	if mem.janitorRunning() {
		t.Fatal("Reset should stop the janitor of the dropped handle")
	}
	s.Get(ctx, "k")
	if !mem.janitorRunning() {
		t.Fatal("redial did not restart the janitor")
	}

	mem.Set(ctx, "short", []byte("x"), 5*time.Millisecond)
	deadline := time.Now().Add(time.Second)
	for mem.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if mem.Len() != 0 {
		t.Error("expired entry was not swept after the redial")
	}
}

func TestStore_Purge(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(10, 0)
	s := newTestStore(t, func(context.Context) (Backend, error) { return mem, nil }, Options{})

	key := Key(KindQuery, "q", "en")
	s.Put(ctx, key, Document{Search: &models.State{}})
	if err := s.Purge(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get(ctx, key); ok {
		t.Error("document survived Purge")
	}
}

func TestStore_UndecodableEntryIsAMiss(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(10, 0)
	s := newTestStore(t, func(context.Context) (Backend, error) { return mem, nil }, Options{})

	mem.Set(ctx, "k", []byte("{broken"), time.Hour)
	if _, ok := s.Get(ctx, "k"); ok {
		t.Error("garbage entry returned as a hit")
	}
	if err := s.Put(ctx, "k", Document{Search: &models.State{Query: "q"}}); err != nil {
		t.Fatalf("Put over garbage: %v", err)
	}
	if doc, ok := s.Get(ctx, "k"); !ok || doc.Search.Query != "q" {
		t.Error("Put did not replace the garbage entry")
	}
}
