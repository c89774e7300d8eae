package cache

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

// exerciseBackend runs the behavior every backend shares.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := b.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("Get(missing) = ok %v, err %v", ok, err)
	}

	if err := b.Set(ctx, "k", []byte("v1"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Set(ctx, "k", []byte("v2"), time.Hour); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, ok, err := b.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v2" {
		t.Fatalf("Get(k) = %q, %v, %v; want v2", got, ok, err)
	}

	if err := b.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}

	if err := b.Purge(ctx); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Error("entry survived Purge")
	}
}

func TestMemoryBackend(t *testing.T) {
	m := NewMemory(10, 0)
	defer m.Close()
	exerciseBackend(t, m)
}

func TestMemoryBackend_ExpiryAndLRU(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2, 0)
	defer m.Close()

	m.Set(ctx, "expired", []byte("x"), -time.Second)
	if _, ok, _ := m.Get(ctx, "expired"); ok {
		t.Error("expired entry returned")
	}

	m.Set(ctx, "a", []byte("a"), time.Hour)
	m.Set(ctx, "b", []byte("b"), time.Hour)
	m.Get(ctx, "a") // a is now most recently used
	m.Set(ctx, "c", []byte("c"), time.Hour)

	if _, ok, _ := m.Get(ctx, "b"); ok {
		t.Error("least recently used entry should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok, _ := m.Get(ctx, k); !ok {
			t.Errorf("entry %q missing", k)
		}
	}
}

func TestMemoryBackend_Janitor(t *testing.T) {
	m := NewMemory(10, time.Millisecond)
	defer m.Close()
	m.Set(context.Background(), "short", []byte("x"), 5*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for m.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if m.Len() != 0 {
		t.Error("janitor did not remove the expired entry")
	}
}

func TestMemoryBackend_CopiesValue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10, 0)
	defer m.Close()

	buf := []byte("original")
	m.Set(ctx, "k", buf, time.Hour)
	copy(buf, "mutated!")

	got, _, _ := m.Get(ctx, "k")
	if string(got) != "original" {
		t.Errorf("stored value changed with caller buffer: %q", got)
	}
}

func testSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteBackend(t *testing.T) {
	exerciseBackend(t, testSQLite(t))
}

func TestSQLiteBackend_Expiry(t *testing.T) {
	ctx := context.Background()
	s := testSQLite(t)

	s.Set(ctx, "old", []byte("x"), -time.Minute)
	s.Set(ctx, "fresh", []byte("y"), time.Hour)

	if _, ok, _ := s.Get(ctx, "old"); ok {
		t.Error("expired row returned")
	}
	n, err := s.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired removed %d rows, want 1", n)
	}
	if _, ok, _ := s.Get(ctx, "fresh"); !ok {
		t.Error("fresh row missing")
	}
}

func TestSQLiteBackend_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	s.Set(ctx, "k", []byte("durable"), time.Hour)
	s.Close()

	s, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if got, ok, _ := s.Get(ctx, "k"); !ok || string(got) != "durable" {
		t.Errorf("Get after reopen = %q, %v", got, ok)
	}
}

func TestRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	r, err := OpenRedis(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("OpenRedis: %v", err)
	}
	defer r.Close()
	exerciseBackend(t, r)
}

func TestRedisBackend_TTLAndPrefix(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	r, err := OpenRedis(ctx, "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("OpenRedis: %v", err)
	}
	defer r.Close()

	mr.Set("unrelated", "keep me")
	if err := r.Set(ctx, "query:abc", []byte("doc"), 72*time.Hour); err != nil {
		t.Fatal(err)
	}

	if ttl := mr.TTL(redisKeyPrefix + "query:abc"); ttl != 72*time.Hour {
		t.Errorf("TTL = %v, want 72h", ttl)
	}

	mr.FastForward(73 * time.Hour)
	if _, ok, _ := r.Get(ctx, "query:abc"); ok {
		t.Error("entry should have expired")
	}

	r.Set(ctx, "query:def", []byte("doc"), time.Hour)
	if err := r.Purge(ctx); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("unrelated") {
		t.Error("Purge deleted a key it does not own")
	}
	if mr.Exists(redisKeyPrefix + "query:def") {
		t.Error("Purge left a cache key behind")
	}
}

func TestOpenRedis_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := OpenRedis(context.Background(), "redis://"+addr); err == nil {
		t.Fatal("expected dial failure")
	}
}

func TestDialerFor(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{"", false},
		{"memory://", false},
		{"sqlite:///tmp/x.db", false},
		{"redis://localhost:6379/0", false},
		{"rediss://localhost:6380", false},
		{"memcached://x", true},
		{"sqlite://", true},
	}
	for _, tt := range tests {
		_, err := DialerFor(tt.raw, 10)
		if (err != nil) != tt.wantErr {
			t.Errorf("DialerFor(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
		}
	}
}

func TestDialerFor_MemorySurvivesRedial(t *testing.T) {
	ctx := context.Background()
	dial, err := DialerFor("memory://", 10)
	if err != nil {
		t.Fatal(err)
	}
	b1, _ := dial(ctx)
	b1.Set(ctx, "k", []byte("v"), time.Hour)
	b2, _ := dial(ctx)
	if _, ok, _ := b2.Get(ctx, "k"); !ok {
		t.Error("memory backend lost entries across dials")
	}
	b1.Close()
}
