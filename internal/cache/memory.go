package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Memory is an in-process LRU backend with per-entry expiry. A
// janitor goroutine sweeps expired entries; Close stops it.
type Memory struct {
	maxItems int
	interval time.Duration

	mu        sync.Mutex
	items     map[string]*list.Element
	evictList *list.List

	// stop is nil while no janitor runs.
	stopMu sync.Mutex
	stop   chan struct{}
}

type memoryItem struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemory creates a memory backend holding at most maxItems entries
// (default 1000). A positive cleanupInterval starts the janitor.
func NewMemory(maxItems int, cleanupInterval time.Duration) *Memory {
	if maxItems <= 0 {
		maxItems = 1000
	}
	m := &Memory{
		maxItems:  maxItems,
		interval:  cleanupInterval,
		items:     make(map[string]*list.Element, maxItems),
		evictList: list.New(),
	}
	m.startJanitor()
	return m
}

// startJanitor launches the sweeper unless one is already running or
// no cleanup interval was configured.
func (m *Memory) startJanitor() {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()
	if m.interval <= 0 || m.stop != nil {
		return
	}
	m.stop = make(chan struct{})
	go m.janitor(m.interval, m.stop)
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	item := el.Value.(*memoryItem)
	if !time.Now().Before(item.expiresAt) {
		m.remove(el)
		return nil, false, nil
	}
	m.evictList.MoveToFront(el)
	return item.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		m.remove(el)
	}
	for m.evictList.Len() >= m.maxItems {
		m.remove(m.evictList.Back())
	}

	// Copy so a caller reusing its buffer cannot corrupt the entry.
	v := append([]byte(nil), value...)
	m.items[key] = m.evictList.PushFront(&memoryItem{
		key:       key,
		value:     v,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

func (m *Memory) Purge(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.items)
	m.evictList.Init()
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictList.Len()
}

// Close stops the janitor. Entries stay in place, and the memory
// dialer restarts the janitor when it hands the backend out again.
func (m *Memory) Close() error {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	return nil
}

func (m *Memory) janitorRunning() bool {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()
	return m.stop != nil
}

func (m *Memory) remove(el *list.Element) {
	m.evictList.Remove(el)
	delete(m.items, el.Value.(*memoryItem).key)
}

func (m *Memory) deleteExpired(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, el := range m.items {
		if !now.Before(el.Value.(*memoryItem).expiresAt) {
			m.remove(el)
		}
	}
}

func (m *Memory) janitor(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			m.deleteExpired(now)
		case <-stop:
			return
		}
	}
}
