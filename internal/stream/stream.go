// Package stream provides Cell, a single-producer multi-consumer value
// cell used to publish a query's evolving state.
//
// The producer calls Update any number of times and then exactly one
// of Done or Fail. Subscribers first receive the latest value (if
// any), then every later publish in order, ending with the terminal
// snapshot, after which their channel is closed. A subscriber that
// attaches after the terminal call receives only the terminal
// snapshot.
//
// The producer never waits on a subscriber. When a subscriber's buffer
// is full the oldest queued snapshot is discarded to make room, so a
// slow reader may miss intermediate values but always sees the newest
// one and the terminal one.
package stream

import (
	"context"
	"sync"
)

// Snapshot is one published value.
type Snapshot[T any] struct {
	Value T
	// Final is set on the terminal snapshot.
	Final bool
	// Err is set when the producer called Fail.
	Err error
}

// Cell is safe for concurrent use. The zero value is not usable; call
// New.
type Cell[T any] struct {
	mu      sync.Mutex
	last    Snapshot[T]
	hasLast bool
	subs    map[chan Snapshot[T]]struct{}
	done    chan struct{}
}

// New returns an empty, open cell.
func New[T any]() *Cell[T] {
	return &Cell[T]{
		subs: make(map[chan Snapshot[T]]struct{}),
		done: make(chan struct{}),
	}
}

// Update publishes an intermediate value. Ignored after Done or Fail.
func (c *Cell[T]) Update(v T) {
	c.publish(Snapshot[T]{Value: v})
}

// Done publishes v as the terminal value and closes every subscriber.
// Only the first terminal call has any effect.
func (c *Cell[T]) Done(v T) {
	c.publish(Snapshot[T]{Value: v, Final: true})
}

// Fail publishes v (typically carrying any partial progress) with err
// as the terminal snapshot.
func (c *Cell[T]) Fail(v T, err error) {
	c.publish(Snapshot[T]{Value: v, Final: true, Err: err})
}

func (c *Cell[T]) publish(s Snapshot[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hasLast && c.last.Final {
		return
	}
	c.last = s
	c.hasLast = true

	for ch := range c.subs {
		offer(ch, s)
	}

	if s.Final {
		for ch := range c.subs {
			close(ch)
		}
		clear(c.subs)
		close(c.done)
	}
}

// offer delivers s to ch, evicting the oldest queued snapshot if the
// buffer is full. Only called with c.mu held, so the cell is the sole
// sender and a slot is guaranteed after one eviction.
func offer[T any](ch chan Snapshot[T], s Snapshot[T]) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// Subscribe attaches a reader with a buffer of buf snapshots (minimum
// 1). The returned cancel func detaches the reader and closes its
// channel; it is safe to call more than once and after the terminal
// snapshot.
func (c *Cell[T]) Subscribe(buf int) (<-chan Snapshot[T], func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan Snapshot[T], buf)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hasLast {
		ch <- c.last
	}
	if c.hasLast && c.last.Final {
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}
}

// Last returns the most recently published snapshot, if any.
func (c *Cell[T]) Last() (Snapshot[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.hasLast
}

// Finished is closed once the terminal snapshot is published.
func (c *Cell[T]) Finished() <-chan struct{} {
	return c.done
}

// Wait blocks until the terminal snapshot is published or ctx ends.
func (c *Cell[T]) Wait(ctx context.Context) (Snapshot[T], error) {
	select {
	case <-c.done:
		s, _ := c.Last()
		return s, nil
	case <-ctx.Done():
		var zero Snapshot[T]
		return zero, ctx.Err()
	}
}

// Subscribers returns the number of attached readers.
func (c *Cell[T]) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}
