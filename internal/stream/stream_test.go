package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// collect drains ch until it is closed or a second passes.
func collect[T any](t *testing.T, ch <-chan Snapshot[T]) []Snapshot[T] {
	t.Helper()
	var out []Snapshot[T]
	timeout := time.After(time.Second)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, s)
		case <-timeout:
			t.Fatalf("channel not closed; got %d snapshots", len(out))
		}
	}
}

func values[T any](snaps []Snapshot[T]) []T {
	out := make([]T, len(snaps))
	for i, s := range snaps {
		out[i] = s.Value
	}
	return out
}

func TestCell_FastSubscriberSeesEveryUpdate(t *testing.T) {
	c := New[string]()
	ch, cancel := c.Subscribe(16)
	defer cancel()

	c.Update("a")
	c.Update("ab")
	c.Done("abc")

	got := collect(t, ch)
	want := []string{"a", "ab", "abc"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", values(got), want)
	}
	for i := range want {
		if got[i].Value != want[i] {
			t.Errorf("snapshot %d = %q, want %q", i, got[i].Value, want[i])
		}
	}
	if !got[2].Final || got[0].Final || got[1].Final {
		t.Error("only the last snapshot should be final")
	}
}

func TestCell_ReplayLastOnAttach(t *testing.T) {
	c := New[int]()
	c.Update(1)
	c.Update(2)

	ch, cancel := c.Subscribe(4)
	defer cancel()
	c.Done(3)

	got := values(collect(t, ch))
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("got %v, want [2 3]", got)
	}
}

func TestCell_LateSubscriberGetsTerminalOnly(t *testing.T) {
	c := New[int]()
	c.Update(1)
	c.Fail(7, errors.New("stream broke"))

	ch, cancel := c.Subscribe(4)
	defer cancel()

	got := collect(t, ch)
	if len(got) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(got))
	}
	if got[0].Value != 7 || !got[0].Final || got[0].Err == nil {
		t.Errorf("terminal snapshot = %+v", got[0])
	}
}

func TestCell_SlowSubscriberKeepsLatestAndTerminal(t *testing.T) {
	c := New[int]()
	ch, cancel := c.Subscribe(2)
	defer cancel()

	for i := 1; i <= 100; i++ {
		c.Update(i)
	}
	c.Done(101)

	got := values(collect(t, ch))
	if len(got) != 2 {
		t.Fatalf("got %v, want the two newest snapshots", got)
	}
	if got[0] != 100 || got[1] != 101 {
		t.Errorf("got %v, want [100 101]", got)
	}
}

func TestCell_ProducerNeverBlocks(t *testing.T) {
	c := New[int]()
	for range 3 {
		c.Subscribe(1) // never read
	}

	done := make(chan struct{})
	go func() {
		for i := range 10000 {
			c.Update(i)
		}
		c.Done(-1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer blocked on unread subscribers")
	}
}

func TestCell_IgnoresCallsAfterTerminal(t *testing.T) {
	c := New[string]()
	c.Done("final")
	c.Update("late")
	c.Fail("later", errors.New("x"))
	c.Done("again")

	s, ok := c.Last()
	if !ok || s.Value != "final" || s.Err != nil {
		t.Errorf("Last() = %+v, want the first terminal value", s)
	}
}

func TestCell_CancelDetaches(t *testing.T) {
	c := New[int]()
	ch, cancel := c.Subscribe(4)
	if c.Subscribers() != 1 {
		t.Fatalf("Subscribers() = %d, want 1", c.Subscribers())
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	if c.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d, want 0", c.Subscribers())
	}

	c.Update(1) // must not send on the closed channel
	c.Done(2)
}

func TestCell_Wait(t *testing.T) {
	c := New[string]()
	go func() {
		c.Update("partial")
		c.Done("complete")
	}()

	s, err := c.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if s.Value != "complete" || !s.Final {
		t.Errorf("Wait() = %+v", s)
	}

	open := New[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := open.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() on open cell = %v, want deadline exceeded", err)
	}
}

func TestCell_ConcurrentSubscribers(t *testing.T) {
	c := New[int]()
	var wg sync.WaitGroup
	finals := make(chan int, 20)

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, cancel := c.Subscribe(1)
			defer cancel()
			var last Snapshot[int]
			for s := range ch {
				last = s
			}
			if last.Final {
				finals <- last.Value
			}
		}()
	}

	for i := range 1000 {
		c.Update(i)
	}
	c.Done(1000)
	wg.Wait()
	close(finals)

	n := 0
	for v := range finals {
		n++
		if v != 1000 {
			t.Errorf("final value = %d, want 1000", v)
		}
	}
	if n != 20 {
		t.Errorf("%d subscribers saw the terminal snapshot, want 20", n)
	}
}
