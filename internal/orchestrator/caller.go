package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nugget/clairevue/internal/models"
	"github.com/nugget/clairevue/internal/stream"
)

// ErrBusy is returned when a caller submits a query while its previous
// one is still running.
var ErrBusy = errors.New("previous query still in flight")

// Caller serializes the queries of one client session: a new Run is
// refused while the previous one has not reached a terminal state.
// The guard is per caller, not per query text.
type Caller struct {
	orch     *Orchestrator
	inFlight atomic.Bool
	lastUsed atomic.Int64 // unix nanoseconds
}

// NewCaller returns a Caller bound to o.
func (o *Orchestrator) NewCaller() *Caller {
	c := &Caller{orch: o}
	c.touch()
	return c
}

func (c *Caller) touch() { c.lastUsed.Store(time.Now().UnixNano()) }

// InFlight reports whether the caller's last query is still running.
func (c *Caller) InFlight() bool { return c.inFlight.Load() }

// Run starts req unless a previous query is still in flight, in which
// case it returns ErrBusy. An empty query is a no-op, as with
// [Orchestrator.Run].
func (c *Caller) Run(ctx context.Context, req models.Request) (*stream.Cell[models.State], error) {
	c.touch()
	if req.Normalized().Query == "" {
		return nil, nil
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}

	cell, err := c.orch.Run(ctx, req)
	if err != nil || cell == nil {
		c.inFlight.Store(false)
		return cell, err
	}
	go func() {
		<-cell.Finished()
		c.inFlight.Store(false)
		c.touch()
	}()
	return cell, nil
}

// DefaultSessionIdle is how long an unused session's Caller is kept.
const DefaultSessionIdle = 30 * time.Minute

// Sessions maps client session IDs to their Callers. Idle sessions are
// pruned lazily on lookup.
type Sessions struct {
	orch *Orchestrator
	idle time.Duration

	mu      sync.Mutex
	callers map[string]*Caller
}

// NewSessions creates a session registry for o. idle <= 0 uses
// DefaultSessionIdle.
func NewSessions(o *Orchestrator, idle time.Duration) *Sessions {
	if idle <= 0 {
		idle = DefaultSessionIdle
	}
	return &Sessions{orch: o, idle: idle, callers: make(map[string]*Caller)}
}

// Caller returns the Caller for id, creating it on first use.
func (s *Sessions) Caller(id string) *Caller {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(time.Now())
	c, ok := s.callers[id]
	if !ok {
		c = s.orch.NewCaller()
		s.callers[id] = c
	}
	return c
}

// Len returns the number of tracked sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.callers)
}

func (s *Sessions) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.idle).UnixNano()
	for id, c := range s.callers {
		if !c.InFlight() && c.lastUsed.Load() < cutoff {
			delete(s.callers, id)
		}
	}
}
