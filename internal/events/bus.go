// Package events provides a publish/subscribe bus for operational
// observability. The orchestrator, cache store and dependency
// watchers publish query lifecycle events; the WebSocket feed at
// /v1/events subscribes. The bus is nil-safe: Publish and Emit on a
// nil *Bus are no-ops, so components need no guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceOrchestrator identifies query execution events.
	SourceOrchestrator = "orchestrator"
	// SourceCache identifies cache store events.
	SourceCache = "cache"
	// SourceDependency identifies connwatch health transitions.
	SourceDependency = "dependency"
)

// Kind constants describe the type of event within a source.
const (
	// KindQueryStart signals a new query execution.
	// Data: query_id, query, language, follow_up.
	KindQueryStart = "query_start"
	// KindSearchDone signals the web search phase finished.
	// Data: query_id, provider, results, news, videos, elapsed_ms.
	KindSearchDone = "search_done"
	// KindAnswerDone signals the LLM stream completed.
	// Data: query_id, model, answer_len, chunks, elapsed_ms.
	KindAnswerDone = "answer_done"
	// KindQueryDone signals a terminal done state was published.
	// Data: query_id, intent, cached, related, elapsed_ms.
	KindQueryDone = "query_done"
	// KindQueryError signals a terminal error state was published.
	// Data: query_id, phase, kind, error, elapsed_ms.
	KindQueryError = "query_error"
	// KindMediaFetch signals a lazy image or YouTube fetch finished.
	// Data: kind, query, cached, count, error.
	KindMediaFetch = "media_fetch"

	// KindCacheHit signals a document was found for a key.
	// Data: key, sections.
	KindCacheHit = "cache_hit"
	// KindCacheMiss signals no document was found for a key.
	// Data: key.
	KindCacheMiss = "cache_miss"
	// KindCacheError signals a backend failure that was swallowed.
	// Data: key, op, error.
	KindCacheError = "cache_error"

	// KindDependencyUp signals a watched dependency became reachable.
	// Data: name.
	KindDependencyUp = "dependency_up"
	// KindDependencyDown signals a watched dependency became unreachable.
	// Data: name, error.
	KindDependencyDown = "dependency_down"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}

	// recvToSend lets Unsubscribe take the receive-only channel the
	// caller holds.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. If a subscriber's channel
// is full the event is dropped for that subscriber.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Emit publishes an event stamped with the current time.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	if b == nil {
		return
	}
	b.Publish(Event{
		Timestamp: time.Now(),
		Source:    source,
		Kind:      kind,
		Data:      data,
	})
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe. 64 is a reasonable bufSize
// for WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Unknown
// or already removed channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
