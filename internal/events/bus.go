// Package events is an in-memory pub/sub bus used to let ambient observers
// (the status API, Prometheus counters) react to routing decisions without
// coupling the core components to them. Adapted from tokenhub's
// internal/events/bus.go — same non-blocking, drop-on-full-subscriber
// semantics — re-typed for this domain's events, plus a retained ring buffer
// for the status API's /events endpoint (tokenhub's bus keeps no history;
// our statusapi needs to replay recent activity without its own storage).
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// EventType identifies the kind of event published on the bus.
type EventType string

const (
	EventTransactionRecorded EventType = "transaction_recorded"
	EventSwitch              EventType = "switch"
	EventFailureRecorded     EventType = "failure_recorded"
	EventTruncation          EventType = "truncation"
	EventRestartInvoked      EventType = "restart_invoked"
)

// Event is a single bus message.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	ProviderID string  `json:"providerId,omitempty"`
	ModelID    string  `json:"modelId,omitempty"`
	CostUSD    float64 `json:"costUsd,omitempty"`
	From       string  `json:"from,omitempty"`
	To         string  `json:"to,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// JSON returns the event as a JSON byte slice, for the status API's /events
// endpoint.
func (e Event) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Subscriber receives events on a buffered channel.
type Subscriber struct {
	C    chan Event
	done chan struct{}
}

// Bus is an in-memory pub/sub event bus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	ring        []Event
	ringSize    int
}

// NewBus creates an event bus that also retains the last ringSize events for
// the status API's /events?limit=N endpoint (default 200 if ringSize<=0).
func NewBus(ringSize int) *Bus {
	if ringSize <= 0 {
		ringSize = 200
	}
	return &Bus{
		subscribers: make(map[*Subscriber]struct{}),
		ringSize:    ringSize,
	}
}

// Subscribe creates a new subscriber with a buffered channel.
func (b *Bus) Subscribe(bufSize int) *Subscriber {
	if bufSize <= 0 {
		bufSize = 64
	}
	s := &Subscriber{C: make(chan Event, bufSize), done: make(chan struct{})}
	b.mu.Lock()
	b.subscribers[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe removes a subscriber and closes its done channel; C is left
// open.
func (b *Bus) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	delete(b.subscribers, s)
	b.mu.Unlock()
	close(s.done)
}

// Publish sends an event to all subscribers (non-blocking) and appends it to
// the retained ring buffer.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.Lock()
	b.ring = append(b.ring, e)
	if len(b.ring) > b.ringSize {
		b.ring = b.ring[len(b.ring)-b.ringSize:]
	}
	subs := make([]*Subscriber, 0, len(b.subscribers))
	for s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.C <- e:
		default:
			// Drop event if subscriber is slow (back-pressure).
		}
	}
}

// Recent returns up to limit most-recent retained events, newest last.
func (b *Bus) Recent(limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if limit <= 0 || limit > len(b.ring) {
		limit = len(b.ring)
	}
	out := make([]Event, limit)
	copy(out, b.ring[len(b.ring)-limit:])
	return out
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
