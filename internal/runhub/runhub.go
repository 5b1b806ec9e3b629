// Package runhub tracks in-flight agent runs and fans their progress events
// out to any number of live subscribers (SSE attachments).
package runhub

import (
	"sync"
	"time"
)

// Event is one progress event of a run, already serialized for the wire.
type Event struct {
	Event string
	Data  string
}

const subscriberBuffer = 512

// Broker fans events for a single run out to its subscribers. Slow
// subscribers lose the oldest buffered events instead of blocking the
// publisher.
type Broker struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

func newBroker() *Broker {
	return &Broker{subs: make(map[chan Event]struct{})}
}

// Publish delivers the event to all current subscribers.
func (b *Broker) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Buffer full: drop the oldest event to make room.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called when the subscriber is done.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
		b.mu.Unlock()
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Close ends the broker; all subscriber channels are closed.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

// Hub maps run IDs to their brokers.
type Hub struct {
	mu   sync.Mutex
	runs map[string]*Broker
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{runs: make(map[string]*Broker)}
}

// Create registers a broker for the run ID, replacing any existing one.
func (h *Hub) Create(runID string) *Broker {
	b := newBroker()
	h.mu.Lock()
	h.runs[runID] = b
	h.mu.Unlock()
	return b
}

// Get returns the broker for a run, or nil if unknown.
func (h *Hub) Get(runID string) *Broker {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs[runID]
}

// ReapAfter removes and closes the run's broker after the delay. Late
// subscribers within the grace period can still attach and drain buffered
// events.
func (h *Hub) ReapAfter(runID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		h.mu.Lock()
		b := h.runs[runID]
		delete(h.runs, runID)
		h.mu.Unlock()
		if b != nil {
			b.Close()
		}
	})
}
