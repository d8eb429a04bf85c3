// Package hub fans events out from the translator to every connected
// event stream.
package hub

import (
	"sync"
)

// Event names published on the global stream.
const (
	EventMessageUpdated     = "message.updated"
	EventMessagePartUpdated = "message.part.updated"
	EventPermissionAsked    = "permission.asked"
	EventPermissionReplied  = "permission.replied"
	EventSessionReloaded    = "session.reloaded"
)

// Event is one item on the broadcast stream. Properties is the
// event-specific payload, serialized as-is.
type Event struct {
	Type       string `json:"type"`
	Properties any    `json:"properties"`
}

// Hub broadcasts events to subscribers. Publishing never blocks: a
// subscriber that falls behind its buffer is dropped and its channel
// closed, so one stalled client cannot stall the translator.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe registers a new subscriber channel.
func (h *Hub) Subscribe() chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Event, 64) // Buffered
	h.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// after the subscriber was already dropped for falling behind.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[ch]; ok {
		delete(h.subscribers, ch)
		close(ch)
	}
}

// Publish broadcasts an event to all subscribers.
func (h *Hub) Publish(eventType string, properties any) {
	ev := Event{Type: eventType, Properties: properties}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			// Subscriber buffer full; drop it rather than stall
			delete(h.subscribers, ch)
			close(ch)
		}
	}
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
