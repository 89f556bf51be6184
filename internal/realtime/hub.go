package realtime

import (
	"sync"
)

// subscriber is one attached client, websocket or SSE.  Events are
// delivered over a buffered channel; when the buffer is full the event
// is dropped for that subscriber.
type subscriber struct {
	rooms map[string]bool
	ch    chan Event
}

// Subscription is the receiving end handed to transport handlers.
// Close detaches the subscriber from the hub; after Close the channel
// is closed and must not be read from again.
type Subscription struct {
	hub *Hub
	sub *subscriber
}

// C returns the event channel.
func (s *Subscription) C() <-chan Event { return s.sub.ch }

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.subs[s.sub]; ok {
		delete(s.hub.subs, s.sub)
		close(s.sub.ch)
	}
}

// Hub fans events out to subscribers by room.  It is safe for
// concurrent use.  The hub is injected into handlers at construction
// time; there is no process-wide instance.
type Hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Subscribe attaches a new subscriber to the given rooms and returns
// its subscription.  An event is delivered once per subscriber even if
// it matches several of its rooms.
func (h *Hub) Subscribe(rooms ...string) *Subscription {
	set := make(map[string]bool, len(rooms))
	for _, r := range rooms {
		if r != "" {
			set[r] = true
		}
	}
	sub := &subscriber{rooms: set, ch: make(chan Event, 64)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return &Subscription{hub: h, sub: sub}
}

// Broadcast delivers ev to every subscriber of the room.  Delivery is
// best-effort: a subscriber whose buffer is full misses this event.
func (h *Hub) Broadcast(room string, ev Event) {
	ev.Room = room
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if !sub.rooms[room] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// subscriber is not keeping up; drop
		}
	}
}

// SubscriberCount reports the number of attached subscribers.  Exposed
// for the SSE initial-stats payload and for metrics.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
