package observe

import "sync"

// Hub broadcasts events to live subscribers (the /events websocket). A
// subscriber that falls behind loses events rather than stalling a worker.
type Hub struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]chan Event
}

// NewHub returns a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan Event)}
}

// Subscribe registers a subscriber with a buffer of the given depth and
// returns its channel and a cancel function. Cancel closes the channel and
// may be called more than once.
func (h *Hub) Subscribe(depth int) (<-chan Event, func()) {
	if depth < 1 {
		depth = 1
	}
	ch := make(chan Event, depth)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Emit queues e on every subscriber without blocking.
func (h *Hub) Emit(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			// subscriber full, drop
		}
	}
}
