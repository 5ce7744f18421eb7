package api

import (
	"encoding/json"
	"sync"
	"time"
)

// Publication is one outbound bus message as seen by /events clients.
type Publication struct {
	ID      int64           `json:"id"`
	Topic   string          `json:"topic"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans outbound publications out to subscribers and keeps the most recent
// ones in a ring buffer for late clients.
type Hub struct {
	now func() time.Time

	mu     sync.Mutex
	nextID int64
	ring   []Publication
	start  int
	size   int

	subs      map[int]chan Publication
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		now:  time.Now,
		ring: make([]Publication, capacity),
		subs: make(map[int]chan Publication),
	}
}

// Observe records a publication. Non-JSON payloads are carried as a JSON string.
func (h *Hub) Observe(topic string, payload []byte) {
	raw := json.RawMessage(append([]byte(nil), payload...))
	if !json.Valid(raw) {
		raw, _ = json.Marshal(string(payload))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// IDs are assigned under mu so subscribers see them in increasing order.
	h.nextID++
	p := Publication{
		ID:      h.nextID,
		Topic:   topic,
		At:      h.now().UTC(),
		Payload: raw,
	}
	h.pushLocked(p)
	for _, ch := range h.subs {
		// Slow clients miss publications rather than stall the publisher.
		select {
		case ch <- p:
		default:
		}
	}
}

func (h *Hub) Subscribe() (<-chan Publication, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Publication, 64)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Snapshot returns the buffered publications, oldest first.
func (h *Hub) Snapshot() []Publication {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Publication, 0, h.size)
	for i := 0; i < h.size; i++ {
		out = append(out, h.ring[(h.start+i)%len(h.ring)])
	}
	return out
}

func (h *Hub) pushLocked(p Publication) {
	capacity := len(h.ring)
	if h.size < capacity {
		h.ring[(h.start+h.size)%capacity] = p
		h.size++
		return
	}
	h.ring[h.start] = p
	h.start = (h.start + 1) % capacity
}
