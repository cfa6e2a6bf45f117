// Package watch fans registry changes out to live subscribers.
package watch

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"preset-relay/preset"
)

const bufferSize = 64

// Subscriber receives registry changes on C until it is displaced, removed
// or the hub is closed.
type Subscriber struct {
	ID          string    `json:"id"`
	ConnectedAt time.Time `json:"connected_at"`

	c    chan preset.Change
	kick chan struct{}
}

// C delivers changes. Changes are dropped when the buffer is full.
func (s *Subscriber) C() <-chan preset.Change { return s.c }

// Kicked is closed when a newer subscriber takes over this ID or the hub
// shuts down.
func (s *Subscriber) Kicked() <-chan struct{} { return s.kick }

// Hub tracks subscribers by ID.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]*Subscriber
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]*Subscriber)}
}

// Subscribe registers a subscriber under id, generating one when id is
// empty. An existing subscriber with the same id is displaced: its Kicked
// channel is closed. Returns false if the hub has been closed.
func (h *Hub) Subscribe(id string) (*Subscriber, bool) {
	if id == "" {
		id = uuid.New().String()
	}
	s := &Subscriber{
		ID:          id,
		ConnectedAt: time.Now(),
		c:           make(chan preset.Change, bufferSize),
		kick:        make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	if prev, ok := h.subs[id]; ok {
		close(prev.kick)
	}
	h.subs[id] = s
	return s, true
}

// Unsubscribe removes s if it is still the current owner of its ID. A
// displaced subscriber never removes its replacement.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.subs[s.ID]; ok && cur == s {
		delete(h.subs, s.ID)
	}
}

// Publish delivers c to every subscriber without blocking.
func (h *Hub) Publish(c preset.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		select {
		case s.c <- c:
		default:
		}
	}
}

// List returns the current subscribers.
func (h *Hub) List() []Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		list = append(list, Subscriber{ID: s.ID, ConnectedAt: s.ConnectedAt})
	}
	return list
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close kicks every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		close(s.kick)
		delete(h.subs, id)
	}
}
