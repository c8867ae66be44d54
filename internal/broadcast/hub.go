package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/x5uw/SyncRoom/internal/core"
)

// ErrClosed is returned by operations on a closed medium.
var ErrClosed = errors.New("broadcast medium closed")

// Hub is an in-process Medium. It also fans out packets received by the
// network backends to their local subscribers.
type Hub struct {
	rooms  map[string]map[string]Handler // roomID -> subscriptionID -> handler
	closed bool
	mu     sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[string]Handler),
	}
}

// Publish validates p and delivers it to every current subscriber of roomID
// on the caller's goroutine.
func (h *Hub) Publish(_ context.Context, roomID string, p core.Packet) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrClosed
	}
	h.mu.RUnlock()

	// Round-trip through the codec so in-process subscribers see exactly
	// what a network subscriber would.
	h.deliver("memory", roomID, data)
	return nil
}

// deliver decodes data once and calls every handler registered for roomID.
func (h *Hub) deliver(source, roomID string, data []byte) {
	handlers := h.handlers(roomID)
	if len(handlers) == 0 {
		return
	}
	p, err := Decode(data)
	if err != nil {
		dropMalformed(source, roomID, err)
		return
	}
	for _, handler := range handlers {
		handler(p)
	}
}

func (h *Hub) handlers(roomID string) []Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.rooms[roomID]
	out := make([]Handler, 0, len(subs))
	for _, handler := range subs {
		out = append(out, handler)
	}
	return out
}

// Subscribe registers handler for roomID.
func (h *Hub) Subscribe(_ context.Context, roomID string, handler Handler) (Unsubscribe, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	id := uuid.NewString()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]Handler)
	}
	h.rooms[roomID][id] = handler
	log.Debugw("subscribed", "room", roomID, "subscription", id)

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(roomID, id) })
	}, nil
}

func (h *Hub) remove(roomID, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.rooms[roomID]
	if subs == nil {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(h.rooms, roomID)
	}
	log.Debugw("unsubscribed", "room", roomID, "subscription", id)
}

// Subscribers returns the number of live subscriptions for roomID.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Close drops every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.rooms = make(map[string]map[string]Handler)
	return nil
}

var _ Medium = (*Hub)(nil)
