// Package events fans session events out to live subscribers.
package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ent0n29/postcraft/internal/logging"
)

const DefaultBuffer = 32

// Hub is a per-session publish/subscribe bus. Publish never blocks: a
// subscriber whose queue is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
	buffer int
	logger *zap.Logger
	// onDrop is called with the session id when an event is dropped.
	onDrop func(sessionID string)
}

type subscriber struct {
	ch   chan any
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		buffer: buffer,
		logger: logging.OrNop(logger),
	}
}

// OnDrop registers a callback for dropped events. Call before publishing.
func (h *Hub) OnDrop(fn func(sessionID string)) {
	h.mu.Lock()
	h.onDrop = fn
	h.mu.Unlock()
}

// Subscribe returns a channel of events for sessionID and a cancel func
// that closes it. The channel is also closed when the hub closes.
func (h *Hub) Subscribe(sessionID string) (<-chan any, func()) {
	sub := &subscriber{ch: make(chan any, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	set := h.subs[sessionID]
	if set == nil {
		set = make(map[*subscriber]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	return sub.ch, func() {
		h.mu.Lock()
		if set, ok := h.subs[sessionID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, sessionID)
			}
		}
		h.mu.Unlock()
		sub.close()
	}
}

// Publish delivers msg to every current subscriber of sessionID and
// returns how many received it.
func (h *Hub) Publish(sessionID string, msg any) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0
	}
	delivered := 0
	for sub := range h.subs[sessionID] {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			h.logger.Debug("event dropped: subscriber queue full", zap.String("session_id", sessionID))
			if h.onDrop != nil {
				h.onDrop(sessionID)
			}
		}
	}
	return delivered
}

// Subscribers reports the live subscriber count for sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// CloseSession disconnects every subscriber of sessionID, e.g. after the
// session was deleted.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	set := h.subs[sessionID]
	delete(h.subs, sessionID)
	h.mu.Unlock()
	for sub := range set {
		sub.close()
	}
}

func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	all := h.subs
	h.subs = make(map[string]map[*subscriber]struct{})
	h.mu.Unlock()
	for _, set := range all {
		for sub := range set {
			sub.close()
		}
	}
}
