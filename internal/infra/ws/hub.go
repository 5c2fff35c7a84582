package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	chatsvc "homedesk/internal/app/services/chat"
)

const defaultSendBuffer = 32

// Hub is the in-process room registry: conversation ID to the set of
// subscribed sessions. It implements the service's RoomRegistry port.
// Delivery is at-most-once: a slow socket drops the event, and nothing is
// replayed when a socket (re)joins a room.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*session]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*session]struct{}),
		logger: logger,
	}
}

type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Broadcast fans an event out to every session in the conversation's room.
func (h *Hub) Broadcast(conversationID, event string, payload any) {
	h.broadcast(conversationID, event, payload, nil)
}

// broadcastExcept is the typing-indicator path: everyone but the sender.
func (h *Hub) broadcastExcept(conversationID, event string, payload any, except *session) {
	h.broadcast(conversationID, event, payload, except)
}

func (h *Hub) broadcast(conversationID, event string, payload any, except *session) {
	data, err := json.Marshal(envelope{Event: event, Data: payload})
	if err != nil {
		if h.logger != nil {
			h.logger.Error("event encode failed", "event", event, "error", err)
		}
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.rooms[conversationID] {
		if s == except {
			continue
		}
		s.deliver(data)
	}
}

func (h *Hub) join(s *session, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[conversationID]
	if !ok {
		members = make(map[*session]struct{})
		h.rooms[conversationID] = members
	}
	members[s] = struct{}{}
	s.rooms[conversationID] = struct{}{}
}

func (h *Hub) leave(s *session, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s, conversationID)
}

// disconnect removes the session from every room it joined and closes its
// send channel, ending the write pump. Membership removal and channel
// close happen under the same lock, so no broadcast can write after close.
func (h *Hub) disconnect(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	for conversationID := range s.rooms {
		h.removeLocked(s, conversationID)
	}
	s.closed = true
	close(s.send)
}

func (h *Hub) removeLocked(s *session, conversationID string) {
	if members, ok := h.rooms[conversationID]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	delete(s.rooms, conversationID)
}

func (h *Hub) isMember(s *session, conversationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := s.rooms[conversationID]
	return ok
}

func (h *Hub) roomSize(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// session is one connected socket. rooms and closed are guarded by the
// hub's lock.
type session struct {
	principal chatsvc.Principal
	send      chan []byte
	rooms     map[string]struct{}
	closed    bool
}

func newSession(p chatsvc.Principal, buffer int) *session {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &session{
		principal: p,
		send:      make(chan []byte, buffer),
		rooms:     make(map[string]struct{}),
	}
}

// deliver enqueues without blocking; a full buffer drops the event.
func (s *session) deliver(data []byte) {
	select {
	case s.send <- data:
	default:
	}
}

var _ chatsvc.RoomRegistry = (*Hub)(nil)
