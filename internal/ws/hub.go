package ws

import (
	"log"
	"sync"

	"messaging-core/internal/models"
)

// Hub is the in-memory room registry: which sessions are joined to which
// conversation, plus the app-wide presence sessions keyed by user. All
// membership state lives here and mutates only through Join/Leave/
// Broadcast; nothing else may touch the maps.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Session]struct{}
	joined   map[*Session]map[string]struct{}
	presence map[int64]map[*Session]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:    make(map[string]map[*Session]struct{}),
		joined:   make(map[*Session]map[string]struct{}),
		presence: make(map[int64]map[*Session]struct{}),
	}
}

// Join adds the session to the conversation room. Idempotent: joining the
// same room twice results in a single membership entry.
func (h *Hub) Join(conversationID string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[*Session]struct{})
	}
	h.rooms[conversationID][s] = struct{}{}
	if _, ok := h.joined[s]; !ok {
		h.joined[s] = make(map[string]struct{})
	}
	h.joined[s][conversationID] = struct{}{}
}

// Leave removes the session from the conversation room. Empty rooms are
// deleted; they come back implicitly on the next join.
func (h *Hub) Leave(conversationID string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conversationID, s)
}

func (h *Hub) leaveLocked(conversationID string, s *Session) {
	if members, ok := h.rooms[conversationID]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	if rooms, ok := h.joined[s]; ok {
		delete(rooms, conversationID)
		if len(rooms) == 0 {
			delete(h.joined, s)
		}
	}
}

// LeaveAll removes the session from every room it was a member of.
// Invoked implicitly on disconnect.
func (h *Hub) LeaveAll(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conversationID := range h.joined[s] {
		h.leaveLocked(conversationID, s)
	}
	delete(h.joined, s)
}

// IsJoined reports whether the session is currently in the room.
func (h *Hub) IsJoined(conversationID string, s *Session) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[conversationID][s]
	return ok
}

// Broadcast delivers the event to every session joined to the room,
// including the sender's own connections.
func (h *Hub) Broadcast(conversationID, event string, data any) {
	h.broadcast(conversationID, nil, event, data)
}

// BroadcastExcept delivers the event to every room member except the
// given session. Used for typing signals, which are never echoed back.
func (h *Hub) BroadcastExcept(conversationID string, except *Session, event string, data any) {
	h.broadcast(conversationID, except, event, data)
}

func (h *Hub) broadcast(conversationID string, except *Session, event string, data any) {
	h.mu.RLock()
	members := make([]*Session, 0, len(h.rooms[conversationID]))
	for s := range h.rooms[conversationID] {
		if s != except {
			members = append(members, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range members {
		if err := s.Send(event, data); err != nil {
			log.Printf("websocket write error: %v", err)
			_ = s.Close()
			h.Leave(conversationID, s)
		}
	}
}

// AddPresence registers an app-wide presence session for the user.
func (h *Hub) AddPresence(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	userID := s.Identity().UserID
	if _, ok := h.presence[userID]; !ok {
		h.presence[userID] = make(map[*Session]struct{})
	}
	h.presence[userID][s] = struct{}{}
}

// RemovePresence drops a presence session.
func (h *Hub) RemovePresence(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	userID := s.Identity().UserID
	if sessions, ok := h.presence[userID]; ok {
		delete(sessions, s)
		if len(sessions) == 0 {
			delete(h.presence, userID)
		}
	}
}

// SendPresence delivers a conversation-updated notification to every
// presence session the user has open.
func (h *Hub) SendPresence(userID int64, payload models.ConversationUpdated) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.presence[userID]))
	for s := range h.presence[userID] {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		if err := s.Send(models.EventConversationUpdated, payload); err != nil {
			log.Printf("presence write error: %v", err)
			_ = s.Close()
			h.RemovePresence(s)
		}
	}
}
