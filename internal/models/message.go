package models

import "time"

// Message is the canonical message record owned by the external store.
// The gateway and clients only ever hold transient copies; the id and
// created_at are always store-assigned.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	Content        string    `json:"content"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

// Conversation is the store's view of a conversation, used for
// participant checks and presence notifications.
type Conversation struct {
	ID             string        `json:"id"`
	ParticipantIDs []int64       `json:"participant_ids"`
	UnreadCounts   map[int64]int `json:"unread_counts,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// HasParticipant reports whether the user belongs to the conversation.
func (c Conversation) HasParticipant(userID int64) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Identity is attached to a connection after a successful handshake.
type Identity struct {
	UserID      int64  `json:"user_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}
