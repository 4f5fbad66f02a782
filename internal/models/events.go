package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxContentLength bounds message content, measured in runes. Oversized
// content is rejected on both sides before any relay happens.
const MaxContentLength = 5000

// Client -> server event names.
const (
	EventJoinConversation  = "join-conversation"
	EventLeaveConversation = "leave-conversation"
	EventSendMessage       = "send-message"
	EventTypingStart       = "typing-start"
	EventTypingStop        = "typing-stop"
)

// Server -> client event names.
const (
	EventNewMessage          = "new-message"
	EventMessageSent         = "message-sent"
	EventConversationJoined  = "conversation-joined"
	EventUserTyping          = "user-typing"
	EventUserStoppedTyping   = "user-stopped-typing"
	EventError               = "error"
	EventConversationUpdated = "conversation-updated"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrEmptyContent   = errors.New("message content is empty")
	ErrContentTooLong = errors.New("message content exceeds length bound")
)

// Envelope frames every event on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MarshalEvent frames a payload into an envelope ready to write.
func MarshalEvent(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		body, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		raw = body
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// ClientEvent is the closed set of events a connection may send. Adding a
// new event means adding a type here and a case to ParseClientEvent; every
// dispatch site switches over this set exhaustively.
type ClientEvent interface{ clientEvent() }

type JoinConversation struct {
	ConversationID string `json:"conversation_id"`
}

type LeaveConversation struct {
	ConversationID string `json:"conversation_id"`
}

type SendMessage struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	LocalID        string `json:"local_id,omitempty"`
}

type TypingStart struct {
	ConversationID string `json:"conversation_id"`
}

type TypingStop struct {
	ConversationID string `json:"conversation_id"`
}

func (JoinConversation) clientEvent()  {}
func (LeaveConversation) clientEvent() {}
func (SendMessage) clientEvent()       {}
func (TypingStart) clientEvent()       {}
func (TypingStop) clientEvent()        {}

// ParseClientEvent decodes an inbound frame into its typed event.
func ParseClientEvent(raw []byte) (ClientEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Event {
	case EventJoinConversation:
		var ev JoinConversation
		return ev, unmarshalData(env, &ev)
	case EventLeaveConversation:
		var ev LeaveConversation
		return ev, unmarshalData(env, &ev)
	case EventSendMessage:
		var ev SendMessage
		return ev, unmarshalData(env, &ev)
	case EventTypingStart:
		var ev TypingStart
		return ev, unmarshalData(env, &ev)
	case EventTypingStop:
		var ev TypingStop
		return ev, unmarshalData(env, &ev)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// ServerEvent is the closed set of events the gateway emits.
type ServerEvent interface{ serverEvent() }

// NewMessage carries the fully-formed, store-confirmed message record.
type NewMessage struct {
	Message Message
}

type MessageSent struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	LocalID        string `json:"local_id,omitempty"`
}

type ConversationJoined struct {
	ConversationID string `json:"conversation_id"`
}

type UserTyping struct {
	ConversationID string `json:"conversation_id"`
	UserID         int64  `json:"user_id"`
	UserName       string `json:"user_name"`
}

type UserStoppedTyping struct {
	ConversationID string `json:"conversation_id"`
	UserID         int64  `json:"user_id"`
	UserName       string `json:"user_name"`
}

type ErrorEvent struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type ConversationUpdated struct {
	ConversationID string    `json:"conversation_id"`
	LastMessage    *Message  `json:"last_message,omitempty"`
	UnreadCount    int       `json:"unread_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (NewMessage) serverEvent()          {}
func (MessageSent) serverEvent()         {}
func (ConversationJoined) serverEvent()  {}
func (UserTyping) serverEvent()          {}
func (UserStoppedTyping) serverEvent()   {}
func (ErrorEvent) serverEvent()          {}
func (ConversationUpdated) serverEvent() {}

// ParseServerEvent decodes a frame received by a client into its typed event.
func ParseServerEvent(raw []byte) (ServerEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Event {
	case EventNewMessage:
		var msg Message
		if err := unmarshalData(env, &msg); err != nil {
			return nil, err
		}
		return NewMessage{Message: msg}, nil
	case EventMessageSent:
		var ev MessageSent
		return ev, unmarshalData(env, &ev)
	case EventConversationJoined:
		var ev ConversationJoined
		return ev, unmarshalData(env, &ev)
	case EventUserTyping:
		var ev UserTyping
		return ev, unmarshalData(env, &ev)
	case EventUserStoppedTyping:
		var ev UserStoppedTyping
		return ev, unmarshalData(env, &ev)
	case EventError:
		var ev ErrorEvent
		return ev, unmarshalData(env, &ev)
	case EventConversationUpdated:
		var ev ConversationUpdated
		return ev, unmarshalData(env, &ev)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func unmarshalData(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("event %s: missing data", env.Event)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("event %s: decode data: %w", env.Event, err)
	}
	return nil
}

// ErrorCode is the wire-level error taxonomy shared by both sides.
type ErrorCode string

const (
	CodeAuthenticationFailed ErrorCode = "authentication_failed"
	CodeAuthorizationFailed  ErrorCode = "authorization_failed"
	CodeValidationFailed     ErrorCode = "validation_failed"
	CodeUpstreamFailure      ErrorCode = "upstream_failure"
)

// ValidateContent enforces the send-message content rules. The same check
// runs client-side before any network call and server-side before relay.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}
