package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-core/internal/cache"
	"messaging-core/internal/identity"
	"messaging-core/internal/models"
	"messaging-core/internal/observability"
	"messaging-core/internal/store"
	"messaging-core/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// GatewayHandler authenticates conversation websocket connections and
// services their events: room membership, message relay, typing signals.
type GatewayHandler struct {
	hub      *Hub
	verifier identity.Verifier
	store    store.Store
	cache    *cache.ParticipantCache
	audit    *telemetry.AuditEmitter
}

// NewGatewayHandler constructs a GatewayHandler.
func NewGatewayHandler(hub *Hub, verifier identity.Verifier, st store.Store, pc *cache.ParticipantCache, audit *telemetry.AuditEmitter) *GatewayHandler {
	return &GatewayHandler{hub: hub, verifier: verifier, store: st, cache: pc, audit: audit}
}

// Handle runs the handshake: token check, identity verification, upgrade.
// Authentication happens exactly once per connection; everything after
// runs per-event in the read loop.
func (h *GatewayHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-core/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		observability.IncWSEvent("conversation", "auth_reject")
		h.audit.Emit(ctx, "WARN", "websocket handshake without token", observability.RequestIDFromRequest(c.Request), "", nil)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	ident, err := h.verifier.Verify(ctx, token)
	if err != nil {
		observability.IncWSEvent("conversation", "auth_reject")
		h.audit.Emit(ctx, "WARN", "websocket handshake with invalid token", observability.RequestIDFromRequest(c.Request), "", nil)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      ident.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	sess := NewSession(wsConn, ident, info)

	observability.IncWSActive("conversation")
	publishWSEvent(ctx, "conversation", "ws_connect", info, "")

	go h.readLoop(ctx, sess)
}

func (h *GatewayHandler) readLoop(ctx context.Context, sess *Session) {
	var closeReason string
	defer func() {
		h.hub.LeaveAll(sess)
		observability.DecWSActive("conversation")
		publishWSEvent(ctx, "conversation", "ws_disconnect", sess.Info(), closeReason)
		_ = sess.Close()
	}()

	for {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishWSEvent(ctx, "conversation", "ws_error", sess.Info(), closeReason)
			}
			return
		}

		event, err := models.ParseClientEvent(raw)
		if err != nil {
			sess.SendError(models.CodeValidationFailed, "unrecognized event")
			continue
		}
		h.dispatch(ctx, sess, event)
	}
}

// dispatch switches over the closed client event set. Adding an event
// type without a case here is a compile-time hole, not a silent drop.
func (h *GatewayHandler) dispatch(ctx context.Context, sess *Session, event models.ClientEvent) {
	switch ev := event.(type) {
	case models.JoinConversation:
		h.handleJoin(ctx, sess, ev)
	case models.LeaveConversation:
		h.hub.Leave(ev.ConversationID, sess)
	case models.SendMessage:
		h.handleSend(ctx, sess, ev)
	case models.TypingStart:
		h.handleTyping(sess, ev.ConversationID, models.EventUserTyping)
	case models.TypingStop:
		h.handleTyping(sess, ev.ConversationID, models.EventUserStoppedTyping)
	}
}

func (h *GatewayHandler) handleJoin(ctx context.Context, sess *Session, ev models.JoinConversation) {
	member, err := h.isParticipant(ctx, ev.ConversationID, sess.Identity().UserID)
	if err != nil {
		sess.SendError(models.CodeUpstreamFailure, "failed to verify membership")
		return
	}
	if !member {
		userID := sess.Identity().UserID
		h.audit.Emit(ctx, "WARN", "join rejected: not a participant", sess.Info().RequestID, ev.ConversationID, &userID)
		sess.SendError(models.CodeAuthorizationFailed, "not a participant of this conversation")
		return
	}

	h.hub.Join(ev.ConversationID, sess)
	observability.IncWSEvent("conversation", "room_join")
	_ = sess.Send(models.EventConversationJoined, models.ConversationJoined{ConversationID: ev.ConversationID})
}

// handleSend is the message relay: validate, authorize, persist, ack the
// sender, then broadcast the store-confirmed record to the whole room.
func (h *GatewayHandler) handleSend(ctx context.Context, sess *Session, ev models.SendMessage) {
	content := strings.TrimSpace(ev.Content)
	if err := models.ValidateContent(content); err != nil {
		observability.IncSendRejected("validation")
		sess.SendError(models.CodeValidationFailed, err.Error())
		return
	}

	ident := sess.Identity()
	member, err := h.isParticipant(ctx, ev.ConversationID, ident.UserID)
	if err != nil {
		observability.IncSendRejected("upstream")
		sess.SendError(models.CodeUpstreamFailure, "failed to verify membership")
		return
	}
	if !member {
		observability.IncSendRejected("authorization")
		h.audit.Emit(ctx, "WARN", "send rejected: not a participant", sess.Info().RequestID, ev.ConversationID, &ident.UserID)
		sess.SendError(models.CodeAuthorizationFailed, "not a participant of this conversation")
		return
	}

	msg, conv, err := h.store.CreateMessage(ctx, ev.ConversationID, ident.UserID, ident.DisplayName, content)
	if err != nil {
		observability.IncSendRejected("upstream")
		sess.SendError(models.CodeUpstreamFailure, "failed to store message")
		return
	}

	// Ack first so the sender can retire its optimistic placeholder
	// before the broadcast round-trips.
	_ = sess.Send(models.EventMessageSent, models.MessageSent{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		LocalID:        ev.LocalID,
	})

	h.hub.Broadcast(ev.ConversationID, models.EventNewMessage, msg)
	observability.IncMessageRelayed()
	observability.IncWSEvent("conversation", "message_relayed")

	h.notifyConversationUpdated(msg, conv)
}

// handleTyping relays a transient typing signal to the other room members.
// Fire-and-forget: no persistence, no ack, never echoed to the sender, and
// signals from a connection that never joined the room are dropped.
func (h *GatewayHandler) handleTyping(sess *Session, conversationID, event string) {
	if !h.hub.IsJoined(conversationID, sess) {
		return
	}

	ident := sess.Identity()
	payload := models.UserTyping{
		ConversationID: conversationID,
		UserID:         ident.UserID,
		UserName:       ident.DisplayName,
	}
	if event == models.EventUserStoppedTyping {
		h.hub.BroadcastExcept(conversationID, sess, event, models.UserStoppedTyping(payload))
		return
	}
	h.hub.BroadcastExcept(conversationID, sess, event, payload)
}

// notifyConversationUpdated fans a lightweight update out to every
// participant's presence socket so conversation lists refresh without the
// chat view being open.
func (h *GatewayHandler) notifyConversationUpdated(msg models.Message, conv models.Conversation) {
	updatedAt := conv.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = msg.CreatedAt
	}
	for _, userID := range conv.ParticipantIDs {
		h.hub.SendPresence(userID, models.ConversationUpdated{
			ConversationID: msg.ConversationID,
			LastMessage:    &msg,
			UnreadCount:    conv.UnreadCounts[userID],
			UpdatedAt:      updatedAt,
		})
	}
}

// isParticipant answers the authorization question for a conversation,
// consulting the cache before falling back to the store.
func (h *GatewayHandler) isParticipant(ctx context.Context, conversationID string, userID int64) (bool, error) {
	if member, hit := h.cache.IsParticipant(ctx, conversationID, userID); hit {
		return member, nil
	}

	conv, err := h.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			return false, nil
		}
		return false, err
	}

	h.cache.Put(ctx, conv.ID, conv.ParticipantIDs)
	return conv.HasParticipant(userID), nil
}
