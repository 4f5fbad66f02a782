package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-core/internal/identity"
	"messaging-core/internal/observability"
)

// PresenceHandler serves the app-wide presence socket: one receive-only
// connection per signed-in client, used for conversation-updated
// notifications outside the active chat view.
type PresenceHandler struct {
	hub      *Hub
	verifier identity.Verifier
}

// NewPresenceHandler constructs a PresenceHandler.
func NewPresenceHandler(hub *Hub, verifier identity.Verifier) *PresenceHandler {
	return &PresenceHandler{hub: hub, verifier: verifier}
}

// Handle authenticates and registers a presence connection.
func (h *PresenceHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-core/ws").Start(c.Request.Context(), "ws.presence_handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		observability.IncWSEvent("presence", "auth_reject")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	ident, err := h.verifier.Verify(ctx, token)
	if err != nil {
		observability.IncWSEvent("presence", "auth_reject")
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
	h.hub.AddPresence(sess)

	observability.IncWSActive("presence")
	publishWSEvent(ctx, "presence", "ws_connect", info, "")

	go h.readLoop(ctx, sess)
}

// readLoop drains the connection. The presence socket has no send
// capability; inbound frames are discarded and only the close matters.
func (h *PresenceHandler) readLoop(ctx context.Context, sess *Session) {
	var closeReason string
	defer func() {
		h.hub.RemovePresence(sess)
		observability.DecWSActive("presence")
		publishWSEvent(ctx, "presence", "ws_disconnect", sess.Info(), closeReason)
		_ = sess.Close()
	}()

	for {
		if _, _, err := sess.conn.ReadMessage(); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishWSEvent(ctx, "presence", "ws_error", sess.Info(), closeReason)
			}
			return
		}
	}
}
