package ws

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messaging-core/internal/observability"
)

// bearerToken extracts the handshake token from the Authorization header
// or, for browser websocket clients that cannot set headers, the token
// query parameter.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}

func newConnID() string {
	return uuid.NewString()
}

func wsRoutingKey(kind string) string {
	if kind == "presence" {
		return "ws_events.presence"
	}
	return "ws_events.conversations"
}

// publishWSEvent emits a connection lifecycle event to the platform bus
// and bumps the matching metric.
func publishWSEvent(ctx context.Context, kind, event string, info ConnInfo, reason string) {
	observability.IncWSEvent(kind, event)

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        kind,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(ctx, wsRoutingKey(kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers)
}
