package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messaging-core/internal/models"
	"messaging-core/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints. Disabled by default;
// the routes assume an auth middleware has already run.
func RegisterDebugRoutes(group *gin.RouterGroup, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	group.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), "", userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *int64 {
	if val, ok := c.Get("identity"); ok {
		if ident, ok := val.(models.Identity); ok && ident.UserID != 0 {
			userID := ident.UserID
			return &userID
		}
	}
	return nil
}
