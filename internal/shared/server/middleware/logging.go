package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"research-backend/internal/shared/telemetry"
)

// Context keys handlers set so the request log can correlate analysis work.
const (
	DocumentIDKey       = "documentId"
	SessionIDKey        = "sessionId"
	StatusTransitionKey = "statusTransition"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		documentID := c.GetString(DocumentIDKey)
		if documentID == "" {
			documentID = c.Param("id")
		}

		telemetry.Info("request.complete", map[string]any{
			"request_id":        RequestIDFromContext(c),
			"method":            c.Request.Method,
			"path":              c.Request.URL.Path,
			"route":             c.FullPath(),
			"status":            c.Writer.Status(),
			"status_transition": c.GetString(StatusTransitionKey),
			"duration_ms":       float64(latency.Microseconds()) / 1000.0,
			"document_id":       documentID,
			"session_id":        c.GetString(SessionIDKey),
			"client_ip":         c.ClientIP(),
			"user_agent":        c.Request.UserAgent(),
		})
	}
}
