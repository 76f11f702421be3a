package http

import (
	"crypto/subtle"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rankguard/src/envelope"
	"rankguard/src/infrastructure/log"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
	apiKeyHeader    = "X-Api-Key"
)

// RequestID tags every request with an id, reusing the caller's when sent.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs one line per request once it is served.
func RequestLogger() gin.HandlerFunc {
	logger := log.WithName("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("Request served",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(requestIDKey),
		)
	}
}

// Authenticate rejects requests whose key does not match the shared secret.
// It runs before any parameter validation.
func (h *Handler) Authenticate(c *gin.Context) {
	key, _ := lookupSource(requestSources(c), "key")
	if key == "" {
		key = c.GetHeader(apiKeyHeader)
	}

	if h.key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.key)) != 1 {
		sendError(c, envelope.ErrUnauthorized)
		return
	}
	c.Next()
}
