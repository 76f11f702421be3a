package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rankguard/src/envelope"
)

// NewConfigErrorEngine returns an engine that answers every route with the
// startup failure, so a misconfigured service still binds its port and
// tells callers why it cannot work.
func NewConfigErrorEngine(cause error) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), RequestLogger(), gin.Recovery())

	msg := "Server configuration error: " + cause.Error()
	r.NoRoute(func(c *gin.Context) {
		sendJSON(c, http.StatusServiceUnavailable, envelope.Fail(msg))
	})
	return r
}
