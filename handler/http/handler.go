package http

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"rankguard/src/envelope"
	jobctrl "rankguard/src/infrastructure/job"
	"rankguard/src/rankguard"
)

type Handler struct {
	jobService *jobctrl.JobService
	guard      *rankguard.Guard
	idNode     *snowflake.Node
	key        string
}

func NewHandler(jobService *jobctrl.JobService, guard *rankguard.Guard, idNode *snowflake.Node, key string) *Handler {
	return &Handler{
		jobService: jobService,
		guard:      guard,
		idNode:     idNode,
		key:        key,
	}
}

// NewEngine returns a gin engine serving the handler's routes.
func NewEngine(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), RequestLogger(), gin.Recovery())

	h.RegisterRoutes(r)

	r.NoRoute(func(c *gin.Context) {
		sendJSON(c, http.StatusNotFound, envelope.Fail("Not found"))
	})
	return r
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.CheckHealth)

	v1 := r.Group("/api/v1", h.Authenticate)

	// Rank routes
	v1.POST("/rank", h.SetRank)

	// Job routes
	v1.GET("/jobs/:id", h.GetJob)
	v1.POST("/jobs/:id", h.GetJob)
}

func sendError(c *gin.Context, err error) {
	status, body := envelope.Report(err,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetString(requestIDKey),
	)
	c.AbortWithStatusJSON(status, body)
}

func sendJSON(c *gin.Context, status int, body envelope.Envelope) {
	c.JSON(status, body)
}
