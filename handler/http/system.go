package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rankguard/src/envelope"
)

// HealthStatus is the data of the health endpoint.
type HealthStatus struct {
	Status     string `json:"status"`
	InProgress int    `json:"inProgress"`
	Completed  int    `json:"completed"`
	RankLimit  int    `json:"rankLimit"`
}

// CheckHealth godoc
// @Summary Check service health
// @Tags system
// @Produce json
// @Success 200 {object} envelope.Envelope
// @Router /health [get]
func (h *Handler) CheckHealth(c *gin.Context) {
	inProgress, completed := h.jobService.Registry().Counts()
	sendJSON(c, http.StatusOK, envelope.OK(HealthStatus{
		Status:     "ok",
		InProgress: inProgress,
		Completed:  completed,
		RankLimit:  h.guard.Ceiling(),
	}))
}
