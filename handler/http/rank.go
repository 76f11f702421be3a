package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rankguard/src/envelope"
	jobctrl "rankguard/src/infrastructure/job"
	"rankguard/src/validation"
)

var (
	setRankRequired = validation.Schema{
		{Name: "group", Type: validation.Int},
		{Name: "target", Type: validation.Int},
		{Name: "rank", Type: validation.Int},
	}
	setRankOptional = validation.Schema{
		{Name: "id", Type: validation.SafeString},
	}
)

// SetRank godoc
// @Summary Start a rank change for a group member
// @Tags rank
// @Param key body string true "Shared secret"
// @Param group body int true "Group ID"
// @Param target body int true "User ID"
// @Param rank body int true "New rank"
// @Param id body string false "Job ID, generated when omitted"
// @Produce json
// @Success 200 {object} envelope.Envelope "job already completed"
// @Success 202 {object} envelope.Envelope "job in progress"
// @Failure 400 {object} envelope.Envelope
// @Failure 401 {object} envelope.Envelope
// @Failure 422 {object} envelope.Envelope
// @Router /api/v1/rank [post]
func (h *Handler) SetRank(c *gin.Context) {
	params, err := validation.Validate(requestSources(c), setRankRequired, setRankOptional)
	if err != nil {
		sendError(c, err)
		return
	}

	rank := params.Int("rank")
	if err := h.guard.Check(rank); err != nil {
		sendError(c, err)
		return
	}

	id := params.String("id")
	if id == "" {
		id = h.idNode.Generate().String()
	}

	task := jobctrl.NewRankTask(id, int64(params.Int("group")), int64(params.Int("target")), rank, h.guard)
	reg, err := h.jobService.EnqueueJob(c.Request.Context(), task)
	if err != nil {
		sendError(c, err)
		return
	}

	if reg.State == jobctrl.JobStateCompleted {
		h.writeCompleted(c, id)
		return
	}

	sendJSON(c, http.StatusAccepted, envelope.OK(envelope.JobStatus{
		ID:       id,
		Progress: reg.Job.Progress(),
	}))
}
