package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rankguard/src/envelope"
	jobctrl "rankguard/src/infrastructure/job"
	"rankguard/src/infrastructure/log"
	"rankguard/src/validation"
)

var jobRequired = validation.Schema{
	{Name: "id", Type: validation.SafeString},
}

// GetJob godoc
// @Summary Get the progress or result of a job
// @Tags jobs
// @Param id path string true "Job ID"
// @Produce json
// @Success 200 {object} envelope.Envelope
// @Failure 401 {object} envelope.Envelope
// @Failure 404 {object} envelope.Envelope
// @Router /api/v1/jobs/{id} [get]
func (h *Handler) GetJob(c *gin.Context) {
	params, err := validation.Validate([]validation.Source{{"id": c.Param("id")}}, jobRequired, nil)
	if err != nil {
		sendError(c, err)
		return
	}
	id := params.String("id")

	status, err := h.jobService.Status(id)
	if err != nil {
		sendError(c, err)
		return
	}

	if status.State == jobctrl.JobStateCompleted {
		h.writeCompleted(c, id)
		return
	}

	sendJSON(c, http.StatusOK, envelope.OK(envelope.JobStatus{Progress: status.Progress}))
}

// writeCompleted streams the persisted result of id. Errors found before
// the first byte go out as an error envelope; later ones can only be
// logged.
func (h *Handler) writeCompleted(c *gin.Context, id string) {
	rc, err := h.jobService.OpenResult(c.Request.Context(), id)
	if err != nil {
		sendError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Type", "application/json; charset=utf-8")
	written, err := envelope.WriteCompleted(c.Writer, rc)
	if err == nil {
		return
	}
	if !written {
		sendError(c, err)
		return
	}
	log.Error(err, "Persisted result stream failed after output started",
		"job_id", id,
		"request_id", c.GetString(requestIDKey),
	)
	c.Abort()
}
