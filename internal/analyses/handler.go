package analyses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"intake-portal/internal/shared/server/respond"
	"intake-portal/internal/shared/telemetry"
)

// Handler exposes job polling and cancellation. Routes expect an attorney session.
type Handler struct {
	Svc *Service
}

// RegisterRoutes mounts the analysis routes on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/analyses/:id", h.get)
	rg.POST("/analyses/:id/cancel", h.cancel)
}

type jobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JobResponse is the polling payload for one job.
type JobResponse struct {
	ID       string    `json:"id"`
	ClientID int64     `json:"clientId"`
	BlobName string    `json:"blobName"`
	Status   string    `json:"status"`
	Summary  *Summary  `json:"summary,omitempty"`
	Error    *jobError `json:"error,omitempty"`
}

// NewJobResponse converts a job to its polling payload.
func NewJobResponse(job Job) JobResponse {
	out := JobResponse{
		ID:       job.ID,
		ClientID: job.ClientID,
		BlobName: job.BlobName,
		Status:   job.Status,
		Summary:  job.Summary,
	}
	if job.ErrorCode != "" {
		out.Error = &jobError{Code: job.ErrorCode, Message: job.ErrorMessage}
	}
	return out
}

func (h *Handler) get(c *gin.Context) {
	job, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, NewJobResponse(job))
}

func (h *Handler) cancel(c *gin.Context) {
	job, err := h.Svc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, NewJobResponse(job))
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
	case errors.Is(err, ErrInvalidTransition):
		respond.Error(c, http.StatusConflict, "invalid_transition", "analysis already finished", nil)
	default:
		telemetry.Error("analysis.handler.error", map[string]any{
			"analysis_id": c.Param("id"),
			"error":       err,
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}
