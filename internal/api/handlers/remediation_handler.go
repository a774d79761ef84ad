package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/netwarden/netwarden/internal/api/middleware"
	"github.com/netwarden/netwarden/internal/services"
)

type RemediationHandler struct {
	remediations *services.RemediationService
}

func NewRemediationHandler(remediations *services.RemediationService) *RemediationHandler {
	return &RemediationHandler{remediations: remediations}
}

type remediateRequest struct {
	RunID     string   `json:"run_id"`
	DeviceIDs []string `json:"device_ids"`
	Reaudit   bool     `json:"reaudit"`
}

// Trigger applies reference payloads for a completed run's failing checks
// and returns the per-device batch summary.
func (h *RemediationHandler) Trigger(c *gin.Context) {
	var req remediateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RunID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "run_id is required"})
		return
	}

	actor := "unknown"
	if user := middleware.CurrentUser(c); user != nil {
		actor = user.Email
	}

	summary, err := h.remediations.Remediate(c.Request.Context(), req.RunID, req.DeviceIDs, req.Reaudit, actor)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRunNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		case errors.Is(err, services.ErrRunNotCompleted), errors.Is(err, services.ErrNothingToRemediate):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrLicenseDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *RemediationHandler) Actions(c *gin.Context) {
	actions, err := h.remediations.Actions(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, actions)
}
