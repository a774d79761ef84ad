package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/netwarden/netwarden/internal/api/middleware"
	"github.com/netwarden/netwarden/internal/models"
	"github.com/netwarden/netwarden/internal/services"
)

type AuditHandler struct {
	audits *services.AuditService
}

func NewAuditHandler(audits *services.AuditService) *AuditHandler {
	return &AuditHandler{audits: audits}
}

type triggerAuditRequest struct {
	DeviceIDs []string `json:"device_ids"`
	RuleIDs   []string `json:"rule_ids"`
}

// Trigger accepts an audit over a device set × rule set and returns the
// acknowledgment immediately; the run completes asynchronously.
func (h *AuditHandler) Trigger(c *gin.Context) {
	var req triggerAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	run, err := h.audits.StartRun(req.DeviceIDs, req.RuleIDs, models.TriggerManual)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNothingToAudit):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrLicenseDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusAccepted, run)
}

func (h *AuditHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := h.audits.ListRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (h *AuditHandler) Get(c *gin.Context) {
	run, err := h.audits.GetRun(c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *AuditHandler) Results(c *gin.Context) {
	results, err := h.audits.Results(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *AuditHandler) Scores(c *gin.Context) {
	scores, err := h.audits.Scores(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type scored struct {
		models.DeviceScore
		Compliance float64 `json:"compliance"`
	}
	out := make([]scored, 0, len(scores))
	for _, s := range scores {
		out = append(out, scored{DeviceScore: s, Compliance: s.Score()})
	}
	c.JSON(http.StatusOK, out)
}

func (h *AuditHandler) Cancel(c *gin.Context) {
	actor := "unknown"
	if user := middleware.CurrentUser(c); user != nil {
		actor = user.Email
	}
	if err := h.audits.CancelRun(c.Param("id"), actor); err != nil {
		if errors.Is(err, services.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found or not running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}
