package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/netwarden/netwarden/internal/api/middleware"
	"github.com/netwarden/netwarden/internal/services"
)

type DriftHandler struct {
	drift *services.DriftService
}

func NewDriftHandler(drift *services.DriftService) *DriftHandler {
	return &DriftHandler{drift: drift}
}

type setBaselineRequest struct {
	SnapshotID string `json:"snapshot_id"`
}

// SetBaseline promotes a snapshot to be the device's drift reference.
// Any previous baseline for the device is demoted in the same transaction.
func (h *DriftHandler) SetBaseline(c *gin.Context) {
	var req setBaselineRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SnapshotID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "snapshot_id is required"})
		return
	}

	actor := "unknown"
	if user := middleware.CurrentUser(c); user != nil {
		actor = user.Email
	}

	if err := h.drift.SetBaseline(c.Param("id"), req.SnapshotID, actor); err != nil {
		if errors.Is(err, services.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "baseline set"})
}

func (h *DriftHandler) Detect(c *gin.Context) {
	record, err := h.drift.Detect(c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoBaseline):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrSnapshotNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	if record == nil {
		c.JSON(http.StatusOK, gin.H{"drift": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"drift": true, "record": record})
}

func (h *DriftHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.drift.List(c.Query("device_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *DriftHandler) Snapshots(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	snapshots, err := h.drift.Snapshots(c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snapshots)
}
