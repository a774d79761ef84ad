package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/netwarden/netwarden/internal/models"
	"github.com/netwarden/netwarden/internal/services"
)

type ScheduleHandler struct {
	scheduler *services.Scheduler
}

func NewScheduleHandler(scheduler *services.Scheduler) *ScheduleHandler {
	return &ScheduleHandler{scheduler: scheduler}
}

func (h *ScheduleHandler) List(c *gin.Context) {
	schedules, err := h.scheduler.ListSchedules()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, schedules)
}

func (h *ScheduleHandler) Create(c *gin.Context) {
	var schedule models.AuditSchedule
	if err := c.ShouldBindJSON(&schedule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.scheduler.CreateSchedule(&schedule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, schedule)
}

func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.scheduler.DeleteSchedule(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
