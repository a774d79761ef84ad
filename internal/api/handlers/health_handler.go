package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/netwarden/netwarden/internal/version"
)

type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"name":    version.Name,
		"version": version.Version,
	})
}
