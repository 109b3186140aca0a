package api

import (
	"net/http"

	"whatsapp-automation/internal/automation"
	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/models"

	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	settings *database.SettingsRepository
}

func NewSettingsHandler(settings *database.SettingsRepository) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) GetSettings(c *gin.Context) {
	s, err := h.settings.Settings(c.Request.Context(), c.Param("workspace"))
	if err != nil {
		respondError(c, err)
		return
	}
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "automation settings not configured"})
		return
	}
	c.JSON(http.StatusOK, s)
}

// UpdateSettings validates and replaces the workspace's automation settings
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var s models.AutomationSettings
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.WorkspaceID = c.Param("workspace")

	if err := automation.ValidateSettings(&s); err != nil {
		respondError(c, err)
		return
	}
	if err := h.settings.Save(c.Request.Context(), &s); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}
