package api

import (
	"net/http"

	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/models"

	"github.com/gin-gonic/gin"
)

type AutomationHandler struct {
	logs     *database.AutomationLogRepository
	channels *database.ChannelRepository
}

func NewAutomationHandler(logs *database.AutomationLogRepository, channels *database.ChannelRepository) *AutomationHandler {
	return &AutomationHandler{logs: logs, channels: channels}
}

// GetLogs returns automation execution logs
func (h *AutomationHandler) GetLogs(c *gin.Context) {
	logs, err := h.logs.Recent(c.Request.Context(), c.Param("workspace"), limitQuery(c, 50))
	if err != nil {
		respondError(c, err)
		return
	}
	if logs == nil {
		logs = []models.AutomationLog{}
	}
	c.JSON(http.StatusOK, logs)
}

// GetAnalytics returns automation analytics
func (h *AutomationHandler) GetAnalytics(c *gin.Context) {
	stats, err := h.logs.Analytics(c.Request.Context(), c.Param("workspace"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type ChannelRequest struct {
	PhoneNumberID string `json:"phone_number_id" binding:"required"`
}

// RegisterChannel routes webhooks for a phone number id to the workspace
func (h *AutomationHandler) RegisterChannel(c *gin.Context) {
	var req ChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ch := &models.Channel{PhoneNumberID: req.PhoneNumberID, WorkspaceID: c.Param("workspace")}
	if err := h.channels.Register(c.Request.Context(), ch); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}
