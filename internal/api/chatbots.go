package api

import (
	"net/http"

	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/logging"
	"whatsapp-automation/internal/models"

	"github.com/gin-gonic/gin"
)

type ChatbotHandler struct {
	bots *database.ChatbotRepository
	log  *logging.Logger
}

func NewChatbotHandler(bots *database.ChatbotRepository, log *logging.Logger) *ChatbotHandler {
	return &ChatbotHandler{bots: bots, log: log.Sub("api")}
}

// GetChatbots lists the workspace's bots, newest first
func (h *ChatbotHandler) GetChatbots(c *gin.Context) {
	bots, err := h.bots.List(c.Request.Context(), c.Param("workspace"))
	if err != nil {
		respondError(c, err)
		return
	}
	if bots == nil {
		bots = []models.Chatbot{}
	}
	c.JSON(http.StatusOK, bots)
}

func (h *ChatbotHandler) GetChatbot(c *gin.Context) {
	bot, err := h.bots.ChatbotByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bot)
}

// CreateChatbot stores a new bot definition. Bots start unpublished unless
// the request says otherwise.
func (h *ChatbotHandler) CreateChatbot(c *gin.Context) {
	var bot models.Chatbot
	if err := c.ShouldBindJSON(&bot); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bot.ID = ""
	bot.WorkspaceID = c.Param("workspace")

	if err := h.bots.Save(c.Request.Context(), &bot); err != nil {
		respondError(c, err)
		return
	}
	h.log.Info().Str("chatbot_id", bot.ID).Str("workspace_id", bot.WorkspaceID).Msg("Chatbot created")
	c.JSON(http.StatusCreated, bot)
}

// UpdateChatbot replaces a bot definition. The owning workspace never changes.
func (h *ChatbotHandler) UpdateChatbot(c *gin.Context) {
	ctx := c.Request.Context()
	existing, err := h.bots.ChatbotByID(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var bot models.Chatbot
	if err := c.ShouldBindJSON(&bot); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bot.ID = existing.ID
	bot.WorkspaceID = existing.WorkspaceID
	bot.CreatedAt = existing.CreatedAt

	if err := h.bots.Save(ctx, &bot); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bot)
}

func (h *ChatbotHandler) PublishChatbot(c *gin.Context) {
	h.setPublish(c, true)
}

func (h *ChatbotHandler) UnpublishChatbot(c *gin.Context) {
	h.setPublish(c, false)
}

func (h *ChatbotHandler) setPublish(c *gin.Context, publish bool) {
	if err := h.bots.SetPublish(c.Request.Context(), c.Param("id"), publish); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chatbot updated successfully", "publish": publish})
}

func (h *ChatbotHandler) DeleteChatbot(c *gin.Context) {
	if err := h.bots.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chatbot deleted successfully"})
}
