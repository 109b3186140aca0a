package api

import (
	"context"
	"net/http"
	"strconv"

	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/dispatcher"
	"whatsapp-automation/internal/logging"
	"whatsapp-automation/internal/models"

	"github.com/gin-gonic/gin"
)

const updateAttempts = 5

// Replier sends agent-authored messages.
type Replier interface {
	Reply(ctx context.Context, conversationID string, out models.Outbound) (*models.Conversation, error)
}

type ConversationHandler struct {
	conversations *database.ConversationRepository
	messages      *database.MessageRepository
	replier       Replier
	notifier      dispatcher.Notifier
	log           *logging.Logger
}

func NewConversationHandler(conversations *database.ConversationRepository, messages *database.MessageRepository, replier Replier, notifier dispatcher.Notifier, log *logging.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
		replier:       replier,
		notifier:      notifier,
		log:           log.Sub("api"),
	}
}

// GetConversations lists conversations, optionally filtered by status and
// assignment.
func (h *ConversationHandler) GetConversations(c *gin.Context) {
	f := database.ConversationFilter{
		WorkspaceID: c.Param("workspace"),
		Status:      models.ConversationStatus(c.Query("status")),
		Limit:       limitQuery(c, 100),
	}
	if raw := c.Query("assigned"); raw != "" {
		assigned, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "assigned must be true or false"})
			return
		}
		f.Assigned = &assigned
	}

	convs, err := h.conversations.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	c.JSON(http.StatusOK, convs)
}

func (h *ConversationHandler) GetConversation(c *gin.Context) {
	conv, err := h.conversations.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) GetMessages(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.conversations.Load(ctx, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	msgs, err := h.messages.ByConversation(ctx, c.Param("id"), limitQuery(c, 500))
	if err != nil {
		respondError(c, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

type AssignRequest struct {
	MemberID string `json:"member_id" binding:"required"`
}

// AssignConversation hands the conversation to a human agent and ends any
// chatbot session.
func (h *ConversationHandler) AssignConversation(c *gin.Context) {
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.update(c, func(conv *models.Conversation) {
		conv.Assigned = true
		conv.MemberID = req.MemberID
		conv.ClearSession()
	})
}

func (h *ConversationHandler) UnassignConversation(c *gin.Context) {
	h.update(c, func(conv *models.Conversation) {
		conv.Assigned = false
		conv.MemberID = ""
	})
}

func (h *ConversationHandler) CloseConversation(c *gin.Context) {
	h.update(c, func(conv *models.Conversation) {
		conv.Status = models.ConversationClosed
		conv.ClearSession()
	})
}

func (h *ConversationHandler) update(c *gin.Context, mutate func(*models.Conversation)) {
	conv, err := h.conversations.Update(c.Request.Context(), c.Param("id"), updateAttempts, func(conv *models.Conversation) error {
		mutate(conv)
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if h.notifier != nil {
		h.notifier.NotifyConversation(*conv)
	}
	c.JSON(http.StatusOK, conv)
}

type ReplyRequest struct {
	Text     string   `json:"text"`
	Link     string   `json:"link"`
	FileType string   `json:"file_type"`
	Options  []string `json:"options"`
}

// SendReply sends an agent message to the conversation's customer
func (h *ConversationHandler) SendReply(c *gin.Context) {
	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Text == "" && req.Link == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text or link is required"})
		return
	}

	out := models.Outbound{Text: req.Text, Link: req.Link, FileType: req.FileType, Options: req.Options}
	if _, err := h.replier.Reply(c.Request.Context(), c.Param("id"), out); err != nil {
		h.log.Error().Err(err).Str("conversation_id", c.Param("id")).Msg("Error sending agent reply")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Message sent"})
}
