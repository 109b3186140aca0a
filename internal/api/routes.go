package api

import "github.com/gin-gonic/gin"

type Handlers struct {
	Chatbots      *ChatbotHandler
	Settings      *SettingsHandler
	Conversations *ConversationHandler
	Automation    *AutomationHandler
}

// RegisterRoutes mounts the dashboard API on g.
func RegisterRoutes(g *gin.RouterGroup, h Handlers) {
	ws := g.Group("/workspaces/:workspace")
	{
		ws.GET("/chatbots", h.Chatbots.GetChatbots)
		ws.POST("/chatbots", h.Chatbots.CreateChatbot)
		ws.GET("/settings", h.Settings.GetSettings)
		ws.PUT("/settings", h.Settings.UpdateSettings)
		ws.GET("/conversations", h.Conversations.GetConversations)
		ws.GET("/automation/logs", h.Automation.GetLogs)
		ws.GET("/automation/analytics", h.Automation.GetAnalytics)
		ws.POST("/channels", h.Automation.RegisterChannel)
	}

	g.GET("/chatbots/:id", h.Chatbots.GetChatbot)
	g.PUT("/chatbots/:id", h.Chatbots.UpdateChatbot)
	g.DELETE("/chatbots/:id", h.Chatbots.DeleteChatbot)
	g.POST("/chatbots/:id/publish", h.Chatbots.PublishChatbot)
	g.POST("/chatbots/:id/unpublish", h.Chatbots.UnpublishChatbot)

	g.GET("/conversations/:id", h.Conversations.GetConversation)
	g.GET("/conversations/:id/messages", h.Conversations.GetMessages)
	g.POST("/conversations/:id/messages", h.Conversations.SendReply)
	g.POST("/conversations/:id/assign", h.Conversations.AssignConversation)
	g.POST("/conversations/:id/unassign", h.Conversations.UnassignConversation)
	g.POST("/conversations/:id/close", h.Conversations.CloseConversation)
}
