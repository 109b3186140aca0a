package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-automation/internal/ai"
	"whatsapp-automation/internal/api"
	"whatsapp-automation/internal/automation"
	"whatsapp-automation/internal/chatbot"
	"whatsapp-automation/internal/config"
	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/dispatcher"
	"whatsapp-automation/internal/logging"
	"whatsapp-automation/internal/webhook"
	"whatsapp-automation/internal/whatsapp"
	"whatsapp-automation/internal/ws"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.LoadConfig()
	log := logging.New(nil, cfg.LogLevel)

	db, err := database.Open(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}

	conversations := database.NewConversationRepository(db)
	messages := database.NewMessageRepository(db)
	bots := database.NewChatbotRepository(db)
	settings := database.NewSettingsRepository(db)
	automationLogs := database.NewAutomationLogRepository(db)
	channels := database.NewChannelRepository(db)

	zone, err := time.LoadLocation(cfg.DefaultTimeZone)
	if err != nil {
		log.Warn().Err(err).Str("time_zone", cfg.DefaultTimeZone).Msg("Unknown default time zone, using UTC")
		zone = time.UTC
	}

	// AI rules fall back to their prompt text without a key
	var generator automation.Generator
	if cfg.OpenAIAPIKey != "" {
		generator = ai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	} else {
		log.Info().Msg("OPENAI_API_KEY not set, AI rules reply with their prompt")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	whatsappClient := whatsapp.NewClient(cfg, log)
	chatbotEngine := chatbot.NewEngine(bots, log,
		chatbot.WithMaxSteps(cfg.ChatbotMaxSteps),
		chatbot.WithResponseTimeout(cfg.ChatbotResponseTimeout),
	)
	automationEngine := automation.NewEngine(generator, automationLogs, log, automation.WithDefaultZone(zone))

	d := dispatcher.New(dispatcher.Deps{
		Conversations: conversations,
		Messages:      messages,
		Settings:      settings,
		Chatbot:       chatbotEngine,
		Rules:         automationEngine,
		Transport:     whatsappClient,
		Notifier:      hub,
		MaxRetries:    cfg.DispatchMaxRetries,
	}, log)
	webhookHandler := webhook.NewHandler(cfg, d, messages, channels, log)

	if cfg.LogLevel != "debug" && cfg.LogLevel != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Webhook Routes
	r.GET("/webhook", webhookHandler.VerifyWebhook)
	r.POST("/webhook", webhookHandler.HandleMessage)

	// Dashboard live updates
	r.GET("/ws", func(c *gin.Context) {
		hub.ServeWs(c.Writer, c.Request)
	})

	// Dashboard API Routes
	api.RegisterRoutes(r.Group("/api"), api.Handlers{
		Chatbots:      api.NewChatbotHandler(bots, log),
		Settings:      api.NewSettingsHandler(settings),
		Conversations: api.NewConversationHandler(conversations, messages, d, hub, log),
		Automation:    api.NewAutomationHandler(automationLogs, channels),
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to run server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down server")
	}
	webhookHandler.Wait()
}
