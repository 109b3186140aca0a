package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	VerifyToken   string
	WhatsAppToken string
	PhoneNumberID string
	GraphAPIURL   string

	// Database
	DBDriver   string // sqlite or postgres
	DBPath     string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	DefaultWorkspaceID string
	DefaultTimeZone    string

	// AI replies for responseType "ai" rules
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	LogLevel string

	ChatbotMaxSteps        int
	ChatbotResponseTimeout time.Duration
	DispatchMaxRetries     int
	SendMaxAttempts        int
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port:                   getEnv("PORT", "8080"),
		VerifyToken:            getEnv("VERIFY_TOKEN", ""),
		WhatsAppToken:          getEnv("WHATSAPP_TOKEN", ""),
		PhoneNumberID:          getEnv("PHONE_NUMBER_ID", ""),
		GraphAPIURL:            getEnv("GRAPH_API_URL", "https://graph.facebook.com/v19.0"),
		DBDriver:               getEnv("DB_DRIVER", "sqlite"),
		DBPath:                 getEnv("DB_PATH", "./whatsapp.db"),
		DBHost:                 getEnv("DB_HOST", "localhost"),
		DBUser:                 getEnv("DB_USER", "postgres"),
		DBPassword:             getEnv("DB_PASSWORD", ""),
		DBName:                 getEnv("DB_NAME", "whatsapp"),
		DBPort:                 getEnv("DB_PORT", "5432"),
		DBSSLMode:              getEnv("DB_SSLMODE", "disable"),
		DefaultWorkspaceID:     getEnv("DEFAULT_WORKSPACE_ID", "default"),
		DefaultTimeZone:        getEnv("DEFAULT_TIMEZONE", "UTC"),
		OpenAIAPIKey:           getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:          getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:            getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		ChatbotMaxSteps:        getEnvInt("CHATBOT_MAX_STEPS", 25),
		ChatbotResponseTimeout: getEnvDuration("CHATBOT_RESPONSE_TIMEOUT", 24*time.Hour),
		DispatchMaxRetries:     getEnvInt("DISPATCH_MAX_RETRIES", 5),
		SendMaxAttempts:        getEnvInt("SEND_MAX_ATTEMPTS", 3),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %d", key, value, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %s", key, value, fallback)
		return fallback
	}
	return d
}
