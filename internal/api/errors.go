package api

import (
	"errors"
	"net/http"
	"strconv"

	"whatsapp-automation/internal/automation"
	"whatsapp-automation/internal/database"
	"whatsapp-automation/pkg/botgraph"

	"github.com/gin-gonic/gin"
)

// respondError maps store and validation errors to HTTP status codes.
func respondError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, database.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, database.ErrDefaultChatbotExists),
		errors.Is(err, database.ErrTriggerExists),
		errors.Is(err, database.ErrVersionConflict):
		code = http.StatusConflict
	case errors.Is(err, botgraph.ErrInvalidGraph),
		errors.Is(err, automation.ErrInvalidSettings):
		code = http.StatusBadRequest
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func limitQuery(c *gin.Context, fallback int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(fallback)))
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
