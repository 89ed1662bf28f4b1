package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/chat"
)

// genericError is what end users see for any failure they cannot act on.
const genericError = "Estamos enfrentando um problema técnico. Tente novamente ou entre em contato com o suporte."

// writeError maps err onto a status code and body. Details of unexpected
// failures are logged, never returned.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		validation  *assistant.ValidationError
		rateLimited *chat.RateLimitedError
		pending     *chat.RunPendingError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
	case errors.Is(err, assistant.ErrConfigurationMissing):
		s.logger.Error("configuration missing", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case errors.As(err, &rateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":        "too many requests",
			"retryAfterMs": rateLimited.RetryAfter.Milliseconds(),
		})
	case errors.As(err, &pending):
		c.JSON(http.StatusConflict, gin.H{"error": pending.Error(), "status": pending.Status})
	case errors.Is(err, assistant.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		s.logger.Error("request failed", "path", c.FullPath(), "request_id", c.GetString("request_id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericError})
	}
}
