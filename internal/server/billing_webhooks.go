package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kolohq/kolo/internal/billing/domain"
	"github.com/kolohq/kolo/internal/billing/webhook"
	"go.uber.org/zap"
)

// maxWebhookBody bounds how much of a delivery is read before signature
// verification.
const maxWebhookBody = 1 << 20

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/paystack", s.HandlePaystackWebhook)
}

// HandlePaystackWebhook acknowledges every authentic delivery with 200:
// the provider retries undelivered webhooks aggressively, so a failed
// handler answers 200 with the error in the body instead of a retryable
// status. Only a signature mismatch is rejected.
func (s *Server) HandlePaystackWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		s.log.Warn("failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}

	signature := c.GetHeader(webhook.SignatureHeader)
	if err := s.ingestor.IngestWebhook(c.Request.Context(), payload, signature); err != nil {
		if errors.Is(err, domain.ErrInvalidSignature) {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
