package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/models"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/service"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/telemetry"
)

// TransactionHandler accepts POS transaction events over HTTP, the webhook
// alternative to the Kafka stream. Ingestion is idempotent on transaction ID.
type TransactionHandler struct {
	orchestrator *service.Orchestrator
}

func NewTransactionHandler(orchestrator *service.Orchestrator) *TransactionHandler {
	return &TransactionHandler{orchestrator: orchestrator}
}

func (h *TransactionHandler) IngestTransaction(c *gin.Context) {
	var ev models.TransactionEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if ev.TransactionID == "" || ev.BusinessID == "" || ev.OccurredAt.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transaction_id, business_id and occurred_at are required"})
		return
	}

	if err := h.orchestrator.IngestTransaction(c.Request.Context(), &ev); err != nil {
		telemetry.Logger.Error("Error ingesting transaction",
			zap.String("transaction_id", ev.TransactionID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to ingest transaction"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":         "accepted",
		"transaction_id": ev.TransactionID,
	})
}
