package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/models"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/service"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/telemetry"
)

// RecordingHandler accepts the capture collaborator's lifecycle signals over
// HTTP, mirroring the NATS subjects.
type RecordingHandler struct {
	orchestrator *service.Orchestrator
}

func NewRecordingHandler(orchestrator *service.Orchestrator) *RecordingHandler {
	return &RecordingHandler{orchestrator: orchestrator}
}

func (h *RecordingHandler) StartRecording(c *gin.Context) {
	sessionID := c.Param("id")

	if err := h.orchestrator.StartRecording(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		telemetry.Logger.Error("Error starting recording",
			zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start recording"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": "recording"})
}

func (h *RecordingHandler) TranscriptReady(c *gin.Context) {
	sessionID := c.Param("id")

	var sig models.RecordingSignal
	if err := c.ShouldBindJSON(&sig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	sig.SessionID = sessionID

	if err := h.orchestrator.TranscriptReady(c.Request.Context(), &sig); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		telemetry.Logger.Error("Error handling transcript",
			zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process transcript"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": "accepted"})
}

// TransferResult is the payment rail's asynchronous callback.
func (h *RecordingHandler) TransferResult(c *gin.Context) {
	sessionID := c.Param("id")

	var body struct {
		Success bool   `json:"success"`
		Reason  string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.orchestrator.TransferResult(c.Request.Context(), sessionID, body.Success, body.Reason); err != nil {
		telemetry.Logger.Error("Error recording transfer result",
			zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record transfer result"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": "recorded"})
}
