package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/interfaces"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/service"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/telemetry"
)

type SessionHandler struct {
	repo         interfaces.SessionRepository
	orchestrator *service.Orchestrator
}

func NewSessionHandler(repo interfaces.SessionRepository, orchestrator *service.Orchestrator) *SessionHandler {
	return &SessionHandler{
		repo:         repo,
		orchestrator: orchestrator,
	}
}

// CreateSession opens a session from a QR scan.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	s, err := h.orchestrator.CreateSession(c.Request.Context(), &req)
	if err != nil {
		telemetry.Logger.Error("Error creating session",
			zap.String("business_id", req.BusinessID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	c.JSON(http.StatusCreated, s)
}

// GetSession returns the full business-facing session record.
func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID := c.Param("id")

	s, err := h.repo.GetSession(c.Request.Context(), sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch session"})
		return
	}

	c.JSON(http.StatusOK, s)
}

// GetOutcome returns only the customer-visible result: reward granted, not
// eligible, try again, or pending. Error kinds stay internal.
func (h *SessionHandler) GetOutcome(c *gin.Context) {
	sessionID := c.Param("id")

	s, err := h.repo.GetSession(c.Request.Context(), sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch session"})
		return
	}

	resp := gin.H{"session_id": s.ID, "outcome": s.CustomerOutcome()}
	if s.Reward != nil && s.Reward.Amount > 0 {
		resp["reward_amount"] = s.Reward.Amount
	}
	c.JSON(http.StatusOK, resp)
}

// AbortSession cancels a non-terminal session.
func (h *SessionHandler) AbortSession(c *gin.Context) {
	sessionID := c.Param("id")

	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Reason == "" {
		body.Reason = "cancelled"
	}

	if err := h.orchestrator.Abort(c.Request.Context(), sessionID, body.Reason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to abort session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": "aborted"})
}
