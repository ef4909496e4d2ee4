package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/handlers"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/interfaces"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/service"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/telemetry"
)

func NewRouter(repo interfaces.SessionRepository, orchestrator *service.Orchestrator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "session-engine"})
	})

	sessionHandler := handlers.NewSessionHandler(repo, orchestrator)
	transactionHandler := handlers.NewTransactionHandler(orchestrator)
	recordingHandler := handlers.NewRecordingHandler(orchestrator)

	// Session lifecycle
	r.POST("/sessions", sessionHandler.CreateSession)
	r.GET("/sessions/:id", sessionHandler.GetSession)
	r.GET("/sessions/:id/outcome", sessionHandler.GetOutcome)
	r.POST("/sessions/:id/abort", sessionHandler.AbortSession)

	// POS webhook ingestion
	r.POST("/transactions", transactionHandler.IngestTransaction)

	// Capture collaborator signals and payment rail callback
	r.POST("/sessions/:id/recording/start", recordingHandler.StartRecording)
	r.POST("/sessions/:id/transcript", recordingHandler.TranscriptReady)
	r.POST("/sessions/:id/transfer-result", recordingHandler.TransferResult)

	return r
}
