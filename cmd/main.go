package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/api"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/config"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/fraud"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/ratelimit"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/repository"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/reward"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/scoring"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/service"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/telemetry"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry("session-engine"); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Feedback Session Engine")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	repo := repository.NewSessionRepository(db)
	if err := repo.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})

	// Connect to NATS
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	// Kafka writers: session state changes and transfer instructions
	stateWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers),
		Topic:    "session.state.changed",
		Balancer: &kafka.LeastBytes{},
	}
	defer stateWriter.Close()

	transferWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers),
		Topic:    "reward.transfer.requested",
		Balancer: &kafka.LeastBytes{},
	}
	defer transferWriter.Close()

	// Quality evaluator: model-backed when a key is configured, lexical
	// otherwise. Both run behind the deterministic cache.
	var evaluator scoring.Evaluator = scoring.NewLexicalEvaluator()
	if cfg.OpenAIAPIKey != "" {
		evaluator = scoring.NewOpenAIEvaluator(cfg.OpenAIAPIKey, "")
	}
	scorer := scoring.NewScorer(scoring.NewCachedEvaluator(evaluator), scoring.Weights{
		Authenticity: cfg.WeightAuthenticity,
		Concreteness: cfg.WeightConcreteness,
		Depth:        cfg.WeightDepth,
	})

	assessor := fraud.NewAssessor(fraud.Config{
		HardCeiling:   cfg.LayerHardCeiling,
		LayerCeilings: cfg.LayerOverrides,
		RejectMean:    cfg.RejectThreshold,
		FlagMean:      cfg.FlagThreshold,
		Weights:       cfg.LayerWeights,
	})
	resolver := reward.NewResolver(cfg.PlatformFeePercent, cfg.MaxRewardPercent)
	limiter := ratelimit.NewLimiter(redisClient, cfg.MaxScansPerMinute, cfg.MaxCompletedPerHour)

	orchestrator := service.NewOrchestrator(
		cfg,
		repo,
		redisClient,
		limiter,
		scorer,
		assessor,
		resolver,
		service.NewNatsRiskSignalSource(nc, cfg.RiskSignalTimeout),
		service.NewKafkaTransferSink(transferWriter),
		stateWriter,
	)

	// Background workers
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go orchestrator.RunSweeper(sweepCtx)
	go orchestrator.ConsumeTransactionEvents(cfg.KafkaBrokers)

	if err := orchestrator.SubscribeRecordingSignals(nc); err != nil {
		telemetry.Logger.Fatal("Failed to subscribe to recording signals", zap.Error(err))
	}

	// Setup HTTP server
	r := api.NewRouter(repo, orchestrator)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		telemetry.Logger.Info("Session Engine starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
