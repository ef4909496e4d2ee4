package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries all runtime configuration. Scoring weights, fraud thresholds
// and reward tier bounds are named here with their platform defaults; business
// policies may override tier bounds within the platform min/max.
type Config struct {
	DatabaseURL  string
	RedisURL     string
	KafkaBrokers string
	NatsURL      string
	Port         string

	// OpenAIAPIKey enables the model-backed quality evaluator. Empty means
	// the deterministic lexical evaluator runs alone.
	OpenAIAPIKey string

	// Pipeline windows.
	MatchingWindow     time.Duration // transaction must arrive within this after the scan
	RecordingGrace     time.Duration // time allowed between match and recording start
	RecordingWindow    time.Duration // maximum recording length
	ProcessingGrace    time.Duration // extra wait for transcript delivery after the window
	SweepInterval      time.Duration
	RiskSignalTimeout  time.Duration
	TransferMaxElapsed time.Duration // give up retrying the sink after this
	TransitionLockTTL  time.Duration

	// Quality composite weights; must sum to 1.
	WeightAuthenticity float64
	WeightConcreteness float64
	WeightDepth        float64

	// Fraud aggregation. LayerHardCeiling applies per layer unless overridden.
	LayerHardCeiling float64
	LayerOverrides   map[string]float64
	RejectThreshold  float64
	FlagThreshold    float64
	LayerWeights     [6]float64

	// Reward policy platform defaults and enforcement bounds.
	PlatformFeePercent float64
	MaxRewardPercent   float64

	// Rate policy, enforced at the session-creation boundary.
	MaxScansPerMinute   int
	MaxCompletedPerHour int
}

func Load() *Config {
	return &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     envOr("REDIS_URL", "localhost:6379"),
		KafkaBrokers: envOr("KAFKA_BROKERS", "localhost:9092"),
		NatsURL:      envOr("NATS_URL", "nats://localhost:4222"),
		Port:         envOr("PORT", "8084"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),

		MatchingWindow:     envDuration("MATCHING_WINDOW", 2*time.Minute),
		RecordingGrace:     envDuration("RECORDING_GRACE", 90*time.Second),
		RecordingWindow:    envDuration("RECORDING_WINDOW", 60*time.Second),
		ProcessingGrace:    envDuration("PROCESSING_GRACE", 30*time.Second),
		SweepInterval:      envDuration("SWEEP_INTERVAL", 5*time.Second),
		RiskSignalTimeout:  envDuration("RISK_SIGNAL_TIMEOUT", 5*time.Second),
		TransferMaxElapsed: envDuration("TRANSFER_MAX_ELAPSED", 10*time.Minute),
		TransitionLockTTL:  envDuration("TRANSITION_LOCK_TTL", 30*time.Second),

		WeightAuthenticity: envFloat("WEIGHT_AUTHENTICITY", 0.40),
		WeightConcreteness: envFloat("WEIGHT_CONCRETENESS", 0.30),
		WeightDepth:        envFloat("WEIGHT_DEPTH", 0.30),

		LayerHardCeiling: envFloat("FRAUD_LAYER_CEILING", 85),
		RejectThreshold:  envFloat("FRAUD_REJECT_THRESHOLD", 70),
		FlagThreshold:    envFloat("FRAUD_FLAG_THRESHOLD", 40),
		LayerWeights:     [6]float64{1, 1, 1, 1, 1, 1},

		PlatformFeePercent: envFloat("PLATFORM_FEE_PERCENT", 20),
		MaxRewardPercent:   envFloat("MAX_REWARD_PERCENT", 12),

		MaxScansPerMinute:   envInt("MAX_SCANS_PER_MINUTE", 5),
		MaxCompletedPerHour: envInt("MAX_COMPLETED_PER_HOUR", 15),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
