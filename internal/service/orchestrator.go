package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/config"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/fraud"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/interfaces"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/matching"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/models"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/reward"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/scoring"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/telemetry"
)

// Orchestrator owns all session transition logic. For a single session ID
// transitions are strictly serialized: a Redis lock keeps concurrent pipeline
// instances apart and the repository's compare-and-swap contract is the
// correctness guarantee underneath it. Duplicate triggers lose the CAS and
// no-op.
type Orchestrator struct {
	cfg         *config.Config
	repo        interfaces.SessionRepository
	redisClient *redis.Client
	limiter     interfaces.RatePolicy
	scorer      *scoring.Scorer
	assessor    *fraud.Assessor
	resolver    *reward.Resolver
	signals     interfaces.RiskSignalSource
	sink        interfaces.TransferSink
	kafkaWriter *kafka.Writer

	now func() time.Time
}

func NewOrchestrator(
	cfg *config.Config,
	repo interfaces.SessionRepository,
	redisClient *redis.Client,
	limiter interfaces.RatePolicy,
	scorer *scoring.Scorer,
	assessor *fraud.Assessor,
	resolver *reward.Resolver,
	signals interfaces.RiskSignalSource,
	sink interfaces.TransferSink,
	kafkaWriter *kafka.Writer,
) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		repo:        repo,
		redisClient: redisClient,
		limiter:     limiter,
		scorer:      scorer,
		assessor:    assessor,
		resolver:    resolver,
		signals:     signals,
		sink:        sink,
		kafkaWriter: kafkaWriter,
		now:         time.Now,
	}
}

// CreateSessionRequest is the QR-scan input.
type CreateSessionRequest struct {
	BusinessID string   `json:"business_id" binding:"required"`
	LocationID *string  `json:"location_id,omitempty"`
	DeviceHash string   `json:"device_hash" binding:"required"`
	AmountHint *float64 `json:"amount_hint,omitempty"`
}

// CreateSession opens a session from a QR scan. Rate-policy violations
// short-circuit straight to failed before any further work. A transaction
// that was ingested before the scan committed is matched immediately.
func (o *Orchestrator) CreateSession(ctx context.Context, req *CreateSessionRequest) (*models.Session, error) {
	s := &models.Session{
		ID:          uuid.NewString(),
		BusinessID:  req.BusinessID,
		LocationID:  req.LocationID,
		DeviceHash:  req.DeviceHash,
		AmountHint:  req.AmountHint,
		Status:      models.StatusQRScanned,
		QRScannedAt: o.now(),
	}
	if err := o.repo.InsertSession(ctx, s); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	telemetry.SessionsCreated.Inc()
	o.audit(ctx, s.ID, "session_created", "")

	locationID := ""
	if req.LocationID != nil {
		locationID = *req.LocationID
	}
	if o.limiter != nil {
		allowed, err := o.limiter.AllowScan(ctx, req.DeviceHash, locationID)
		if err != nil {
			telemetry.Logger.Error("Scan rate check failed", zap.String("session_id", s.ID), zap.Error(err))
		} else if !allowed {
			o.failSession(ctx, s.ID, s.BusinessID, models.ErrRateLimited)
			return o.repo.GetSession(ctx, s.ID)
		}
	}

	// The POS webhook may beat the scan record; sweep already-ingested
	// events for an immediate match.
	events, err := o.repo.UnconsumedEvents(ctx, s.BusinessID, s.QRScannedAt, s.QRScannedAt.Add(o.cfg.MatchingWindow))
	if err != nil {
		telemetry.Logger.Error("Listing unconsumed events failed", zap.String("session_id", s.ID), zap.Error(err))
		return s, nil
	}
	if ev := matching.SelectCandidate(s, events, o.cfg.MatchingWindow); ev != nil {
		o.attachEvent(ctx, s, ev)
	}
	return o.repo.GetSession(ctx, s.ID)
}

// IngestTransaction records a POS transaction event, idempotent on
// transaction ID, and tries to match it to a pending session.
func (o *Orchestrator) IngestTransaction(ctx context.Context, ev *models.TransactionEvent) error {
	if ev.TransactionID == "" || ev.BusinessID == "" {
		return fmt.Errorf("transaction event missing identity fields")
	}

	inserted, err := o.repo.InsertEvent(ctx, ev)
	if err != nil {
		return fmt.Errorf("ingest transaction %s: %w", ev.TransactionID, err)
	}
	if !inserted {
		telemetry.Logger.Info("Duplicate transaction event ignored",
			zap.String("transaction_id", ev.TransactionID),
			zap.String("business_id", ev.BusinessID),
		)
		return nil
	}

	pending, err := o.repo.PendingSessions(ctx, ev.BusinessID)
	if err != nil {
		return fmt.Errorf("list pending sessions: %w", err)
	}
	target := matching.SelectSession(ev, pending, o.cfg.MatchingWindow)
	if target == nil {
		telemetry.Logger.Info("Transaction event has no pending session",
			zap.String("transaction_id", ev.TransactionID),
			zap.String("business_id", ev.BusinessID),
		)
		return nil
	}
	o.attachEvent(ctx, target, ev)
	return nil
}

// attachEvent consumes the event and moves the session to
// transaction_verified. A Redis lock reduces CAS contention between pipeline
// instances matching the same business, but it is best-effort only: the
// event-side and session-side CAS updates are the correctness guarantee, so
// a busy or unreachable lock never drops a valid match.
func (o *Orchestrator) attachEvent(ctx context.Context, s *models.Session, ev *models.TransactionEvent) bool {
	if o.redisClient != nil {
		lockKey := fmt.Sprintf("match_lock:%s", s.BusinessID)
		locked, err := o.redisClient.SetNX(ctx, lockKey, "1", o.cfg.TransitionLockTTL).Result()
		if err != nil {
			telemetry.Logger.Warn("Match lock unavailable, relying on CAS alone",
				zap.String("business_id", s.BusinessID), zap.Error(err))
		} else if locked {
			defer o.redisClient.Del(ctx, lockKey)
		}
	}

	rows, err := o.repo.ConsumeEvent(ctx, ev.TransactionID, s.ID)
	if err != nil {
		telemetry.Logger.Error("Consuming transaction event failed",
			zap.String("transaction_id", ev.TransactionID), zap.Error(err))
		return false
	}
	if rows == 0 {
		telemetry.Logger.Info("Transaction event already consumed, discarding",
			zap.String("transaction_id", ev.TransactionID),
			zap.String("session_id", s.ID),
		)
		return false
	}

	rows, err = o.repo.AttachTransaction(ctx, s.ID, ev, o.now())
	if err != nil {
		telemetry.Logger.Error("Attaching transaction failed",
			zap.String("session_id", s.ID), zap.Error(err))
		o.repo.ReleaseEvent(ctx, ev.TransactionID, s.ID)
		return false
	}
	if rows == 0 {
		// Session left qr_scanned concurrently (timeout or cancel); free
		// the event for another session.
		o.repo.ReleaseEvent(ctx, ev.TransactionID, s.ID)
		telemetry.DuplicateTriggers.Inc()
		return false
	}

	telemetry.TransactionsMatched.Inc()
	o.audit(ctx, s.ID, "transaction_matched", "")
	o.publishStateChange(ctx, s.ID, s.BusinessID, models.StatusQRScanned, models.StatusTransactionVerified, "")
	return true
}

// StartRecording handles the external voice-capture start signal.
func (o *Orchestrator) StartRecording(ctx context.Context, sessionID string) error {
	rows, err := o.repo.StartRecording(ctx, sessionID, o.now())
	if err != nil {
		return fmt.Errorf("start recording for %s: %w", sessionID, err)
	}
	if rows == 0 {
		return o.noteDuplicate(ctx, sessionID, "recording start")
	}

	s, err := o.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	o.audit(ctx, sessionID, "recording_started", "")
	o.publishStateChange(ctx, sessionID, s.BusinessID, models.StatusTransactionVerified, models.StatusRecording, "")
	return nil
}

// TranscriptReady moves the session into processing and runs evaluation.
// Duplicate deliveries lose the CAS and no-op.
func (o *Orchestrator) TranscriptReady(ctx context.Context, sig *models.RecordingSignal) error {
	if strings.TrimSpace(sig.Transcript) == "" {
		s, err := o.repo.GetSession(ctx, sig.SessionID)
		if err != nil {
			return err
		}
		o.failSession(ctx, sig.SessionID, s.BusinessID, models.ErrTranscriptionFailed)
		return nil
	}

	rows, err := o.repo.BeginProcessing(ctx, sig.SessionID, sig, o.now())
	if err != nil {
		return fmt.Errorf("begin processing for %s: %w", sig.SessionID, err)
	}
	if rows == 0 {
		return o.noteDuplicate(ctx, sig.SessionID, "transcript delivery")
	}

	s, err := o.repo.GetSession(ctx, sig.SessionID)
	if err != nil {
		return err
	}
	o.audit(ctx, sig.SessionID, "transcript_received", "")
	o.publishStateChange(ctx, sig.SessionID, s.BusinessID, models.StatusRecording, models.StatusProcessing, "")

	return o.process(ctx, sig.SessionID)
}

// process runs scoring, fraud assessment and reward resolution, then commits.
// Deterministic for a given transcript and signal snapshot, so a crash-retry
// recomputes the identical reward and the CAS commit still applies it once.
// Any early return before the commit leaves the session in processing; the
// stalled-processing sweep re-invokes it until a terminal CAS lands.
func (o *Orchestrator) process(ctx context.Context, sessionID string) error {
	if o.redisClient != nil {
		lockKey := fmt.Sprintf("session_lock:%s", sessionID)
		locked, err := o.redisClient.SetNX(ctx, lockKey, "1", o.cfg.TransitionLockTTL).Result()
		if err != nil {
			// Lock unreachable: proceed, the terminal CAS stays exactly-once.
			telemetry.Logger.Warn("Session lock unavailable, relying on CAS alone",
				zap.String("session_id", sessionID), zap.Error(err))
		} else if !locked {
			// Another instance is evaluating; if it dies the sweep retries.
			return nil
		} else {
			defer o.redisClient.Del(ctx, lockKey)
		}
	}

	s, err := o.repo.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if s.Status != models.StatusProcessing {
		telemetry.DuplicateTriggers.Inc()
		return nil
	}
	if s.TransactionAmount == nil || s.TransactionID == nil {
		o.failSession(ctx, sessionID, s.BusinessID, models.ErrInvariantViolation)
		return nil
	}

	if o.limiter != nil {
		allowed, err := o.limiter.AllowCompletion(ctx, s.DeviceHash)
		if err != nil {
			telemetry.Logger.Error("Completion rate check failed", zap.String("session_id", sessionID), zap.Error(err))
		} else if !allowed {
			o.failSession(ctx, sessionID, s.BusinessID, models.ErrRateLimited)
			return nil
		}
	}

	bc, err := o.repo.GetBusinessContext(ctx, s.BusinessID)
	if err != nil {
		return fmt.Errorf("load business context: %w", err)
	}
	quality, err := o.scorer.Score(ctx, s.Transcript, s.TranscriptLanguage, bc)
	if err != nil {
		telemetry.Logger.Error("Quality scoring failed", zap.String("session_id", sessionID), zap.Error(err))
		o.failSession(ctx, sessionID, s.BusinessID, models.ErrTranscriptionFailed)
		return nil
	}

	assessment := o.assessor.Assess(o.collectSignals(ctx, s))

	if assessment.Verdict == models.VerdictReject {
		rows, err := o.repo.MarkFraudFlagged(ctx, sessionID, quality, assessment)
		if err != nil {
			return fmt.Errorf("flag session %s: %w", sessionID, err)
		}
		if rows == 0 {
			return o.noteDuplicate(ctx, sessionID, "fraud flag")
		}
		o.audit(ctx, sessionID, "fraud_rejected", string(models.ErrFraudRejected))
		o.publishStateChange(ctx, sessionID, s.BusinessID, models.StatusProcessing, models.StatusFraudFlagged, string(models.ErrFraudRejected))
		telemetry.SessionsByOutcome.WithLabelValues(string(models.StatusFraudFlagged)).Inc()
		telemetry.Logger.Warn("Session fraud flagged",
			zap.String("session_id", sessionID),
			zap.Float64("weighted_mean", assessment.WeightedMean),
			zap.String("triggered_layer", assessment.TriggeredLayer),
		)
		return nil
	}

	policy, err := o.repo.GetBusinessPolicy(ctx, s.BusinessID)
	if err != nil {
		return fmt.Errorf("load business policy: %w", err)
	}
	decision := o.resolver.Resolve(quality.Total, assessment.Verdict, *s.TransactionAmount, policy)

	reviewRequired := assessment.Verdict == models.VerdictFlag
	rows, err := o.repo.CompleteWithReward(ctx, sessionID, quality, assessment, decision, reviewRequired, o.now())
	if err != nil {
		return fmt.Errorf("complete session %s: %w", sessionID, err)
	}
	if rows == 0 {
		return o.noteDuplicate(ctx, sessionID, "completion")
	}

	if o.limiter != nil {
		if err := o.limiter.CountCompletion(ctx, s.DeviceHash); err != nil {
			telemetry.Logger.Error("Completion rate count failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	o.audit(ctx, sessionID, "completed", "")
	o.publishStateChange(ctx, sessionID, s.BusinessID, models.StatusProcessing, models.StatusCompleted, "")
	telemetry.SessionsByOutcome.WithLabelValues(string(models.StatusCompleted)).Inc()
	telemetry.Logger.Info("Session completed",
		zap.String("session_id", sessionID),
		zap.Float64("quality_total", quality.Total),
		zap.String("tier", string(decision.Tier)),
		zap.Float64("reward_amount", decision.Amount),
		zap.Bool("review_required", reviewRequired),
	)

	if decision.Amount > 0 {
		o.emitTransfer(ctx, &models.TransferInstruction{
			SessionID:    sessionID,
			BusinessID:   s.BusinessID,
			CustomerHash: s.DeviceHash,
			Amount:       decision.Amount,
			PlatformFee:  decision.PlatformFee,
		})
	} else {
		// Nothing to pay out; close the transfer bookkeeping.
		o.repo.SetTransferEmitted(ctx, sessionID, true)
	}
	return nil
}

// collectSignals fetches the externally gathered risk-layer inputs. When the
// collaborator is unreachable the session is not failed: mid-range signals
// push the weighted mean into the flag band, so it completes under review.
func (o *Orchestrator) collectSignals(ctx context.Context, s *models.Session) *models.RiskSignals {
	if o.signals == nil {
		return &models.RiskSignals{}
	}
	sigCtx, cancel := context.WithTimeout(ctx, o.cfg.RiskSignalTimeout)
	defer cancel()
	signals, err := o.signals.Collect(sigCtx, s)
	if err != nil {
		telemetry.Logger.Warn("Risk signal collection failed, using conservative defaults",
			zap.String("session_id", s.ID), zap.Error(err))
		o.audit(ctx, s.ID, "risk_signals_unavailable", "")
		return &models.RiskSignals{
			VoiceAuthenticity:  50,
			DeviceFingerprint:  50,
			GeographicPattern:  50,
			ContentDuplication: 50,
			TemporalPattern:    50,
			ContextAlignment:   50,
		}
	}
	return signals
}

// emitTransfer hands the instruction to the payment sink with a short
// exponential backoff. If the sink stays down the session keeps its
// committed status; the sweep re-emits it later, deduped by session ID.
func (o *Orchestrator) emitTransfer(ctx context.Context, ins *models.TransferInstruction) {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	err := backoff.Retry(func() error {
		return o.sink.Transfer(ctx, ins)
	}, policy)
	if err != nil {
		telemetry.Logger.Error("Transfer sink unavailable, will retry via sweep",
			zap.String("session_id", ins.SessionID), zap.Error(err))
		o.audit(ctx, ins.SessionID, "transfer_deferred", string(models.ErrSinkUnavailable))
		return
	}
	o.repo.SetTransferEmitted(ctx, ins.SessionID, true)
	telemetry.TransfersEmitted.Inc()
	o.audit(ctx, ins.SessionID, "transfer_emitted", "")
}

// Abort handles the capture collaborator's abort signal and external
// cancellation. Reason "cancelled" marks customer abandonment.
func (o *Orchestrator) Abort(ctx context.Context, sessionID, reason string) error {
	s, err := o.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	kind := models.ErrTranscriptionFailed
	if reason == "cancelled" {
		kind = models.ErrCancelled
	}
	o.failSession(ctx, sessionID, s.BusinessID, kind)
	return nil
}

// TransferResult is the payment rail's asynchronous report. A transient
// failure clears the emitted bit so the sweep re-issues the instruction;
// session status never regresses.
func (o *Orchestrator) TransferResult(ctx context.Context, sessionID string, success bool, reason string) error {
	if success {
		o.audit(ctx, sessionID, "transfer_confirmed", "")
		return o.repo.SetTransferEmitted(ctx, sessionID, true)
	}
	telemetry.Logger.Warn("Transfer failed at rail, scheduling re-emit",
		zap.String("session_id", sessionID), zap.String("reason", reason))
	o.audit(ctx, sessionID, "transfer_failed", string(models.ErrSinkUnavailable))
	return o.repo.SetTransferEmitted(ctx, sessionID, false)
}

func (o *Orchestrator) failSession(ctx context.Context, sessionID, businessID string, kind models.ErrorKind) {
	rows, err := o.repo.FailSession(ctx, sessionID, kind)
	if err != nil {
		telemetry.Logger.Error("Failing session errored",
			zap.String("session_id", sessionID), zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	if rows == 0 {
		telemetry.DuplicateTriggers.Inc()
		return
	}
	o.audit(ctx, sessionID, "failed", string(kind))
	o.publishStateChange(ctx, sessionID, businessID, "", models.StatusFailed, string(kind))
	telemetry.SessionsByOutcome.WithLabelValues(string(models.StatusFailed)).Inc()
	telemetry.Logger.Info("Session failed",
		zap.String("session_id", sessionID),
		zap.String("kind", string(kind)),
	)
}

// noteDuplicate records a trigger that arrived after its transition had
// already committed. Unknown sessions still surface as errors.
func (o *Orchestrator) noteDuplicate(ctx context.Context, sessionID, trigger string) error {
	if _, err := o.repo.GetSession(ctx, sessionID); err != nil {
		return fmt.Errorf("session %s: %w", sessionID, err)
	}
	telemetry.DuplicateTriggers.Inc()
	telemetry.Logger.Info("Duplicate trigger ignored",
		zap.String("session_id", sessionID),
		zap.String("trigger", trigger),
	)
	return nil
}

func (o *Orchestrator) audit(ctx context.Context, sessionID, event, errorKind string) {
	err := o.repo.AppendAudit(ctx, &models.AuditEntry{
		SessionID: sessionID,
		Event:     event,
		ErrorKind: errorKind,
		At:        o.now(),
	})
	if err != nil {
		telemetry.Logger.Error("Audit append failed",
			zap.String("session_id", sessionID), zap.String("event", event), zap.Error(err))
	}
}

func (o *Orchestrator) publishStateChange(ctx context.Context, sessionID, businessID string, from, to models.SessionStatus, errorKind string) {
	if o.kafkaWriter == nil {
		return
	}
	event := models.StateChangedEvent{
		SessionID:      sessionID,
		BusinessID:     businessID,
		Status:         to,
		PreviousStatus: from,
		ErrorKind:      errorKind,
		Timestamp:      o.now(),
	}
	eventJSON, _ := json.Marshal(event)

	if err := o.kafkaWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(sessionID),
		Value: eventJSON,
	}); err != nil {
		telemetry.Logger.Error("Publishing state change failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

// ConsumeTransactionEvents reads the POS event stream from Kafka. Events are
// keyed by business ID, so per-business ordering holds within a partition.
func (o *Orchestrator) ConsumeTransactionEvents(kafkaBrokers string) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{kafkaBrokers},
		Topic:    "pos.transaction.recorded",
		GroupID:  "session-engine",
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	ctx := context.Background()

	telemetry.Logger.Info("Started consuming pos.transaction.recorded events")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			telemetry.Logger.Error("Error reading message from Kafka", zap.Error(err))
			continue
		}

		var event models.TransactionEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			telemetry.Logger.Error("Error unmarshaling transaction event", zap.Error(err))
			continue
		}

		if err := o.IngestTransaction(ctx, &event); err != nil {
			telemetry.Logger.Error("Error ingesting transaction event",
				zap.String("transaction_id", event.TransactionID),
				zap.Error(err),
			)
		}
	}
}
