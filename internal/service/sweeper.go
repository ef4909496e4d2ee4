package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/models"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/telemetry"
)

// transferRetryAge is how long a committed reward may sit unconfirmed before
// the sweep re-emits its transfer instruction.
const transferRetryAge = 30 * time.Second

// processingRetryAge is how long a session may sit in processing before the
// sweep re-runs evaluation. Covers crashes between the transcript commit and
// the terminal commit, and transient dependency failures mid-evaluation.
const processingRetryAge = 30 * time.Second

// RunSweeper deterministically fails sessions whose wait exceeded its bound
// and re-emits unconfirmed transfers. Runs until the context is cancelled.
func (o *Orchestrator) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()

	telemetry.Logger.Info("Timeout sweeper started",
		zap.Duration("interval", o.cfg.SweepInterval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. Exported so tests and the recovery path can invoke it
// directly.
func (o *Orchestrator) Sweep(ctx context.Context) {
	now := o.now()

	o.sweepStatus(ctx, models.StatusQRScanned, now.Add(-o.cfg.MatchingWindow), models.ErrTransactionNotFound)
	o.sweepStatus(ctx, models.StatusTransactionVerified, now.Add(-o.cfg.RecordingGrace), models.ErrRecordingTimeout)
	o.sweepStatus(ctx, models.StatusRecording, now.Add(-(o.cfg.RecordingWindow+o.cfg.ProcessingGrace)), models.ErrRecordingTimeout)

	o.sweepStalledProcessing(ctx, now.Add(-processingRetryAge))
	o.sweepPendingTransfers(ctx, now.Add(-transferRetryAge))
}

func (o *Orchestrator) sweepStatus(ctx context.Context, status models.SessionStatus, cutoff time.Time, kind models.ErrorKind) {
	expired, err := o.repo.ListExpired(ctx, status, cutoff)
	if err != nil {
		telemetry.Logger.Error("Listing expired sessions failed",
			zap.String("status", string(status)), zap.Error(err))
		return
	}
	for _, s := range expired {
		o.failSession(ctx, s.ID, s.BusinessID, kind)
	}
}

// sweepStalledProcessing re-runs evaluation for sessions that entered
// processing but never reached a terminal state: a crash after the transcript
// committed, a lost lock, or a dependency outage mid-evaluation. Scoring and
// resolution are deterministic and the terminal commits are CAS guarded, so
// re-running cannot double-apply a reward.
func (o *Orchestrator) sweepStalledProcessing(ctx context.Context, cutoff time.Time) {
	stalled, err := o.repo.ListExpired(ctx, models.StatusProcessing, cutoff)
	if err != nil {
		telemetry.Logger.Error("Listing stalled processing sessions failed", zap.Error(err))
		return
	}
	for _, s := range stalled {
		telemetry.Logger.Info("Re-running evaluation for stalled session",
			zap.String("session_id", s.ID))
		if err := o.process(ctx, s.ID); err != nil {
			telemetry.Logger.Error("Stalled session evaluation retry failed",
				zap.String("session_id", s.ID), zap.Error(err))
		}
	}
}

// sweepPendingTransfers re-issues transfer instructions for completed
// sessions whose emission was never confirmed: crash recovery and transient
// sink outages both land here. The payment rail dedupes on session ID, so
// re-emission cannot double-pay.
func (o *Orchestrator) sweepPendingTransfers(ctx context.Context, cutoff time.Time) {
	pending, err := o.repo.ListPendingTransfers(ctx, cutoff)
	if err != nil {
		telemetry.Logger.Error("Listing pending transfers failed", zap.Error(err))
		return
	}
	for _, s := range pending {
		if s.Reward == nil || s.Reward.Amount <= 0 {
			o.repo.SetTransferEmitted(ctx, s.ID, true)
			continue
		}
		telemetry.Logger.Info("Re-emitting unconfirmed transfer",
			zap.String("session_id", s.ID))
		o.emitTransfer(ctx, &models.TransferInstruction{
			SessionID:    s.ID,
			BusinessID:   s.BusinessID,
			CustomerHash: s.DeviceHash,
			Amount:       s.Reward.Amount,
			PlatformFee:  s.Reward.PlatformFee,
		})
	}
}
