package interfaces

import (
	"context"
	"time"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/models"
)

// SessionRepository defines the contract for session and transaction-event
// persistence. Every state-changing method is a compare-and-swap on the
// session's current status and reports rows affected: 0 means the caller lost
// the race (or the trigger was a duplicate) and must treat the call as a no-op.
type SessionRepository interface {
	InsertSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)

	// AttachTransaction moves qr_scanned -> transaction_verified and records
	// the matched transaction in the same statement.
	AttachTransaction(ctx context.Context, sessionID string, ev *models.TransactionEvent, matchedAt time.Time) (int64, error)

	// StartRecording moves transaction_verified -> recording.
	StartRecording(ctx context.Context, sessionID string, at time.Time) (int64, error)

	// BeginProcessing moves recording -> processing and stores the transcript.
	// The timestamp feeds the stalled-processing sweep.
	BeginProcessing(ctx context.Context, sessionID string, sig *models.RecordingSignal, at time.Time) (int64, error)

	// CompleteWithReward moves processing -> completed and commits the
	// evaluation payload and reward in one atomic statement. Rows affected 1
	// is the exactly-once guard for transfer emission.
	CompleteWithReward(ctx context.Context, sessionID string, q *models.QualityScore, r *models.RiskAssessment, rw *models.RewardDecision, reviewRequired bool, completedAt time.Time) (int64, error)

	// MarkFraudFlagged moves processing -> fraud_flagged, keeping the
	// evaluation payload queryable for human review. No reward is stored.
	MarkFraudFlagged(ctx context.Context, sessionID string, q *models.QualityScore, r *models.RiskAssessment) (int64, error)

	// FailSession moves any non-terminal status -> failed with an error kind.
	FailSession(ctx context.Context, sessionID string, kind models.ErrorKind) (int64, error)

	// ListExpired returns sessions still in the given status whose relevant
	// lifecycle timestamp is older than the cutoff, for the timeout sweep.
	ListExpired(ctx context.Context, status models.SessionStatus, cutoff time.Time) ([]models.Session, error)

	// InsertEvent ingests a transaction event; idempotent on transaction ID.
	// Returns false when the event was already known.
	InsertEvent(ctx context.Context, ev *models.TransactionEvent) (bool, error)

	// ConsumeEvent claims an event for a session; rows affected 0 means the
	// event was already consumed by another session.
	ConsumeEvent(ctx context.Context, transactionID, sessionID string) (int64, error)

	// ReleaseEvent undoes a consumption when the session side of the match
	// lost its race (e.g. the session timed out mid-match).
	ReleaseEvent(ctx context.Context, transactionID, sessionID string) (int64, error)

	// UnconsumedEvents returns a business's not-yet-matched events with
	// occurred-at inside [from, to].
	UnconsumedEvents(ctx context.Context, businessID string, from, to time.Time) ([]models.TransactionEvent, error)

	// PendingSessions returns a business's sessions still in qr_scanned.
	PendingSessions(ctx context.Context, businessID string) ([]models.Session, error)

	// SetTransferEmitted flips the transfer bookkeeping bit on a completed
	// session. Completed sessions with the bit clear are re-emitted by the
	// recovery sweep; the payment rail dedupes on session ID.
	SetTransferEmitted(ctx context.Context, sessionID string, emitted bool) error

	// ListPendingTransfers returns completed sessions whose transfer has not
	// been confirmed as emitted and that completed before the cutoff.
	ListPendingTransfers(ctx context.Context, cutoff time.Time) ([]models.Session, error)

	GetBusinessPolicy(ctx context.Context, businessID string) (*models.BusinessPolicy, error)
	GetBusinessContext(ctx context.Context, businessID string) (*models.BusinessContext, error)

	AppendAudit(ctx context.Context, e *models.AuditEntry) error
}
