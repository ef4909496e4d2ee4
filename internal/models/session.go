package models

import "time"

type SessionStatus string

const (
	StatusQRScanned           SessionStatus = "qr_scanned"
	StatusTransactionVerified SessionStatus = "transaction_verified"
	StatusRecording           SessionStatus = "recording"
	StatusProcessing          SessionStatus = "processing"
	StatusCompleted           SessionStatus = "completed"
	StatusFailed              SessionStatus = "failed"
	StatusFraudFlagged        SessionStatus = "fraud_flagged"
)

// Terminal reports whether a session in this status can transition further.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusFraudFlagged
}

// nextStatus holds the forward edges of the transition graph. Side exits to
// failed (any non-terminal state) and fraud_flagged (processing only) are
// handled separately in CanTransition.
var nextStatus = map[SessionStatus]SessionStatus{
	StatusQRScanned:           StatusTransactionVerified,
	StatusTransactionVerified: StatusRecording,
	StatusRecording:           StatusProcessing,
	StatusProcessing:          StatusCompleted,
}

// CanTransition reports whether moving from one status to another follows the
// transition graph. It never allows skipping a state or leaving a terminal one.
func CanTransition(from, to SessionStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	if to == StatusFraudFlagged {
		return from == StatusProcessing
	}
	return nextStatus[from] == to
}

// ErrorKind codes populate Session.ErrorMessage on failure states and are the
// business-facing failure signal. Customers only ever see the coarse outcome.
type ErrorKind string

const (
	ErrTransactionNotFound ErrorKind = "transaction_not_found"
	ErrRecordingTimeout    ErrorKind = "recording_timeout"
	ErrTranscriptionFailed ErrorKind = "transcription_failed"
	ErrRateLimited         ErrorKind = "rate_limited"
	ErrFraudRejected       ErrorKind = "fraud_rejected"
	ErrSinkUnavailable     ErrorKind = "sink_unavailable"
	ErrInvariantViolation  ErrorKind = "invariant_violation"
	ErrCancelled           ErrorKind = "cancelled"
)

// Session is one customer's end-to-end feedback attempt, from QR scan to
// terminal outcome. Components receive and return value snapshots of it; the
// repository is the only owner of the persisted record.
type Session struct {
	ID         string  `json:"id"`
	BusinessID string  `json:"business_id"`
	LocationID *string `json:"location_id,omitempty"`

	// DeviceHash is a one-way device/customer hash. No raw PII is stored.
	DeviceHash string `json:"device_hash"`

	// AmountHint is the purchase amount the customer typed in at scan time,
	// used only to disambiguate between candidate transactions.
	AmountHint *float64 `json:"amount_hint,omitempty"`

	Status       SessionStatus `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`

	QRScannedAt          time.Time  `json:"qr_scanned_at"`
	TransactionMatchedAt *time.Time `json:"transaction_matched_at,omitempty"`
	RecordingStartedAt   *time.Time `json:"recording_started_at,omitempty"`
	ProcessingStartedAt  *time.Time `json:"processing_started_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`

	TransactionID     *string  `json:"transaction_id,omitempty"`
	TransactionAmount *float64 `json:"transaction_amount,omitempty"`
	TransactionItems  []string `json:"transaction_items,omitempty"`

	Transcript           string  `json:"transcript,omitempty"`
	TranscriptLanguage   string  `json:"transcript_language,omitempty"`
	TranscriptConfidence float64 `json:"transcript_confidence,omitempty"`
	AudioDurationSeconds float64 `json:"audio_duration_seconds,omitempty"`

	Quality *QualityScore   `json:"quality,omitempty"`
	Risk    *RiskAssessment `json:"risk,omitempty"`
	Reward  *RewardDecision `json:"reward,omitempty"`

	// ReviewRequired marks sessions whose fraud verdict was "flag": they
	// complete normally but are queued for human review downstream.
	ReviewRequired bool `json:"review_required"`

	// TransferEmitted records that the transfer instruction reached the
	// payment sink. Completed sessions with this clear are picked up by the
	// recovery sweep.
	TransferEmitted bool `json:"transfer_emitted"`
}

// Outcome is the customer-visible result of a session. The detailed error
// kind never leaves the business-facing API.
type Outcome string

const (
	OutcomeRewardGranted Outcome = "reward_granted"
	OutcomeNotEligible   Outcome = "not_eligible"
	OutcomeTryAgain      Outcome = "try_again"
	OutcomePending       Outcome = "pending"
)

// CustomerOutcome maps a session to what the customer-facing flow may show.
func (s *Session) CustomerOutcome() Outcome {
	switch s.Status {
	case StatusCompleted:
		if s.Reward != nil && s.Reward.Amount > 0 {
			return OutcomeRewardGranted
		}
		return OutcomeNotEligible
	case StatusFraudFlagged:
		return OutcomeNotEligible
	case StatusFailed:
		if s.ErrorMessage == string(ErrFraudRejected) || s.ErrorMessage == string(ErrRateLimited) {
			return OutcomeNotEligible
		}
		return OutcomeTryAgain
	default:
		return OutcomePending
	}
}

// StateChangedEvent is published to Kafka on every committed transition.
type StateChangedEvent struct {
	SessionID      string        `json:"session_id"`
	BusinessID     string        `json:"business_id"`
	Status         SessionStatus `json:"status"`
	PreviousStatus SessionStatus `json:"previous_status"`
	ErrorKind      string        `json:"error_kind,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

// AuditEntry is an append-only record of a session lifecycle event. Every
// failure writes one; none are ever silently dropped.
type AuditEntry struct {
	SessionID string    `json:"session_id"`
	Event     string    `json:"event"`
	ErrorKind string    `json:"error_kind,omitempty"`
	At        time.Time `json:"at"`
}
