package models

import "time"

// TransactionEvent is an externally reported point-of-sale purchase fact.
// Immutable once ingested; ingestion is idempotent on TransactionID and a
// matched event is consumed by at most one session.
type TransactionEvent struct {
	BusinessID    string    `json:"business_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        float64   `json:"amount"`
	Items         []string  `json:"items"`
	OccurredAt    time.Time `json:"occurred_at"`
	LocationID    *string   `json:"location_id,omitempty"`

	// ConsumedBySession is set once the event has been matched. Nil means
	// the event is still eligible for matching.
	ConsumedBySession *string `json:"consumed_by_session,omitempty"`
}

// RecordingSignal carries the external capture/transcription collaborator's
// lifecycle messages: start, transcriptReady, abort.
type RecordingSignal struct {
	SessionID            string  `json:"session_id"`
	Transcript           string  `json:"transcript,omitempty"`
	Language             string  `json:"language,omitempty"`
	Confidence           float64 `json:"confidence,omitempty"`
	AudioDurationSeconds float64 `json:"audio_duration_seconds,omitempty"`
	Reason               string  `json:"reason,omitempty"`
}

// TransferInstruction is handed to the payment rail once a reward has been
// committed. The rail is responsible for execution and reports back
// asynchronously; SessionID doubles as the rail-side deduplication key.
type TransferInstruction struct {
	SessionID    string  `json:"session_id"`
	BusinessID   string  `json:"business_id"`
	CustomerHash string  `json:"customer_hash"`
	Amount       float64 `json:"amount"`
	PlatformFee  float64 `json:"platform_fee"`
}
