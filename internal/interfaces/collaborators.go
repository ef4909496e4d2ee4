package interfaces

import (
	"context"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/models"
)

// TransferSink hands a committed reward to the payment rail. Execution is
// asynchronous; the rail reports the result back through the transfer-result
// callback. Transient errors are retryable and must never regress session
// status.
type TransferSink interface {
	Transfer(ctx context.Context, ins *models.TransferInstruction) error
}

// RiskSignalSource collects the externally gathered fraud-layer inputs for a
// session (voice fingerprint, device hash history, geolocation, transcript
// similarity, frequency history, transaction context).
type RiskSignalSource interface {
	Collect(ctx context.Context, s *models.Session) (*models.RiskSignals, error)
}

// TransactionEventSource is implemented per POS provider outside the core;
// the engine consumes a uniform event stream.
type TransactionEventSource interface {
	Events(ctx context.Context) (<-chan models.TransactionEvent, error)
}

// RatePolicy enforces the platform rate limits. Scans are counted on every
// attempt; completions are checked before evaluation but counted only once
// the completion has committed, so retries and rejected sessions never
// consume the budget.
type RatePolicy interface {
	AllowScan(ctx context.Context, deviceHash, locationID string) (bool, error)
	AllowCompletion(ctx context.Context, customerHash string) (bool, error)
	CountCompletion(ctx context.Context, customerHash string) error
}
