package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/models"
)

// SessionRepository persists sessions, transaction events, business profiles
// and the audit log in PostgreSQL. All transitions are compare-and-swap
// updates on the current status; rows affected 0 signals a lost race.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id VARCHAR(64) PRIMARY KEY,
			business_id VARCHAR(255) NOT NULL,
			location_id VARCHAR(255),
			device_hash VARCHAR(128) NOT NULL,
			amount_hint DOUBLE PRECISION,
			status VARCHAR(32) NOT NULL,
			error_message VARCHAR(64),
			qr_scanned_at TIMESTAMPTZ NOT NULL,
			transaction_matched_at TIMESTAMPTZ,
			recording_started_at TIMESTAMPTZ,
			processing_started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			transaction_id VARCHAR(255),
			transaction_amount DOUBLE PRECISION,
			transaction_items TEXT[],
			transcript TEXT,
			transcript_language VARCHAR(8),
			transcript_confidence DOUBLE PRECISION,
			audio_duration_seconds DOUBLE PRECISION,
			quality JSONB,
			risk JSONB,
			reward JSONB,
			review_required BOOLEAN NOT NULL DEFAULT FALSE,
			transfer_emitted BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_business_status ON sessions(business_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`,
		`CREATE TABLE IF NOT EXISTS transaction_events (
			transaction_id VARCHAR(255) PRIMARY KEY,
			business_id VARCHAR(255) NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			items TEXT[],
			occurred_at TIMESTAMPTZ NOT NULL,
			location_id VARCHAR(255),
			consumed_by_session VARCHAR(64),
			ingested_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_business_occurred ON transaction_events(business_id, occurred_at)`,
		`CREATE TABLE IF NOT EXISTS businesses (
			business_id VARCHAR(255) PRIMARY KEY,
			policy JSONB,
			context JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id BIGSERIAL PRIMARY KEY,
			session_id VARCHAR(64) NOT NULL,
			event VARCHAR(64) NOT NULL,
			error_kind VARCHAR(64),
			at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_log(session_id)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (r *SessionRepository) InsertSession(ctx context.Context, s *models.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, business_id, location_id, device_hash, amount_hint, status, qr_scanned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.BusinessID, s.LocationID, s.DeviceHash, s.AmountHint, s.Status, s.QRScannedAt)
	return err
}

const sessionColumns = `id, business_id, location_id, device_hash, amount_hint, status,
	COALESCE(error_message, ''), qr_scanned_at, transaction_matched_at, recording_started_at,
	processing_started_at, completed_at, transaction_id, transaction_amount, transaction_items,
	COALESCE(transcript, ''), COALESCE(transcript_language, ''),
	COALESCE(transcript_confidence, 0), COALESCE(audio_duration_seconds, 0),
	quality, risk, reward, review_required, transfer_emitted`

func (r *SessionRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var qualityRaw, riskRaw, rewardRaw []byte
	err := row.Scan(
		&s.ID, &s.BusinessID, &s.LocationID, &s.DeviceHash, &s.AmountHint, &s.Status,
		&s.ErrorMessage, &s.QRScannedAt, &s.TransactionMatchedAt, &s.RecordingStartedAt,
		&s.ProcessingStartedAt, &s.CompletedAt, &s.TransactionID, &s.TransactionAmount, pq.Array(&s.TransactionItems),
		&s.Transcript, &s.TranscriptLanguage,
		&s.TranscriptConfidence, &s.AudioDurationSeconds,
		&qualityRaw, &riskRaw, &rewardRaw, &s.ReviewRequired, &s.TransferEmitted,
	)
	if err != nil {
		return nil, err
	}
	if qualityRaw != nil {
		if err := json.Unmarshal(qualityRaw, &s.Quality); err != nil {
			return nil, fmt.Errorf("decode quality for session %s: %w", s.ID, err)
		}
	}
	if riskRaw != nil {
		if err := json.Unmarshal(riskRaw, &s.Risk); err != nil {
			return nil, fmt.Errorf("decode risk for session %s: %w", s.ID, err)
		}
	}
	if rewardRaw != nil {
		if err := json.Unmarshal(rewardRaw, &s.Reward); err != nil {
			return nil, fmt.Errorf("decode reward for session %s: %w", s.ID, err)
		}
	}
	return &s, nil
}

func (r *SessionRepository) AttachTransaction(ctx context.Context, sessionID string, ev *models.TransactionEvent, matchedAt time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = $1, transaction_id = $2, transaction_amount = $3,
		    transaction_items = $4, transaction_matched_at = $5, updated_at = NOW()
		WHERE id = $6 AND status = $7
	`, models.StatusTransactionVerified, ev.TransactionID, ev.Amount,
		pq.Array(ev.Items), matchedAt, sessionID, models.StatusQRScanned)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *SessionRepository) StartRecording(ctx context.Context, sessionID string, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = $1, recording_started_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, models.StatusRecording, at, sessionID, models.StatusTransactionVerified)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *SessionRepository) BeginProcessing(ctx context.Context, sessionID string, sig *models.RecordingSignal, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = $1, transcript = $2, transcript_language = $3,
		    transcript_confidence = $4, audio_duration_seconds = $5,
		    processing_started_at = $6, updated_at = NOW()
		WHERE id = $7 AND status = $8
	`, models.StatusProcessing, sig.Transcript, sig.Language,
		sig.Confidence, sig.AudioDurationSeconds, at, sessionID, models.StatusRecording)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CompleteWithReward commits the evaluation payload, the reward and the
// completed status in one statement. The rows-affected result is the
// exactly-once guard: only the caller that observes 1 may emit a transfer.
func (r *SessionRepository) CompleteWithReward(ctx context.Context, sessionID string, q *models.QualityScore, rk *models.RiskAssessment, rw *models.RewardDecision, reviewRequired bool, completedAt time.Time) (int64, error) {
	qualityRaw, err := json.Marshal(q)
	if err != nil {
		return 0, err
	}
	riskRaw, err := json.Marshal(rk)
	if err != nil {
		return 0, err
	}
	rewardRaw, err := json.Marshal(rw)
	if err != nil {
		return 0, err
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = $1, quality = $2, risk = $3, reward = $4,
		    review_required = $5, completed_at = $6, updated_at = NOW()
		WHERE id = $7 AND status = $8
	`, models.StatusCompleted, qualityRaw, riskRaw, rewardRaw,
		reviewRequired, completedAt, sessionID, models.StatusProcessing)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *SessionRepository) MarkFraudFlagged(ctx context.Context, sessionID string, q *models.QualityScore, rk *models.RiskAssessment) (int64, error) {
	qualityRaw, err := json.Marshal(q)
	if err != nil {
		return 0, err
	}
	riskRaw, err := json.Marshal(rk)
	if err != nil {
		return 0, err
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = $1, quality = $2, risk = $3, error_message = $4, updated_at = NOW()
		WHERE id = $5 AND status = $6
	`, models.StatusFraudFlagged, qualityRaw, riskRaw, models.ErrFraudRejected,
		sessionID, models.StatusProcessing)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *SessionRepository) FailSession(ctx context.Context, sessionID string, kind models.ErrorKind) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3 AND status NOT IN ($4, $5, $6)
	`, models.StatusFailed, kind, sessionID,
		models.StatusCompleted, models.StatusFailed, models.StatusFraudFlagged)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *SessionRepository) ListExpired(ctx context.Context, status models.SessionStatus, cutoff time.Time) ([]models.Session, error) {
	var tsColumn string
	switch status {
	case models.StatusQRScanned:
		tsColumn = "qr_scanned_at"
	case models.StatusTransactionVerified:
		tsColumn = "transaction_matched_at"
	case models.StatusRecording:
		tsColumn = "recording_started_at"
	case models.StatusProcessing:
		tsColumn = "processing_started_at"
	default:
		return nil, fmt.Errorf("no expiry timestamp for status %s", status)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE status = $1 AND `+tsColumn+` < $2`,
		status, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) InsertEvent(ctx context.Context, ev *models.TransactionEvent) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO transaction_events (transaction_id, business_id, amount, items, occurred_at, location_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (transaction_id) DO NOTHING
	`, ev.TransactionID, ev.BusinessID, ev.Amount, pq.Array(ev.Items), ev.OccurredAt, ev.LocationID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows == 1, err
}

func (r *SessionRepository) ConsumeEvent(ctx context.Context, transactionID, sessionID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE transaction_events
		SET consumed_by_session = $1
		WHERE transaction_id = $2 AND consumed_by_session IS NULL
	`, sessionID, transactionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *SessionRepository) ReleaseEvent(ctx context.Context, transactionID, sessionID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE transaction_events
		SET consumed_by_session = NULL
		WHERE transaction_id = $1 AND consumed_by_session = $2
	`, transactionID, sessionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *SessionRepository) SetTransferEmitted(ctx context.Context, sessionID string, emitted bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET transfer_emitted = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, emitted, sessionID, models.StatusCompleted)
	return err
}

func (r *SessionRepository) ListPendingTransfers(ctx context.Context, cutoff time.Time) ([]models.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE status = $1 AND transfer_emitted = FALSE AND completed_at < $2
	`, models.StatusCompleted, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) UnconsumedEvents(ctx context.Context, businessID string, from, to time.Time) ([]models.TransactionEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT transaction_id, business_id, amount, items, occurred_at, location_id
		FROM transaction_events
		WHERE business_id = $1 AND consumed_by_session IS NULL
		  AND occurred_at >= $2 AND occurred_at <= $3
		ORDER BY occurred_at
	`, businessID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.TransactionEvent
	for rows.Next() {
		var ev models.TransactionEvent
		if err := rows.Scan(&ev.TransactionID, &ev.BusinessID, &ev.Amount,
			pq.Array(&ev.Items), &ev.OccurredAt, &ev.LocationID); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *SessionRepository) PendingSessions(ctx context.Context, businessID string) ([]models.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE business_id = $1 AND status = $2`,
		businessID, models.StatusQRScanned)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) GetBusinessPolicy(ctx context.Context, businessID string) (*models.BusinessPolicy, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT policy FROM businesses WHERE business_id = $1`, businessID).Scan(&raw)
	if err == sql.ErrNoRows || (err == nil && raw == nil) {
		return &models.BusinessPolicy{BusinessID: businessID}, nil
	}
	if err != nil {
		return nil, err
	}
	var p models.BusinessPolicy
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode policy for business %s: %w", businessID, err)
	}
	p.BusinessID = businessID
	return &p, nil
}

func (r *SessionRepository) GetBusinessContext(ctx context.Context, businessID string) (*models.BusinessContext, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT context FROM businesses WHERE business_id = $1`, businessID).Scan(&raw)
	if err == sql.ErrNoRows || (err == nil && raw == nil) {
		return &models.BusinessContext{BusinessID: businessID}, nil
	}
	if err != nil {
		return nil, err
	}
	var c models.BusinessContext
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode context for business %s: %w", businessID, err)
	}
	c.BusinessID = businessID
	return &c, nil
}

func (r *SessionRepository) AppendAudit(ctx context.Context, e *models.AuditEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (session_id, event, error_kind, at)
		VALUES ($1, $2, $3, $4)
	`, e.SessionID, e.Event, e.ErrorKind, e.At)
	return err
}
