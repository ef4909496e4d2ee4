package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/models"
)

// MemorySessionRepository mirrors the SQL repository's compare-and-swap
// contract in process memory. It backs unit tests and local development; the
// rows-affected semantics are identical, so orchestrator behavior verified
// against it holds against the Postgres implementation.
type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	events   map[string]*models.TransactionEvent
	policies map[string]*models.BusinessPolicy
	contexts map[string]*models.BusinessContext
	audit    []models.AuditEntry
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string]*models.Session),
		events:   make(map[string]*models.TransactionEvent),
		policies: make(map[string]*models.BusinessPolicy),
		contexts: make(map[string]*models.BusinessContext),
	}
}

func copySession(s *models.Session) *models.Session {
	c := *s
	if s.Quality != nil {
		q := *s.Quality
		c.Quality = &q
	}
	if s.Risk != nil {
		r := *s.Risk
		c.Risk = &r
	}
	if s.Reward != nil {
		r := *s.Reward
		c.Reward = &r
	}
	c.TransactionItems = append([]string(nil), s.TransactionItems...)
	return &c
}

func (r *MemorySessionRepository) InsertSession(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	r.sessions[s.ID] = copySession(s)
	return nil
}

func (r *MemorySessionRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return copySession(s), nil
}

func (r *MemorySessionRepository) AttachTransaction(ctx context.Context, sessionID string, ev *models.TransactionEvent, matchedAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.Status != models.StatusQRScanned {
		return 0, nil
	}
	s.Status = models.StatusTransactionVerified
	s.TransactionID = &ev.TransactionID
	amount := ev.Amount
	s.TransactionAmount = &amount
	s.TransactionItems = append([]string(nil), ev.Items...)
	t := matchedAt
	s.TransactionMatchedAt = &t
	return 1, nil
}

func (r *MemorySessionRepository) StartRecording(ctx context.Context, sessionID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.Status != models.StatusTransactionVerified {
		return 0, nil
	}
	s.Status = models.StatusRecording
	t := at
	s.RecordingStartedAt = &t
	return 1, nil
}

func (r *MemorySessionRepository) BeginProcessing(ctx context.Context, sessionID string, sig *models.RecordingSignal, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.Status != models.StatusRecording {
		return 0, nil
	}
	s.Status = models.StatusProcessing
	s.Transcript = sig.Transcript
	s.TranscriptLanguage = sig.Language
	s.TranscriptConfidence = sig.Confidence
	s.AudioDurationSeconds = sig.AudioDurationSeconds
	t := at
	s.ProcessingStartedAt = &t
	return 1, nil
}

func (r *MemorySessionRepository) CompleteWithReward(ctx context.Context, sessionID string, q *models.QualityScore, rk *models.RiskAssessment, rw *models.RewardDecision, reviewRequired bool, completedAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.Status != models.StatusProcessing {
		return 0, nil
	}
	s.Status = models.StatusCompleted
	s.Quality = q
	s.Risk = rk
	s.Reward = rw
	s.ReviewRequired = reviewRequired
	t := completedAt
	s.CompletedAt = &t
	return 1, nil
}

func (r *MemorySessionRepository) MarkFraudFlagged(ctx context.Context, sessionID string, q *models.QualityScore, rk *models.RiskAssessment) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.Status != models.StatusProcessing {
		return 0, nil
	}
	s.Status = models.StatusFraudFlagged
	s.Quality = q
	s.Risk = rk
	s.ErrorMessage = string(models.ErrFraudRejected)
	return 1, nil
}

func (r *MemorySessionRepository) FailSession(ctx context.Context, sessionID string, kind models.ErrorKind) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.Status.Terminal() {
		return 0, nil
	}
	s.Status = models.StatusFailed
	s.ErrorMessage = string(kind)
	return 1, nil
}

func (r *MemorySessionRepository) ListExpired(ctx context.Context, status models.SessionStatus, cutoff time.Time) ([]models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Session
	for _, s := range r.sessions {
		if s.Status != status {
			continue
		}
		var ts *time.Time
		switch status {
		case models.StatusQRScanned:
			ts = &s.QRScannedAt
		case models.StatusTransactionVerified:
			ts = s.TransactionMatchedAt
		case models.StatusRecording:
			ts = s.RecordingStartedAt
		case models.StatusProcessing:
			ts = s.ProcessingStartedAt
		default:
			return nil, fmt.Errorf("no expiry timestamp for status %s", status)
		}
		if ts != nil && ts.Before(cutoff) {
			out = append(out, *copySession(s))
		}
	}
	return out, nil
}

func (r *MemorySessionRepository) InsertEvent(ctx context.Context, ev *models.TransactionEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[ev.TransactionID]; ok {
		return false, nil
	}
	c := *ev
	c.Items = append([]string(nil), ev.Items...)
	r.events[ev.TransactionID] = &c
	return true, nil
}

func (r *MemorySessionRepository) ConsumeEvent(ctx context.Context, transactionID, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[transactionID]
	if !ok || ev.ConsumedBySession != nil {
		return 0, nil
	}
	ev.ConsumedBySession = &sessionID
	return 1, nil
}

func (r *MemorySessionRepository) ReleaseEvent(ctx context.Context, transactionID, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[transactionID]
	if !ok || ev.ConsumedBySession == nil || *ev.ConsumedBySession != sessionID {
		return 0, nil
	}
	ev.ConsumedBySession = nil
	return 1, nil
}

func (r *MemorySessionRepository) SetTransferEmitted(ctx context.Context, sessionID string, emitted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.Status != models.StatusCompleted {
		return nil
	}
	s.TransferEmitted = emitted
	return nil
}

func (r *MemorySessionRepository) ListPendingTransfers(ctx context.Context, cutoff time.Time) ([]models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Session
	for _, s := range r.sessions {
		if s.Status != models.StatusCompleted || s.TransferEmitted {
			continue
		}
		if s.CompletedAt != nil && s.CompletedAt.Before(cutoff) {
			out = append(out, *copySession(s))
		}
	}
	return out, nil
}

func (r *MemorySessionRepository) UnconsumedEvents(ctx context.Context, businessID string, from, to time.Time) ([]models.TransactionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TransactionEvent
	for _, ev := range r.events {
		if ev.BusinessID != businessID || ev.ConsumedBySession != nil {
			continue
		}
		if ev.OccurredAt.Before(from) || ev.OccurredAt.After(to) {
			continue
		}
		out = append(out, *ev)
	}
	return out, nil
}

func (r *MemorySessionRepository) PendingSessions(ctx context.Context, businessID string) ([]models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Session
	for _, s := range r.sessions {
		if s.BusinessID == businessID && s.Status == models.StatusQRScanned {
			out = append(out, *copySession(s))
		}
	}
	return out, nil
}

// SetBusinessPolicy seeds a policy; tests and local dev only.
func (r *MemorySessionRepository) SetBusinessPolicy(p *models.BusinessPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[p.BusinessID] = p
}

// SetBusinessContext seeds a scoring context; tests and local dev only.
func (r *MemorySessionRepository) SetBusinessContext(c *models.BusinessContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contexts[c.BusinessID] = c
}

func (r *MemorySessionRepository) GetBusinessPolicy(ctx context.Context, businessID string) (*models.BusinessPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.policies[businessID]; ok {
		return p, nil
	}
	return &models.BusinessPolicy{BusinessID: businessID}, nil
}

func (r *MemorySessionRepository) GetBusinessContext(ctx context.Context, businessID string) (*models.BusinessContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.contexts[businessID]; ok {
		return c, nil
	}
	return &models.BusinessContext{BusinessID: businessID}, nil
}

func (r *MemorySessionRepository) AppendAudit(ctx context.Context, e *models.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit = append(r.audit, *e)
	return nil
}

// AuditEntries returns a snapshot of the audit log; tests only.
func (r *MemorySessionRepository) AuditEntries() []models.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AuditEntry(nil), r.audit...)
}
