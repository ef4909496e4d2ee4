// Package matching selects the point-of-sale transaction belonging to a
// pending session. Selection is pure over value snapshots; consuming the
// chosen event and moving the session forward is the orchestrator's job.
package matching

import (
	"math"
	"sort"
	"time"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/models"
)

// Window is how long after the QR scan a transaction may arrive.
const Window = 2 * time.Minute

// Eligible reports whether an event can match a session at all: same
// business, occurred-at inside the matching window, and, when the session is
// pinned to a location, the same location.
func Eligible(s *models.Session, ev *models.TransactionEvent, window time.Duration) bool {
	if ev.BusinessID != s.BusinessID {
		return false
	}
	if ev.ConsumedBySession != nil {
		return false
	}
	if ev.OccurredAt.Before(s.QRScannedAt) || ev.OccurredAt.After(s.QRScannedAt.Add(window)) {
		return false
	}
	if s.LocationID != nil {
		if ev.LocationID == nil || *ev.LocationID != *s.LocationID {
			return false
		}
	}
	return true
}

// SelectCandidate picks the best eligible event for a session. With an amount
// hint, the closest amount wins; otherwise the earliest occurred-at. Ties
// break on earliest occurred-at, then transaction ID, so the choice is
// deterministic regardless of input order. Returns nil when nothing matches.
func SelectCandidate(s *models.Session, events []models.TransactionEvent, window time.Duration) *models.TransactionEvent {
	var candidates []models.TransactionEvent
	for _, ev := range events {
		if Eligible(s, &ev, window) {
			candidates = append(candidates, ev)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if s.AmountHint != nil {
			da := math.Abs(a.Amount - *s.AmountHint)
			db := math.Abs(b.Amount - *s.AmountHint)
			if da != db {
				return da < db
			}
		}
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		return a.TransactionID < b.TransactionID
	})

	return &candidates[0]
}

// SelectSession picks which pending session a freshly arrived event should
// attach to, mirroring SelectCandidate from the event's side: the session
// whose hint best matches the amount, then the earliest scan.
func SelectSession(ev *models.TransactionEvent, sessions []models.Session, window time.Duration) *models.Session {
	var candidates []models.Session
	for _, s := range sessions {
		if Eligible(&s, ev, window) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		da, db := hintDistance(&a, ev), hintDistance(&b, ev)
		if da != db {
			return da < db
		}
		if !a.QRScannedAt.Equal(b.QRScannedAt) {
			return a.QRScannedAt.Before(b.QRScannedAt)
		}
		return a.ID < b.ID
	})

	return &candidates[0]
}

func hintDistance(s *models.Session, ev *models.TransactionEvent) float64 {
	if s.AmountHint == nil {
		return math.MaxFloat64
	}
	return math.Abs(ev.Amount - *s.AmountHint)
}
