package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/models"
)

func ptr[T any](v T) *T { return &v }

func pendingSession(scannedAt time.Time) *models.Session {
	return &models.Session{
		ID:          "sess-1",
		BusinessID:  "biz-1",
		Status:      models.StatusQRScanned,
		QRScannedAt: scannedAt,
	}
}

func event(id string, amount float64, occurredAt time.Time) models.TransactionEvent {
	return models.TransactionEvent{
		BusinessID:    "biz-1",
		TransactionID: id,
		Amount:        amount,
		OccurredAt:    occurredAt,
	}
}

func TestEligibleWindowBounds(t *testing.T) {
	scan := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := pendingSession(scan)

	cases := []struct {
		name       string
		occurredAt time.Time
		want       bool
	}{
		{"at scan instant", scan, true},
		{"mid window", scan.Add(45 * time.Second), true},
		{"at window edge", scan.Add(2 * time.Minute), true},
		{"before scan", scan.Add(-1 * time.Second), false},
		{"after window", scan.Add(2*time.Minute + time.Second), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := event("tx-1", 100, tc.occurredAt)
			require.Equal(t, tc.want, Eligible(s, &ev, Window))
		})
	}
}

func TestEligibleRejectsWrongBusinessAndConsumed(t *testing.T) {
	scan := time.Now()
	s := pendingSession(scan)

	other := event("tx-1", 100, scan.Add(10*time.Second))
	other.BusinessID = "biz-2"
	require.False(t, Eligible(s, &other, Window))

	consumed := event("tx-2", 100, scan.Add(10*time.Second))
	consumed.ConsumedBySession = ptr("some-session")
	require.False(t, Eligible(s, &consumed, Window))
}

func TestEligibleLocationPinning(t *testing.T) {
	scan := time.Now()
	s := pendingSession(scan)
	s.LocationID = ptr("loc-1")

	ev := event("tx-1", 100, scan.Add(10*time.Second))
	require.False(t, Eligible(s, &ev, Window), "event without location must not match pinned session")

	ev.LocationID = ptr("loc-2")
	require.False(t, Eligible(s, &ev, Window))

	ev.LocationID = ptr("loc-1")
	require.True(t, Eligible(s, &ev, Window))
}

func TestSelectCandidatePrefersAmountHint(t *testing.T) {
	scan := time.Now()
	s := pendingSession(scan)
	s.AmountHint = ptr(250.0)

	events := []models.TransactionEvent{
		event("tx-early", 120, scan.Add(5*time.Second)),
		event("tx-close", 245, scan.Add(60*time.Second)),
		event("tx-late", 600, scan.Add(90*time.Second)),
	}

	got := SelectCandidate(s, events, Window)
	require.NotNil(t, got)
	require.Equal(t, "tx-close", got.TransactionID)
}

func TestSelectCandidateEarliestWithoutHint(t *testing.T) {
	scan := time.Now()
	s := pendingSession(scan)

	events := []models.TransactionEvent{
		event("tx-b", 300, scan.Add(30*time.Second)),
		event("tx-a", 100, scan.Add(10*time.Second)),
	}

	got := SelectCandidate(s, events, Window)
	require.NotNil(t, got)
	require.Equal(t, "tx-a", got.TransactionID)
}

func TestSelectCandidateDeterministicTieBreak(t *testing.T) {
	scan := time.Now()
	s := pendingSession(scan)
	at := scan.Add(20 * time.Second)

	forward := []models.TransactionEvent{event("tx-a", 100, at), event("tx-b", 100, at)}
	reversed := []models.TransactionEvent{event("tx-b", 100, at), event("tx-a", 100, at)}

	require.Equal(t, SelectCandidate(s, forward, Window).TransactionID,
		SelectCandidate(s, reversed, Window).TransactionID)
	require.Equal(t, "tx-a", SelectCandidate(s, forward, Window).TransactionID)
}

func TestSelectCandidateNoMatch(t *testing.T) {
	scan := time.Now()
	s := pendingSession(scan)

	events := []models.TransactionEvent{
		event("tx-old", 100, scan.Add(-10*time.Minute)),
	}
	require.Nil(t, SelectCandidate(s, events, Window))
	require.Nil(t, SelectCandidate(s, nil, Window))
}

func TestSelectSessionPicksBestPending(t *testing.T) {
	scan := time.Now()
	ev := event("tx-1", 250, scan.Add(45*time.Second))

	hinted := *pendingSession(scan)
	hinted.ID = "sess-hinted"
	hinted.AmountHint = ptr(250.0)

	earlier := *pendingSession(scan.Add(-30 * time.Second))
	earlier.ID = "sess-earlier"

	got := SelectSession(&ev, []models.Session{earlier, hinted}, Window)
	require.NotNil(t, got)
	require.Equal(t, "sess-hinted", got.ID, "a matching amount hint beats an earlier scan")

	got = SelectSession(&ev, []models.Session{earlier, *pendingSession(scan)}, Window)
	require.NotNil(t, got)
	require.Equal(t, "sess-earlier", got.ID, "without hints the earliest scan wins")
}
