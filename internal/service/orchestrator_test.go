package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/config"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/fraud"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/models"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/repository"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/reward"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/scoring"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/telemetry"
)

func init() {
	telemetry.Logger = zap.NewNop()
}

// fixedEvaluator returns the same sub-scores for every transcript.
type fixedEvaluator struct {
	eval scoring.Evaluation
}

func (f *fixedEvaluator) Evaluate(ctx context.Context, transcript, language string, bc *models.BusinessContext) (*scoring.Evaluation, error) {
	e := f.eval
	return &e, nil
}

// fakeSignals serves a fixed signal snapshot, or an error when down.
type fakeSignals struct {
	signals models.RiskSignals
	err     error
}

func (f *fakeSignals) Collect(ctx context.Context, s *models.Session) (*models.RiskSignals, error) {
	if f.err != nil {
		return nil, f.err
	}
	sig := f.signals
	return &sig, nil
}

// fakeSink records transfer instructions. Failures are permanent so the
// orchestrator's backoff returns immediately instead of sleeping.
type fakeSink struct {
	mu        sync.Mutex
	failing   bool
	transfers []models.TransferInstruction
}

func (f *fakeSink) Transfer(ctx context.Context, ins *models.TransferInstruction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return backoff.Permanent(errors.New("sink down"))
	}
	f.transfers = append(f.transfers, *ins)
	return nil
}

func (f *fakeSink) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transfers)
}

func (f *fakeSink) last() models.TransferInstruction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transfers[len(f.transfers)-1]
}

// fakeRatePolicy counts committed completions and can deny either limit.
type fakeRatePolicy struct {
	mu             sync.Mutex
	denyScan       bool
	denyCompletion bool
	completions    int
}

func (p *fakeRatePolicy) AllowScan(ctx context.Context, deviceHash, locationID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.denyScan, nil
}

func (p *fakeRatePolicy) AllowCompletion(ctx context.Context, customerHash string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.denyCompletion, nil
}

func (p *fakeRatePolicy) CountCompletion(ctx context.Context, customerHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completions++
	return nil
}

func (p *fakeRatePolicy) counted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completions
}

type fixture struct {
	o    *Orchestrator
	repo *repository.MemorySessionRepository
	sink *fakeSink
	sig  *fakeSignals

	mu    sync.Mutex
	clock time.Time
}

func (fx *fixture) advance(d time.Duration) {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	fx.clock = fx.clock.Add(d)
}

func (fx *fixture) now() time.Time {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return fx.clock
}

func testConfig() *config.Config {
	return &config.Config{
		MatchingWindow:     2 * time.Minute,
		RecordingGrace:     90 * time.Second,
		RecordingWindow:    60 * time.Second,
		ProcessingGrace:    30 * time.Second,
		SweepInterval:      5 * time.Second,
		RiskSignalTimeout:  time.Second,
		TransitionLockTTL:  30 * time.Second,
		PlatformFeePercent: 20,
		MaxRewardPercent:   12,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		repo:  repository.NewMemorySessionRepository(),
		sink:  &fakeSink{},
		sig:   &fakeSignals{signals: models.RiskSignals{VoiceAuthenticity: 10, DeviceFingerprint: 10, GeographicPattern: 10, ContentDuplication: 10, TemporalPattern: 10, ContextAlignment: 10}},
		clock: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	scorer := scoring.NewScorer(&fixedEvaluator{eval: scoring.Evaluation{Authenticity: 95, Concreteness: 80, Depth: 85, Sentiment: 0.6}}, scoring.DefaultWeights)
	fx.o = NewOrchestrator(
		testConfig(),
		fx.repo,
		nil, // redis: CAS semantics alone serialize transitions in tests
		nil, // rate limiter disabled
		scorer,
		fraud.NewAssessor(fraud.DefaultConfig()),
		reward.NewResolver(20, 12),
		fx.sig,
		fx.sink,
		nil, // kafka writer
	)
	fx.o.now = fx.now
	return fx
}

func (fx *fixture) createSession(t *testing.T) *models.Session {
	t.Helper()
	s, err := fx.o.CreateSession(context.Background(), &CreateSessionRequest{
		BusinessID: "biz-1",
		DeviceHash: "device-abc",
	})
	require.NoError(t, err)
	return s
}

// runToRecording walks a fresh session to the recording state: transaction
// 45 seconds after the scan, recording started right after the match.
func (fx *fixture) runToRecording(t *testing.T) *models.Session {
	t.Helper()
	ctx := context.Background()
	s := fx.createSession(t)

	fx.advance(45 * time.Second)
	require.NoError(t, fx.o.IngestTransaction(ctx, &models.TransactionEvent{
		TransactionID: "tx-1",
		BusinessID:    "biz-1",
		Amount:        250,
		Items:         []string{"oat latte", "cinnamon bun"},
		OccurredAt:    fx.now(),
	}))

	fx.advance(5 * time.Second)
	require.NoError(t, fx.o.StartRecording(ctx, s.ID))

	got, err := fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusRecording, got.Status)
	return got
}

func transcriptSignal(sessionID string) *models.RecordingSignal {
	return &models.RecordingSignal{
		SessionID:            sessionID,
		Transcript:           "The oat latte was fresh and the barista was friendly today.",
		Language:             "en",
		Confidence:           0.94,
		AudioDurationSeconds: 21,
	}
}

func TestHappyPathGrantsRewardOnce(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	s := fx.runToRecording(t)

	fx.advance(25 * time.Second)
	require.NoError(t, fx.o.TranscriptReady(ctx, transcriptSignal(s.ID)))

	got, err := fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)
	require.False(t, got.ReviewRequired)
	require.True(t, got.TransferEmitted)

	require.NotNil(t, got.Quality)
	require.InDelta(t, 87.5, got.Quality.Total, 0.001)
	require.NotNil(t, got.Reward)
	require.Equal(t, models.TierVeryGood, got.Reward.Tier)
	require.Equal(t, 16.70, got.Reward.Amount)
	require.Equal(t, 3.34, got.Reward.PlatformFee)

	require.Equal(t, 1, fx.sink.count())
	ins := fx.sink.last()
	require.Equal(t, s.ID, ins.SessionID)
	require.Equal(t, 16.70, ins.Amount)

	require.Equal(t, models.OutcomeRewardGranted, got.CustomerOutcome())
}

func TestDuplicateTranscriptDeliveriesPayOnce(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	s := fx.runToRecording(t)

	sig := transcriptSignal(s.ID)
	errs := make(chan error, 5)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- fx.o.TranscriptReady(ctx, sig)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)
	require.Equal(t, 1, fx.sink.count())
}

func TestEarlyTransactionMatchesAtScan(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// The POS webhook lands before anyone scans.
	require.NoError(t, fx.o.IngestTransaction(ctx, &models.TransactionEvent{
		TransactionID: "tx-early",
		BusinessID:    "biz-1",
		Amount:        120,
		OccurredAt:    fx.now().Add(10 * time.Second),
	}))

	s := fx.createSession(t)
	require.Equal(t, models.StatusTransactionVerified, s.Status)
	require.NotNil(t, s.TransactionID)
	require.Equal(t, "tx-early", *s.TransactionID)
}

func TestDuplicateTransactionEventIgnored(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.createSession(t)

	ev := &models.TransactionEvent{
		TransactionID: "tx-dup",
		BusinessID:    "biz-1",
		Amount:        90,
		OccurredAt:    fx.now(),
	}
	require.NoError(t, fx.o.IngestTransaction(ctx, ev))
	require.NoError(t, fx.o.IngestTransaction(ctx, ev))

	// A second session must not see the already-consumed event.
	s2 := fx.createSession(t)
	require.Equal(t, models.StatusQRScanned, s2.Status)
}

func TestFraudRejectFlagsSessionWithoutTransfer(t *testing.T) {
	fx := newFixture(t)
	fx.sig.signals.ContentDuplication = 92
	ctx := context.Background()
	s := fx.runToRecording(t)

	require.NoError(t, fx.o.TranscriptReady(ctx, transcriptSignal(s.ID)))

	got, err := fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFraudFlagged, got.Status)
	require.Equal(t, string(models.ErrFraudRejected), got.ErrorMessage)
	require.NotNil(t, got.Risk)
	require.Equal(t, models.VerdictReject, got.Risk.Verdict)
	require.Zero(t, fx.sink.count())
	require.Equal(t, models.OutcomeNotEligible, got.CustomerOutcome())
}

func TestFlagVerdictCompletesUnderReview(t *testing.T) {
	fx := newFixture(t)
	fx.sig.signals = models.RiskSignals{
		VoiceAuthenticity: 50, DeviceFingerprint: 50, GeographicPattern: 50,
		ContentDuplication: 50, TemporalPattern: 50, ContextAlignment: 50,
	}
	ctx := context.Background()
	s := fx.runToRecording(t)

	require.NoError(t, fx.o.TranscriptReady(ctx, transcriptSignal(s.ID)))

	got, err := fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)
	require.True(t, got.ReviewRequired)
	require.Equal(t, 1, fx.sink.count())
}

func TestRiskSignalOutageCompletesUnderReview(t *testing.T) {
	fx := newFixture(t)
	fx.sig.err = errors.New("nats timeout")
	ctx := context.Background()
	s := fx.runToRecording(t)

	require.NoError(t, fx.o.TranscriptReady(ctx, transcriptSignal(s.ID)))

	got, err := fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)
	require.True(t, got.ReviewRequired)

	var audited bool
	for _, e := range fx.repo.AuditEntries() {
		if e.SessionID == s.ID && e.Event == "risk_signals_unavailable" {
			audited = true
		}
	}
	require.True(t, audited)
}

func TestEmptyTranscriptFailsSession(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	s := fx.runToRecording(t)

	require.NoError(t, fx.o.TranscriptReady(ctx, &models.RecordingSignal{SessionID: s.ID, Transcript: "   "}))

	got, err := fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, got.Status)
	require.Equal(t, string(models.ErrTranscriptionFailed), got.ErrorMessage)
	require.Equal(t, models.OutcomeTryAgain, got.CustomerOutcome())
}

func TestAbortCancelled(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	s := fx.runToRecording(t)

	require.NoError(t, fx.o.Abort(ctx, s.ID, "cancelled"))

	got, err := fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, got.Status)
	require.Equal(t, string(models.ErrCancelled), got.ErrorMessage)
}

func TestTransitionsNeverSkipStates(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	s := fx.createSession(t)

	// No transaction yet: neither recording nor transcript may move it.
	require.NoError(t, fx.o.StartRecording(ctx, s.ID))
	require.NoError(t, fx.o.TranscriptReady(ctx, transcriptSignal(s.ID)))

	got, err := fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusQRScanned, got.Status)
	require.Zero(t, fx.sink.count())
}

func TestCompletedSessionIsImmutable(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	s := fx.runToRecording(t)
	require.NoError(t, fx.o.TranscriptReady(ctx, transcriptSignal(s.ID)))

	require.NoError(t, fx.o.Abort(ctx, s.ID, "cancelled"))
	require.NoError(t, fx.o.TranscriptReady(ctx, transcriptSignal(s.ID)))

	got, err := fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)
	require.Equal(t, 1, fx.sink.count())
}

func TestSweepFailsUnmatchedScan(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	s := fx.createSession(t)

	fx.advance(2*time.Minute + time.Second)
	fx.o.Sweep(ctx)

	got, err := fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, got.Status)
	require.Equal(t, string(models.ErrTransactionNotFound), got.ErrorMessage)

	// A transaction arriving after the timeout must not revive the session.
	require.NoError(t, fx.o.IngestTransaction(ctx, &models.TransactionEvent{
		TransactionID: "tx-late",
		BusinessID:    "biz-1",
		Amount:        60,
		OccurredAt:    fx.now(),
	}))
	got, err = fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, got.Status)
}

func TestSweepFailsStalledRecordingStart(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	s := fx.createSession(t)
	require.NoError(t, fx.o.IngestTransaction(ctx, &models.TransactionEvent{
		TransactionID: "tx-1",
		BusinessID:    "biz-1",
		Amount:        80,
		OccurredAt:    fx.now(),
	}))

	fx.advance(91 * time.Second)
	fx.o.Sweep(ctx)

	got, err := fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, got.Status)
	require.Equal(t, string(models.ErrRecordingTimeout), got.ErrorMessage)
}

func TestSweepFailsOverrunRecording(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	s := fx.runToRecording(t)

	fx.advance(91 * time.Second) // past recording window plus processing grace
	fx.o.Sweep(ctx)

	got, err := fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, got.Status)
	require.Equal(t, string(models.ErrRecordingTimeout), got.ErrorMessage)
}

func TestSinkOutageDefersTransferUntilSweep(t *testing.T) {
	fx := newFixture(t)
	fx.sink.setFailing(true)
	ctx := context.Background()
	s := fx.runToRecording(t)

	require.NoError(t, fx.o.TranscriptReady(ctx, transcriptSignal(s.ID)))

	got, err := fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)
	require.False(t, got.TransferEmitted)
	require.Zero(t, fx.sink.count())

	// Sink recovers; the sweep re-emits once the retry age has passed.
	fx.sink.setFailing(false)
	fx.advance(31 * time.Second)
	fx.o.Sweep(ctx)

	got, err = fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.True(t, got.TransferEmitted)
	require.Equal(t, 1, fx.sink.count())

	// Further sweeps have nothing left to emit.
	fx.advance(time.Minute)
	fx.o.Sweep(ctx)
	require.Equal(t, 1, fx.sink.count())
}

func TestTransferResultFailureTriggersReEmit(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	s := fx.runToRecording(t)
	require.NoError(t, fx.o.TranscriptReady(ctx, transcriptSignal(s.ID)))
	require.Equal(t, 1, fx.sink.count())

	require.NoError(t, fx.o.TransferResult(ctx, s.ID, false, "insufficient rail balance"))

	got, err := fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.False(t, got.TransferEmitted)

	fx.advance(31 * time.Second)
	fx.o.Sweep(ctx)

	got, err = fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.True(t, got.TransferEmitted)
	require.Equal(t, 2, fx.sink.count()) // rail dedupes on session ID
}

func TestInsufficientScoreCompletesWithoutTransfer(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	s := fx.runToRecording(t)

	// Replace the evaluator with one that scores below the reward cutoff.
	fx.o.scorer = scoring.NewScorer(&fixedEvaluator{eval: scoring.Evaluation{Authenticity: 40, Concreteness: 30, Depth: 30}}, scoring.DefaultWeights)

	require.NoError(t, fx.o.TranscriptReady(ctx, transcriptSignal(s.ID)))

	got, err := fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)
	require.Equal(t, models.TierInsufficient, got.Reward.Tier)
	require.Zero(t, got.Reward.Amount)
	require.Zero(t, fx.sink.count())
	require.True(t, got.TransferEmitted) // nothing to pay, bookkeeping closed
	require.Equal(t, models.OutcomeNotEligible, got.CustomerOutcome())
}

func TestSweepRecoversProcessingAfterCrash(t *testing.T) {
	fx := newFixture(t)
	policy := &fakeRatePolicy{}
	fx.o.limiter = policy
	ctx := context.Background()
	s := fx.runToRecording(t)

	// The transcript transition commits but evaluation never runs, as after
	// a crash between the two.
	rows, err := fx.repo.BeginProcessing(ctx, s.ID, transcriptSignal(s.ID), fx.now())
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)

	// Too fresh for the sweep to touch.
	fx.o.Sweep(ctx)
	got, err := fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, got.Status)
	require.Zero(t, fx.sink.count())

	fx.advance(31 * time.Second)
	fx.o.Sweep(ctx)

	got, err = fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.Quality)
	require.InDelta(t, 87.5, got.Quality.Total, 0.001)
	require.True(t, got.TransferEmitted)
	require.Equal(t, 1, fx.sink.count())
	require.Equal(t, 1, policy.counted())

	// Further sweeps find nothing left to redo.
	fx.advance(time.Minute)
	fx.o.Sweep(ctx)
	require.Equal(t, 1, fx.sink.count())
	require.Equal(t, 1, policy.counted())
}

func TestRedisOutageKeepsPipelineRunning(t *testing.T) {
	fx := newFixture(t)
	// Locks are best-effort: an unreachable Redis must not block matching
	// or evaluation, the repository CAS pair carries correctness alone.
	fx.o.redisClient = redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	ctx := context.Background()
	s := fx.runToRecording(t)

	require.NoError(t, fx.o.TranscriptReady(ctx, transcriptSignal(s.ID)))

	got, err := fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)
	require.Equal(t, 1, fx.sink.count())
}

func TestCompletionBudgetCountsOnlyCommitted(t *testing.T) {
	t.Run("committed completion counts once", func(t *testing.T) {
		fx := newFixture(t)
		policy := &fakeRatePolicy{}
		fx.o.limiter = policy
		s := fx.runToRecording(t)

		require.NoError(t, fx.o.TranscriptReady(context.Background(), transcriptSignal(s.ID)))
		require.Equal(t, 1, policy.counted())
	})

	t.Run("fraud reject does not consume budget", func(t *testing.T) {
		fx := newFixture(t)
		policy := &fakeRatePolicy{}
		fx.o.limiter = policy
		fx.sig.signals.ContentDuplication = 92
		s := fx.runToRecording(t)

		require.NoError(t, fx.o.TranscriptReady(context.Background(), transcriptSignal(s.ID)))

		got, err := fx.repo.GetSession(context.Background(), s.ID)
		require.NoError(t, err)
		require.Equal(t, models.StatusFraudFlagged, got.Status)
		require.Zero(t, policy.counted())
	})
}

func TestScanRateLimitFailsSession(t *testing.T) {
	fx := newFixture(t)
	fx.o.limiter = &fakeRatePolicy{denyScan: true}

	s := fx.createSession(t)
	require.Equal(t, models.StatusFailed, s.Status)
	require.Equal(t, string(models.ErrRateLimited), s.ErrorMessage)
	require.Equal(t, models.OutcomeNotEligible, s.CustomerOutcome())
}

func TestCompletionOverBudgetFailsSession(t *testing.T) {
	fx := newFixture(t)
	policy := &fakeRatePolicy{denyCompletion: true}
	fx.o.limiter = policy
	s := fx.runToRecording(t)

	require.NoError(t, fx.o.TranscriptReady(context.Background(), transcriptSignal(s.ID)))

	got, err := fx.repo.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, got.Status)
	require.Equal(t, string(models.ErrRateLimited), got.ErrorMessage)
	require.Zero(t, fx.sink.count())
	require.Zero(t, policy.counted())
}

func TestHintMismatchStillMatchesSoleCandidate(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	hint := 45.0
	s, err := fx.o.CreateSession(ctx, &CreateSessionRequest{
		BusinessID: "biz-1",
		DeviceHash: "device-abc",
		AmountHint: &hint,
	})
	require.NoError(t, err)

	fx.advance(10 * time.Second)
	require.NoError(t, fx.o.IngestTransaction(ctx, &models.TransactionEvent{
		TransactionID: "tx-big", BusinessID: "biz-1", Amount: 400, OccurredAt: fx.now(),
	}))

	got, err := fx.repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusTransactionVerified, got.Status)
	require.Equal(t, 400.0, *got.TransactionAmount)
}
