package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mimi6060/festival/internal/domain/fraud"
	"github.com/mimi6060/festival/internal/testutil/fixtures"
)

type stubProfileStore struct {
	profile *fraud.UserRiskProfile
	err     error
}

func (s *stubProfileStore) GetProfile(context.Context, string) (*fraud.UserRiskProfile, error) {
	return s.profile, s.err
}

func (s *stubProfileStore) PutProfile(_ context.Context, p *fraud.UserRiskProfile) error {
	s.profile = p
	return nil
}

type stubCalibrationStore struct {
	cal     Calibration
	loadErr error
	saved   *Calibration
}

func (s *stubCalibrationStore) LoadCalibration(context.Context) (Calibration, error) {
	return s.cal, s.loadErr
}

func (s *stubCalibrationStore) SaveCalibration(_ context.Context, c Calibration) error {
	s.saved = &c
	return nil
}

func TestScore_CleanTransaction(t *testing.T) {
	scorer := NewScorer(zaptest.NewLogger(t), nil, nil, nil)

	score, err := scorer.Score(context.Background(), fixtures.NewEventBuilder().Build(), nil, nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 0.0, score.Score)
	assert.Equal(t, fraud.RiskLow, score.Level)
	assert.Equal(t, 0.5, score.Confidence)
	assert.Equal(t, "Transaction appears normal", score.Explanation)
}

func TestScore_BurstVelocityMaxesFactor(t *testing.T) {
	scorer := NewScorer(zaptest.NewLogger(t), nil, nil, nil)

	checkContext := map[string]any{"tx_count_5min": 12.0}
	score, err := scorer.Score(context.Background(), fixtures.NewEventBuilder().Build(), nil, nil, nil, checkContext)
	require.NoError(t, err)

	assert.Equal(t, 100.0, score.Factors[fraud.FactorVelocity])
	// velocity weight 0.15 with nothing else firing
	assert.InDelta(t, 15.0, score.Score, 1e-9)
}

func TestScore_AmountAndTimingFactors(t *testing.T) {
	scorer := NewScorer(zaptest.NewLogger(t), nil, nil, nil)

	event := fixtures.NewEventBuilder().
		WithAmount(1500).
		WithTimestamp(time.Date(2025, 7, 12, 3, 0, 0, 0, time.UTC)).
		Build()

	score, err := scorer.Score(context.Background(), event, nil, nil, nil, nil)
	require.NoError(t, err)

	// 80 for >1000 plus 10 for a round amount over 50.
	assert.Equal(t, 90.0, score.Factors[fraud.FactorAmount])
	assert.Equal(t, 50.0, score.Factors[fraud.FactorTiming])
	assert.InDelta(t, 90*0.10+50*0.05, score.Score, 1e-9)
}

func TestScore_AnomalyBlendsMaxAndMean(t *testing.T) {
	scorer := NewScorer(zaptest.NewLogger(t), nil, nil, nil)

	anomalyScores := map[string]float64{
		"combined": 0.8,
		"amount":   0.4,
	}
	score, err := scorer.Score(context.Background(), fixtures.NewEventBuilder().Build(), nil, anomalyScores, nil, nil)
	require.NoError(t, err)

	// 0.6*80 + 0.4*60 = 72
	assert.InDelta(t, 72.0, score.Factors[fraud.FactorAnomaly], 1e-9)
}

func TestScore_PatternFactorWeighsSeverity(t *testing.T) {
	scorer := NewScorer(zaptest.NewLogger(t), nil, nil, nil)

	matches := []fraud.PatternMatch{
		{Name: "impossible_travel", Confidence: 0.8, Severity: fraud.SeverityHigh},
		{Name: "rapid_topup_pattern", Confidence: 0.8, Severity: fraud.SeverityMedium},
	}
	score, err := scorer.Score(context.Background(), fixtures.NewEventBuilder().Build(), nil, nil, matches, nil)
	require.NoError(t, err)

	// 0.8*0.7*100 + 0.8*0.4*100 = 88
	assert.InDelta(t, 88.0, score.Factors[fraud.FactorPattern], 1e-9)
}

func TestScore_FraudTypeBoostCapped(t *testing.T) {
	scorer := NewScorer(zaptest.NewLogger(t), nil, nil, nil)

	types := []fraud.Type{
		fraud.TypeVelocityAbuse,
		fraud.TypeMultipleAccounts,
		fraud.TypeGeolocationFraud,
		fraud.TypeAbnormalTransaction,
		fraud.TypeSuspiciousBehavior,
	}
	score, err := scorer.Score(context.Background(), fixtures.NewEventBuilder().Build(), types, nil, nil, nil)
	require.NoError(t, err)

	// All factors zero; five types would boost 50 but the cap is 30.
	assert.Equal(t, 30.0, score.Score)
	assert.Equal(t, fraud.RiskMedium, score.Level)
}

func TestScore_ManualFlagOverride(t *testing.T) {
	scorer := NewScorer(zaptest.NewLogger(t), nil, nil, nil)

	event := fixtures.NewEventBuilder().WithMetadata("flagged", true).Build()
	score, err := scorer.Score(context.Background(), event, nil, nil, nil, nil)
	require.NoError(t, err)

	// The flag records as a factor but carries zero weight.
	assert.Equal(t, 100.0, score.Factors[fraud.FactorManualFlag])
	assert.Equal(t, 0.0, score.Score)
}

func TestScore_ExplanationNamesTopFactors(t *testing.T) {
	scorer := NewScorer(zaptest.NewLogger(t), nil, nil, nil)

	event := fixtures.NewEventBuilder().
		WithAmount(1500).
		WithTimestamp(time.Date(2025, 7, 12, 3, 0, 0, 0, time.UTC)).
		Build()
	checkContext := map[string]any{"tx_count_5min": 12.0}

	score, err := scorer.Score(context.Background(), event, nil, nil, nil, checkContext)
	require.NoError(t, err)

	assert.Equal(t, "Transaction appears normal. Contributing factors: Velocity: 100, Amount: 90, Timing: 50", score.Explanation)
}

func TestNewScorer_WeightOverridesRenormalized(t *testing.T) {
	overrides := map[fraud.Factor]float64{fraud.FactorAnomaly: 0.50}
	scorer := NewScorer(zaptest.NewLogger(t), nil, nil, overrides)

	// Total becomes 1.25, so the anomaly weight normalizes to 0.4.
	anomalyScores := map[string]float64{"combined": 1.0}
	score, err := scorer.Score(context.Background(), fixtures.NewEventBuilder().Build(), nil, anomalyScores, nil, nil)
	require.NoError(t, err)

	assert.InDelta(t, 40.0, score.Score, 1e-9)
}

func TestNewScorer_LoadsPersistedCalibration(t *testing.T) {
	store := &stubCalibrationStore{cal: Calibration{Shift: 10, Scale: 1}}
	scorer := NewScorer(zaptest.NewLogger(t), nil, store, nil)

	assert.Equal(t, 10.0, scorer.Calibration().Shift)

	score, err := scorer.Score(context.Background(), fixtures.NewEventBuilder().Build(), nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 10.0, score.Score)
}

func TestNewScorer_LoadFailureKeepsIdentity(t *testing.T) {
	store := &stubCalibrationStore{loadErr: errors.New("not found")}
	scorer := NewScorer(zaptest.NewLogger(t), nil, store, nil)

	assert.Equal(t, identity, scorer.Calibration())
}

func TestCalibrate_DerivesShiftFromFraudRatio(t *testing.T) {
	store := &stubCalibrationStore{}
	scorer := NewScorer(zaptest.NewLogger(t), nil, store, nil)

	samples := make([]map[string]any, 8)
	labels := []int{1, 1, 0, 0, 0, 0, 0, 0}
	metrics, err := scorer.Calibrate(context.Background(), samples, labels)
	require.NoError(t, err)

	assert.Equal(t, "success", metrics["status"])
	// fraud ratio 0.25 -> shift (0.5-0.25)*20 = 5
	assert.InDelta(t, 5.0, scorer.Calibration().Shift, 1e-9)
	require.NotNil(t, store.saved)
	assert.InDelta(t, 5.0, store.saved.Shift, 1e-9)
}

func TestCalibrate_SkipsWithoutLabelDiversity(t *testing.T) {
	scorer := NewScorer(zaptest.NewLogger(t), nil, nil, nil)

	metrics, err := scorer.Calibrate(context.Background(), nil, []int{1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, "skipped", metrics["status"])

	metrics, err = scorer.Calibrate(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "skipped", metrics["status"])
}

func TestScoreHistory_RepeatOffenderMaxesOut(t *testing.T) {
	lastFraud := time.Now().UTC().Add(-10 * 24 * time.Hour)
	store := &stubProfileStore{profile: &fraud.UserRiskProfile{
		UserID:      "user-1",
		FraudCount:  2,
		LastFraudAt: &lastFraud,
		TrustScore:  0.2,
	}}
	scorer := NewScorer(zaptest.NewLogger(t), store, nil, nil)

	// 50 (prior fraud) + 30 (recent) + 30 (low trust) capped at 100.
	got := scorer.scoreHistory(context.Background(), fixtures.NewEventBuilder().Build())
	assert.Equal(t, 100.0, got)
}

func TestScoreHistory_StoreErrorScoresZero(t *testing.T) {
	store := &stubProfileStore{err: errors.New("redis down")}
	scorer := NewScorer(zaptest.NewLogger(t), store, nil, nil)

	got := scorer.scoreHistory(context.Background(), fixtures.NewEventBuilder().Build())
	assert.Equal(t, 0.0, got)
}

func TestScoreAccountAge_MissingFieldScoresZero(t *testing.T) {
	event := fixtures.NewEventBuilder().Build()

	assert.Equal(t, 0.0, scoreAccountAge(event, nil))
	assert.Equal(t, 80.0, scoreAccountAge(event, map[string]any{"account_age_hours": 0.5}))
	assert.Equal(t, 50.0, scoreAccountAge(event, map[string]any{"account_age_hours": 12.0}))
	assert.Equal(t, 25.0, scoreAccountAge(event, map[string]any{"account_age_hours": 48.0}))
	assert.Equal(t, 0.0, scoreAccountAge(event, map[string]any{"account_age_hours": 100.0}))
}

func TestLookupFloat_ContextBeatsMetadata(t *testing.T) {
	checkContext := map[string]any{"tx_count_1h": 15.0}
	metadata := map[string]any{"tx_count_1h": 3}

	assert.Equal(t, 15.0, lookupFloat(checkContext, metadata, "tx_count_1h"))
	assert.Equal(t, 3.0, lookupFloat(nil, metadata, "tx_count_1h"))
	assert.Equal(t, 0.0, lookupFloat(nil, nil, "tx_count_1h"))
}
