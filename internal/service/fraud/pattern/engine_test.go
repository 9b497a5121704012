package pattern

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mimi6060/festival/internal/domain/fraud"
	"github.com/mimi6060/festival/internal/testutil/fixtures"
)

// stubClassifier returns fixed predictions.
type stubClassifier struct {
	trained     bool
	predictions []Prediction
	fitCalls    int
}

func (s *stubClassifier) Trained() bool { return s.trained }

func (s *stubClassifier) Predict(map[string]any) []Prediction { return s.predictions }

func (s *stubClassifier) Fit([]map[string]any, []int) error {
	s.fitCalls++
	s.trained = true
	return nil
}

func TestRecognize_NoSignalsNoMatches(t *testing.T) {
	engine := NewEngine(zaptest.NewLogger(t), nil)

	matches, err := engine.Recognize(context.Background(), fixtures.NewEventBuilder().Build(), nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRecognize_RapidTopupRule(t *testing.T) {
	engine := NewEngine(zaptest.NewLogger(t), nil)

	merged := map[string]any{
		"topup_count_1h":       6.0,
		"avg_interval_minutes": 2.0,
	}
	matches, err := engine.Recognize(context.Background(), fixtures.NewEventBuilder().Build(), merged)
	require.NoError(t, err)

	require.Len(t, matches, 1)
	assert.Equal(t, "rapid_topup_pattern", matches[0].Name)
	assert.Equal(t, fraud.TypeVelocityAbuse, matches[0].FraudType)
	assert.Equal(t, ruleConfidence, matches[0].Confidence)
	assert.Equal(t, fraud.SeverityMedium, matches[0].Severity)
}

func TestRecognize_ImpossibleTravelRule(t *testing.T) {
	engine := NewEngine(zaptest.NewLogger(t), nil)

	merged := map[string]any{
		"distance_km":        800.0,
		"time_between_hours": 1.0,
	}
	matches, err := engine.Recognize(context.Background(), fixtures.NewEventBuilder().Build(), merged)
	require.NoError(t, err)

	require.Len(t, matches, 1)
	assert.Equal(t, "impossible_travel", matches[0].Name)
	assert.Equal(t, fraud.TypeGeolocationFraud, matches[0].FraudType)
}

func TestRecognize_NightTransactionUsesEventFields(t *testing.T) {
	engine := NewEngine(zaptest.NewLogger(t), nil)

	event := fixtures.NewEventBuilder().
		WithAmount(150).
		WithTimestamp(time.Date(2025, 7, 12, 3, 30, 0, 0, time.UTC)).
		Build()
	merged := map[string]any{"is_first_transaction": true}

	matches, err := engine.Recognize(context.Background(), event, merged)
	require.NoError(t, err)

	require.Len(t, matches, 1)
	assert.Equal(t, "night_transaction_pattern", matches[0].Name)
}

func TestRecognize_MissingFieldFailsRule(t *testing.T) {
	engine := NewEngine(zaptest.NewLogger(t), nil)

	// distance_km present but time_between_hours absent.
	merged := map[string]any{"distance_km": 800.0}
	matches, err := engine.Recognize(context.Background(), fixtures.NewEventBuilder().Build(), merged)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRecognize_DisabledRuleSkipped(t *testing.T) {
	engine := NewEngine(zaptest.NewLogger(t), nil)
	engine.DisableRule("impossible_travel")

	merged := map[string]any{
		"distance_km":        800.0,
		"time_between_hours": 1.0,
	}
	matches, err := engine.Recognize(context.Background(), fixtures.NewEventBuilder().Build(), merged)
	require.NoError(t, err)
	assert.Empty(t, matches)

	engine.EnableRule("impossible_travel")
	matches, err = engine.Recognize(context.Background(), fixtures.NewEventBuilder().Build(), merged)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestRecognize_RulesTakePrecedenceOverClassifier(t *testing.T) {
	classifier := &stubClassifier{
		trained: true,
		predictions: []Prediction{
			{Pattern: fraud.PatternGeographicAnomaly, Probability: 0.95},
			{Pattern: fraud.PatternTicketResale, Probability: 0.6},
		},
	}
	engine := NewEngine(zaptest.NewLogger(t), classifier)

	merged := map[string]any{
		"distance_km":        800.0,
		"time_between_hours": 1.0,
	}
	matches, err := engine.Recognize(context.Background(), fixtures.NewEventBuilder().Build(), merged)
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, "impossible_travel", matches[0].Name)
	assert.Equal(t, "ml_ticket_resale", matches[1].Name)
	assert.Equal(t, fraud.TypeIllegalResale, matches[1].FraudType)
	assert.Equal(t, fraud.SeverityMedium, matches[1].Severity)
}

func TestAddRule_MatchesImmediately(t *testing.T) {
	engine := NewEngine(zaptest.NewLogger(t), nil)
	engine.AddRule(&Rule{
		Name:      "big_spender",
		Pattern:   fraud.PatternRapidTransactions,
		FraudType: fraud.TypeAbnormalTransaction,
		Conditions: map[string]Condition{
			"amount": gt(1000),
		},
		Severity: fraud.SeverityMedium,
		Enabled:  true,
	})

	event := fixtures.NewEventBuilder().WithAmount(1500).Build()
	matches, err := engine.Recognize(context.Background(), event, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "big_spender", matches[0].Name)
}

func TestLearnFromReport_BuffersUntilThreshold(t *testing.T) {
	classifier := &stubClassifier{}
	engine := NewEngine(zaptest.NewLogger(t), classifier)

	for i := 0; i < retrainThreshold-1; i++ {
		err := engine.LearnFromReport(context.Background(), fraud.TypeIllegalResale, "tx-1", map[string]any{
			"amount": 100.0,
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 0, classifier.fitCalls)
	assert.Equal(t, retrainThreshold-1, engine.PendingReports())

	err := engine.LearnFromReport(context.Background(), fraud.TypeVelocityAbuse, "tx-2", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, classifier.fitCalls)
	assert.Equal(t, 0, engine.PendingReports())
}

func TestTrain_SkipsWithoutLabels(t *testing.T) {
	classifier := &stubClassifier{}
	engine := NewEngine(zaptest.NewLogger(t), classifier)

	metrics, err := engine.Train(context.Background(), []map[string]any{{"amount": 1.0}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "skipped", metrics["status"])
	assert.Equal(t, 0, classifier.fitCalls)
}

func TestCentroidClassifier_LearnsSeparableLabels(t *testing.T) {
	classifier := NewCentroidClassifier()
	require.False(t, classifier.Trained())

	var contexts []map[string]any
	var labels []int
	for i := 0; i < 30; i++ {
		// Resale-like: big amounts, heavy ticket counts.
		contexts = append(contexts, map[string]any{
			"amount":           900.0 + float64(i),
			"ticket_count_24h": 15.0,
			"hour":             12.0,
		})
		labels = append(labels, LabelForFraudType(fraud.TypeIllegalResale))

		// Velocity-like: tiny rapid transactions.
		contexts = append(contexts, map[string]any{
			"amount":               5.0,
			"transaction_count_1h": 40.0,
			"hour":                 12.0,
		})
		labels = append(labels, LabelForFraudType(fraud.TypeVelocityAbuse))
	}
	require.NoError(t, classifier.Fit(contexts, labels))
	require.True(t, classifier.Trained())

	preds := classifier.Predict(map[string]any{
		"amount":           950.0,
		"ticket_count_24h": 14.0,
		"hour":             12.0,
	})
	require.NotEmpty(t, preds)
	assert.Equal(t, fraud.PatternTicketResale, preds[0].Pattern)
}

func TestSeverityForConfidence(t *testing.T) {
	tests := []struct {
		confidence float64
		want       fraud.Severity
	}{
		{0.95, fraud.SeverityCritical},
		{0.9, fraud.SeverityCritical},
		{0.75, fraud.SeverityHigh},
		{0.5, fraud.SeverityMedium},
		{0.3, fraud.SeverityLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, severityForConfidence(tt.confidence), "confidence %v", tt.confidence)
	}
}
