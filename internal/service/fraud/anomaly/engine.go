package anomaly

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mimi6060/festival/internal/domain/fraud"
)

const (
	// historyCap bounds the per-user rolling window.
	historyCap = 100

	// anomalyThreshold is the combined score above which an event is
	// flagged even when no individual category fired.
	anomalyThreshold = 0.6

	// categoryThreshold promotes an individual statistical score to a
	// category.
	categoryThreshold = 0.7
)

// statistical signal weights for the combined score. Pluggable scorers are
// weighted scorerWeight each; unknown signals fall back to defaultWeight.
const (
	scorerWeight  = 0.3
	defaultWeight = 0.1
)

var statWeights = map[string]float64{
	"amount":   0.15,
	"velocity": 0.15,
	"timing":   0.10,
}

// Engine converts transactions into feature vectors, scores them with
// pluggable models and fixed statistical rules, and maintains per-user
// rolling history.
type Engine struct {
	logger  *zap.Logger
	scorers []Scorer

	mu    sync.RWMutex
	users map[string]*userEntry

	statsMu    sync.RWMutex
	globalMean float64
	globalStd  float64
}

// userEntry is one user's rolling window plus running stats. Its mutex
// serializes read-modify-write cycles for that user only.
type userEntry struct {
	mu      sync.Mutex
	history []historyEntry
	stats   userStats
}

// NewEngine creates an anomaly engine with the given pluggable scorers.
// With no scorers only the statistical rules run.
func NewEngine(logger *zap.Logger, scorers ...Scorer) *Engine {
	return &Engine{
		logger:  logger,
		scorers: scorers,
		users:   make(map[string]*userEntry),
		// Seed global stats with platform-typical values until training
		// provides real ones.
		globalMean: 50.0,
		globalStd:  30.0,
	}
}

// Detect scores one transaction. The user's history read, feature
// extraction, and history append happen under the user's lock so velocity
// counts stay consistent under concurrent calls for the same user.
func (e *Engine) Detect(ctx context.Context, event *fraud.TransactionEvent) (*fraud.AnomalyFinding, error) {
	entry := e.userEntry(event.UserID)

	e.statsMu.RLock()
	globalMean, globalStd := e.globalMean, e.globalStd
	e.statsMu.RUnlock()

	entry.mu.Lock()
	features := extractFeatures(event, entry.history, &entry.stats, globalMean, globalStd)
	e.appendHistory(entry, event)
	entry.mu.Unlock()

	scores := make(map[string]float64)
	var categories []fraud.AnomalyCategory

	featureArray := features.ToArray()
	for _, scorer := range e.scorers {
		if !scorer.Trained() {
			continue
		}
		score, anomalous := scorer.Score(featureArray)
		scores[scorer.Name()] = score
		if anomalous {
			categories = append(categories, scorer.Category())
		}
	}

	// Fixed statistical rules, independent of the pluggable models.
	if zscore := features.AmountZScore; zscore > 3 || zscore < -3 {
		categories = append(categories, fraud.AnomalyAmount)
	}
	if features.TxCount1h > 30 {
		categories = append(categories, fraud.AnomalyVelocity)
	}
	if features.IsNight && features.TxCount24h < 5 {
		categories = append(categories, fraud.AnomalyTiming)
	}

	scores["amount"] = scoreAmount(features)
	scores["velocity"] = scoreVelocity(features)
	scores["timing"] = scoreTiming(features)

	if scores["amount"] > categoryThreshold {
		categories = append(categories, fraud.AnomalyAmount)
	}
	if scores["velocity"] > categoryThreshold {
		categories = append(categories, fraud.AnomalyVelocity)
	}
	if scores["timing"] > categoryThreshold {
		categories = append(categories, fraud.AnomalyTiming)
	}

	categories = dedupeCategories(categories)
	combined := combineScores(e.scorers, scores)

	finding := &fraud.AnomalyFinding{
		IsAnomaly:  len(categories) > 0 || combined > anomalyThreshold,
		Scores:     scores,
		Categories: categories,
		Confidence: confidence(len(scores)),
		Details: map[string]any{
			"features":       features.Summary(),
			"combined_score": combined,
		},
	}

	return finding, nil
}

// Train fits the pluggable scorers on anonymized samples and refreshes the
// global amount statistics. Features are extracted from the samples
// themselves, not synthesized.
func (e *Engine) Train(ctx context.Context, samples []map[string]any) (map[string]any, error) {
	e.logger.Info("training anomaly scorers", zap.Int("samples", len(samples)))

	matrix := make([][]float64, 0, len(samples))
	amounts := make([]float64, 0, len(samples))

	e.statsMu.RLock()
	globalMean, globalStd := e.globalMean, e.globalStd
	e.statsMu.RUnlock()

	for _, sample := range samples {
		fv := featuresFromSample(sample, globalMean, globalStd)
		matrix = append(matrix, fv.ToArray())
		amounts = append(amounts, fv.Amount)
	}

	metrics := map[string]any{"samples": len(samples)}
	for _, scorer := range e.scorers {
		if err := scorer.Fit(matrix); err != nil {
			e.logger.Warn("scorer training failed",
				zap.String("scorer", scorer.Name()),
				zap.Error(err))
			metrics[scorer.Name()] = map[string]any{"status": "failed", "error": err.Error()}
			continue
		}
		metrics[scorer.Name()] = map[string]any{"status": "trained"}
	}

	if len(amounts) > 0 {
		e.statsMu.Lock()
		e.globalMean = mean(amounts)
		e.globalStd = stddev(amounts)
		metrics["global_stats"] = map[string]any{
			"amount_mean": e.globalMean,
			"amount_std":  e.globalStd,
		}
		e.statsMu.Unlock()
	}

	return metrics, nil
}

// TrackedUsers returns the number of users with rolling history.
func (e *Engine) TrackedUsers() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.users)
}

// Cleanup discards all rolling history.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	e.users = make(map[string]*userEntry)
	e.mu.Unlock()
}

func (e *Engine) userEntry(userID string) *userEntry {
	e.mu.RLock()
	entry, ok := e.users[userID]
	e.mu.RUnlock()
	if ok {
		return entry
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok = e.users[userID]; ok {
		return entry
	}
	entry = &userEntry{stats: userStats{KnownDevices: make(map[string]struct{})}}
	e.users[userID] = entry
	return entry
}

// appendHistory records the event and recomputes the user's running stats.
// Callers must hold entry.mu.
func (e *Engine) appendHistory(entry *userEntry, event *fraud.TransactionEvent) {
	entry.history = append(entry.history, historyEntry{
		Timestamp: event.Timestamp,
		Amount:    event.Amount.Float64(),
		Type:      event.Type,
	})
	if len(entry.history) > historyCap {
		entry.history = entry.history[len(entry.history)-historyCap:]
	}

	amounts := make([]float64, len(entry.history))
	for i, tx := range entry.history {
		amounts[i] = tx.Amount
	}
	entry.stats.AvgAmount = mean(amounts)
	entry.stats.StdAmount = stddev(amounts)

	if span := entry.history[len(entry.history)-1].Timestamp.Sub(entry.history[0].Timestamp); span > 0 {
		entry.stats.FrequencyDaily = float64(len(entry.history)) / (span.Hours() / 24)
	} else {
		entry.stats.FrequencyDaily = float64(len(entry.history))
	}

	if event.DeviceID != "" {
		entry.stats.KnownDevices[event.DeviceID] = struct{}{}
	}
}

func scoreAmount(f *FeatureVector) float64 {
	zscore := f.AmountZScore
	if zscore < 0 {
		zscore = -zscore
	}

	switch {
	case zscore < 1:
		return 0.0
	case zscore < 2:
		return 0.3
	case zscore < 3:
		return 0.6
	default:
		score := 0.6 + (zscore-3)*0.1
		if score > 1.0 {
			return 1.0
		}
		return score
	}
}

func scoreVelocity(f *FeatureVector) float64 {
	hourly := minFloat(float64(f.TxCount1h)/50.0, 1.0)
	daily := minFloat(float64(f.TxCount24h)/200.0, 1.0)
	return hourly*0.7 + daily*0.3
}

func scoreTiming(f *FeatureVector) float64 {
	score := 0.0
	if f.IsNight {
		score += 0.3
	}
	if f.MinutesSinceLastTx < 1 {
		score += 0.4
	}
	if f.IsNight && f.TxCount24h == 0 {
		score += 0.3
	}
	return minFloat(score, 1.0)
}

func combineScores(scorers []Scorer, scores map[string]float64) float64 {
	if len(scores) == 0 {
		return 0
	}

	scorerNames := make(map[string]struct{}, len(scorers))
	for _, s := range scorers {
		scorerNames[s.Name()] = struct{}{}
	}

	var weightedSum, totalWeight float64
	for name, score := range scores {
		weight := defaultWeight
		if _, ok := scorerNames[name]; ok {
			weight = scorerWeight
		} else if w, ok := statWeights[name]; ok {
			weight = w
		}
		weightedSum += score * weight
		totalWeight += weight
	}

	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

// confidence grows with signal count: five or more signals is full
// confidence.
func confidence(signals int) float64 {
	return minFloat(float64(signals)/5.0, 1.0)
}

// featuresFromSample rebuilds a feature vector from an anonymized training
// record. Velocity fields come from the record when present; absent fields
// stay zero.
func featuresFromSample(sample map[string]any, globalMean, globalStd float64) *FeatureVector {
	amount := floatField(sample, "amount")
	ts := timeField(sample, "timestamp")

	hour := ts.Hour()
	dow := int(ts.Weekday())

	return &FeatureVector{
		Amount:             amount,
		AmountZScore:       (amount - globalMean) / (globalStd + 1e-10),
		IsRoundAmount:      amount > 0 && amount == float64(int64(amount)),
		HourOfDay:          hour,
		DayOfWeek:          dow,
		IsWeekend:          ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday,
		IsNight:            hour >= 22 || hour < 6,
		MinutesSinceLastTx: floatField(sample, "minutes_since_last_tx"),
		TxCount1h:          int(floatField(sample, "tx_count_1h")),
		TxCount24h:         int(floatField(sample, "tx_count_24h")),
		TotalAmount1h:      floatField(sample, "total_amount_1h"),
		TotalAmount24h:     floatField(sample, "total_amount_24h"),
		AvgTxAmount:        floatField(sample, "avg_tx_amount"),
		StdTxAmount:        floatField(sample, "std_tx_amount"),
		TxFrequencyDaily:   floatField(sample, "tx_frequency_daily"),
		IsNewDevice:        boolField(sample, "is_new_device"),
		IsNewLocation:      boolField(sample, "is_new_location"),
		DistanceFromUsual:  floatField(sample, "distance_from_usual"),
	}
}

func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func timeField(m map[string]any, key string) time.Time {
	switch v := m[key].(type) {
	case time.Time:
		return v
	case string:
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func dedupeCategories(categories []fraud.AnomalyCategory) []fraud.AnomalyCategory {
	if len(categories) < 2 {
		return categories
	}
	seen := make(map[fraud.AnomalyCategory]struct{}, len(categories))
	out := categories[:0]
	for _, c := range categories {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
