package risk

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mimi6060/festival/internal/domain/fraud"
)

// DefaultWeights is the factor weight vector before normalization. The
// manual flag carries no weight of its own; it overrides through the boost
// path instead.
var DefaultWeights = map[fraud.Factor]float64{
	fraud.FactorAnomaly:    0.25,
	fraud.FactorPattern:    0.20,
	fraud.FactorVelocity:   0.15,
	fraud.FactorAmount:     0.10,
	fraud.FactorTiming:     0.05,
	fraud.FactorDevice:     0.10,
	fraud.FactorLocation:   0.05,
	fraud.FactorAccountAge: 0.05,
	fraud.FactorHistory:    0.05,
	fraud.FactorManualFlag: 0.0,
}

// Calibration shifts and scales the raw weighted score. Fit offline from
// labeled data and persisted between runs.
type Calibration struct {
	Shift float64 `json:"score_shift"`
	Scale float64 `json:"score_scale"`
}

// identity is the no-op calibration.
var identity = Calibration{Shift: 0, Scale: 1}

// ProfileStore supplies historical user risk profiles for the history
// factor.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*fraud.UserRiskProfile, error)
	PutProfile(ctx context.Context, profile *fraud.UserRiskProfile) error
}

// CalibrationStore persists calibration parameters between runs.
type CalibrationStore interface {
	LoadCalibration(ctx context.Context) (Calibration, error)
	SaveCalibration(ctx context.Context, c Calibration) error
}

// Scorer fuses anomaly scores, pattern matches, and contextual factors into
// one calibrated 0-100 risk score.
type Scorer struct {
	logger       *zap.Logger
	weights      map[fraud.Factor]float64
	profiles     ProfileStore
	calibrations CalibrationStore

	calMu       sync.RWMutex
	calibration Calibration
}

// NewScorer creates a risk scorer. Weight overrides replace individual
// defaults before normalization; nil stores disable the history factor and
// calibration persistence respectively.
func NewScorer(logger *zap.Logger, profiles ProfileStore, calibrations CalibrationStore, overrides map[fraud.Factor]float64) *Scorer {
	weights := make(map[fraud.Factor]float64, len(DefaultWeights))
	for factor, w := range DefaultWeights {
		weights[factor] = w
	}
	for factor, w := range overrides {
		if _, ok := weights[factor]; ok {
			weights[factor] = w
		}
	}

	var total float64
	for _, w := range weights {
		total += w
	}
	if total > 0 {
		for factor := range weights {
			weights[factor] /= total
		}
	}

	s := &Scorer{
		logger:       logger,
		weights:      weights,
		profiles:     profiles,
		calibrations: calibrations,
		calibration:  identity,
	}

	if calibrations != nil {
		if cal, err := calibrations.LoadCalibration(context.Background()); err == nil {
			s.calibration = cal
		}
	}

	return s
}

// Score computes the composite risk score for one transaction. The context
// map carries the merged evidence from the orchestrator's checks.
func (s *Scorer) Score(
	ctx context.Context,
	event *fraud.TransactionEvent,
	fraudTypes []fraud.Type,
	anomalyScores map[string]float64,
	patternMatches []fraud.PatternMatch,
	checkContext map[string]any,
) (*fraud.RiskScore, error) {
	factors := map[fraud.Factor]float64{
		fraud.FactorAnomaly:    scoreAnomaly(anomalyScores),
		fraud.FactorPattern:    scorePatterns(patternMatches),
		fraud.FactorVelocity:   scoreVelocity(event, checkContext),
		fraud.FactorAmount:     scoreAmount(event),
		fraud.FactorTiming:     scoreTiming(event),
		fraud.FactorDevice:     scoreDevice(event, checkContext),
		fraud.FactorLocation:   scoreLocation(event, checkContext),
		fraud.FactorAccountAge: scoreAccountAge(event, checkContext),
		fraud.FactorHistory:    s.scoreHistory(ctx, event),
	}

	if flagged, _ := event.Metadata["flagged"].(bool); flagged {
		factors[fraud.FactorManualFlag] = 100
	}

	var rawScore float64
	for factor, weight := range s.weights {
		rawScore += factors[factor] * weight
	}

	s.calMu.RLock()
	cal := s.calibration
	s.calMu.RUnlock()
	calibrated := (rawScore + cal.Shift) * cal.Scale

	// Each distinct fraud type adds a flat boost, capped.
	if n := len(fraudTypes); n > 0 {
		boost := math.Min(float64(n)*10, 30)
		calibrated += boost
	}

	finalScore := math.Max(0, math.Min(100, calibrated))
	level := fraud.RiskLevelForScore(finalScore)

	return &fraud.RiskScore{
		Score:       finalScore,
		Level:       level,
		Confidence:  scoreConfidence(factors, len(patternMatches)),
		Factors:     factors,
		Explanation: explain(factors, level),
	}, nil
}

// Calibrate derives calibration parameters from labeled samples and
// persists them.
func (s *Scorer) Calibrate(ctx context.Context, samples []map[string]any, labels []int) (map[string]any, error) {
	if len(labels) == 0 {
		return map[string]any{"status": "skipped", "reason": "no labels"}, nil
	}

	var fraudCount int
	for _, label := range labels {
		if label == 1 {
			fraudCount++
		}
	}
	if fraudCount == 0 || fraudCount == len(labels) {
		return map[string]any{"status": "skipped", "reason": "insufficient label diversity"}, nil
	}

	fraudRatio := float64(fraudCount) / float64(len(labels))
	cal := Calibration{
		Shift: (0.5 - fraudRatio) * 20,
		Scale: 1.0,
	}

	s.calMu.Lock()
	s.calibration = cal
	s.calMu.Unlock()

	if s.calibrations != nil {
		if err := s.calibrations.SaveCalibration(ctx, cal); err != nil {
			s.logger.Warn("failed to persist calibration", zap.Error(err))
		}
	}

	s.logger.Info("risk scorer calibrated",
		zap.Int("samples", len(samples)),
		zap.Float64("fraud_ratio", fraudRatio),
		zap.Float64("shift", cal.Shift))

	return map[string]any{
		"status":      "success",
		"samples":     len(samples),
		"fraud_ratio": fraudRatio,
		"calibration": cal,
	}, nil
}

// Calibration returns the active calibration parameters.
func (s *Scorer) Calibration() Calibration {
	s.calMu.RLock()
	defer s.calMu.RUnlock()
	return s.calibration
}

// UpdateProfile writes a user risk profile through to the store.
func (s *Scorer) UpdateProfile(ctx context.Context, profile *fraud.UserRiskProfile) error {
	if s.profiles == nil {
		return nil
	}
	return s.profiles.PutProfile(ctx, profile)
}

// scoreAnomaly blends the strongest anomaly signal with the signal mean.
func scoreAnomaly(scores map[string]float64) float64 {
	if len(scores) == 0 {
		return 0
	}

	var max, sum float64
	for _, v := range scores {
		scaled := v * 100
		if scaled > max {
			max = scaled
		}
		sum += scaled
	}
	mean := sum / float64(len(scores))

	return 0.6*max + 0.4*mean
}

// scorePatterns sums confidence times severity weight across matches.
func scorePatterns(matches []fraud.PatternMatch) float64 {
	if len(matches) == 0 {
		return 0
	}

	var total float64
	for _, m := range matches {
		total += m.Confidence * m.Severity.Weight() * 100
	}
	return math.Min(100, total)
}

// scoreVelocity rates transaction velocity from the 5-minute and 1-hour
// counts carried in context. A count past the burst threshold maxes the
// factor outright.
func scoreVelocity(event *fraud.TransactionEvent, checkContext map[string]any) float64 {
	count5min := lookupFloat(checkContext, event.Metadata, "tx_count_5min")
	count1h := lookupFloat(checkContext, event.Metadata, "tx_count_1h")

	if count5min > 10 {
		return 100
	}

	var score float64
	if count5min > 5 {
		score += 50
	} else if count5min > 3 {
		score += 30
	}

	if count1h > 20 {
		score += 50
	} else if count1h > 10 {
		score += 25
	}

	return math.Min(100, score)
}

func scoreAmount(event *fraud.TransactionEvent) float64 {
	amount := event.Amount.Float64()
	var score float64

	switch {
	case amount > 1000:
		score = 80
	case amount > 500:
		score = 50
	case amount > 200:
		score = 20
	}

	if event.Amount.IsRound() && amount > 50 {
		score += 10
	}

	return math.Min(100, score)
}

func scoreTiming(event *fraud.TransactionEvent) float64 {
	hour := event.Timestamp.Hour()

	switch {
	case hour >= 2 && hour <= 5:
		return 50
	case hour > 5 && hour < 7:
		return 20
	}
	return 0
}

func scoreDevice(event *fraud.TransactionEvent, checkContext map[string]any) float64 {
	var score float64

	if lookupBool(checkContext, event.Metadata, "is_new_device") {
		score += 30
	}

	usersPerDevice := lookupFloat(checkContext, event.Metadata, "users_per_device")
	if usersPerDevice > 3 {
		score += 50
	} else if usersPerDevice > 2 {
		score += 25
	}

	return math.Min(100, score)
}

func scoreLocation(event *fraud.TransactionEvent, checkContext map[string]any) float64 {
	var score float64

	if lookupBool(checkContext, event.Metadata, "is_new_location") {
		score += 20
	}

	distance := lookupFloat(checkContext, event.Metadata, "distance_from_usual_km")
	if distance > 500 {
		score += 60
	} else if distance > 100 {
		score += 30
	}

	return math.Min(100, score)
}

func scoreAccountAge(event *fraud.TransactionEvent, checkContext map[string]any) float64 {
	ageHours, ok := lookupFloatOK(checkContext, event.Metadata, "account_age_hours")
	if !ok {
		return 0
	}

	switch {
	case ageHours < 1:
		return 80
	case ageHours < 24:
		return 50
	case ageHours < 72:
		return 25
	}
	return 0
}

func (s *Scorer) scoreHistory(ctx context.Context, event *fraud.TransactionEvent) float64 {
	if s.profiles == nil {
		return 0
	}

	profile, err := s.profiles.GetProfile(ctx, event.UserID)
	if err != nil || profile == nil {
		return 0
	}

	var score float64
	if profile.FraudCount > 0 {
		score += 50
	}

	if profile.LastFraudAt != nil {
		daysSince := time.Since(*profile.LastFraudAt).Hours() / 24
		if daysSince < 30 {
			score += 30
		} else if daysSince < 90 {
			score += 15
		}
	}

	if profile.TrustScore < 0.3 {
		score += 30
	} else if profile.TrustScore < 0.5 {
		score += 15
	}

	return math.Min(100, score)
}

// scoreConfidence: half a point of confidence is assumed; the rest comes
// from how many independent factors and patterns actually fired.
func scoreConfidence(factors map[fraud.Factor]float64, patternCount int) float64 {
	var nonZero int
	for _, v := range factors {
		if v > 0 {
			nonZero++
		}
	}

	factorBoost := math.Min(0.3, float64(nonZero)*0.05)
	patternBoost := math.Min(0.2, float64(patternCount)*0.1)

	return math.Min(1.0, 0.5+factorBoost+patternBoost)
}

var levelTexts = map[fraud.RiskLevel]string{
	fraud.RiskLow:      "Transaction appears normal",
	fraud.RiskMedium:   "Some anomalies detected",
	fraud.RiskHigh:     "Suspicious activity detected",
	fraud.RiskCritical: "High fraud probability",
}

// explain names the top three contributing factors above 20 points.
func explain(factors map[fraud.Factor]float64, level fraud.RiskLevel) string {
	type factorScore struct {
		factor fraud.Factor
		score  float64
	}

	sorted := make([]factorScore, 0, len(factors))
	for f, v := range factors {
		sorted = append(sorted, factorScore{f, v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].score != sorted[j].score {
			return sorted[i].score > sorted[j].score
		}
		return sorted[i].factor < sorted[j].factor
	})

	var parts []string
	for _, fs := range sorted {
		if len(parts) == 3 {
			break
		}
		if fs.score > 20 {
			parts = append(parts, fmt.Sprintf("%s: %.0f", factorTitle(fs.factor), fs.score))
		}
	}

	text := levelTexts[level]
	if len(parts) == 0 {
		return text
	}
	return fmt.Sprintf("%s. Contributing factors: %s", text, strings.Join(parts, ", "))
}

func factorTitle(f fraud.Factor) string {
	words := strings.Split(string(f), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func lookupFloat(checkContext, metadata map[string]any, key string) float64 {
	v, _ := lookupFloatOK(checkContext, metadata, key)
	return v
}

func lookupFloatOK(checkContext, metadata map[string]any, key string) (float64, bool) {
	if v, ok := asFloat(checkContext[key]); ok {
		return v, true
	}
	if v, ok := asFloat(metadata[key]); ok {
		return v, true
	}
	return 0, false
}

func lookupBool(checkContext, metadata map[string]any, key string) bool {
	if b, ok := checkContext[key].(bool); ok {
		return b
	}
	b, _ := metadata[key].(bool)
	return b
}

func asFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
