package pattern

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mimi6060/festival/internal/domain/fraud"
)

const (
	// retrainThreshold triggers a batch retrain of the classifier once the
	// feedback buffer reaches this many confirmed reports.
	retrainThreshold = 100

	// minTrainSamples is the floor below which a batch retrain never runs.
	minTrainSamples = 10
)

// feedback is one buffered manual report awaiting batch training.
type feedback struct {
	evidence  map[string]any
	fraudType fraud.Type
}

// Engine matches transaction contexts against declarative rules and an
// optional learned classifier, and learns incrementally from confirmed
// fraud reports.
type Engine struct {
	logger     *zap.Logger
	classifier Classifier

	rulesMu sync.RWMutex
	rules   []*Rule
	enabled map[string]struct{}

	bufMu  sync.Mutex
	buffer []feedback
}

// NewEngine creates a pattern engine with the default rule set. A nil
// classifier disables learned recognition.
func NewEngine(logger *zap.Logger, classifier Classifier) *Engine {
	rules := DefaultRules()
	enabled := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if r.Enabled {
			enabled[r.Name] = struct{}{}
		}
	}
	return &Engine{
		logger:     logger,
		classifier: classifier,
		rules:      rules,
		enabled:    enabled,
	}
}

// Recognize matches an event plus merged check evidence against all enabled
// rules, then the classifier. Rules take precedence: a classifier
// prediction for a pattern type already matched by a rule is dropped.
func (e *Engine) Recognize(ctx context.Context, event *fraud.TransactionEvent, merged map[string]any) ([]fraud.PatternMatch, error) {
	patternCtx := buildContext(event, merged)
	now := time.Now().UTC()

	var matches []fraud.PatternMatch

	e.rulesMu.RLock()
	for _, rule := range e.rules {
		if _, ok := e.enabled[rule.Name]; !ok {
			continue
		}
		if rule.Matches(patternCtx) {
			matches = append(matches, fraud.PatternMatch{
				Name:       rule.Name,
				Pattern:    rule.Pattern,
				FraudType:  rule.FraudType,
				Confidence: ruleConfidence,
				Severity:   rule.Severity,
				Evidence:   rule.Evidence(patternCtx),
				Timestamp:  now,
			})
		}
	}
	e.rulesMu.RUnlock()

	if e.classifier != nil && e.classifier.Trained() {
		for _, pred := range e.classifier.Predict(patternCtx) {
			if hasPattern(matches, pred.Pattern) {
				continue
			}
			matches = append(matches, fraud.PatternMatch{
				Name:       "ml_" + string(pred.Pattern),
				Pattern:    pred.Pattern,
				FraudType:  FraudTypeForPattern(pred.Pattern),
				Confidence: pred.Probability,
				Severity:   severityForConfidence(pred.Probability),
				Evidence:   map[string]any{"source": "classifier"},
				Timestamp:  now,
			})
		}
	}

	return matches, nil
}

// AddRule appends a rule at runtime.
func (e *Engine) AddRule(rule *Rule) {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	e.rules = append(e.rules, rule)
	if rule.Enabled {
		e.enabled[rule.Name] = struct{}{}
	}
}

// EnableRule turns a rule on without retraining anything.
func (e *Engine) EnableRule(name string) {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	e.enabled[name] = struct{}{}
}

// DisableRule turns a rule off without retraining anything.
func (e *Engine) DisableRule(name string) {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	delete(e.enabled, name)
}

// LearnFromReport buffers a manually confirmed report. Once the buffer
// reaches retrainThreshold the classifier is retrained and the buffer
// cleared.
func (e *Engine) LearnFromReport(ctx context.Context, fraudType fraud.Type, transactionID string, evidence map[string]any) error {
	if evidence == nil {
		evidence = map[string]any{}
	}

	e.bufMu.Lock()
	e.buffer = append(e.buffer, feedback{evidence: evidence, fraudType: fraudType})
	size := len(e.buffer)
	e.bufMu.Unlock()

	e.logger.Info("recorded fraud report for learning",
		zap.String("fraud_type", string(fraudType)),
		zap.String("transaction_id", transactionID),
		zap.Int("buffer_size", size))

	if size >= retrainThreshold {
		return e.batchTrain(ctx)
	}
	return nil
}

// batchTrain drains the feedback buffer into a classifier training run.
func (e *Engine) batchTrain(ctx context.Context) error {
	e.bufMu.Lock()
	if len(e.buffer) < minTrainSamples {
		e.bufMu.Unlock()
		return nil
	}
	pending := e.buffer
	e.buffer = nil
	e.bufMu.Unlock()

	e.logger.Info("batch training pattern classifier", zap.Int("reports", len(pending)))

	contexts := make([]map[string]any, len(pending))
	labels := make([]int, len(pending))
	for i, fb := range pending {
		contexts[i] = fb.evidence
		labels[i] = LabelForFraudType(fb.fraudType)
	}

	if e.classifier == nil {
		return nil
	}
	if err := e.classifier.Fit(contexts, labels); err != nil {
		e.logger.Warn("pattern classifier training failed", zap.Error(err))
		return err
	}
	return nil
}

// Train fits the classifier on externally supplied labeled contexts.
// Without labels there is nothing to learn from.
func (e *Engine) Train(ctx context.Context, contexts []map[string]any, labels []int) (map[string]any, error) {
	if len(labels) == 0 {
		return map[string]any{"status": "skipped", "reason": "no labels provided"}, nil
	}
	if e.classifier == nil {
		return map[string]any{"status": "skipped", "reason": "no classifier"}, nil
	}

	if err := e.classifier.Fit(contexts, labels); err != nil {
		return map[string]any{"status": "failed", "error": err.Error()}, err
	}
	return map[string]any{
		"status":  "trained",
		"samples": len(contexts),
	}, nil
}

// PendingReports returns the feedback buffer size.
func (e *Engine) PendingReports() int {
	e.bufMu.Lock()
	defer e.bufMu.Unlock()
	return len(e.buffer)
}

// Cleanup discards buffered feedback.
func (e *Engine) Cleanup() {
	e.bufMu.Lock()
	e.buffer = nil
	e.bufMu.Unlock()
}

// buildContext flattens the event and merged check evidence into the field
// space the rules and classifier understand.
func buildContext(event *fraud.TransactionEvent, merged map[string]any) map[string]any {
	hour := event.Timestamp.Hour()
	context := map[string]any{
		"amount":           event.Amount.Float64(),
		"hour":             hour,
		"day_of_week":      int(event.Timestamp.Weekday()),
		"is_weekend":       event.Timestamp.Weekday() == time.Saturday || event.Timestamp.Weekday() == time.Sunday,
		"is_night":         hour >= 22 || hour < 6,
		"transaction_type": string(event.Type),
	}

	for k, v := range merged {
		context[k] = v
	}

	if velocity, ok := merged["velocity"].(map[string]any); ok {
		context["transaction_count_1h"] = velocity["tx_count_1h"]
		if topups, ok := velocity["topup_count_1h"]; ok {
			context["topup_count_1h"] = topups
		}
	}
	if scores, ok := merged["anomaly_scores"].(map[string]float64); ok {
		if combined, ok := scores["combined"]; ok {
			context["anomaly_score"] = combined
		}
	}

	return context
}

func hasPattern(matches []fraud.PatternMatch, p fraud.PatternType) bool {
	for _, m := range matches {
		if m.Pattern == p {
			return true
		}
	}
	return false
}

func severityForConfidence(confidence float64) fraud.Severity {
	switch {
	case confidence >= 0.9:
		return fraud.SeverityCritical
	case confidence >= 0.7:
		return fraud.SeverityHigh
	case confidence >= 0.5:
		return fraud.SeverityMedium
	default:
		return fraud.SeverityLow
	}
}
