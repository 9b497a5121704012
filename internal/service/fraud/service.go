package fraud

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/mimi6060/festival/internal/domain/errors"
	domain "github.com/mimi6060/festival/internal/domain/fraud"
)

var (
	reportValidator = validator.New()
	tracer          = otel.Tracer("festival.fraud")
)

type service struct {
	logger *zap.Logger
	cfg    Config

	anomalies AnomalyDetector
	patterns  PatternRecognizer
	scorer    RiskScorer
	metrics   MetricsRecorder

	ticketScans   *ticketScanCache
	userTxs       *userTxCache
	deviceUsers   *fanOutCache
	ipUsers       *fanOutCache
	userLocations *locationCache

	alerts     *alertStore
	dispatcher *alertDispatcher

	statsMu sync.Mutex
	stats   Statistics
}

// NewService assembles the fraud detector from its engines. A nil sink
// disables alert delivery and a nil metrics recorder disables telemetry;
// scoring works the same either way.
func NewService(
	logger *zap.Logger,
	cfg Config,
	anomalies AnomalyDetector,
	patterns PatternRecognizer,
	scorer RiskScorer,
	sink NotificationSink,
	metrics MetricsRecorder,
) Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &service{
		logger:        logger,
		cfg:           cfg,
		anomalies:     anomalies,
		patterns:      patterns,
		scorer:        scorer,
		metrics:       metrics,
		ticketScans:   newTicketScanCache(cfg.TicketScanWindow, cfg.TicketScanCap),
		userTxs:       newUserTxCache(cfg.UserTxCap),
		deviceUsers:   newFanOutCache(cfg.FanOutWindow, cfg.FanOutUserCap),
		ipUsers:       newFanOutCache(cfg.FanOutWindow, cfg.FanOutUserCap),
		userLocations: newLocationCache(cfg.FanOutWindow),
		alerts:        newAlertStore(cfg.AlertCap),
		dispatcher:    newAlertDispatcher(logger, sink, cfg.AlertRatePerMinute),
	}
}

func (s *service) Score(ctx context.Context, event *domain.TransactionEvent) (result *domain.ScoringResult, err error) {
	start := time.Now()

	if event == nil {
		return nil, errors.ErrInvalidInput
	}
	if err := event.Validate(); err != nil {
		return nil, errors.NewValidationError("INVALID_EVENT", "transaction event failed validation").WithCause(err)
	}
	if event.Timestamp.IsZero() {
		stamped := *event
		stamped.Timestamp = time.Now().UTC()
		event = &stamped
	}

	// Past validation the caller never sees a fault: a panic anywhere in
	// the pipeline degrades to the fail-open result.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic during fraud check",
				zap.String("transaction_id", event.TransactionID),
				zap.Any("panic", r))
			result = s.failOpen(event, start, fmt.Errorf("panic: %v", r))
			err = nil
		}
	}()

	ctx, span := tracer.Start(ctx, "fraud.score")
	defer span.End()
	span.SetAttributes(
		attribute.String("transaction.id", event.TransactionID),
		attribute.String("transaction.type", string(event.Type)),
	)

	checks := []struct {
		name string
		run  func(context.Context, *domain.TransactionEvent) (checkOutcome, error)
	}{
		{"ticket_fraud", s.checkTicketFraud},
		{"anomaly", s.checkAnomalies},
		{"multiple_accounts", s.checkMultipleAccounts},
		{"velocity", s.checkVelocity},
		{"geolocation", s.checkGeolocation},
	}

	outcomes := make([]checkOutcome, len(checks))
	checkErrs := make([]error, len(checks))

	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					checkErrs[i] = errors.NewInternalError(
						fmt.Sprintf("%s check panicked: %v", c.name, r))
				}
			}()
			outcomes[i], checkErrs[i] = c.run(ctx, event)
		}()
	}
	wg.Wait()

	var fraudTypes []domain.Type
	details := make(map[string]any)

	for i, c := range checks {
		if checkErrs[i] != nil {
			// A failed sub-check degrades coverage, never availability.
			s.logger.Error("fraud check failed",
				zap.String("check", c.name),
				zap.String("transaction_id", event.TransactionID),
				zap.Error(checkErrs[i]))
			s.metrics.RecordCheckFailure(c.name)
			continue
		}
		for _, t := range outcomes[i].fraudTypes {
			if !containsType(fraudTypes, t) {
				fraudTypes = append(fraudTypes, t)
			}
		}
		for k, v := range outcomes[i].details {
			details[k] = v
		}
	}

	matches, err := s.patterns.Recognize(ctx, event, details)
	if err != nil {
		s.logger.Error("pattern recognition failed",
			zap.String("transaction_id", event.TransactionID),
			zap.Error(err))
		s.metrics.RecordCheckFailure("pattern")
		matches = nil
	}
	for _, m := range matches {
		if !containsType(fraudTypes, m.FraudType) {
			fraudTypes = append(fraudTypes, m.FraudType)
		}
		details["pattern_"+m.Name] = map[string]any{
			"confidence": m.Confidence,
			"evidence":   m.Evidence,
		}
	}

	anomalyScores, _ := details["anomaly_scores"].(map[string]float64)

	riskScore, err := s.scorer.Score(ctx, event, fraudTypes, anomalyScores, matches, details)
	if err != nil {
		s.logger.Error("risk scoring failed",
			zap.String("transaction_id", event.TransactionID),
			zap.Error(err))
		s.metrics.RecordCheckFailure("risk_scorer")
		return s.failOpen(event, start, err), nil
	}

	action, shouldBlock, alertRequired := determineAction(s.cfg, riskScore.Score, fraudTypes, velocityBurst(details))
	span.SetAttributes(
		attribute.Float64("fraud.risk_score", riskScore.Score),
		attribute.String("fraud.action", string(action)),
	)

	result = &domain.ScoringResult{
		TransactionID:   event.TransactionID,
		Timestamp:       time.Now().UTC(),
		RiskScore:       riskScore.Score,
		RiskLevel:       riskScore.Level,
		FraudTypes:      fraudTypes,
		Action:          action,
		Confidence:      riskScore.Confidence,
		Details:         details,
		ProcessingTime:  time.Since(start),
		ShouldBlock:     shouldBlock,
		AlertRequired:   alertRequired,
		Recommendations: generateRecommendations(fraudTypes, riskScore.Score),
	}

	s.updateStats(result)
	s.metrics.ObserveCheck(action, riskScore.Score, result.ProcessingTime)

	if alertRequired {
		alert := s.buildAlert(event, result)
		s.alerts.Append(*alert)
		s.metrics.RecordAlert(alert.Severity)
		s.incrementAlertCount()
		s.logger.Warn("fraud alert generated",
			zap.String("alert_id", alert.ID),
			zap.String("severity", string(alert.Severity)),
			zap.Float64("risk_score", result.RiskScore))
		s.dispatcher.Dispatch(ctx, alert)
	}

	if result.ProcessingTime > s.cfg.SoftBudget {
		s.logger.Warn("fraud check exceeded time budget",
			zap.Duration("elapsed", result.ProcessingTime),
			zap.Duration("budget", s.cfg.SoftBudget),
			zap.String("transaction_id", event.TransactionID))
	}

	return result, nil
}

// failOpen returns the safe default after an internal fault. The
// transaction goes through; the fault is logged and surfaced in details.
func (s *service) failOpen(event *domain.TransactionEvent, start time.Time, cause error) *domain.ScoringResult {
	result := &domain.ScoringResult{
		TransactionID:   event.TransactionID,
		Timestamp:       time.Now().UTC(),
		RiskScore:       0,
		RiskLevel:       domain.RiskLow,
		FraudTypes:      []domain.Type{},
		Action:          domain.ActionAllow,
		Confidence:      0,
		Details:         map[string]any{"error": cause.Error()},
		ProcessingTime:  time.Since(start),
		Recommendations: []string{"Error during check - manual review recommended"},
	}
	s.updateStats(result)
	s.metrics.ObserveCheck(result.Action, 0, result.ProcessingTime)
	return result
}

// determineAction maps a fused score and the detected fraud types onto an
// action. Critical fraud types block unconditionally; a confirmed 5-minute
// burst escalates to review even when the fused score stays below the
// review threshold.
func determineAction(cfg Config, score float64, fraudTypes []domain.Type, burst bool) (domain.Action, bool, bool) {
	for _, t := range fraudTypes {
		if t.IsCritical() {
			return domain.ActionBlock, true, true
		}
	}

	switch {
	case score >= cfg.BlockThreshold:
		return domain.ActionBlock, true, true
	case score >= cfg.ReviewThreshold || burst:
		return domain.ActionReview, false, score >= cfg.AlertThreshold
	case score >= cfg.FlagThreshold:
		return domain.ActionFlag, false, false
	default:
		return domain.ActionAllow, false, false
	}
}

// velocityBurst reports whether the velocity check confirmed burst
// activity in its 5-minute window.
func velocityBurst(details map[string]any) bool {
	velocity, ok := details["velocity"].(map[string]any)
	if !ok {
		return false
	}
	flags, ok := velocity["flags"].([]string)
	if !ok {
		return false
	}
	for _, f := range flags {
		if f == "burst_activity" {
			return true
		}
	}
	return false
}

func generateRecommendations(fraudTypes []domain.Type, score float64) []string {
	var recs []string

	if containsType(fraudTypes, domain.TypeDuplicateTicket) {
		recs = append(recs,
			"Verify ticket holder identity with photo ID",
			"Check if original ticket was reported lost/stolen")
	}
	if containsType(fraudTypes, domain.TypeMultipleAccounts) {
		recs = append(recs,
			"Verify user accounts are legitimate (different people)",
			"Consider requiring additional verification")
	}
	if containsType(fraudTypes, domain.TypeVelocityAbuse) {
		recs = append(recs,
			"Apply temporary rate limiting to this user",
			"Review transaction history for patterns")
	}
	if containsType(fraudTypes, domain.TypeAbnormalTransaction) {
		recs = append(recs, "Review transaction amount against user history")
	}
	if containsType(fraudTypes, domain.TypeIllegalResale) {
		recs = append(recs,
			"Check ticket purchase price vs. festival price",
			"Review if user has bought many tickets for resale")
	}

	if score >= 50 && len(recs) == 0 {
		recs = append(recs, "Manual review recommended due to elevated risk score")
	}
	return recs
}

func (s *service) buildAlert(event *domain.TransactionEvent, result *domain.ScoringResult) *domain.Alert {
	primary := domain.TypeSuspiciousBehavior
	if len(result.FraudTypes) > 0 {
		primary = result.FraudTypes[0]
	}

	return &domain.Alert{
		ID:                fmt.Sprintf("alert_%s_%s", event.TransactionID, uuid.NewString()[:8]),
		Timestamp:         time.Now().UTC(),
		Severity:          domain.SeverityForScore(result.RiskScore),
		FraudType:         primary,
		RiskScore:         result.RiskScore,
		TransactionID:     event.TransactionID,
		UserIDHash:        hashForGDPR(event.UserID),
		FestivalID:        event.FestivalID,
		Description:       describeAlert(result),
		Evidence:          anonymizeEvidence(result.Details),
		RecommendedAction: result.Action,
		AutoBlocked:       result.ShouldBlock,
	}
}

func describeAlert(result *domain.ScoringResult) string {
	names := make([]string, len(result.FraudTypes))
	for i, t := range result.FraudTypes {
		names[i] = titleCase(string(t))
	}

	switch len(names) {
	case 0:
		return fmt.Sprintf("Suspicious activity detected (risk score: %.0f)", result.RiskScore)
	case 1:
		return fmt.Sprintf("%s detected (risk score: %.0f)", names[0], result.RiskScore)
	default:
		return fmt.Sprintf("Multiple fraud indicators: %s (risk score: %.0f)",
			strings.Join(names, ", "), result.RiskScore)
	}
}

func titleCase(snake string) string {
	words := strings.Split(snake, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func (s *service) ReportFraud(ctx context.Context, report ManualReport) (*domain.Alert, error) {
	if err := reportValidator.Struct(report); err != nil {
		return nil, errors.NewValidationError("INVALID_REPORT", "manual fraud report failed validation").WithCause(err)
	}
	if !report.FraudType.Valid() {
		return nil, errors.ErrUnknownFraudType
	}

	evidence := map[string]any{
		"reporter_id":   hashForGDPR(report.ReporterID),
		"manual_report": true,
	}
	for k, v := range anonymizeEvidence(report.Evidence) {
		evidence[k] = v
	}

	alert := &domain.Alert{
		ID:                fmt.Sprintf("manual_%s_%s", report.TransactionID, uuid.NewString()[:8]),
		Timestamp:         time.Now().UTC(),
		Severity:          domain.SeverityHigh,
		FraudType:         report.FraudType,
		RiskScore:         80,
		TransactionID:     report.TransactionID,
		UserIDHash:        hashForGDPR(report.UserID),
		FestivalID:        report.FestivalID,
		Description:       "Manual report: " + report.Description,
		Evidence:          evidence,
		RecommendedAction: domain.ActionReview,
		AutoBlocked:       false,
	}

	s.alerts.Append(*alert)
	s.metrics.RecordAlert(alert.Severity)
	s.incrementAlertCount()

	s.logger.Info("manual fraud report created",
		zap.String("alert_id", alert.ID),
		zap.String("fraud_type", string(report.FraudType)))

	if err := s.patterns.LearnFromReport(ctx, report.FraudType, report.TransactionID, report.Evidence); err != nil {
		s.logger.Error("pattern learning from report failed",
			zap.String("alert_id", alert.ID),
			zap.Error(err))
	}

	return alert, nil
}

func (s *service) Train(ctx context.Context, samples []map[string]any, labels []int) (map[string]any, error) {
	s.logger.Info("starting model training", zap.Int("samples", len(samples)))

	anonymized := make([]map[string]any, len(samples))
	for i, sample := range samples {
		anonymized[i] = anonymizeForTraining(sample)
	}

	anomalyMetrics, err := s.anomalies.Train(ctx, anonymized)
	if err != nil {
		return nil, errors.Wrap(err, "anomaly engine training failed")
	}
	patternMetrics, err := s.patterns.Train(ctx, anonymized, labels)
	if err != nil {
		return nil, errors.Wrap(err, "pattern engine training failed")
	}
	scorerMetrics, err := s.scorer.Calibrate(ctx, anonymized, labels)
	if err != nil {
		return nil, errors.Wrap(err, "risk scorer calibration failed")
	}

	metrics := map[string]any{
		"samples":            len(samples),
		"anomaly_detector":   anomalyMetrics,
		"pattern_recognizer": patternMetrics,
		"risk_scorer":        scorerMetrics,
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
	}

	s.logger.Info("model training completed", zap.Int("samples", len(samples)))
	return metrics, nil
}

func (s *service) Statistics() Statistics {
	s.statsMu.Lock()
	snapshot := s.stats
	s.statsMu.Unlock()

	snapshot.PendingAlerts = s.alerts.Len()
	snapshot.CacheSizes = s.cacheSizes()
	return snapshot
}

func (s *service) cacheSizes() CacheSizes {
	return CacheSizes{
		TicketScans:      s.ticketScans.Len(),
		UserTransactions: s.userTxs.Len(),
		DeviceUsers:      s.deviceUsers.Len(),
		IPUsers:          s.ipUsers.Len(),
		UserLocations:    s.userLocations.Len(),
	}
}

func (s *service) Alerts(query AlertQuery) []domain.Alert {
	return s.alerts.Query(query)
}

func (s *service) Cleanup(ctx context.Context) error {
	s.ticketScans.Clear()
	s.userTxs.Clear()
	s.deviceUsers.Clear()
	s.ipUsers.Clear()
	s.userLocations.Clear()

	s.anomalies.Cleanup()
	s.patterns.Cleanup()

	s.logger.Info("fraud detector cleanup completed")
	return nil
}

func (s *service) updateStats(result *domain.ScoringResult) {
	s.statsMu.Lock()
	s.stats.TotalChecks++
	if result.ShouldBlock {
		s.stats.Blocked++
	} else if result.Action == domain.ActionFlag || result.Action == domain.ActionReview {
		s.stats.Flagged++
	}

	n := float64(s.stats.TotalChecks)
	elapsed := float64(result.ProcessingTime.Microseconds()) / 1000.0
	s.stats.AvgProcessingTimeMs = (s.stats.AvgProcessingTimeMs*(n-1) + elapsed) / n
	s.statsMu.Unlock()

	s.metrics.SetCacheSizes(s.cacheSizes())
}

func (s *service) incrementAlertCount() {
	s.statsMu.Lock()
	s.stats.AlertsGenerated++
	s.statsMu.Unlock()
}

type nopMetrics struct{}

func (nopMetrics) ObserveCheck(domain.Action, float64, time.Duration) {}
func (nopMetrics) RecordCheckFailure(string)                         {}
func (nopMetrics) RecordAlert(domain.Severity)                       {}
func (nopMetrics) SetCacheSizes(CacheSizes)                          {}
