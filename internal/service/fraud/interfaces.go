package fraud

import (
	"context"
	"time"

	domain "github.com/mimi6060/festival/internal/domain/fraud"
)

// Service is the fraud detection entry point.
type Service interface {
	// Score checks one transaction in real time. It never returns an error
	// for a well-formed event: internal faults degrade to a fail-open
	// allow result.
	Score(ctx context.Context, event *domain.TransactionEvent) (*domain.ScoringResult, error)

	// ReportFraud records a staff-initiated fraud report, bypassing
	// scoring, and feeds the pattern learning buffer.
	ReportFraud(ctx context.Context, report ManualReport) (*domain.Alert, error)

	// Train retrains the underlying engines on anonymized samples.
	Train(ctx context.Context, samples []map[string]any, labels []int) (map[string]any, error)

	// Statistics returns a read-only snapshot of counters and cache sizes.
	Statistics() Statistics

	// Alerts returns generated alerts, newest first.
	Alerts(query AlertQuery) []domain.Alert

	// Cleanup clears all sliding caches and engine state.
	Cleanup(ctx context.Context) error
}

// ManualReport is a staff-initiated fraud report.
type ManualReport struct {
	TransactionID string         `json:"transaction_id" validate:"required"`
	UserID        string         `json:"user_id" validate:"required"`
	FestivalID    string         `json:"festival_id" validate:"required"`
	FraudType     domain.Type    `json:"fraud_type" validate:"required"`
	Description   string         `json:"description"`
	ReporterID    string         `json:"reporter_id" validate:"required"`
	Evidence      map[string]any `json:"evidence,omitempty"`
}

// AlertQuery filters the alert store.
type AlertQuery struct {
	Limit    int
	Severity domain.Severity
	Since    time.Time
}

// Statistics is a snapshot of detector counters.
type Statistics struct {
	TotalChecks         int64      `json:"total_checks"`
	Blocked             int64      `json:"blocked"`
	Flagged             int64      `json:"flagged"`
	AlertsGenerated     int64      `json:"alerts_generated"`
	AvgProcessingTimeMs float64    `json:"avg_processing_time_ms"`
	PendingAlerts       int        `json:"pending_alerts"`
	CacheSizes          CacheSizes `json:"cache_sizes"`
}

// CacheSizes reports the entry counts of the sliding caches.
type CacheSizes struct {
	TicketScans      int `json:"ticket_scans"`
	UserTransactions int `json:"user_transactions"`
	DeviceUsers      int `json:"device_users"`
	IPUsers          int `json:"ip_users"`
	UserLocations    int `json:"user_locations"`
}

// AnomalyDetector scores a transaction against statistical and learned
// anomaly models.
type AnomalyDetector interface {
	Detect(ctx context.Context, event *domain.TransactionEvent) (*domain.AnomalyFinding, error)
	Train(ctx context.Context, samples []map[string]any) (map[string]any, error)
	TrackedUsers() int
	Cleanup()
}

// PatternRecognizer matches transactions against declarative and learned
// fraud patterns.
type PatternRecognizer interface {
	Recognize(ctx context.Context, event *domain.TransactionEvent, merged map[string]any) ([]domain.PatternMatch, error)
	LearnFromReport(ctx context.Context, fraudType domain.Type, transactionID string, evidence map[string]any) error
	Train(ctx context.Context, contexts []map[string]any, labels []int) (map[string]any, error)
	Cleanup()
}

// RiskScorer fuses check evidence into a calibrated risk score.
type RiskScorer interface {
	Score(ctx context.Context, event *domain.TransactionEvent, fraudTypes []domain.Type,
		anomalyScores map[string]float64, patternMatches []domain.PatternMatch,
		checkContext map[string]any) (*domain.RiskScore, error)
	Calibrate(ctx context.Context, samples []map[string]any, labels []int) (map[string]any, error)
}

// MetricsRecorder receives scoring telemetry. Implementations must be
// safe for concurrent use.
type MetricsRecorder interface {
	ObserveCheck(action domain.Action, score float64, elapsed time.Duration)
	RecordCheckFailure(check string)
	RecordAlert(severity domain.Severity)
	SetCacheSizes(sizes CacheSizes)
}

// NotificationSink delivers alerts to the security team.
type NotificationSink interface {
	Deliver(ctx context.Context, alert *domain.Alert) error
}
