package fraud

import (
	"time"
)

// AnomalyFinding is the output of the anomaly engine for one event:
// per-signal scores in [0,1], the categories that fired, and a confidence.
type AnomalyFinding struct {
	IsAnomaly  bool               `json:"is_anomaly"`
	Scores     map[string]float64 `json:"scores"`
	Categories []AnomalyCategory  `json:"categories"`
	Confidence float64            `json:"confidence"`
	Details    map[string]any     `json:"details,omitempty"`
}

// PatternMatch is one recognized fraud pattern, either rule-derived or
// produced by a learned classifier.
type PatternMatch struct {
	Name       string         `json:"name"`
	Pattern    PatternType    `json:"pattern_type"`
	FraudType  Type           `json:"fraud_type"`
	Confidence float64        `json:"confidence"`
	Severity   Severity       `json:"severity"`
	Evidence   map[string]any `json:"evidence,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Factor names one of the independent contextual inputs to risk fusion.
type Factor string

const (
	FactorAnomaly    Factor = "anomaly"
	FactorPattern    Factor = "pattern"
	FactorVelocity   Factor = "velocity"
	FactorAmount     Factor = "amount"
	FactorTiming     Factor = "timing"
	FactorDevice     Factor = "device"
	FactorLocation   Factor = "location"
	FactorAccountAge Factor = "account_age"
	FactorHistory    Factor = "history"
	FactorManualFlag Factor = "manual_flag"
)

// AllFactors lists every risk factor in weight-vector order.
func AllFactors() []Factor {
	return []Factor{
		FactorAnomaly, FactorPattern, FactorVelocity, FactorAmount,
		FactorTiming, FactorDevice, FactorLocation, FactorAccountAge,
		FactorHistory, FactorManualFlag,
	}
}

// RiskScore is the fused assessment produced by the risk scorer.
type RiskScore struct {
	Score       float64            `json:"score"`
	Level       RiskLevel          `json:"level"`
	Confidence  float64            `json:"confidence"`
	Factors     map[Factor]float64 `json:"factors"`
	Explanation string             `json:"explanation"`
}

// ScoringResult is the outcome of one fraud check.
type ScoringResult struct {
	TransactionID   string         `json:"transaction_id"`
	Timestamp       time.Time      `json:"timestamp"`
	RiskScore       float64        `json:"risk_score"`
	RiskLevel       RiskLevel      `json:"risk_level"`
	FraudTypes      []Type         `json:"fraud_types"`
	Action          Action         `json:"action"`
	Confidence      float64        `json:"confidence"`
	Details         map[string]any `json:"details"`
	ProcessingTime  time.Duration  `json:"processing_time_ms"`
	ShouldBlock     bool           `json:"should_block"`
	AlertRequired   bool           `json:"alert_required"`
	Recommendations []string       `json:"recommendations"`
}

// Alert is an anonymized security notification. Alerts are never mutated
// after creation.
type Alert struct {
	ID                string         `json:"alert_id"`
	Timestamp         time.Time      `json:"timestamp"`
	Severity          Severity       `json:"severity"`
	FraudType         Type           `json:"fraud_type"`
	RiskScore         float64        `json:"risk_score"`
	TransactionID     string         `json:"transaction_id"`
	UserIDHash        string         `json:"user_id"`
	FestivalID        string         `json:"festival_id"`
	Description       string         `json:"description"`
	Evidence          map[string]any `json:"evidence"`
	RecommendedAction Action         `json:"recommended_action"`
	AutoBlocked       bool           `json:"auto_blocked"`
}

// UserRiskProfile summarizes a user's transaction history for risk factors
// that need more context than the sliding caches hold.
type UserRiskProfile struct {
	UserID               string       `json:"user_id"`
	BaseRisk             float64      `json:"base_risk"`
	TransactionCount     int          `json:"transaction_count"`
	FraudCount           int          `json:"fraud_count"`
	LastFraudAt          *time.Time   `json:"last_fraud_at,omitempty"`
	AvgTransactionAmount float64      `json:"avg_transaction_amount"`
	StdTransactionAmount float64      `json:"std_transaction_amount"`
	TypicalHours         []int        `json:"typical_hours"`
	TypicalDays          []int        `json:"typical_days"`
	KnownDevices         []string     `json:"known_devices"`
	KnownLocations       [][2]float64 `json:"known_locations"`
	TrustScore           float64      `json:"trust_score"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// KnowsDevice reports whether the device has been seen for this user.
func (p *UserRiskProfile) KnowsDevice(deviceID string) bool {
	if p == nil {
		return false
	}
	for _, d := range p.KnownDevices {
		if d == deviceID {
			return true
		}
	}
	return false
}
