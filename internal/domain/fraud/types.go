package fraud

// Type categorizes the kind of fraud detected or reported.
type Type string

const (
	TypeDuplicateTicket     Type = "duplicate_ticket"
	TypeFalsifiedTicket     Type = "falsified_ticket"
	TypeAbnormalTransaction Type = "abnormal_transaction"
	TypeMultipleAccounts    Type = "multiple_accounts"
	TypeSuspiciousBehavior  Type = "suspicious_behavior"
	TypeIllegalResale       Type = "illegal_resale"
	TypeVelocityAbuse       Type = "velocity_abuse"
	TypeGeolocationFraud    Type = "geolocation_fraud"
	TypeDeviceFraud         Type = "device_fraud"
	TypePaymentFraud        Type = "payment_fraud"
)

// IsCritical reports whether the fraud type forces an immediate block
// regardless of the numeric score.
func (t Type) IsCritical() bool {
	switch t {
	case TypeDuplicateTicket, TypeFalsifiedTicket, TypePaymentFraud:
		return true
	}
	return false
}

// Valid reports whether t is a known fraud type.
func (t Type) Valid() bool {
	switch t {
	case TypeDuplicateTicket, TypeFalsifiedTicket, TypeAbnormalTransaction,
		TypeMultipleAccounts, TypeSuspiciousBehavior, TypeIllegalResale,
		TypeVelocityAbuse, TypeGeolocationFraud, TypeDeviceFraud,
		TypePaymentFraud:
		return true
	}
	return false
}

// Action is the recommended disposition for a scored transaction.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionFlag   Action = "flag"
	ActionReview Action = "review"
	ActionBlock  Action = "block"
)

// RiskLevel buckets a numeric risk score for human consumption.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevelForScore maps a 0-100 score to a risk level.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 75:
		return RiskCritical
	case score >= 50:
		return RiskHigh
	case score >= 30:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Severity grades alerts and pattern matches.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityForScore maps a 0-100 score to an alert severity.
func SeverityForScore(score float64) Severity {
	switch {
	case score >= 90:
		return SeverityCritical
	case score >= 75:
		return SeverityHigh
	case score >= 50:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Weight returns the fusion weight associated with a severity.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 1.0
	case SeverityHigh:
		return 0.7
	case SeverityMedium:
		return 0.4
	default:
		return 0.2
	}
}

// TransactionType distinguishes the kinds of events that flow through scoring.
type TransactionType string

const (
	TransactionTicketPurchase  TransactionType = "ticket_purchase"
	TransactionCashlessTopUp   TransactionType = "cashless_topup"
	TransactionCashlessPayment TransactionType = "cashless_payment"
	TransactionTicketScan      TransactionType = "ticket_scan"
)

// Monetary reports whether this transaction type carries an amount that
// feeds anomaly scoring.
func (t TransactionType) Monetary() bool {
	switch t {
	case TransactionTicketPurchase, TransactionCashlessTopUp, TransactionCashlessPayment:
		return true
	}
	return false
}

// AnomalyCategory names the statistical signal that produced a finding.
type AnomalyCategory string

const (
	AnomalyAmount     AnomalyCategory = "amount"
	AnomalyFrequency  AnomalyCategory = "frequency"
	AnomalyTiming     AnomalyCategory = "timing"
	AnomalyBehavioral AnomalyCategory = "behavioral"
	AnomalyVelocity   AnomalyCategory = "velocity"
	AnomalyPattern    AnomalyCategory = "pattern"
)

// PatternType identifies a recognized behavioral fraud pattern.
type PatternType string

const (
	PatternTicketResale      PatternType = "ticket_resale"
	PatternBulkPurchase      PatternType = "bulk_purchase"
	PatternDeviceSharing     PatternType = "device_sharing"
	PatternRapidTransactions PatternType = "rapid_transactions"
	PatternUnusualHours      PatternType = "unusual_hours"
	PatternGeographicAnomaly PatternType = "geographic_anomaly"
	PatternPriceManipulation PatternType = "price_manipulation"
	PatternCoordinatedFraud  PatternType = "coordinated_fraud"
	PatternNewAccountAbuse   PatternType = "new_account_abuse"
	PatternRefundAbuse       PatternType = "refund_abuse"
)
