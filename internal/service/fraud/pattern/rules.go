package pattern

import (
	"github.com/mimi6060/festival/internal/domain/fraud"
)

// ruleConfidence is the fixed confidence assigned to rule-derived matches.
const ruleConfidence = 0.8

// Condition constrains one context field. Nil comparators are not applied;
// a missing context field makes the whole rule not match.
type Condition struct {
	GT      *float64
	LT      *float64
	GTE     *float64
	LTE     *float64
	EQ      *float64
	InRange *[2]float64
	Is      *bool
}

// Rule is a declarative fraud pattern: every condition must hold for the
// rule to match.
type Rule struct {
	Name       string
	Pattern    fraud.PatternType
	FraudType  fraud.Type
	Conditions map[string]Condition
	Severity   fraud.Severity
	Enabled    bool
}

// Matches evaluates the rule against a context. Fields absent from the
// context fail the rule rather than being treated as zero.
func (r *Rule) Matches(context map[string]any) bool {
	for field, cond := range r.Conditions {
		raw, ok := context[field]
		if !ok || raw == nil {
			return false
		}

		if cond.Is != nil {
			b, ok := raw.(bool)
			if !ok || b != *cond.Is {
				return false
			}
			continue
		}

		value, ok := numericValue(raw)
		if !ok {
			return false
		}
		if cond.GT != nil && !(value > *cond.GT) {
			return false
		}
		if cond.LT != nil && !(value < *cond.LT) {
			return false
		}
		if cond.GTE != nil && !(value >= *cond.GTE) {
			return false
		}
		if cond.LTE != nil && !(value <= *cond.LTE) {
			return false
		}
		if cond.EQ != nil && value != *cond.EQ {
			return false
		}
		if cond.InRange != nil && (value < cond.InRange[0] || value > cond.InRange[1]) {
			return false
		}
	}
	return true
}

// Evidence extracts the context fields the rule's conditions looked at.
func (r *Rule) Evidence(context map[string]any) map[string]any {
	evidence := make(map[string]any, len(r.Conditions))
	for field := range r.Conditions {
		if v, ok := context[field]; ok {
			evidence[field] = v
		}
	}
	return evidence
}

// DefaultRules returns the built-in rule set covering the known festival
// fraud patterns.
func DefaultRules() []*Rule {
	return []*Rule{
		{
			Name:      "bulk_ticket_purchase",
			Pattern:   fraud.PatternBulkPurchase,
			FraudType: fraud.TypeIllegalResale,
			Conditions: map[string]Condition{
				"ticket_count_24h":  gt(10),
				"unique_categories": gt(3),
			},
			Severity: fraud.SeverityHigh,
			Enabled:  true,
		},
		{
			Name:      "rapid_topup_pattern",
			Pattern:   fraud.PatternRapidTransactions,
			FraudType: fraud.TypeVelocityAbuse,
			Conditions: map[string]Condition{
				"topup_count_1h":       gt(5),
				"avg_interval_minutes": lt(5),
			},
			Severity: fraud.SeverityMedium,
			Enabled:  true,
		},
		{
			Name:      "device_sharing_pattern",
			Pattern:   fraud.PatternDeviceSharing,
			FraudType: fraud.TypeMultipleAccounts,
			Conditions: map[string]Condition{
				"users_per_device":         gt(3),
				"transactions_from_device": gt(20),
			},
			Severity: fraud.SeverityHigh,
			Enabled:  true,
		},
		{
			Name:      "night_transaction_pattern",
			Pattern:   fraud.PatternUnusualHours,
			FraudType: fraud.TypeSuspiciousBehavior,
			Conditions: map[string]Condition{
				"hour":                 inRange(2, 5),
				"amount":               gt(100),
				"is_first_transaction": is(true),
			},
			Severity: fraud.SeverityMedium,
			Enabled:  true,
		},
		{
			Name:      "new_account_high_volume",
			Pattern:   fraud.PatternNewAccountAbuse,
			FraudType: fraud.TypeSuspiciousBehavior,
			Conditions: map[string]Condition{
				"account_age_hours": lt(24),
				"transaction_count": gt(10),
				"total_amount":      gt(500),
			},
			Severity: fraud.SeverityHigh,
			Enabled:  true,
		},
		{
			Name:      "refund_abuse_pattern",
			Pattern:   fraud.PatternRefundAbuse,
			FraudType: fraud.TypePaymentFraud,
			Conditions: map[string]Condition{
				"refund_count_30d": gt(3),
				"refund_rate":      gt(0.5),
			},
			Severity: fraud.SeverityHigh,
			Enabled:  true,
		},
		{
			Name:      "coordinated_purchase_pattern",
			Pattern:   fraud.PatternCoordinatedFraud,
			FraudType: fraud.TypeIllegalResale,
			Conditions: map[string]Condition{
				"users_per_ip":        gt(5),
				"ticket_count_per_ip": gt(20),
				"time_window_minutes": lt(30),
			},
			Severity: fraud.SeverityCritical,
			Enabled:  true,
		},
		{
			Name:      "impossible_travel",
			Pattern:   fraud.PatternGeographicAnomaly,
			FraudType: fraud.TypeGeolocationFraud,
			Conditions: map[string]Condition{
				"distance_km":        gt(500),
				"time_between_hours": lt(2),
			},
			Severity: fraud.SeverityHigh,
			Enabled:  true,
		},
	}
}

func gt(v float64) Condition { return Condition{GT: &v} }
func lt(v float64) Condition { return Condition{LT: &v} }
func is(v bool) Condition    { return Condition{Is: &v} }
func inRange(low, high float64) Condition {
	r := [2]float64{low, high}
	return Condition{InRange: &r}
}

func numericValue(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
