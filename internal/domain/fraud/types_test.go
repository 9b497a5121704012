package fraud

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestType_IsCritical(t *testing.T) {
	assert.True(t, TypeDuplicateTicket.IsCritical())
	assert.True(t, TypeFalsifiedTicket.IsCritical())
	assert.True(t, TypePaymentFraud.IsCritical())

	assert.False(t, TypeVelocityAbuse.IsCritical())
	assert.False(t, TypeMultipleAccounts.IsCritical())
	assert.False(t, TypeSuspiciousBehavior.IsCritical())
}

func TestType_Valid(t *testing.T) {
	assert.True(t, TypeIllegalResale.Valid())
	assert.True(t, TypeGeolocationFraud.Valid())
	assert.False(t, Type("made_up").Valid())
	assert.False(t, Type("").Valid())
}

func TestRiskLevelForScore(t *testing.T) {
	assert.Equal(t, RiskLow, RiskLevelForScore(0))
	assert.Equal(t, RiskLow, RiskLevelForScore(29.9))
	assert.Equal(t, RiskMedium, RiskLevelForScore(30))
	assert.Equal(t, RiskHigh, RiskLevelForScore(50))
	assert.Equal(t, RiskCritical, RiskLevelForScore(75))
	assert.Equal(t, RiskCritical, RiskLevelForScore(100))
}

func TestSeverityForScore(t *testing.T) {
	assert.Equal(t, SeverityLow, SeverityForScore(10))
	assert.Equal(t, SeverityMedium, SeverityForScore(50))
	assert.Equal(t, SeverityHigh, SeverityForScore(75))
	assert.Equal(t, SeverityCritical, SeverityForScore(90))
}

func TestSeverity_Weight(t *testing.T) {
	assert.Greater(t, SeverityCritical.Weight(), SeverityHigh.Weight())
	assert.Greater(t, SeverityHigh.Weight(), SeverityMedium.Weight())
	assert.Greater(t, SeverityMedium.Weight(), SeverityLow.Weight())
}

func TestTransactionType_Monetary(t *testing.T) {
	assert.True(t, TransactionTicketPurchase.Monetary())
	assert.True(t, TransactionCashlessTopUp.Monetary())
	assert.True(t, TransactionCashlessPayment.Monetary())
	assert.False(t, TransactionTicketScan.Monetary())
}
