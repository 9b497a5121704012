package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewProfileFromHistory_Aggregates(t *testing.T) {
	now := time.Now().UTC()
	createdAt := now.Add(-200 * 24 * time.Hour)

	lat, lon := 48.85, 2.35
	history := []HistoryRecord{
		{Timestamp: now.Add(-2 * time.Hour), Amount: 20, DeviceID: "dev-1", Latitude: &lat, Longitude: &lon},
		{Timestamp: now.Add(-26 * time.Hour), Amount: 30, DeviceID: "dev-1"},
		{Timestamp: now.Add(-50 * time.Hour), Amount: 40, DeviceID: "dev-2"},
	}

	profile := NewProfileFromHistory("user-1", createdAt, 0, nil, history)

	assert.Equal(t, "user-1", profile.UserID)
	assert.Equal(t, 3, profile.TransactionCount)
	assert.InDelta(t, 30.0, profile.AvgTransactionAmount, 1e-9)
	assert.InDelta(t, 8.1649658, profile.StdTransactionAmount, 1e-6)
	assert.Len(t, profile.KnownDevices, 2)
	assert.Len(t, profile.KnownLocations, 1)
	// 90 < age < 365 days lifts trust from the neutral 0.5.
	assert.InDelta(t, 0.6, profile.TrustScore, 1e-9)
}

func TestNewProfileFromHistory_FraudLowersTrust(t *testing.T) {
	now := time.Now().UTC()
	lastFraud := now.Add(-5 * 24 * time.Hour)

	profile := NewProfileFromHistory("user-2", now.Add(-2*24*time.Hour), 5, &lastFraud, nil)

	// New account (-0.2) with fraud history capped at -0.3.
	assert.InDelta(t, 0.0, profile.TrustScore, 1e-9)
	assert.Equal(t, 5, profile.FraudCount)
	assert.Equal(t, &lastFraud, profile.LastFraudAt)
	assert.Equal(t, 0.0, profile.AvgTransactionAmount)
	assert.Equal(t, 0.0, profile.StdTransactionAmount)
}

func TestNewProfileFromHistory_LongStandingAccount(t *testing.T) {
	now := time.Now().UTC()
	profile := NewProfileFromHistory("user-3", now.Add(-400*24*time.Hour), 0, nil, nil)

	assert.InDelta(t, 0.7, profile.TrustScore, 1e-9)
}

func TestNewProfileFromHistory_BoundsCollections(t *testing.T) {
	now := time.Now().UTC()

	lat, lon := 48.85, 2.35
	var history []HistoryRecord
	for i := 0; i < 40; i++ {
		history = append(history, HistoryRecord{
			Timestamp: now.Add(-time.Duration(i) * time.Hour),
			Amount:    10,
			DeviceID:  "dev-" + string(rune('a'+i%26)),
			Latitude:  &lat,
			Longitude: &lon,
		})
	}

	profile := NewProfileFromHistory("user-4", now.Add(-10*24*time.Hour), 0, nil, history)

	assert.LessOrEqual(t, len(profile.KnownDevices), 10)
	assert.LessOrEqual(t, len(profile.TypicalHours), 12)
	assert.LessOrEqual(t, len(profile.KnownLocations), 10)
}
