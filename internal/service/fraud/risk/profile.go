package risk

import (
	"math"
	"time"

	"github.com/mimi6060/festival/internal/domain/fraud"
)

// HistoryRecord is one historical transaction used to build a risk profile.
type HistoryRecord struct {
	Timestamp time.Time
	Amount    float64
	DeviceID  string
	Latitude  *float64
	Longitude *float64
}

// NewProfileFromHistory builds a UserRiskProfile from account data and
// recent transactions. Trust starts neutral and moves with account age and
// fraud history.
func NewProfileFromHistory(userID string, createdAt time.Time, fraudCount int, lastFraudAt *time.Time, history []HistoryRecord) *fraud.UserRiskProfile {
	now := time.Now().UTC()

	amounts := make([]float64, 0, len(history))
	hourSet := make(map[int]struct{})
	daySet := make(map[int]struct{})
	deviceSet := make(map[string]struct{})
	var locations [][2]float64

	for _, tx := range history {
		if tx.Amount > 0 {
			amounts = append(amounts, tx.Amount)
		}
		if !tx.Timestamp.IsZero() {
			hourSet[tx.Timestamp.Hour()] = struct{}{}
			daySet[int(tx.Timestamp.Weekday())] = struct{}{}
		}
		if tx.DeviceID != "" {
			deviceSet[tx.DeviceID] = struct{}{}
		}
		if tx.Latitude != nil && tx.Longitude != nil {
			locations = append(locations, [2]float64{*tx.Latitude, *tx.Longitude})
		}
	}

	accountAgeDays := int(now.Sub(createdAt).Hours() / 24)

	trust := 0.5
	switch {
	case accountAgeDays > 365:
		trust += 0.2
	case accountAgeDays > 90:
		trust += 0.1
	case accountAgeDays < 7:
		trust -= 0.2
	}
	if fraudCount > 0 {
		trust -= math.Min(0.3, float64(fraudCount)*0.1)
	}
	trust = math.Max(0, math.Min(1, trust))

	devices := make([]string, 0, len(deviceSet))
	for d := range deviceSet {
		if len(devices) == 10 {
			break
		}
		devices = append(devices, d)
	}

	hours := make([]int, 0, len(hourSet))
	for h := range hourSet {
		if len(hours) == 12 {
			break
		}
		hours = append(hours, h)
	}
	days := make([]int, 0, len(daySet))
	for d := range daySet {
		days = append(days, d)
	}

	if len(locations) > 10 {
		locations = locations[:10]
	}

	return &fraud.UserRiskProfile{
		UserID:               userID,
		TransactionCount:     len(history),
		FraudCount:           fraudCount,
		LastFraudAt:          lastFraudAt,
		AvgTransactionAmount: meanOf(amounts),
		StdTransactionAmount: stddevOf(amounts),
		TypicalHours:         hours,
		TypicalDays:          days,
		KnownDevices:         devices,
		KnownLocations:       locations,
		TrustScore:           trust,
		UpdatedAt:            now,
	}
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddevOf(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := meanOf(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}
