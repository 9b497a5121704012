package anomaly

import (
	"math"
	"time"

	"github.com/mimi6060/festival/internal/domain/fraud"
)

// firstTransactionGap is the sentinel gap used when a user has no prior
// transactions.
const firstTransactionGap = 999999

// FeatureVector is the normalized numeric encoding of one transaction plus
// the user's rolling-window statistics. Recomputed per call, never persisted.
type FeatureVector struct {
	// Transaction features
	Amount        float64
	AmountZScore  float64
	IsRoundAmount bool

	// Temporal features
	HourOfDay          int
	DayOfWeek          int
	IsWeekend          bool
	IsNight            bool // 22:00 - 06:00
	MinutesSinceLastTx float64

	// Velocity features
	TxCount1h      int
	TxCount24h     int
	TotalAmount1h  float64
	TotalAmount24h float64

	// User behavior features
	AvgTxAmount      float64
	StdTxAmount      float64
	TxFrequencyDaily float64

	// Device/location features
	IsNewDevice       bool
	IsNewLocation     bool
	DistanceFromUsual float64 // km
}

// ToArray converts the vector into the fixed 18-dimensional normalized
// form consumed by pluggable scorers.
func (f *FeatureVector) ToArray() []float64 {
	return []float64{
		f.Amount,
		f.AmountZScore,
		boolToFloat(f.IsRoundAmount),
		float64(f.HourOfDay) / 24.0,
		float64(f.DayOfWeek) / 7.0,
		boolToFloat(f.IsWeekend),
		boolToFloat(f.IsNight),
		math.Min(f.MinutesSinceLastTx/60.0, 24.0),
		math.Min(float64(f.TxCount1h)/50.0, 1.0),
		math.Min(float64(f.TxCount24h)/200.0, 1.0),
		math.Min(f.TotalAmount1h/1000.0, 1.0),
		math.Min(f.TotalAmount24h/5000.0, 1.0),
		math.Min(f.AvgTxAmount/500.0, 1.0),
		math.Min(f.StdTxAmount/200.0, 1.0),
		math.Min(f.TxFrequencyDaily/20.0, 1.0),
		boolToFloat(f.IsNewDevice),
		boolToFloat(f.IsNewLocation),
		math.Min(f.DistanceFromUsual/100.0, 1.0),
	}
}

// NumFeatures is the dimensionality of the array form.
const NumFeatures = 18

// Summary returns the fields worth surfacing in scoring details.
func (f *FeatureVector) Summary() map[string]any {
	return map[string]any{
		"amount":             f.Amount,
		"amount_zscore":      math.Round(f.AmountZScore*100) / 100,
		"tx_count_1h":        f.TxCount1h,
		"tx_count_24h":       f.TxCount24h,
		"is_night":           f.IsNight,
		"is_weekend":         f.IsWeekend,
		"minutes_since_last": math.Round(f.MinutesSinceLastTx*10) / 10,
	}
}

// historyEntry is one remembered transaction in a user's rolling window.
type historyEntry struct {
	Timestamp time.Time
	Amount    float64
	Type      fraud.TransactionType
}

// userStats holds per-user running statistics derived from the rolling
// window, recomputed on every append.
type userStats struct {
	AvgAmount      float64
	StdAmount      float64
	FrequencyDaily float64
	KnownDevices   map[string]struct{}
}

// extractFeatures builds the feature vector for an event against the user's
// history. Callers must hold the per-user lock.
func extractFeatures(event *fraud.TransactionEvent, history []historyEntry, stats *userStats, globalMean, globalStd float64) *FeatureVector {
	amount := event.Amount.Float64()
	ts := event.Timestamp

	hour := ts.Hour()
	dow := int(ts.Weekday())
	isWeekend := ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday
	isNight := hour >= 22 || hour < 6

	minutesSinceLast := float64(firstTransactionGap)
	if len(history) > 0 {
		minutesSinceLast = ts.Sub(history[len(history)-1].Timestamp).Minutes()
	}

	oneHourAgo := ts.Add(-time.Hour)
	oneDayAgo := ts.Add(-24 * time.Hour)

	var count1h, count24h int
	var total1h, total24h float64
	for _, tx := range history {
		if tx.Timestamp.After(oneDayAgo) {
			count24h++
			total24h += tx.Amount
			if tx.Timestamp.After(oneHourAgo) {
				count1h++
				total1h += tx.Amount
			}
		}
	}

	avgAmount := amount
	stdAmount := 0.0
	freqDaily := 1.0
	isNewDevice := true
	if stats != nil {
		avgAmount = stats.AvgAmount
		stdAmount = stats.StdAmount
		freqDaily = stats.FrequencyDaily
		if event.DeviceID != "" {
			_, known := stats.KnownDevices[event.DeviceID]
			isNewDevice = !known
		}
	}

	zscore := (amount - globalMean) / (globalStd + 1e-10)

	return &FeatureVector{
		Amount:             amount,
		AmountZScore:       zscore,
		IsRoundAmount:      amount > 0 && amount == math.Round(amount),
		HourOfDay:          hour,
		DayOfWeek:          dow,
		IsWeekend:          isWeekend,
		IsNight:            isNight,
		MinutesSinceLastTx: minutesSinceLast,
		TxCount1h:          count1h,
		TxCount24h:         count24h,
		TotalAmount1h:      total1h,
		TotalAmount24h:     total24h,
		AvgTxAmount:        avgAmount,
		StdTxAmount:        stdAmount,
		TxFrequencyDaily:   freqDaily,
		IsNewDevice:        isNewDevice,
		IsNewLocation:      false,
		DistanceFromUsual:  0,
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}
