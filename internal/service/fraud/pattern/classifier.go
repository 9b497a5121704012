package pattern

import (
	"math"
	"sync"

	"github.com/mimi6060/festival/internal/domain/errors"
	"github.com/mimi6060/festival/internal/domain/fraud"
)

// predictionThreshold drops classifier outputs below this probability.
const predictionThreshold = 0.3

// Prediction is one classifier output: a pattern type and its probability.
type Prediction struct {
	Pattern     fraud.PatternType
	Probability float64
}

// Classifier is a pluggable learned pattern model. Implementations are
// read-mostly and must tolerate concurrent Predict calls.
type Classifier interface {
	// Trained reports whether the classifier can produce predictions.
	Trained() bool

	// Predict returns pattern predictions for a vectorized context. Only
	// predictions above predictionThreshold are returned.
	Predict(context map[string]any) []Prediction

	// Fit trains the classifier on labeled contexts. Label 0 means
	// legitimate; positive labels follow LabelForFraudType.
	Fit(contexts []map[string]any, labels []int) error
}

// LabelForFraudType maps a fraud type onto the classifier's label space.
// Unknown types map to 0 (legitimate).
func LabelForFraudType(t fraud.Type) int {
	switch t {
	case fraud.TypeIllegalResale:
		return 1
	case fraud.TypeVelocityAbuse:
		return 2
	case fraud.TypeMultipleAccounts:
		return 3
	case fraud.TypeSuspiciousBehavior:
		return 4
	case fraud.TypeGeolocationFraud:
		return 5
	case fraud.TypePaymentFraud:
		return 6
	}
	return 0
}

// patternForLabel is the inverse direction: label to the pattern type the
// classifier reports.
func patternForLabel(label int) (fraud.PatternType, bool) {
	switch label {
	case 1:
		return fraud.PatternTicketResale, true
	case 2:
		return fraud.PatternRapidTransactions, true
	case 3:
		return fraud.PatternDeviceSharing, true
	case 4:
		return fraud.PatternNewAccountAbuse, true
	case 5:
		return fraud.PatternGeographicAnomaly, true
	case 6:
		return fraud.PatternRefundAbuse, true
	}
	return "", false
}

// FraudTypeForPattern maps a pattern type back to the fraud type it
// indicates.
func FraudTypeForPattern(p fraud.PatternType) fraud.Type {
	switch p {
	case fraud.PatternTicketResale, fraud.PatternBulkPurchase, fraud.PatternCoordinatedFraud:
		return fraud.TypeIllegalResale
	case fraud.PatternDeviceSharing:
		return fraud.TypeMultipleAccounts
	case fraud.PatternRapidTransactions:
		return fraud.TypeVelocityAbuse
	case fraud.PatternGeographicAnomaly:
		return fraud.TypeGeolocationFraud
	case fraud.PatternPriceManipulation, fraud.PatternRefundAbuse:
		return fraud.TypePaymentFraud
	default:
		return fraud.TypeSuspiciousBehavior
	}
}

// contextFeatures vectorizes a pattern context into the fixed numeric form
// consumed by learned classifiers.
func contextFeatures(context map[string]any) []float64 {
	get := func(key string, def float64) float64 {
		if v, ok := numericValue(context[key]); ok {
			return v
		}
		return def
	}
	getBool := func(key string) float64 {
		if b, ok := context[key].(bool); ok && b {
			return 1
		}
		return 0
	}

	return []float64{
		get("amount", 0),
		get("transaction_count_1h", 0),
		get("transaction_count_24h", 0),
		get("total_amount_1h", 0),
		get("total_amount_24h", 0),
		get("hour", 12),
		get("day_of_week", 0),
		getBool("is_weekend"),
		getBool("is_night"),
		get("account_age_days", 0),
		get("total_transactions", 0),
		get("avg_transaction_amount", 0),
		get("users_per_device", 1),
		get("users_per_ip", 1),
		getBool("is_new_device"),
		get("minutes_since_last_tx", 60),
		get("topup_count_1h", 0),
		get("refund_count_30d", 0),
		get("ticket_count_24h", 0),
		get("unique_categories", 0),
	}
}

// CentroidClassifier is a nearest-centroid learned model over the
// vectorized pattern context. It is the default classifier behind the
// Classifier interface when no external model is plugged in.
type CentroidClassifier struct {
	mu        sync.RWMutex
	centroids map[int][]float64
	scale     []float64
	trained   bool
}

// NewCentroidClassifier returns an untrained centroid classifier.
func NewCentroidClassifier() *CentroidClassifier {
	return &CentroidClassifier{}
}

func (c *CentroidClassifier) Trained() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trained
}

// Fit computes one centroid per label and a global feature scale.
func (c *CentroidClassifier) Fit(contexts []map[string]any, labels []int) error {
	if len(contexts) == 0 || len(contexts) != len(labels) {
		return errors.ErrInsufficientSamples
	}

	vectors := make([][]float64, len(contexts))
	for i, ctx := range contexts {
		vectors[i] = contextFeatures(ctx)
	}
	dim := len(vectors[0])

	// Per-dimension scale so large-magnitude features do not dominate.
	scale := make([]float64, dim)
	for _, v := range vectors {
		for i, x := range v {
			if a := math.Abs(x); a > scale[i] {
				scale[i] = a
			}
		}
	}
	for i, s := range scale {
		if s == 0 {
			scale[i] = 1
		}
	}

	sums := make(map[int][]float64)
	counts := make(map[int]int)
	for i, v := range vectors {
		label := labels[i]
		if _, ok := sums[label]; !ok {
			sums[label] = make([]float64, dim)
		}
		for j, x := range v {
			sums[label][j] += x / scale[j]
		}
		counts[label]++
	}

	centroids := make(map[int][]float64, len(sums))
	for label, sum := range sums {
		centroid := make([]float64, dim)
		for j, s := range sum {
			centroid[j] = s / float64(counts[label])
		}
		centroids[label] = centroid
	}

	c.mu.Lock()
	c.centroids = centroids
	c.scale = scale
	c.trained = true
	c.mu.Unlock()

	return nil
}

// Predict scores the context against every positive-label centroid and
// converts closeness into probabilities.
func (c *CentroidClassifier) Predict(context map[string]any) []Prediction {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.trained {
		return nil
	}

	raw := contextFeatures(context)
	v := make([]float64, len(raw))
	for i, x := range raw {
		v[i] = x / c.scale[i]
	}

	// Inverse-distance weighting over all centroids, normal class included,
	// so probabilities sum to one.
	weights := make(map[int]float64, len(c.centroids))
	var total float64
	for label, centroid := range c.centroids {
		d := euclidean(v, centroid)
		w := 1.0 / (d + 1e-6)
		weights[label] = w
		total += w
	}
	if total == 0 {
		return nil
	}

	var predictions []Prediction
	for label, w := range weights {
		if label == 0 {
			continue
		}
		prob := w / total
		if prob <= predictionThreshold {
			continue
		}
		pt, ok := patternForLabel(label)
		if !ok {
			continue
		}
		predictions = append(predictions, Prediction{Pattern: pt, Probability: prob})
	}

	return predictions
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
