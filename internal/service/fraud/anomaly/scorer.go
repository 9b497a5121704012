package anomaly

import (
	"math"
	"sync"

	"github.com/mimi6060/festival/internal/domain/errors"
	"github.com/mimi6060/festival/internal/domain/fraud"
)

// Scorer is a pluggable anomaly model. Implementations are read-mostly:
// loaded or trained once, then scored many times concurrently.
type Scorer interface {
	// Name identifies the scorer's signal in finding output.
	Name() string

	// Trained reports whether the scorer can produce meaningful scores.
	// Untrained scorers contribute nothing to a finding.
	Trained() bool

	// Score returns an anomaly score in [0,1] for the normalized feature
	// array, plus whether the scorer itself considers the point anomalous.
	Score(features []float64) (float64, bool)

	// Fit trains the scorer on a feature matrix.
	Fit(samples [][]float64) error

	// Category is the anomaly category this scorer reports when it fires.
	Category() fraud.AnomalyCategory
}

// NullScorer is the default no-op model: never trained, never anomalous.
// It stands in when no learned model has been plugged in.
type NullScorer struct {
	name string
}

// NewNullScorer returns a null scorer reporting under the given signal name.
func NewNullScorer(name string) *NullScorer {
	return &NullScorer{name: name}
}

func (s *NullScorer) Name() string                      { return s.name }
func (s *NullScorer) Trained() bool                     { return false }
func (s *NullScorer) Score(_ []float64) (float64, bool) { return 0, false }
func (s *NullScorer) Fit(_ [][]float64) error           { return nil }
func (s *NullScorer) Category() fraud.AnomalyCategory   { return fraud.AnomalyPattern }

// DistanceScorer is a lightweight learned model: it memorizes the centroid
// and per-dimension spread of the training set and scores new points by
// their normalized distance from the centroid. It fills the isolation-model
// slot without an external ML runtime.
type DistanceScorer struct {
	name     string
	category fraud.AnomalyCategory

	mu        sync.RWMutex
	centroid  []float64
	spread    []float64
	threshold float64
	trained   bool
}

// NewDistanceScorer returns an untrained distance scorer.
func NewDistanceScorer(name string, category fraud.AnomalyCategory) *DistanceScorer {
	return &DistanceScorer{name: name, category: category}
}

func (s *DistanceScorer) Name() string { return s.name }

func (s *DistanceScorer) Category() fraud.AnomalyCategory { return s.category }

func (s *DistanceScorer) Trained() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trained
}

// Fit computes the centroid and spread of the sample matrix and derives an
// anomaly threshold from the training distances.
func (s *DistanceScorer) Fit(samples [][]float64) error {
	if len(samples) == 0 {
		return errors.ErrInsufficientSamples
	}

	dim := len(samples[0])
	centroid := make([]float64, dim)
	for _, row := range samples {
		for i, v := range row {
			centroid[i] += v
		}
	}
	for i := range centroid {
		centroid[i] /= float64(len(samples))
	}

	spread := make([]float64, dim)
	for _, row := range samples {
		for i, v := range row {
			d := v - centroid[i]
			spread[i] += d * d
		}
	}
	for i := range spread {
		spread[i] = math.Sqrt(spread[i] / float64(len(samples)))
	}

	// Threshold at the mean training distance plus two deviations.
	distances := make([]float64, len(samples))
	for i, row := range samples {
		distances[i] = normalizedDistance(row, centroid, spread)
	}
	threshold := mean(distances) + 2*stddev(distances)

	s.mu.Lock()
	s.centroid = centroid
	s.spread = spread
	s.threshold = threshold
	s.trained = true
	s.mu.Unlock()

	return nil
}

func (s *DistanceScorer) Score(features []float64) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.trained || len(features) != len(s.centroid) {
		return 0, false
	}

	dist := normalizedDistance(features, s.centroid, s.spread)
	if s.threshold <= 0 {
		return 0, false
	}

	// Map distance to [0,1] with the threshold at 0.5.
	score := math.Min(1.0, dist/(2*s.threshold))
	return score, dist > s.threshold
}

func normalizedDistance(point, centroid, spread []float64) float64 {
	var sum float64
	for i := range point {
		d := (point[i] - centroid[i]) / (spread[i] + 1e-10)
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(point)))
}
