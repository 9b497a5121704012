package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/mimi6060/festival/internal/domain/fraud"
	"github.com/mimi6060/festival/internal/service/fraud"
)

// Registry holds all fraud detection metrics. It satisfies the detector's
// MetricsRecorder interface.
type Registry struct {
	meter metric.Meter

	CheckDuration metric.Float64Histogram
	RiskScore     metric.Float64Histogram
	ChecksCounter metric.Int64Counter
	CheckFailures metric.Int64Counter
	AlertsCounter metric.Int64Counter

	ChecksPerSecond metric.Float64ObservableGauge
	CacheEntries    metric.Int64ObservableGauge

	// State for observable metrics
	mu              sync.RWMutex
	checksProcessed int64
	lastCheckCount  int64
	lastCheckTime   time.Time
	cacheSizes      fraud.CacheSizes
}

// NewRegistry creates a metrics registry for the fraud detector.
func NewRegistry(meterName string) (*Registry, error) {
	r := &Registry{
		meter:         otel.Meter(meterName),
		lastCheckTime: time.Now(),
	}

	if err := r.initCheckMetrics(); err != nil {
		return nil, err
	}

	if err := r.initCacheMetrics(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Registry) initCheckMetrics() error {
	var err error

	r.CheckDuration, err = r.meter.Float64Histogram(
		"festival.fraud.check_duration",
		metric.WithDescription("Duration of a full fraud check in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 25, 50, 100, 250, 500),
	)
	if err != nil {
		return err
	}

	r.RiskScore, err = r.meter.Float64Histogram(
		"festival.fraud.risk_score",
		metric.WithDescription("Distribution of fused risk scores"),
		metric.WithExplicitBucketBoundaries(10, 20, 30, 40, 50, 60, 75, 90, 100),
	)
	if err != nil {
		return err
	}

	r.ChecksCounter, err = r.meter.Int64Counter(
		"festival.fraud.checks_total",
		metric.WithDescription("Total fraud checks by resulting action"),
	)
	if err != nil {
		return err
	}

	r.CheckFailures, err = r.meter.Int64Counter(
		"festival.fraud.check_failures_total",
		metric.WithDescription("Sub-check failures by check name"),
	)
	if err != nil {
		return err
	}

	r.AlertsCounter, err = r.meter.Int64Counter(
		"festival.fraud.alerts_total",
		metric.WithDescription("Generated fraud alerts by severity"),
	)
	if err != nil {
		return err
	}

	r.ChecksPerSecond, err = r.meter.Float64ObservableGauge(
		"festival.fraud.throughput_per_second",
		metric.WithDescription("Current fraud check throughput per second"),
		metric.WithFloat64Callback(func(ctx context.Context, o metric.Float64Observer) error {
			r.mu.Lock()
			defer r.mu.Unlock()

			now := time.Now()
			elapsed := now.Sub(r.lastCheckTime).Seconds()
			if elapsed > 0 {
				rate := float64(r.checksProcessed-r.lastCheckCount) / elapsed
				o.Observe(rate)
				r.lastCheckCount = r.checksProcessed
				r.lastCheckTime = now
			}
			return nil
		}),
	)

	return err
}

func (r *Registry) initCacheMetrics() error {
	var err error

	r.CacheEntries, err = r.meter.Int64ObservableGauge(
		"festival.fraud.cache_entries",
		metric.WithDescription("Entries held by each sliding cache"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			sizes := r.cacheSizes
			r.mu.RUnlock()

			observe := func(cache string, n int) {
				o.Observe(int64(n), metric.WithAttributes(attribute.String("cache", cache)))
			}
			observe("ticket_scans", sizes.TicketScans)
			observe("user_transactions", sizes.UserTransactions)
			observe("device_users", sizes.DeviceUsers)
			observe("ip_users", sizes.IPUsers)
			observe("user_locations", sizes.UserLocations)
			return nil
		}),
	)

	return err
}

// ObserveCheck records the outcome of one completed fraud check.
func (r *Registry) ObserveCheck(action domain.Action, score float64, elapsed time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("action", string(action)))

	r.CheckDuration.Record(ctx, float64(elapsed.Microseconds())/1000.0, attrs)
	r.RiskScore.Record(ctx, score, attrs)
	r.ChecksCounter.Add(ctx, 1, attrs)

	r.mu.Lock()
	r.checksProcessed++
	r.mu.Unlock()
}

// RecordCheckFailure counts a failed sub-check.
func (r *Registry) RecordCheckFailure(check string) {
	r.CheckFailures.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("check", check)))
}

// RecordAlert counts a generated alert.
func (r *Registry) RecordAlert(severity domain.Severity) {
	r.AlertsCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("severity", string(severity))))
}

// SetCacheSizes updates the cache size gauges.
func (r *Registry) SetCacheSizes(sizes fraud.CacheSizes) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheSizes = sizes
}
