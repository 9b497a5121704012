package fraud

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	domain "github.com/mimi6060/festival/internal/domain/fraud"
)

// alertStore is the in-memory alert queue. Alerts are append-only and never
// mutated after creation; the store itself is bounded.
type alertStore struct {
	mu     sync.RWMutex
	alerts []domain.Alert
	cap    int
}

func newAlertStore(cap int) *alertStore {
	return &alertStore{cap: cap}
}

func (s *alertStore) Append(alert domain.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts = append(s.alerts, alert)
	if len(s.alerts) > s.cap {
		s.alerts = s.alerts[len(s.alerts)-s.cap:]
	}
}

func (s *alertStore) Query(q AlertQuery) []domain.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if q.Severity != "" && a.Severity != q.Severity {
			continue
		}
		if !q.Since.IsZero() && a.Timestamp.Before(q.Since) {
			continue
		}
		matched = append(matched, a)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

func (s *alertStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}

// alertDispatcher forwards alerts to the notification sink under a rate
// limit. Alerts are always stored; only sink delivery is throttled.
type alertDispatcher struct {
	logger  *zap.Logger
	sink    NotificationSink
	limiter *rate.Limiter
}

func newAlertDispatcher(logger *zap.Logger, sink NotificationSink, perMinute int) *alertDispatcher {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60.0)
	}
	return &alertDispatcher{
		logger:  logger,
		sink:    sink,
		limiter: rate.NewLimiter(limit, max(perMinute, 1)),
	}
}

// Dispatch delivers the alert if the sink is configured and the rate limit
// allows. A dropped or failed delivery never affects scoring.
func (d *alertDispatcher) Dispatch(ctx context.Context, alert *domain.Alert) {
	if d.sink == nil {
		return
	}
	if !d.limiter.Allow() {
		d.logger.Warn("alert delivery throttled", zap.String("alert_id", alert.ID))
		return
	}
	if err := d.sink.Deliver(ctx, alert); err != nil {
		d.logger.Error("alert delivery failed",
			zap.String("alert_id", alert.ID),
			zap.Error(err))
	}
}
