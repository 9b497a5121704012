package fraud

import (
	"context"
	"math"
	"time"

	"github.com/mimi6060/festival/internal/domain/errors"
	domain "github.com/mimi6060/festival/internal/domain/fraud"
)

// checkOutcome is one sub-check's contribution: fraud-type tags plus
// evidence merged into the scoring context.
type checkOutcome struct {
	fraudTypes []domain.Type
	details    map[string]any
}

// checkTicketFraud detects duplicate and excessive ticket scans. The scan
// history read and the append run atomically per ticket.
func (s *service) checkTicketFraud(ctx context.Context, event *domain.TransactionEvent) (checkOutcome, error) {
	outcome := checkOutcome{details: map[string]any{}}

	if event.Type != domain.TransactionTicketScan || event.TicketID == "" {
		return outcome, nil
	}

	s.ticketScans.Record(event.TicketID, event.Timestamp, event.ZoneID, func(previous []scanRecord) {
		if len(previous) == 0 {
			return
		}

		last := previous[len(previous)-1]
		sinceLast := event.Timestamp.Sub(last.Timestamp)

		// Same ticket at a different zone within the rescan interval.
		if event.ZoneID != "" && event.ZoneID != last.ZoneID && sinceLast < s.cfg.RescanInterval {
			outcome.fraudTypes = append(outcome.fraudTypes, domain.TypeDuplicateTicket)
			outcome.details["duplicate_ticket"] = map[string]any{
				"last_scan_time":          last.Timestamp.Format(time.RFC3339),
				"last_zone":               last.ZoneID,
				"current_zone":            event.ZoneID,
				"time_difference_seconds": sinceLast.Seconds(),
			}
		}

		if len(previous) > s.cfg.MaxScansPerWindow {
			outcome.fraudTypes = append(outcome.fraudTypes, domain.TypeSuspiciousBehavior)
			outcome.details["excessive_scans"] = map[string]any{
				"scan_count":   len(previous),
				"period_hours": s.cfg.TicketScanWindow.Hours(),
			}
		}
	})

	return outcome, nil
}

// checkAnomalies runs the anomaly engine over monetary transactions and
// maps its categories onto fraud types.
func (s *service) checkAnomalies(ctx context.Context, event *domain.TransactionEvent) (checkOutcome, error) {
	outcome := checkOutcome{details: map[string]any{}}

	if !event.Type.Monetary() {
		return outcome, nil
	}

	finding, err := s.anomalies.Detect(ctx, event)
	if err != nil {
		return outcome, errors.NewCheckError("anomaly", err)
	}

	outcome.details["anomaly_scores"] = finding.Scores

	if finding.IsAnomaly {
		for _, category := range finding.Categories {
			switch category {
			case domain.AnomalyAmount:
				outcome.fraudTypes = append(outcome.fraudTypes, domain.TypeAbnormalTransaction)
			case domain.AnomalyFrequency, domain.AnomalyVelocity:
				outcome.fraudTypes = append(outcome.fraudTypes, domain.TypeVelocityAbuse)
			case domain.AnomalyTiming:
				outcome.fraudTypes = append(outcome.fraudTypes, domain.TypeSuspiciousBehavior)
			}
		}

		categories := make([]string, len(finding.Categories))
		for i, c := range finding.Categories {
			categories[i] = string(c)
		}
		outcome.details["anomalies"] = map[string]any{
			"types":      categories,
			"confidence": finding.Confidence,
		}
	}

	return outcome, nil
}

// checkMultipleAccounts tracks device and IP fan-out. The IP threshold is
// an order of magnitude looser: IP addresses are shared through NAT.
func (s *service) checkMultipleAccounts(ctx context.Context, event *domain.TransactionEvent) (checkOutcome, error) {
	outcome := checkOutcome{details: map[string]any{}}

	if event.DeviceFingerprint != "" {
		count := s.deviceUsers.Add(event.DeviceFingerprint, event.UserID, event.Timestamp)
		outcome.details["users_per_device"] = count

		if count > s.cfg.DeviceUserThreshold {
			outcome.fraudTypes = append(outcome.fraudTypes, domain.TypeMultipleAccounts)
			outcome.details["multiple_accounts_device"] = map[string]any{
				"user_count":  count,
				"device_hash": hashForGDPR(event.DeviceFingerprint),
			}
		}
	}

	if event.IPAddress != "" {
		count := s.ipUsers.Add(event.IPAddress, event.UserID, event.Timestamp)
		outcome.details["users_per_ip"] = count

		if count > s.cfg.IPUserThreshold {
			if !containsType(outcome.fraudTypes, domain.TypeMultipleAccounts) {
				outcome.fraudTypes = append(outcome.fraudTypes, domain.TypeMultipleAccounts)
			}
			outcome.details["multiple_accounts_ip"] = map[string]any{
				"user_count": count,
				"ip_hash":    hashForGDPR(event.IPAddress),
			}
		}
	}

	return outcome, nil
}

// checkVelocity flags users transacting too fast. Counts include the
// current transaction.
func (s *service) checkVelocity(ctx context.Context, event *domain.TransactionEvent) (checkOutcome, error) {
	outcome := checkOutcome{details: map[string]any{}}

	counts := s.userTxs.Record(event.UserID, event.Timestamp, event.Type)

	outcome.details["tx_count_1h"] = counts.Count1h
	outcome.details["tx_count_5min"] = counts.Count5Min

	var flags []string
	if counts.Count1h > s.cfg.MaxTxPerHour {
		flags = append(flags, "high_hourly_volume")
	}
	if counts.Count5Min > s.cfg.MaxTxPer5Min {
		flags = append(flags, "burst_activity")
	}
	if event.Type == domain.TransactionCashlessTopUp && counts.TopUps1h > s.cfg.MaxTopUpsPerHour {
		flags = append(flags, "repeated_topups")
	}

	if len(flags) > 0 {
		outcome.fraudTypes = append(outcome.fraudTypes, domain.TypeVelocityAbuse)
		outcome.details["velocity"] = map[string]any{
			"flags":          flags,
			"tx_count_1h":    counts.Count1h,
			"tx_count_5min":  counts.Count5Min,
			"topup_count_1h": counts.TopUps1h,
		}
	}

	return outcome, nil
}

// checkGeolocation flags impossible travel between a user's consecutive
// geotagged transactions. Without coordinates there is nothing to check.
func (s *service) checkGeolocation(ctx context.Context, event *domain.TransactionEvent) (checkOutcome, error) {
	outcome := checkOutcome{details: map[string]any{}}

	if !event.HasCoordinates() {
		return outcome, nil
	}

	current := lastLocation{
		Timestamp: event.Timestamp,
		Latitude:  *event.Latitude,
		Longitude: *event.Longitude,
	}

	previous, ok := s.userLocations.Swap(event.UserID, current)
	if !ok {
		return outcome, nil
	}

	distanceKm := haversineKm(previous.Latitude, previous.Longitude, current.Latitude, current.Longitude)
	elapsed := current.Timestamp.Sub(previous.Timestamp)

	outcome.details["distance_km"] = distanceKm
	outcome.details["time_between_hours"] = elapsed.Hours()
	outcome.details["distance_from_usual_km"] = distanceKm

	if distanceKm > s.cfg.TravelDistanceKm && elapsed < s.cfg.TravelInterval {
		outcome.fraudTypes = append(outcome.fraudTypes, domain.TypeGeolocationFraud)
		outcome.details["impossible_travel"] = map[string]any{
			"distance_km":   distanceKm,
			"elapsed_hours": elapsed.Hours(),
		}
	}

	return outcome, nil
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func containsType(types []domain.Type, t domain.Type) bool {
	for _, existing := range types {
		if existing == t {
			return true
		}
	}
	return false
}
