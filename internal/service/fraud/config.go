package fraud

import "time"

// Config tunes the orchestrator's thresholds and cache bounds.
type Config struct {
	// Action thresholds on the 0-100 risk score.
	FlagThreshold   float64 `koanf:"flag_threshold"`
	ReviewThreshold float64 `koanf:"review_threshold"`
	BlockThreshold  float64 `koanf:"block_threshold"`
	AlertThreshold  float64 `koanf:"alert_threshold"`

	// SoftBudget is the target processing time. Exceeding it is logged,
	// not enforced.
	SoftBudget time.Duration `koanf:"soft_budget"`

	// Ticket scan cache bounds.
	TicketScanWindow time.Duration `koanf:"ticket_scan_window"`
	TicketScanCap    int           `koanf:"ticket_scan_cap"`

	// RescanInterval flags a re-scan at a different zone inside it.
	RescanInterval time.Duration `koanf:"rescan_interval"`

	// MaxScansPerWindow flags excessive scanning past it.
	MaxScansPerWindow int `koanf:"max_scans_per_window"`

	// User transaction cache bounds.
	UserTxCap int `koanf:"user_tx_cap"`

	// Velocity thresholds.
	MaxTxPerHour     int `koanf:"max_tx_per_hour"`
	MaxTxPer5Min     int `koanf:"max_tx_per_5min"`
	MaxTopUpsPerHour int `koanf:"max_topups_per_hour"`

	// Fan-out thresholds. The device and IP bounds differ deliberately:
	// IP addresses are shared through NAT, devices are not.
	DeviceUserThreshold int `koanf:"device_user_threshold"`
	IPUserThreshold     int `koanf:"ip_user_threshold"`

	// Fan-out cache bounds.
	FanOutWindow  time.Duration `koanf:"fanout_window"`
	FanOutUserCap int           `koanf:"fanout_user_cap"`

	// Impossible travel thresholds.
	TravelDistanceKm float64       `koanf:"travel_distance_km"`
	TravelInterval   time.Duration `koanf:"travel_interval"`

	// Alert store bound.
	AlertCap int `koanf:"alert_cap"`

	// AlertRatePerMinute throttles sink delivery, not alert creation.
	AlertRatePerMinute int `koanf:"alert_rate_per_minute"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FlagThreshold:   30,
		ReviewThreshold: 50,
		BlockThreshold:  75,
		AlertThreshold:  60,

		SoftBudget: 100 * time.Millisecond,

		TicketScanWindow:  4 * time.Hour,
		TicketScanCap:     10,
		RescanInterval:    5 * time.Minute,
		MaxScansPerWindow: 5,

		UserTxCap: 100,

		MaxTxPerHour:     50,
		MaxTxPer5Min:     10,
		MaxTopUpsPerHour: 5,

		DeviceUserThreshold: 3,
		IPUserThreshold:     10,

		FanOutWindow:  24 * time.Hour,
		FanOutUserCap: 100,

		TravelDistanceKm: 500,
		TravelInterval:   2 * time.Hour,

		AlertCap:           10000,
		AlertRatePerMinute: 60,
	}
}
