package fraud

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mimi6060/festival/internal/domain/values"
)

var eventValidator = validator.New()

// TransactionEvent is the immutable input to a fraud check. It is created
// once per inbound event and never mutated.
type TransactionEvent struct {
	TransactionID string          `json:"transaction_id" validate:"required"`
	UserID        string          `json:"user_id" validate:"required"`
	FestivalID    string          `json:"festival_id" validate:"required"`
	Type          TransactionType `json:"transaction_type" validate:"required,oneof=ticket_purchase cashless_topup cashless_payment ticket_scan"`
	Amount        values.Money    `json:"amount,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`

	// Device information
	DeviceID          string `json:"device_id,omitempty"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty"`
	IPAddress         string `json:"ip_address,omitempty" validate:"omitempty,ip"`
	UserAgent         string `json:"user_agent,omitempty"`

	// Geolocation
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
	ZoneID    string   `json:"zone_id,omitempty"`

	// Ticket specific
	TicketID string `json:"ticket_id,omitempty"`
	QRCode   string `json:"qr_code,omitempty"`

	// Cashless specific
	CashlessAccountID string `json:"cashless_account_id,omitempty"`
	VendorID          string `json:"vendor_id,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate rejects malformed events before any scoring runs.
func (e *TransactionEvent) Validate() error {
	return eventValidator.Struct(e)
}

// HasCoordinates reports whether the event carries a usable geolocation.
func (e *TransactionEvent) HasCoordinates() bool {
	return e.Latitude != nil && e.Longitude != nil
}
