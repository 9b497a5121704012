// Package fixtures provides builders for test data.
package fixtures

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mimi6060/festival/internal/domain/fraud"
	"github.com/mimi6060/festival/internal/domain/values"
)

// EventBuilder builds test TransactionEvents. Defaults describe an
// unremarkable afternoon cashless payment.
type EventBuilder struct {
	event fraud.TransactionEvent
}

// NewEventBuilder creates a builder with safe defaults.
func NewEventBuilder() *EventBuilder {
	return &EventBuilder{
		event: fraud.TransactionEvent{
			TransactionID: fmt.Sprintf("tx-%s", uuid.NewString()[:8]),
			UserID:        "user-1",
			FestivalID:    "fest-1",
			Type:          fraud.TransactionCashlessPayment,
			Amount:        values.MustNewMoneyFromFloat(25.50, values.EUR),
			Timestamp:     time.Date(2025, 7, 12, 14, 0, 0, 0, time.UTC),
		},
	}
}

func (b *EventBuilder) WithTransactionID(id string) *EventBuilder {
	b.event.TransactionID = id
	return b
}

func (b *EventBuilder) WithUser(userID string) *EventBuilder {
	b.event.UserID = userID
	return b
}

func (b *EventBuilder) WithType(t fraud.TransactionType) *EventBuilder {
	b.event.Type = t
	return b
}

func (b *EventBuilder) WithAmount(amount float64) *EventBuilder {
	b.event.Amount = values.MustNewMoneyFromFloat(amount, values.EUR)
	return b
}

func (b *EventBuilder) WithTimestamp(ts time.Time) *EventBuilder {
	b.event.Timestamp = ts
	return b
}

func (b *EventBuilder) WithDevice(deviceID, fingerprint string) *EventBuilder {
	b.event.DeviceID = deviceID
	b.event.DeviceFingerprint = fingerprint
	return b
}

func (b *EventBuilder) WithIP(ip string) *EventBuilder {
	b.event.IPAddress = ip
	return b
}

func (b *EventBuilder) WithTicket(ticketID, zoneID string) *EventBuilder {
	b.event.TicketID = ticketID
	b.event.ZoneID = zoneID
	return b
}

func (b *EventBuilder) WithCoordinates(lat, lon float64) *EventBuilder {
	b.event.Latitude = &lat
	b.event.Longitude = &lon
	return b
}

func (b *EventBuilder) WithMetadata(key string, value any) *EventBuilder {
	if b.event.Metadata == nil {
		b.event.Metadata = make(map[string]any)
	}
	b.event.Metadata[key] = value
	return b
}

// Build returns a copy of the event.
func (b *EventBuilder) Build() *fraud.TransactionEvent {
	event := b.event
	return &event
}
