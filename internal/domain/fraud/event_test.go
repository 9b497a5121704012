package fraud

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransactionEvent_Validate(t *testing.T) {
	valid := TransactionEvent{
		TransactionID: "tx-1",
		UserID:        "user-1",
		FestivalID:    "fest-1",
		Type:          TransactionCashlessPayment,
	}

	tests := []struct {
		name    string
		mutate  func(*TransactionEvent)
		wantErr bool
	}{
		{"valid event", func(e *TransactionEvent) {}, false},
		{"missing user", func(e *TransactionEvent) { e.UserID = "" }, true},
		{"missing transaction id", func(e *TransactionEvent) { e.TransactionID = "" }, true},
		{"missing festival", func(e *TransactionEvent) { e.FestivalID = "" }, true},
		{"unknown transaction type", func(e *TransactionEvent) { e.Type = "wire_transfer" }, true},
		{"empty transaction type", func(e *TransactionEvent) { e.Type = "" }, true},
		{"malformed ip", func(e *TransactionEvent) { e.IPAddress = "not-an-ip" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := valid
			tt.mutate(&event)

			err := event.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
