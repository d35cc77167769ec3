package notify

import (
	"encoding/json"
	"time"

	"github.com/goliatone/go-payments/core"
)

const (
	EventTypeIntentPaid   = "payment_intent.paid"
	EventTypeIntentFailed = "payment_intent.failed"
)

// EventPayload is the wire shape published to message brokers. Amounts are
// decimal strings.
type EventPayload struct {
	EventID         string    `json:"event_id"`
	EventType       string    `json:"event_type"`
	IntentID        int64     `json:"intent_id"`
	UserRef         string    `json:"user_ref"`
	Status          string    `json:"status"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	Balance         string    `json:"balance,omitempty"`
	ProviderID      string    `json:"provider_id,omitempty"`
	ProviderOrderID string    `json:"provider_order_id,omitempty"`
	TransactionID   string    `json:"transaction_id,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Source          string    `json:"source"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func NewEventPayload(event core.ResolutionEvent) EventPayload {
	payload := EventPayload{
		EventID:         event.EventID,
		EventType:       EventType(event),
		IntentID:        event.IntentID,
		UserRef:         event.UserRef,
		Status:          string(event.Outcome),
		Amount:          event.Amount.StringFixed(2),
		Currency:        event.Currency,
		ProviderID:      event.ProviderID,
		ProviderOrderID: event.ProviderOrderID,
		TransactionID:   event.TransactionID,
		Reason:          event.Reason,
		Source:          string(event.Source),
		OccurredAt:      event.OccurredAt.UTC(),
	}
	if event.Outcome == core.IntentStatusPaid {
		payload.Balance = event.Balance.StringFixed(2)
	}
	return payload
}

func EventType(event core.ResolutionEvent) string {
	if event.Outcome == core.IntentStatusPaid {
		return EventTypeIntentPaid
	}
	return EventTypeIntentFailed
}

func encodeEvent(event core.ResolutionEvent) ([]byte, error) {
	return json.Marshal(NewEventPayload(event))
}
