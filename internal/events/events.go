// Package events is the in-process fan-out for domain events. Slow
// subscribers are skipped, never blocked on.
package events

import "github.com/google/uuid"

const (
	TypeAllocationRecomputed = "allocation.recomputed"
	TypeInvoiceIssued        = "invoice.issued"
	TypePaymentApplied       = "payment.applied"
)

// Event is one domain occurrence. Payload values are plain strings and
// numbers so subscribers can marshal them untouched.
type Event struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// New builds an event with a fresh id.
func New(eventType string, payload map[string]any) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Payload: payload,
	}
}
