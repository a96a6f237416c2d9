package entity

import (
	"time"

	"github.com/google/uuid"
)

type EventHeader struct {
	ID             string    `json:"id"`
	PublishedAt    time.Time `json:"published_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

func NewEventHeader() EventHeader {
	return EventHeader{
		ID:          uuid.NewString(),
		PublishedAt: time.Now().UTC(),
	}
}

func NewEventHeaderWithIdempotencyKey(idempotencyKey string) EventHeader {
	return EventHeader{
		ID:             uuid.NewString(),
		PublishedAt:    time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
	}
}

// TicketPaid is published exactly once per ticket, transactionally with the
// pending→paid transition (or with the insert, for cash walk-ins). Both the
// webhook path and the polling sweep funnel through the same conditional
// update, so redelivered webhooks never emit it a second time.
type TicketPaid struct {
	Header   EventHeader `json:"header"`
	TicketID string      `json:"ticket_id"`
	Email    string      `json:"email"`
	Name     string      `json:"name"`
}

// TicketRefunded is published after a refund settles locally; consumed for
// operational bookkeeping (metrics, cancel-request closure).
type TicketRefunded struct {
	Header         EventHeader `json:"header"`
	TicketID       string      `json:"ticket_id"`
	RefundID       string      `json:"refund_id"`
	AmountRefunded string      `json:"amount_refunded"`
}
