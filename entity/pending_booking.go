package entity

import (
	"encoding/json"
	"time"
)

// PendingBooking stages a booking payload keyed by the gateway session id,
// for the integration variant where the ticket is materialized only after
// the gateway confirms payment. Deleted once promoted to a Ticket.
type PendingBooking struct {
	SessionID   string          `json:"session_id" db:"session_id"`
	BookingInfo json.RawMessage `json:"booking_info" db:"booking_info"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
