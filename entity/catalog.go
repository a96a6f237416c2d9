package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketBundle is a discounted multi-admission package. Its included
// admission count participates in slot capacity accounting.
type TicketBundle struct {
	ID              string          `json:"id" db:"bundle_id"`
	Name            string          `json:"name" db:"bundle_name"`
	DiscountPercent decimal.Decimal `json:"discount_percent" db:"discount_percent"`
	Price           decimal.Decimal `json:"price" db:"price"`
	Description     string          `json:"description" db:"description"`
	Admissions      int             `json:"admissions" db:"admissions"`
}

// Setting holds per-location pricing configuration.
type Setting struct {
	ID              string          `json:"id" db:"setting_id"`
	LocationName    string          `json:"location_name" db:"location_name"`
	Address         string          `json:"address" db:"address"`
	StartDate       time.Time       `json:"start_date" db:"start_date"`
	EndDate         time.Time       `json:"end_date" db:"end_date"`
	TicketPrice     decimal.Decimal `json:"ticket_price" db:"ticket_price"`
	SocksPrice      decimal.Decimal `json:"socks_price" db:"socks_price"`
	CancellationFee decimal.Decimal `json:"cancellation_fee" db:"cancellation_fee"`
}

type CancelRequest struct {
	ID        string    `json:"id" db:"request_id"`
	TicketID  string    `json:"ticket_id" db:"ticket_id"`
	Email     string    `json:"email" db:"email"`
	Reason    string    `json:"reason" db:"reason"`
	Reviewed  bool      `json:"reviewed" db:"reviewed"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
