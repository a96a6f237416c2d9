package entity

import (
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v3"
	"github.com/shopspring/decimal"
)

const (
	PaymentMethodCash = "cash"
	PaymentMethodCard = "card"

	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusPaid       = "paid"

	RefundStatusNone      = "none"
	RefundStatusRequested = "requested"
	RefundStatusRefunded  = "refunded"
)

// Ticket is one booking attempt. A single ticket may cover several
// admissions (Admissions plus the bundle's included count).
type Ticket struct {
	TicketID string `json:"ticket_id" db:"ticket_id"`

	Date      string `json:"date" db:"slot_date"`
	StartTime string `json:"start_time" db:"start_time"`
	EndTime   string `json:"end_time" db:"end_time"`

	Admissions       int             `json:"admissions" db:"admissions"`
	BundleName       string          `json:"bundle_name,omitempty" db:"bundle_name"`
	BundleAdmissions int             `json:"bundle_admissions,omitempty" db:"bundle_admissions"`
	BundlePrice      decimal.Decimal `json:"bundle_price,omitempty" db:"bundle_price"`

	Amount   decimal.Decimal `json:"amount" db:"amount"`
	Subtotal decimal.Decimal `json:"subtotal" db:"subtotal"`

	Name    string `json:"name" db:"customer_name"`
	Surname string `json:"surname" db:"customer_surname"`
	Email   string `json:"email" db:"customer_email"`
	Phone   string `json:"phone,omitempty" db:"customer_phone"`

	PaymentMethod string `json:"payment_method" db:"payment_method"`
	PaymentStatus string `json:"payment_status" db:"payment_status"`

	Cancelled bool `json:"cancelled" db:"cancelled"`
	Used      bool `json:"used" db:"used"`

	CancellationEnabled bool            `json:"cancellation_enabled" db:"cancellation_enabled"`
	CancellationFee     decimal.Decimal `json:"cancellation_fee" db:"cancellation_fee"`

	RefundStatus        string          `json:"refund_status" db:"refund_status"`
	RefundedAmount      decimal.Decimal `json:"refunded_amount" db:"refunded_amount"`
	RefundTransactionID string          `json:"refund_transaction_id,omitempty" db:"refund_transaction_id"`
	RefundDate          *time.Time      `json:"refund_date,omitempty" db:"refund_date"`

	// Correlation keys carried through the payment gateway. SessionID is
	// set when a checkout session is created; PaymentIntentID only once the
	// webhook or the polling sweep has reconciled the payment.
	SessionID       string `json:"session_id,omitempty" db:"session_id"`
	PaymentIntentID string `json:"payment_intent_id,omitempty" db:"payment_intent_id"`

	QRData    string    `json:"qr_data" db:"qr_data"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TotalAdmissions is the number of entry slots this ticket consumes.
func (t Ticket) TotalAdmissions() int {
	return t.Admissions + t.BundleAdmissions
}

func (t Ticket) IsCashPayment() bool {
	return t.PaymentMethod == PaymentMethodCash
}

func (t Ticket) IsRefunded() bool {
	return t.RefundStatus == RefundStatusRefunded
}

func (t Ticket) Slot() SlotKey {
	return SlotKey{Date: t.Date, StartTime: t.StartTime, EndTime: t.EndTime}
}

// NewTicketID returns a short human-readable id, e.g. "MJX-4AB7K2QD".
func NewTicketID() string {
	id := strings.ToUpper(shortuuid.New())
	if len(id) > 8 {
		id = id[:8]
	}
	return "MJX-" + id
}

// RefundAmountCents is the amount to send back to the gateway: the
// authoritative captured amount minus the cancellation fee, floored at zero.
func RefundAmountCents(capturedCents, feeCents int64) int64 {
	refund := capturedCents - feeCents
	if refund < 0 {
		return 0
	}
	return refund
}

// Cents converts a decimal money amount to integer cents, rounding to the
// nearest cent first.
func Cents(amount decimal.Decimal) int64 {
	return amount.Round(2).Mul(decimal.NewFromInt(100)).IntPart()
}

// FromCents converts integer cents back to a decimal money amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
}
