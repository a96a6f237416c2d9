package entity

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	ErrTicketUsed           = errors.New("ticket has already been used")
	ErrTicketCancelled      = errors.New("ticket is cancelled")
	ErrAlreadyCancelled     = errors.New("ticket already cancelled")
	ErrAlreadyRefunded      = errors.New("ticket already refunded")
	ErrCancellationDisabled = errors.New("cancellation not allowed for this ticket")
	ErrCashNotRefundable    = errors.New("cash payments cannot be refunded through the gateway")
	ErrMissingPaymentIntent = errors.New("missing payment intent id")
	ErrRefundNotPositive    = errors.New("refund amount must be greater than zero")

	ErrVoucherNotValidYet   = errors.New("voucher is not valid at this time")
	ErrVoucherLimitExceeded = errors.New("voucher usage limit exceeded")
	ErrVoucherMinimumAmount = errors.New("amount below voucher minimum")
	ErrVoucherCodeTaken     = errors.New("voucher code already exists")
)

// NoCapacityError carries the remaining admission count so callers can
// report it ("Only 2 tickets left.").
type NoCapacityError struct {
	Remaining int
	Requested int
}

func (e NoCapacityError) Error() string {
	return fmt.Sprintf("only %d tickets left, cannot book %d", e.Remaining, e.Requested)
}
