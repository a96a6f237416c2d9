package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"parktickets/entity"
	"parktickets/metrics"
)

type refundRequest struct {
	// ApplyFee deducts the ticket's cancellation fee from the refund.
	ApplyFee bool `json:"apply_fee"`
}

type refundResponse struct {
	TicketID       string `json:"ticket_id"`
	RefundID       string `json:"refund_id"`
	AmountRefunded string `json:"amount_refunded"`
}

// PostRefundTicket refunds a card ticket through the gateway. The refund
// amount is derived from the gateway's captured amount, not the local one,
// so a partially captured payment is never over-refunded.
func (s *Server) PostRefundTicket(c echo.Context) error {
	var req refundRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	resp, err := s.refundTicket(c.Request().Context(), c.Param("ticket_id"), req.ApplyFee)
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return fail(c, http.StatusNotFound, "ticket not found")
	case errors.Is(err, entity.ErrCashNotRefundable):
		return fail(c, http.StatusBadRequest, "cash payments cannot be refunded through the gateway")
	case errors.Is(err, entity.ErrMissingPaymentIntent):
		return fail(c, http.StatusBadRequest, "ticket has no settled payment to refund")
	case errors.Is(err, entity.ErrAlreadyRefunded):
		return fail(c, http.StatusConflict, "ticket already refunded")
	case errors.Is(err, entity.ErrRefundNotPositive):
		return fail(c, http.StatusBadRequest, "nothing to refund after the cancellation fee")
	case err != nil:
		return err
	}

	return ok(c, http.StatusOK, resp)
}

type slotRefundRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	ApplyFee  bool   `json:"apply_fee"`
}

type bulkRefundResult struct {
	Refunded []refundResponse  `json:"refunded"`
	Failed   map[string]string `json:"failed"`
}

// PostSlotRefund refunds every non-cancelled ticket in a slot, for when a
// session has to be called off. Each ticket is refunded independently: one
// failure does not stop the rest, and both outcomes are reported per ticket.
func (s *Server) PostSlotRefund(c echo.Context) error {
	var req slotRefundRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Date == "" || req.StartTime == "" || req.EndTime == "" {
		return fail(c, http.StatusBadRequest, "date, start_time and end_time are required")
	}

	ctx := c.Request().Context()

	ticketsInSlot, err := s.ticketsRepo.FindBySlot(ctx, entity.SlotKey{
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		return err
	}

	result := bulkRefundResult{Failed: map[string]string{}}
	for _, ticket := range ticketsInSlot {
		if ticket.Cancelled {
			continue
		}
		resp, err := s.refundTicket(ctx, ticket.TicketID, req.ApplyFee)
		if err != nil {
			result.Failed[ticket.TicketID] = err.Error()
			continue
		}
		result.Refunded = append(result.Refunded, resp)
	}

	return ok(c, http.StatusOK, result)
}

func (s *Server) refundTicket(ctx context.Context, ticketID string, applyFee bool) (refundResponse, error) {
	ticket, err := s.ticketsRepo.FindByID(ctx, ticketID)
	if err != nil {
		return refundResponse{}, err
	}

	if ticket.IsCashPayment() {
		return refundResponse{}, entity.ErrCashNotRefundable
	}
	if ticket.PaymentIntentID == "" {
		return refundResponse{}, entity.ErrMissingPaymentIntent
	}
	if ticket.IsRefunded() {
		return refundResponse{}, entity.ErrAlreadyRefunded
	}

	intent, err := s.payments.GetPaymentIntent(ctx, ticket.PaymentIntentID)
	if err != nil {
		return refundResponse{}, fmt.Errorf("could not get payment intent: %w", err)
	}

	var feeCents int64
	if applyFee {
		feeCents = entity.Cents(ticket.CancellationFee)
	}
	amountCents := entity.RefundAmountCents(intent.CapturedCents-intent.RefundedCents, feeCents)
	if amountCents <= 0 {
		return refundResponse{}, entity.ErrRefundNotPositive
	}

	// record intent first: if we die after the gateway accepts the refund,
	// the sweep finds the requested state and settles it locally
	if err := s.ticketsRepo.MarkRefundRequested(ctx, ticket.TicketID); err != nil {
		return refundResponse{}, err
	}

	refund, err := s.payments.RefundPayment(ctx, ticket.PaymentIntentID, amountCents)
	if err != nil {
		return refundResponse{}, fmt.Errorf("gateway refund failed: %w", err)
	}

	amount := entity.FromCents(amountCents)
	err = s.ticketsRepo.MarkRefunded(ctx, ticket.TicketID, refund.ID, amount, time.Now().UTC())
	if err != nil && !errors.Is(err, entity.ErrAlreadyRefunded) {
		return refundResponse{}, err
	}

	metrics.TicketsRefunded.Inc()

	return refundResponse{
		TicketID:       ticket.TicketID,
		RefundID:       refund.ID,
		AmountRefunded: amount.StringFixed(2),
	}, nil
}
