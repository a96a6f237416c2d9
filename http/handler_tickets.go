package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"parktickets/entity"
	"parktickets/gateway"
	"parktickets/metrics"
)

func (s *Server) GetTickets(c echo.Context) error {
	ctx := c.Request().Context()

	if date := c.QueryParam("date"); date != "" {
		startTime, endTime := c.QueryParam("start_time"), c.QueryParam("end_time")
		if startTime == "" || endTime == "" {
			tickets, err := s.ticketsRepo.FindByDate(ctx, date)
			if err != nil {
				return err
			}
			return ok(c, http.StatusOK, tickets)
		}
		tickets, err := s.ticketsRepo.FindBySlot(ctx, entity.SlotKey{
			Date:      date,
			StartTime: startTime,
			EndTime:   endTime,
		})
		if err != nil {
			return err
		}
		return ok(c, http.StatusOK, tickets)
	}

	tickets, err := s.ticketsRepo.FindAll(ctx)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, tickets)
}

func (s *Server) GetTicket(c echo.Context) error {
	ticket, err := s.ticketsRepo.FindByID(c.Request().Context(), c.Param("ticket_id"))
	if errors.Is(err, entity.ErrNotFound) {
		return fail(c, http.StatusNotFound, "ticket not found")
	}
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, ticket)
}

// verifyTimeout bounds the gate lookup; the scanner blocks staff and a line
// of customers while it waits.
const verifyTimeout = 5 * time.Second

// PostVerifyTicket burns a ticket at the gate. The status codes are what the
// gate scanner shows to staff: 404 unknown, 403 cancelled, 409 already used.
func (s *Server) PostVerifyTicket(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), verifyTimeout)
	defer cancel()

	err := s.ticketsRepo.MarkUsed(ctx, c.Param("ticket_id"))
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return fail(c, http.StatusNotFound, "ticket not found")
	case errors.Is(err, entity.ErrTicketCancelled):
		return fail(c, http.StatusForbidden, "ticket is cancelled")
	case errors.Is(err, entity.ErrTicketUsed):
		return fail(c, http.StatusConflict, "ticket has already been used")
	case err != nil:
		return err
	}
	return okMessage(c, http.StatusOK, "ticket verified", nil)
}

func (s *Server) PostCancelTicket(c echo.Context) error {
	err := s.ticketsRepo.Cancel(c.Request().Context(), c.Param("ticket_id"))
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return fail(c, http.StatusNotFound, "ticket not found")
	case errors.Is(err, entity.ErrAlreadyCancelled):
		return fail(c, http.StatusConflict, "ticket already cancelled")
	case errors.Is(err, entity.ErrTicketUsed):
		return fail(c, http.StatusConflict, "used tickets cannot be cancelled")
	case errors.Is(err, entity.ErrCancellationDisabled):
		return fail(c, http.StatusForbidden, "cancellation not allowed for this ticket")
	case err != nil:
		return err
	}
	return okMessage(c, http.StatusOK, "ticket cancelled", nil)
}

type walkInRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`

	Admissions int    `json:"admissions"`
	BundleID   string `json:"bundle_id"`
	Location   string `json:"location"`

	PaymentMethod string `json:"payment_method"`

	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
}

// PostWalkIn books a counter sale. Cash changed hands at the desk, so a cash
// ticket is inserted already paid and its confirmation email goes out through
// the same event as online sales. A card walk-in still settles through the
// gateway: the ticket starts pending and the response carries the payment URL
// for the desk terminal.
func (s *Server) PostWalkIn(c echo.Context) error {
	var req walkInRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.PaymentMethod != entity.PaymentMethodCash && req.PaymentMethod != entity.PaymentMethodCard {
		return fail(c, http.StatusBadRequest, "payment_method must be cash or card")
	}
	if req.Admissions < 0 || (req.Admissions == 0 && req.BundleID == "") {
		return fail(c, http.StatusBadRequest, "at least one admission is required")
	}

	ctx := c.Request().Context()

	slot, err := s.slotsRepo.FindByKey(ctx, entity.SlotKey{Date: req.Date, StartTime: req.StartTime, EndTime: req.EndTime})
	if errors.Is(err, entity.ErrNotFound) {
		return fail(c, http.StatusNotFound, "time slot not found")
	}
	if err != nil {
		return err
	}

	location := req.Location
	if location == "" {
		location = s.cfg.DefaultLocation
	}
	setting, err := s.catalogRepo.FindSetting(ctx, location)
	if err != nil {
		return fmt.Errorf("could not load settings for %q: %w", location, err)
	}

	paymentStatus := entity.PaymentStatusPaid
	if req.PaymentMethod == entity.PaymentMethodCard {
		paymentStatus = entity.PaymentStatusPending
	}

	ticket := entity.Ticket{
		TicketID:      entity.NewTicketID(),
		Date:          req.Date,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Admissions:    req.Admissions,
		Name:          req.Name,
		Surname:       req.Surname,
		Email:         req.Email,
		Phone:         req.Phone,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: paymentStatus,
		RefundStatus:  entity.RefundStatusNone,
		CreatedAt:     time.Now().UTC(),
	}
	ticket.QRData = ticket.TicketID

	subtotal := setting.TicketPrice.Mul(decimal.NewFromInt(int64(req.Admissions)))
	if req.BundleID != "" {
		bundle, err := s.catalogRepo.FindBundle(ctx, req.BundleID)
		if errors.Is(err, entity.ErrNotFound) {
			return fail(c, http.StatusBadRequest, "bundle not found")
		}
		if err != nil {
			return err
		}
		ticket.BundleName = bundle.Name
		ticket.BundleAdmissions = bundle.Admissions
		ticket.BundlePrice = bundle.Price
		subtotal = subtotal.Add(bundle.Price)
	}
	ticket.Subtotal = subtotal
	ticket.Amount = subtotal

	if err := s.ticketsRepo.Store(ctx, ticket, slot.MaxAdmissions); err != nil {
		var noCapacity entity.NoCapacityError
		if errors.As(err, &noCapacity) {
			return fail(c, http.StatusBadRequest, fmt.Sprintf("Only %d tickets left.", noCapacity.Remaining))
		}
		return fmt.Errorf("could not store ticket: %w", err)
	}

	var paymentURL string
	if req.PaymentMethod == entity.PaymentMethodCard {
		session, err := s.payments.CreateCheckoutSession(ctx, gateway.CheckoutSessionRequest{
			TicketID:        ticket.TicketID,
			AmountCents:     entity.Cents(ticket.Amount),
			Currency:        s.cfg.Currency,
			CustomerEmail:   ticket.Email,
			NotificationURL: s.cfg.NotificationURL,
			SuccessURL:      s.cfg.SuccessURL,
			CancelURL:       s.cfg.CancelURL,
		})
		if err != nil {
			return fmt.Errorf("could not create checkout session: %w", err)
		}
		ticket.SessionID = session.ID
		paymentURL = session.PaymentURL
		if err := s.ticketsRepo.SetSessionID(ctx, ticket.TicketID, session.ID); err != nil {
			return fmt.Errorf("could not record session id: %w", err)
		}
	}

	metrics.TicketsBooked.WithLabelValues(req.PaymentMethod).Inc()
	if ticket.PaymentStatus == entity.PaymentStatusPaid {
		metrics.TicketsPaid.Inc()
	}

	return ok(c, http.StatusCreated, walkInResponse{Ticket: ticket, PaymentURL: paymentURL})
}

type walkInResponse struct {
	entity.Ticket
	PaymentURL string `json:"payment_url,omitempty"`
}
