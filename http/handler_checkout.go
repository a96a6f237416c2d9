package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"parktickets/entity"
	"parktickets/gateway"
	"parktickets/metrics"
)

type checkoutRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`

	Admissions int    `json:"admissions"`
	BundleID   string `json:"bundle_id"`

	VoucherCode string `json:"voucher_code"`
	Location    string `json:"location"`

	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
}

type checkoutResponse struct {
	TicketID   string `json:"ticket_id"`
	SessionID  string `json:"session_id"`
	PaymentURL string `json:"payment_url"`
	Amount     string `json:"amount"`
}

// PostCheckout books a pending ticket and opens a hosted payment page
// session for it. The ticket holds its admissions from this moment; payment
// confirmation arrives later through the webhook or the polling sweep.
func (s *Server) PostCheckout(c echo.Context) error {
	var req checkoutRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Date == "" || req.StartTime == "" || req.EndTime == "" {
		return fail(c, http.StatusBadRequest, "date, time and email are required")
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

	ticket, err := s.buildTicket(c, req)
	if err != nil {
		return err
	}

	if err := s.ticketsRepo.Store(ctx, ticket, slot.MaxAdmissions); err != nil {
		var noCapacity entity.NoCapacityError
		if errors.As(err, &noCapacity) {
			return fail(c, http.StatusBadRequest, fmt.Sprintf("Only %d tickets left.", noCapacity.Remaining))
		}
		return fmt.Errorf("could not store ticket: %w", err)
	}

	// the session is opened only once the ticket holds its admissions, so a
	// capacity rejection never leaves a live session behind at the gateway
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

	bookingInfo, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	err = s.pendingRepo.Store(ctx, entity.PendingBooking{
		SessionID:   session.ID,
		BookingInfo: bookingInfo,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		logrus.WithError(err).WithField("session_id", session.ID).Warn("Could not stage pending booking")
	}

	if err := s.ticketsRepo.SetSessionID(ctx, ticket.TicketID, session.ID); err != nil {
		// the staged booking still links the session to the ticket, so the
		// webhook can recover the correlation
		logrus.WithError(err).WithField("ticket_id", ticket.TicketID).Warn("Could not record session id")
	}

	metrics.TicketsBooked.WithLabelValues(entity.PaymentMethodCard).Inc()

	return ok(c, http.StatusCreated, checkoutResponse{
		TicketID:   ticket.TicketID,
		SessionID:  session.ID,
		PaymentURL: session.PaymentURL,
		Amount:     ticket.Amount.StringFixed(2),
	})
}

// buildTicket prices the booking server-side: per-admission price from the
// location settings, plus the bundle, minus the voucher discount.
func (s *Server) buildTicket(c echo.Context, req checkoutRequest) (entity.Ticket, error) {
	ctx := c.Request().Context()

	location := req.Location
	if location == "" {
		location = s.cfg.DefaultLocation
	}
	setting, err := s.catalogRepo.FindSetting(ctx, location)
	if err != nil {
		return entity.Ticket{}, fmt.Errorf("could not load settings for %q: %w", location, err)
	}

	ticket := entity.Ticket{
		TicketID:            entity.NewTicketID(),
		Date:                req.Date,
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		Admissions:          req.Admissions,
		Name:                req.Name,
		Surname:             req.Surname,
		Email:               req.Email,
		Phone:               req.Phone,
		PaymentMethod:       entity.PaymentMethodCard,
		PaymentStatus:       entity.PaymentStatusPending,
		CancellationEnabled: true,
		CancellationFee:     setting.CancellationFee,
		RefundStatus:        entity.RefundStatusNone,
		CreatedAt:           time.Now().UTC(),
	}
	ticket.QRData = ticket.TicketID

	subtotal := setting.TicketPrice.Mul(decimal.NewFromInt(int64(req.Admissions)))

	if req.BundleID != "" {
		bundle, err := s.catalogRepo.FindBundle(ctx, req.BundleID)
		if errors.Is(err, entity.ErrNotFound) {
			return entity.Ticket{}, echo.NewHTTPError(http.StatusBadRequest, "bundle not found")
		}
		if err != nil {
			return entity.Ticket{}, err
		}
		ticket.BundleName = bundle.Name
		ticket.BundleAdmissions = bundle.Admissions
		ticket.BundlePrice = bundle.Price
		subtotal = subtotal.Add(bundle.Price)
	}

	ticket.Subtotal = subtotal
	ticket.Amount = subtotal

	if req.VoucherCode != "" {
		voucher, err := s.vouchersRepo.FindActiveByCode(ctx, req.VoucherCode)
		if errors.Is(err, entity.ErrNotFound) {
			return entity.Ticket{}, echo.NewHTTPError(http.StatusBadRequest, "voucher not found")
		}
		if err != nil {
			return entity.Ticket{}, err
		}
		if err := voucher.ValidateForAmount(time.Now(), subtotal); err != nil {
			return entity.Ticket{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if err := s.vouchersRepo.IncrementUsage(ctx, voucher.ID); err != nil {
			if errors.Is(err, entity.ErrVoucherLimitExceeded) {
				return entity.Ticket{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			return entity.Ticket{}, err
		}
		ticket.Amount = subtotal.Sub(voucher.DiscountFor(subtotal))
	}

	return ticket, nil
}

type webhookNotification struct {
	Type            string `json:"type"`
	SessionID       string `json:"sessionId"`
	PaymentIntentID string `json:"paymentIntentId"`
}

// PostPaymentWebhook handles the gateway's asynchronous notification. The
// signature covers the raw body, so the body is read before any parsing.
// Processing is idempotent: a redelivered notification finds the conditional
// update already applied and does nothing.
func (s *Server) PostPaymentWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "could not read body")
	}

	signature := c.Request().Header.Get("X-Gateway-Signature")
	if !s.payments.SignatureValid(body, signature) {
		return fail(c, http.StatusUnauthorized, "invalid signature")
	}

	var notification webhookNotification
	if err := json.Unmarshal(body, &notification); err != nil {
		return fail(c, http.StatusBadRequest, "invalid notification body")
	}

	if notification.Type != "session.completed" {
		return ok(c, http.StatusOK, nil)
	}
	if notification.SessionID == "" {
		return fail(c, http.StatusBadRequest, "missing session id")
	}

	ctx := c.Request().Context()

	ticket, err := s.ticketsRepo.FindBySessionID(ctx, notification.SessionID)
	if errors.Is(err, entity.ErrNotFound) {
		// the session id backfill after checkout can fail; the staged
		// booking payload still carries the ticket id
		ticket, err = s.ticketFromStagedBooking(ctx, notification.SessionID)
	}
	if errors.Is(err, entity.ErrNotFound) {
		logrus.WithField("session_id", notification.SessionID).Warn("Webhook for unknown session")
		return fail(c, http.StatusNotFound, "no booking for session")
	}
	if err != nil {
		return err
	}

	transitioned, err := s.ticketsRepo.MarkPaid(ctx, ticket.TicketID, notification.PaymentIntentID)
	if err != nil {
		return fmt.Errorf("could not mark ticket paid: %w", err)
	}
	if transitioned {
		metrics.TicketsPaid.Inc()
		if err := s.pendingRepo.Delete(ctx, notification.SessionID); err != nil {
			logrus.WithError(err).Warn("Could not delete pending booking")
		}
	}

	return ok(c, http.StatusOK, nil)
}

// ticketFromStagedBooking resolves a session the tickets table does not know
// about through the staged booking payload written at checkout.
func (s *Server) ticketFromStagedBooking(ctx context.Context, sessionID string) (entity.Ticket, error) {
	booking, err := s.pendingRepo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return entity.Ticket{}, err
	}

	var staged entity.Ticket
	if err := json.Unmarshal(booking.BookingInfo, &staged); err != nil {
		return entity.Ticket{}, fmt.Errorf("could not decode staged booking: %w", err)
	}

	return s.ticketsRepo.FindByID(ctx, staged.TicketID)
}

// GetSessionResult is the browser's landing call after the hosted payment
// page redirects back. It re-checks the session with the gateway, which also
// covers the case where the webhook has not arrived yet.
func (s *Server) GetSessionResult(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		return fail(c, http.StatusBadRequest, "session_id is required")
	}

	ctx := c.Request().Context()

	ticket, err := s.ticketsRepo.FindBySessionID(ctx, sessionID)
	if errors.Is(err, entity.ErrNotFound) {
		return fail(c, http.StatusNotFound, "session not found")
	}
	if err != nil {
		return err
	}

	if ticket.PaymentStatus != entity.PaymentStatusPaid {
		session, err := s.payments.GetSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("could not get session: %w", err)
		}
		if session.Paid() {
			transitioned, err := s.ticketsRepo.MarkPaid(ctx, ticket.TicketID, session.PaymentIntentID)
			if err != nil {
				return err
			}
			if transitioned {
				metrics.TicketsPaid.Inc()
				if err := s.pendingRepo.Delete(ctx, sessionID); err != nil {
					logrus.WithError(err).Warn("Could not delete pending booking")
				}
			}
			ticket, err = s.ticketsRepo.FindByID(ctx, ticket.TicketID)
			if err != nil {
				return err
			}
		}
	}

	return ok(c, http.StatusOK, ticket)
}
