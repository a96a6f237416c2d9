package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"parktickets/entity"
	"parktickets/gateway"
	"parktickets/reconcile"
)

type TicketsRepository interface {
	Store(ctx context.Context, ticket entity.Ticket, maxAdmissions int) error
	SetSessionID(ctx context.Context, ticketID, sessionID string) error
	FindByID(ctx context.Context, ticketID string) (entity.Ticket, error)
	FindBySessionID(ctx context.Context, sessionID string) (entity.Ticket, error)
	FindAll(ctx context.Context) ([]entity.Ticket, error)
	FindByDate(ctx context.Context, date string) ([]entity.Ticket, error)
	FindBySlot(ctx context.Context, slot entity.SlotKey) ([]entity.Ticket, error)
	SoldAdmissions(ctx context.Context, slot entity.SlotKey) (int, error)
	MarkPaid(ctx context.Context, ticketID, paymentIntentID string) (bool, error)
	MarkUsed(ctx context.Context, ticketID string) error
	Cancel(ctx context.Context, ticketID string) error
	MarkRefundRequested(ctx context.Context, ticketID string) error
	MarkRefunded(ctx context.Context, ticketID, refundID string, amount decimal.Decimal, refundedAt time.Time) error
}

type SlotsRepository interface {
	Store(ctx context.Context, slot entity.TimeSlot) error
	StoreAll(ctx context.Context, slots []entity.TimeSlot) (int, error)
	FindByKey(ctx context.Context, key entity.SlotKey) (entity.TimeSlot, error)
	FindByDate(ctx context.Context, date string) ([]entity.TimeSlot, error)
	FindAll(ctx context.Context) ([]entity.TimeSlot, error)
	Update(ctx context.Context, slot entity.TimeSlot) error
	Delete(ctx context.Context, slotID string) error
}

type VouchersRepository interface {
	Store(ctx context.Context, voucher entity.DiscountVoucher) error
	FindActiveByCode(ctx context.Context, code string) (entity.DiscountVoucher, error)
	FindAll(ctx context.Context) ([]entity.DiscountVoucher, error)
	IncrementUsage(ctx context.Context, voucherID string) error
	SetActive(ctx context.Context, voucherID string, active bool) error
	Delete(ctx context.Context, voucherID string) error
}

type CatalogRepository interface {
	StoreBundle(ctx context.Context, bundle entity.TicketBundle) error
	FindBundle(ctx context.Context, bundleID string) (entity.TicketBundle, error)
	FindAllBundles(ctx context.Context) ([]entity.TicketBundle, error)
	DeleteBundle(ctx context.Context, bundleID string) error
	StoreSetting(ctx context.Context, setting entity.Setting) error
	FindSetting(ctx context.Context, locationName string) (entity.Setting, error)
	FindAllSettings(ctx context.Context) ([]entity.Setting, error)
	StoreCancelRequest(ctx context.Context, request entity.CancelRequest) error
	FindOpenCancelRequests(ctx context.Context) ([]entity.CancelRequest, error)
}

type PendingBookingsRepository interface {
	Store(ctx context.Context, booking entity.PendingBooking) error
	FindBySessionID(ctx context.Context, sessionID string) (entity.PendingBooking, error)
	Delete(ctx context.Context, sessionID string) error
}

type EmailStatsRepository interface {
	Stats(ctx context.Context, since time.Time) (entity.EmailStats, error)
}

type PaymentsGateway interface {
	CreateCheckoutSession(ctx context.Context, req gateway.CheckoutSessionRequest) (gateway.CheckoutSession, error)
	GetSession(ctx context.Context, sessionID string) (gateway.SessionStatus, error)
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (gateway.PaymentIntent, error)
	RefundPayment(ctx context.Context, paymentIntentID string, amountCents int64) (gateway.Refund, error)
	SignatureValid(body []byte, signature string) bool
}

type PaymentSyncService interface {
	Start()
	Stop()
	RunSweep(ctx context.Context) reconcile.SweepResult
	Status() reconcile.SyncStatus
}

type EmailRetryService interface {
	Start()
	Stop()
	RunSweep(ctx context.Context) int
	Status() reconcile.RetryStatus
}

// Config carries the request-independent values handlers need.
type Config struct {
	Addr            string
	DefaultLocation string
	NotificationURL string
	SuccessURL      string
	CancelURL       string
	Currency        string
}

type Server struct {
	cfg Config
	e   *echo.Echo

	ticketsRepo  TicketsRepository
	slotsRepo    SlotsRepository
	vouchersRepo VouchersRepository
	catalogRepo  CatalogRepository
	pendingRepo  PendingBookingsRepository
	emailStats   EmailStatsRepository

	payments PaymentsGateway

	paymentSync PaymentSyncService
	emailRetry  EmailRetryService
}

func NewServer(
	cfg Config,
	ticketsRepo TicketsRepository,
	slotsRepo SlotsRepository,
	vouchersRepo VouchersRepository,
	catalogRepo CatalogRepository,
	pendingRepo PendingBookingsRepository,
	emailStats EmailStatsRepository,
	payments PaymentsGateway,
	paymentSync PaymentSyncService,
	emailRetry EmailRetryService,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())
	e.HTTPErrorHandler = errorHandler

	server := &Server{
		cfg:          cfg,
		e:            e,
		ticketsRepo:  ticketsRepo,
		slotsRepo:    slotsRepo,
		vouchersRepo: vouchersRepo,
		catalogRepo:  catalogRepo,
		pendingRepo:  pendingRepo,
		emailStats:   emailStats,
		payments:     payments,
		paymentSync:  paymentSync,
		emailRetry:   emailRetry,
	}

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")

	api.POST("/checkout", server.PostCheckout)
	api.POST("/payments/webhook", server.PostPaymentWebhook)
	api.GET("/payments/session-result", server.GetSessionResult)

	api.GET("/tickets", server.GetTickets)
	api.GET("/tickets/:ticket_id", server.GetTicket)
	api.POST("/tickets/:ticket_id/verify", server.PostVerifyTicket)
	api.POST("/tickets/:ticket_id/cancel", server.PostCancelTicket)
	api.POST("/tickets/:ticket_id/refund", server.PostRefundTicket)
	api.POST("/refunds/slot", server.PostSlotRefund)
	api.POST("/walkin", server.PostWalkIn)

	api.GET("/slots", server.GetSlots)
	api.POST("/slots", server.PostSlot)
	api.POST("/slots/bulk", server.PostSlotsBulk)
	api.PUT("/slots/:slot_id", server.PutSlot)
	api.DELETE("/slots/:slot_id", server.DeleteSlot)

	api.GET("/vouchers", server.GetVouchers)
	api.POST("/vouchers", server.PostVoucher)
	api.POST("/vouchers/validate", server.PostValidateVoucher)
	api.PATCH("/vouchers/:voucher_id/active", server.PatchVoucherActive)
	api.DELETE("/vouchers/:voucher_id", server.DeleteVoucher)

	api.GET("/bundles", server.GetBundles)
	api.POST("/bundles", server.PostBundle)
	api.DELETE("/bundles/:bundle_id", server.DeleteBundle)

	api.GET("/settings", server.GetSettings)
	api.PUT("/settings", server.PutSetting)

	api.POST("/cancel-requests", server.PostCancelRequest)
	api.GET("/cancel-requests", server.GetCancelRequests)

	admin := api.Group("/admin")
	admin.GET("/payment-sync/status", server.GetPaymentSyncStatus)
	admin.POST("/payment-sync/start", server.PostPaymentSyncStart)
	admin.POST("/payment-sync/stop", server.PostPaymentSyncStop)
	admin.POST("/payment-sync/trigger", server.PostPaymentSyncTrigger)
	admin.GET("/email-retry/status", server.GetEmailRetryStatus)
	admin.POST("/email-retry/start", server.PostEmailRetryStart)
	admin.POST("/email-retry/stop", server.PostEmailRetryStop)
	admin.POST("/email-retry/trigger", server.PostEmailRetryTrigger)
	admin.GET("/email-stats", server.GetEmailStats)

	return server
}

func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		if err := s.e.Shutdown(context.Background()); err != nil {
			logrus.WithError(err).Error("failed to shutdown HTTP server")
		}
	}()
	logrus.WithField("addr", s.cfg.Addr).Info("[HTTP] server listening")
	if err := s.e.Start(s.cfg.Addr); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler exposes the echo engine for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logrus.WithFields(logrus.Fields{
				"method":   c.Request().Method,
				"path":     c.Path(),
				"status":   c.Response().Status,
				"duration": time.Since(start).String(),
			}).Debug("Request handled")
			return err
		}
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{Success: true, Data: data})
}

func okMessage(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, envelope{Success: false, Error: message})
}

// errorHandler renders every unhandled error in the response envelope.
// Internal errors are logged with detail and reported generically.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		_ = fail(c, httpErr.Code, fmt.Sprintf("%v", httpErr.Message))
		return
	}

	logrus.WithError(err).WithField("path", c.Path()).Error("Request failed")
	_ = fail(c, http.StatusInternalServerError, "internal server error")
}
