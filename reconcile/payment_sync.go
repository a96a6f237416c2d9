package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"parktickets/entity"
	"parktickets/gateway"
	"parktickets/metrics"
)

// The daily sweep runs just before midnight, after the day's walk-in and
// online traffic has died down.
const dailySweepSpec = "59 23 * * *"

type TicketsRepository interface {
	FindIncomplete(ctx context.Context) ([]entity.Ticket, error)
	FindRefundRequested(ctx context.Context) ([]entity.Ticket, error)
	MarkPaid(ctx context.Context, ticketID, paymentIntentID string) (bool, error)
	RecordPaymentIntent(ctx context.Context, ticketID, paymentIntentID string) error
	MarkRefunded(ctx context.Context, ticketID, refundID string, amount decimal.Decimal, refundedAt time.Time) error
}

type PaymentsGateway interface {
	GetSession(ctx context.Context, sessionID string) (gateway.SessionStatus, error)
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (gateway.PaymentIntent, error)
}

// SweepResult summarizes one reconciliation pass.
type SweepResult struct {
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration_ns"`
	Checked         int           `json:"checked"`
	MarkedPaid      int           `json:"marked_paid"`
	IntentsRecorded int           `json:"intents_recorded"`
	RefundsSettled  int           `json:"refunds_settled"`
	Errors          int           `json:"errors"`
}

// SyncStatus is the admin API's view of the service.
type SyncStatus struct {
	Running    bool        `json:"running"`
	Interval   string      `json:"interval"`
	LastRun    *time.Time  `json:"last_run,omitempty"`
	NextDaily  *time.Time  `json:"next_daily,omitempty"`
	LastResult SweepResult `json:"last_result"`
}

// PaymentSyncService is the safety net behind the webhook: it periodically
// re-checks every checkout session that never got reconciled, and every
// refund that was requested but never confirmed locally. Marking tickets
// goes through the same conditional updates as the webhook, so the sweep and
// the webhook can race freely.
type PaymentSyncService struct {
	tickets  TicketsRepository
	payments PaymentsGateway
	interval time.Duration

	cron    *cron.Cron
	trigger chan struct{}

	// sweepLock serializes sweeps; a tick that fires mid-sweep is dropped.
	sweepLock sync.Mutex

	mu         sync.Mutex
	running    bool
	lastRun    time.Time
	lastResult SweepResult
}

func NewPaymentSyncService(tickets TicketsRepository, payments PaymentsGateway, interval time.Duration) *PaymentSyncService {
	if tickets == nil {
		panic("missing tickets repository")
	}
	if payments == nil {
		panic("missing payments gateway")
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &PaymentSyncService{
		tickets:  tickets,
		payments: payments,
		interval: interval,
		cron:     cron.New(),
		trigger:  make(chan struct{}, 1),
		running:  true,
	}
}

// Run blocks until ctx is cancelled, sweeping on the interval and on the
// daily schedule. Start/Stop only gate the automatic sweeps; Trigger always
// runs.
func (s *PaymentSyncService) Run(ctx context.Context) error {
	_, err := s.cron.AddFunc(dailySweepSpec, func() {
		if s.enabled() {
			s.sweep(ctx, "daily")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	defer s.cron.Stop()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.enabled() {
				s.sweep(ctx, "interval")
			}
		case <-s.trigger:
			s.sweep(ctx, "manual")
		}
	}
}

func (s *PaymentSyncService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
}

func (s *PaymentSyncService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// Trigger queues an immediate sweep. The result is observable via Status.
func (s *PaymentSyncService) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// RunSweep runs one sweep synchronously and returns its result.
func (s *PaymentSyncService) RunSweep(ctx context.Context) SweepResult {
	return s.sweep(ctx, "manual")
}

func (s *PaymentSyncService) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := SyncStatus{
		Running:    s.running,
		Interval:   s.interval.String(),
		LastResult: s.lastResult,
	}
	if !s.lastRun.IsZero() {
		t := s.lastRun
		status.LastRun = &t
	}
	if entries := s.cron.Entries(); len(entries) > 0 {
		next := entries[0].Next
		if !next.IsZero() {
			status.NextDaily = &next
		}
	}
	return status
}

func (s *PaymentSyncService) enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *PaymentSyncService) sweep(ctx context.Context, reason string) SweepResult {
	if !s.sweepLock.TryLock() {
		return SweepResult{}
	}
	defer s.sweepLock.Unlock()

	metrics.PaymentSyncRuns.WithLabelValues(reason).Inc()

	result := SweepResult{StartedAt: time.Now().UTC()}
	s.syncIncomplete(ctx, &result)
	s.syncRequestedRefunds(ctx, &result)
	result.Duration = time.Since(result.StartedAt)

	logrus.WithFields(logrus.Fields{
		"reason":           reason,
		"checked":          result.Checked,
		"marked_paid":      result.MarkedPaid,
		"intents_recorded": result.IntentsRecorded,
		"refunds_settled":  result.RefundsSettled,
		"errors":           result.Errors,
	}).Info("Payment sync sweep finished")

	s.mu.Lock()
	s.lastRun = result.StartedAt
	s.lastResult = result
	s.mu.Unlock()

	return result
}

func (s *PaymentSyncService) syncIncomplete(ctx context.Context, result *SweepResult) {
	tickets, err := s.tickets.FindIncomplete(ctx)
	if err != nil {
		logrus.WithError(err).Error("Could not list incomplete tickets")
		result.Errors++
		return
	}

	for _, ticket := range tickets {
		result.Checked++

		session, err := s.payments.GetSession(ctx, ticket.SessionID)
		if err != nil {
			logrus.WithError(err).WithField("ticket_id", ticket.TicketID).Warn("Could not get session")
			result.Errors++
			continue
		}

		switch {
		case session.Paid():
			transitioned, err := s.tickets.MarkPaid(ctx, ticket.TicketID, session.PaymentIntentID)
			if err != nil {
				logrus.WithError(err).WithField("ticket_id", ticket.TicketID).Error("Could not mark ticket paid")
				result.Errors++
				continue
			}
			if transitioned {
				metrics.TicketsPaid.Inc()
				result.MarkedPaid++
			}
		case session.PaymentIntentID != "":
			if err := s.tickets.RecordPaymentIntent(ctx, ticket.TicketID, session.PaymentIntentID); err != nil {
				logrus.WithError(err).WithField("ticket_id", ticket.TicketID).Error("Could not record payment intent")
				result.Errors++
				continue
			}
			result.IntentsRecorded++
		}
	}
}

func (s *PaymentSyncService) syncRequestedRefunds(ctx context.Context, result *SweepResult) {
	tickets, err := s.tickets.FindRefundRequested(ctx)
	if err != nil {
		logrus.WithError(err).Error("Could not list refund-requested tickets")
		result.Errors++
		return
	}

	for _, ticket := range tickets {
		result.Checked++

		if ticket.PaymentIntentID == "" {
			continue
		}

		intent, err := s.payments.GetPaymentIntent(ctx, ticket.PaymentIntentID)
		if err != nil {
			logrus.WithError(err).WithField("ticket_id", ticket.TicketID).Warn("Could not get payment intent")
			result.Errors++
			continue
		}

		if intent.RefundedCents <= 0 {
			continue
		}

		amount := entity.FromCents(intent.RefundedCents)
		err = s.tickets.MarkRefunded(ctx, ticket.TicketID, ticket.RefundTransactionID, amount, time.Now().UTC())
		if err != nil {
			logrus.WithError(err).WithField("ticket_id", ticket.TicketID).Error("Could not settle refund")
			result.Errors++
			continue
		}
		metrics.TicketsRefunded.Inc()
		result.RefundsSettled++
	}
}
