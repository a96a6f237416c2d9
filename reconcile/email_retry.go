package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"parktickets/entity"
)

const (
	defaultRetryInterval = 2 * time.Minute

	// Only tickets booked inside this window are retried; older failures
	// need manual intervention.
	retryWindow = 24 * time.Hour

	// After a failed attempt the ticket is left alone for this long.
	retryCooldown = time.Hour
)

type EmailCandidatesRepository interface {
	FindEmailCandidates(ctx context.Context, since time.Time) ([]entity.Ticket, error)
}

type EmailLogReader interface {
	HasSent(ctx context.Context, ticketID string) (bool, error)
	LastFailed(ctx context.Context, ticketID string) (entity.EmailLog, error)
}

type TicketMailer interface {
	SendTicket(ctx context.Context, ticket entity.Ticket, retryCount int) error
}

// RetryStatus is the admin API's view of the retry service.
type RetryStatus struct {
	Running  bool       `json:"running"`
	Interval string     `json:"interval"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	LastSent int        `json:"last_sent"`
}

// EmailRetryService re-sends confirmation email for paid tickets that never
// got a SENT log row. It catches both failed sends and sends that were never
// attempted because the process died between payment and delivery.
type EmailRetryService struct {
	tickets  EmailCandidatesRepository
	emailLog EmailLogReader
	mailer   TicketMailer
	interval time.Duration

	trigger   chan struct{}
	sweepLock sync.Mutex

	mu       sync.Mutex
	running  bool
	lastRun  time.Time
	lastSent int
}

func NewEmailRetryService(tickets EmailCandidatesRepository, emailLog EmailLogReader, mailer TicketMailer, interval time.Duration) *EmailRetryService {
	if tickets == nil {
		panic("missing tickets repository")
	}
	if emailLog == nil {
		panic("missing email log repository")
	}
	if mailer == nil {
		panic("missing mailer")
	}
	if interval <= 0 {
		interval = defaultRetryInterval
	}
	return &EmailRetryService{
		tickets:  tickets,
		emailLog: emailLog,
		mailer:   mailer,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		running:  true,
	}
}

// Run blocks until ctx is cancelled, sweeping on the interval.
func (s *EmailRetryService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.enabled() {
				s.sweep(ctx)
			}
		case <-s.trigger:
			s.sweep(ctx)
		}
	}
}

func (s *EmailRetryService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
}

func (s *EmailRetryService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

func (s *EmailRetryService) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// RunSweep runs one sweep synchronously and returns how many emails went out.
func (s *EmailRetryService) RunSweep(ctx context.Context) int {
	return s.sweep(ctx)
}

func (s *EmailRetryService) Status() RetryStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := RetryStatus{
		Running:  s.running,
		Interval: s.interval.String(),
		LastSent: s.lastSent,
	}
	if !s.lastRun.IsZero() {
		t := s.lastRun
		status.LastRun = &t
	}
	return status
}

func (s *EmailRetryService) enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *EmailRetryService) sweep(ctx context.Context) int {
	if !s.sweepLock.TryLock() {
		return 0
	}
	defer s.sweepLock.Unlock()

	startedAt := time.Now().UTC()
	since := startedAt.Add(-retryWindow)

	candidates, err := s.tickets.FindEmailCandidates(ctx, since)
	if err != nil {
		logrus.WithError(err).Error("Could not list email candidates")
		return 0
	}

	sent := 0
	for _, ticket := range candidates {
		ok, err := s.retryTicket(ctx, ticket, startedAt)
		if err != nil {
			logrus.WithError(err).WithField("ticket_id", ticket.TicketID).Warn("Email retry failed")
			continue
		}
		if ok {
			sent++
		}
	}

	if sent > 0 {
		logrus.WithField("sent", sent).Info("Email retry sweep re-sent tickets")
	}

	s.mu.Lock()
	s.lastRun = startedAt
	s.lastSent = sent
	s.mu.Unlock()

	return sent
}

func (s *EmailRetryService) retryTicket(ctx context.Context, ticket entity.Ticket, now time.Time) (bool, error) {
	alreadySent, err := s.emailLog.HasSent(ctx, ticket.TicketID)
	if err != nil {
		return false, err
	}
	if alreadySent {
		return false, nil
	}

	retryCount := 0
	failed, err := s.emailLog.LastFailed(ctx, ticket.TicketID)
	switch {
	case err == nil:
		if now.Sub(failed.SentAt) < retryCooldown {
			return false, nil
		}
		retryCount = failed.RetryCount + 1
	case errors.Is(err, entity.ErrNotFound):
		// paid but never attempted: the send was lost, go straight out
	default:
		return false, err
	}

	if err := s.mailer.SendTicket(ctx, ticket, retryCount); err != nil {
		return false, err
	}
	return true, nil
}
