package mailer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"parktickets/entity"
	"parktickets/gateway"
	"parktickets/metrics"
)

type MailSender interface {
	Send(ctx context.Context, msg gateway.EmailMessage) error
}

type TicketsRepository interface {
	FindByID(ctx context.Context, ticketID string) (entity.Ticket, error)
}

type EmailLogRepository interface {
	HasSent(ctx context.Context, ticketID string) (bool, error)
	LogSent(ctx context.Context, log entity.EmailLog) error
	UpsertFailed(ctx context.Context, log entity.EmailLog) error
}

// Service sends confirmation email and keeps the send log that drives
// deduplication and the retry sweep.
type Service struct {
	sender   MailSender
	tickets  TicketsRepository
	emailLog EmailLogRepository
}

func NewService(sender MailSender, tickets TicketsRepository, emailLog EmailLogRepository) *Service {
	if sender == nil {
		panic("missing mail sender")
	}
	if tickets == nil {
		panic("missing tickets repository")
	}
	if emailLog == nil {
		panic("missing email log repository")
	}
	return &Service{sender: sender, tickets: tickets, emailLog: emailLog}
}

// SendConfirmation sends the confirmation email for a freshly paid ticket.
// A failed send is recorded and left to the retry sweep; the event handler
// does not spin on SMTP outages.
func (s *Service) SendConfirmation(ctx context.Context, ticketID string) error {
	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("could not load ticket %s: %w", ticketID, err)
	}
	return s.send(ctx, ticket, false, 0)
}

// SendTicket is the retry-sweep entry point; the caller already holds the
// ticket and the accumulated retry count.
func (s *Service) SendTicket(ctx context.Context, ticket entity.Ticket, retryCount int) error {
	return s.send(ctx, ticket, true, retryCount)
}

func (s *Service) send(ctx context.Context, ticket entity.Ticket, isRetry bool, retryCount int) error {
	sent, err := s.emailLog.HasSent(ctx, ticket.TicketID)
	if err != nil {
		return fmt.Errorf("could not check send log: %w", err)
	}
	if sent {
		return nil
	}

	msg, err := ComposeConfirmation(ticket, isRetry)
	if err != nil {
		return err
	}

	logEntry := entity.EmailLog{
		Email:      ticket.Email,
		Name:       ticket.Name,
		TicketID:   ticket.TicketID,
		RetryCount: retryCount,
		IsRetry:    isRetry,
	}

	if sendErr := s.sender.Send(ctx, msg); sendErr != nil {
		metrics.EmailsSent.WithLabelValues("failed").Inc()
		logrus.WithError(sendErr).WithField("ticket_id", ticket.TicketID).Warn("Confirmation email failed")

		logEntry.Error = sendErr.Error()
		if err := s.emailLog.UpsertFailed(ctx, logEntry); err != nil {
			return fmt.Errorf("could not record failed send: %w", err)
		}
		if isRetry {
			return sendErr
		}
		// first attempt: the sweep owns retries from here
		return nil
	}

	metrics.EmailsSent.WithLabelValues("sent").Inc()
	logrus.WithField("ticket_id", ticket.TicketID).Info("Confirmation email sent")

	return s.emailLog.LogSent(ctx, logEntry)
}
