package event

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/sirupsen/logrus"

	"parktickets/entity"
)

func (h Handler) SendConfirmationHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"SendConfirmationHandler",
		func(ctx context.Context, event *entity.TicketPaid) error {
			logrus.WithFields(logrus.Fields{
				"ticket_id": event.TicketID,
				"email":     event.Email,
			}).Info("Sending ticket confirmation email")

			if err := h.mailer.SendConfirmation(ctx, event.TicketID); err != nil {
				return fmt.Errorf("failed to send confirmation for ticket %s: %w", event.TicketID, err)
			}

			return nil
		},
	)
}

func (h Handler) CloseCancelRequestsHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"CloseCancelRequestsHandler",
		func(ctx context.Context, event *entity.TicketRefunded) error {
			logrus.WithField("ticket_id", event.TicketID).Info("Closing cancel requests for refunded ticket")

			return h.cancelRequests.MarkReviewedByTicket(ctx, event.TicketID)
		},
	)
}
