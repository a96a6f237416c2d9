package event

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

// ConfirmationSender delivers the confirmation email for a paid ticket.
// It must be idempotent: redelivered events and overlapping retry sweeps
// both funnel into it.
type ConfirmationSender interface {
	SendConfirmation(ctx context.Context, ticketID string) error
}

// CancelRequestsRepository closes open cancellation requests once the
// ticket they reference has been refunded.
type CancelRequestsRepository interface {
	MarkReviewedByTicket(ctx context.Context, ticketID string) error
}

type Handler struct {
	mailer         ConfirmationSender
	cancelRequests CancelRequestsRepository
}

func NewHandler(mailer ConfirmationSender, cancelRequests CancelRequestsRepository) Handler {
	if mailer == nil {
		panic("missing mailer")
	}
	if cancelRequests == nil {
		panic("missing cancelRequests")
	}

	return Handler{
		mailer:         mailer,
		cancelRequests: cancelRequests,
	}
}

func NewProcessorConfig(rdb *redis.Client, logger watermill.LoggerAdapter) cqrs.EventProcessorConfig {
	return cqrs.EventProcessorConfig{
		SubscriberConstructor: func(params cqrs.EventProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			return redisstream.NewSubscriber(redisstream.SubscriberConfig{
				Client:        rdb,
				ConsumerGroup: "svc-parktickets." + params.HandlerName,
			}, logger)
		},
		GenerateSubscribeTopic: func(params cqrs.EventProcessorGenerateSubscribeTopicParams) (string, error) {
			return "events." + params.EventName, nil
		},
		Marshaler: cqrs.JSONMarshaler{
			GenerateName: cqrs.StructName,
		},
		Logger: logger,
	}
}
