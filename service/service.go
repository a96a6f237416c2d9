package service

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"parktickets/config"
	"parktickets/db"
	"parktickets/db/catalog"
	"parktickets/db/emaillog"
	"parktickets/db/pending"
	"parktickets/db/slots"
	"parktickets/db/tickets"
	"parktickets/db/vouchers"
	"parktickets/http"
	"parktickets/mailer"
	"parktickets/pubsub"
	"parktickets/pubsub/event"
	"parktickets/pubsub/outbox"
	"parktickets/reconcile"
)

type Service struct {
	db              *sqlx.DB
	watermillRouter *message.Router
	httpServer      *http.Server
	paymentSync     *reconcile.PaymentSyncService
	emailRetry      *reconcile.EmailRetryService
}

func New(
	cfg config.Config,
	database *sqlx.DB,
	redisClient *redis.Client,
	payments http.PaymentsGateway,
	mailSender mailer.MailSender,
) Service {
	watermillLogger := pubsub.NewLogrusLogger(logrus.NewEntry(logrus.StandardLogger()))

	ticketsRepo := tickets.NewPostgresRepository(database, watermillLogger)
	slotsRepo := slots.NewPostgresRepository(database)
	vouchersRepo := vouchers.NewPostgresRepository(database)
	catalogRepo := catalog.NewPostgresRepository(database)
	pendingRepo := pending.NewPostgresRepository(database)
	emailLogRepo := emaillog.NewPostgresRepository(database)

	mailerService := mailer.NewService(mailSender, ticketsRepo, emailLogRepo)

	eventsHandler := event.NewHandler(mailerService, catalogRepo)

	redisPublisher := pubsub.NewRedisPublisher(redisClient, watermillLogger)
	postgresSubscriber := outbox.NewPostgresSubscriber(database.DB, watermillLogger)
	eventProcessorConfig := event.NewProcessorConfig(redisClient, watermillLogger)

	watermillRouter, err := pubsub.NewWatermillRouter(
		postgresSubscriber,
		redisPublisher,
		eventProcessorConfig,
		eventsHandler,
		watermillLogger,
	)
	if err != nil {
		panic(fmt.Errorf("failed to create watermill router: %w", err))
	}

	paymentSync := reconcile.NewPaymentSyncService(ticketsRepo, payments, cfg.PaymentSyncInterval)
	emailRetry := reconcile.NewEmailRetryService(ticketsRepo, emailLogRepo, mailerService, cfg.EmailRetryInterval)

	httpServer := http.NewServer(
		http.Config{
			Addr:            cfg.HTTPAddr,
			DefaultLocation: cfg.DefaultLocation,
			NotificationURL: cfg.NotificationURL,
			SuccessURL:      cfg.SuccessURL,
			CancelURL:       cfg.CancelURL,
			Currency:        cfg.Currency,
		},
		ticketsRepo,
		slotsRepo,
		vouchersRepo,
		catalogRepo,
		pendingRepo,
		emailLogRepo,
		payments,
		paymentSync,
		emailRetry,
	)

	return Service{
		db:              database,
		watermillRouter: watermillRouter,
		httpServer:      httpServer,
		paymentSync:     paymentSync,
		emailRetry:      emailRetry,
	}
}

func (s Service) Run(ctx context.Context) error {
	if err := db.InitializeDatabaseSchema(s.db); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}
	if err := outbox.InitializeSchema(s.db.DB, pubsub.NewLogrusLogger(logrus.NewEntry(logrus.StandardLogger()))); err != nil {
		return fmt.Errorf("failed to initialize outbox schema: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.watermillRouter.Run(ctx)
	})

	g.Go(func() error {
		return s.paymentSync.Run(ctx)
	})

	g.Go(func() error {
		return s.emailRetry.Run(ctx)
	})

	g.Go(func() error {
		// the HTTP server starts only once the router is ready, so the
		// service is not healthy before it can process events
		<-s.watermillRouter.Running()
		return s.httpServer.Run(ctx)
	})

	return g.Wait()
}
