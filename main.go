package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"parktickets/config"
	"parktickets/gateway"
	"parktickets/http"
	"parktickets/mailer"
	"parktickets/service"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Could not load .env file")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	db, err := sqlx.Open("postgres", cfg.PostgresURL)
	if err != nil {
		logrus.WithError(err).Fatal("Could not connect to Postgres")
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer rdb.Close()

	var (
		payments   http.PaymentsGateway
		mailSender mailer.MailSender
	)
	if cfg.MockGateways {
		logrus.Warn("Running with mocked payment gateway and SMTP")
		payments = gateway.NewPaymentsMock(cfg.GatewayWebhookSecret)
		mailSender = &gateway.MailMock{}
	} else {
		payments = gateway.NewPaymentsClient(cfg.GatewayURL, cfg.GatewayAPIKey, cfg.GatewayWebhookSecret)
		mailSender = gateway.NewMailClient(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom)
	}

	svc := service.New(cfg, db, rdb, payments, mailSender)

	if err := svc.Run(ctx); err != nil {
		logrus.WithError(err).Fatal("Service stopped with error")
	}
}
