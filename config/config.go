package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is read from the environment. A .env file, when present, is loaded
// by main before this runs.
type Config struct {
	HTTPAddr string

	PostgresURL string
	RedisAddr   string

	GatewayURL           string
	GatewayAPIKey        string
	GatewayWebhookSecret string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string

	DefaultLocation string
	Currency        string
	NotificationURL string
	SuccessURL      string
	CancelURL       string

	PaymentSyncInterval time.Duration
	EmailRetryInterval  time.Duration

	// MockGateways swaps the payment gateway and SMTP for in-memory mocks,
	// for local development without external accounts.
	MockGateways bool
}

func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		PostgresURL:          os.Getenv("POSTGRES_URL"),
		RedisAddr:            getenv("REDIS_ADDR", "localhost:6379"),
		GatewayURL:           os.Getenv("GATEWAY_URL"),
		GatewayAPIKey:        os.Getenv("GATEWAY_API_KEY"),
		GatewayWebhookSecret: os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		SMTPHost:             os.Getenv("SMTP_HOST"),
		SMTPUsername:         os.Getenv("SMTP_USERNAME"),
		SMTPPassword:         os.Getenv("SMTP_PASSWORD"),
		EmailFrom:            getenv("EMAIL_FROM", "bookings@example.com"),
		DefaultLocation:      getenv("DEFAULT_LOCATION", "main"),
		Currency:             getenv("CURRENCY", "EUR"),
		NotificationURL:      os.Getenv("PAYMENT_NOTIFICATION_URL"),
		SuccessURL:           os.Getenv("PAYMENT_SUCCESS_URL"),
		CancelURL:            os.Getenv("PAYMENT_CANCEL_URL"),
		MockGateways:         os.Getenv("MOCK_GATEWAYS") == "true",
	}

	if cfg.PostgresURL == "" {
		return Config{}, fmt.Errorf("POSTGRES_URL is required")
	}
	if !cfg.MockGateways {
		if cfg.GatewayURL == "" || cfg.GatewayAPIKey == "" {
			return Config{}, fmt.Errorf("GATEWAY_URL and GATEWAY_API_KEY are required")
		}
		if cfg.SMTPHost == "" {
			return Config{}, fmt.Errorf("SMTP_HOST is required")
		}
	}

	var err error
	cfg.SMTPPort, err = getenvInt("SMTP_PORT", 587)
	if err != nil {
		return Config{}, err
	}
	cfg.PaymentSyncInterval, err = getenvDuration("PAYMENT_SYNC_INTERVAL", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	cfg.EmailRetryInterval, err = getenvDuration("EMAIL_RETRY_INTERVAL", 2*time.Minute)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
