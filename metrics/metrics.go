package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_processed_total",
		Help: "The total number of processed messages",
	}, []string{"topic", "handler"})

	MessagesProcessingFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_processing_failed_total",
		Help: "The total number of messages that failed processing",
	}, []string{"topic", "handler"})

	MessagesProcessingDuration = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name:       "messages_processing_duration_seconds",
		Help:       "The total time spent processing messages",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"topic", "handler"})

	TicketsBooked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickets_booked_total",
		Help: "The total number of tickets booked",
	}, []string{"payment_method"})

	TicketsPaid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_paid_total",
		Help: "The total number of tickets marked paid",
	})

	TicketsRefunded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_refunded_total",
		Help: "The total number of tickets refunded",
	})

	PaymentSyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_sync_runs_total",
		Help: "The total number of payment sync sweeps",
	}, []string{"trigger"})

	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emails_sent_total",
		Help: "The total number of confirmation emails sent",
	}, []string{"status"})
)
