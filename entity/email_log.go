package entity

import "time"

const (
	EmailStatusSent   = "SENT"
	EmailStatusFailed = "FAILED"
)

// EmailLog records one delivery attempt. SENT rows are append-only; the
// retry sweep upserts the single FAILED row per ticket instead of stacking
// new failures.
type EmailLog struct {
	ID         string    `json:"id" db:"log_id"`
	Email      string    `json:"email" db:"email"`
	Name       string    `json:"name,omitempty" db:"customer_name"`
	TicketID   string    `json:"ticket_id" db:"ticket_id"`
	Status     string    `json:"status" db:"status"`
	Error      string    `json:"error,omitempty" db:"error_detail"`
	RetryCount int       `json:"retry_count" db:"retry_count"`
	IsRetry    bool      `json:"is_retry" db:"is_retry"`
	SentAt     time.Time `json:"sent_at" db:"sent_at"`
}

// EmailStats is the aggregate view exposed on the admin API.
type EmailStats struct {
	TotalTickets int        `json:"total_tickets"`
	SentEmails   int        `json:"sent_emails"`
	FailedEmails int        `json:"failed_emails"`
	SuccessRate  float64    `json:"success_rate"`
	LastSent     *time.Time `json:"last_sent,omitempty"`
	LastFailed   *time.Time `json:"last_failed,omitempty"`
}
