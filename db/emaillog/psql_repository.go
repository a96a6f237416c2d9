package emaillog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"parktickets/entity"
)

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// HasSent reports whether a SENT log row exists for the ticket. This is the
// delivery dedup check: once true, neither the event handler nor the retry
// sweep will send again.
func (r *PostgresRepository) HasSent(ctx context.Context, ticketID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM email_logs WHERE ticket_id = $1 AND status = $2
		)
	`, ticketID, entity.EmailStatusSent)
	return exists, err
}

// LastFailed returns the FAILED row for the ticket, if any.
func (r *PostgresRepository) LastFailed(ctx context.Context, ticketID string) (entity.EmailLog, error) {
	var log entity.EmailLog
	err := r.db.GetContext(ctx, &log, `
		SELECT log_id, email, customer_name, ticket_id, status, error_detail, retry_count, is_retry, sent_at
		FROM email_logs
		WHERE ticket_id = $1 AND status = $2
	`, ticketID, entity.EmailStatusFailed)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.EmailLog{}, entity.ErrNotFound
	}
	return log, err
}

func (r *PostgresRepository) LogSent(ctx context.Context, log entity.EmailLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	log.Status = entity.EmailStatusSent
	if log.SentAt.IsZero() {
		log.SentAt = time.Now().UTC()
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO email_logs (log_id, email, customer_name, ticket_id, status, error_detail, retry_count, is_retry, sent_at)
		VALUES (:log_id, :email, :customer_name, :ticket_id, :status, :error_detail, :retry_count, :is_retry, :sent_at)
	`, log)
	return err
}

// UpsertFailed records a failed attempt, replacing the previous FAILED row
// for the ticket so retry_count accumulates instead of stacking rows.
func (r *PostgresRepository) UpsertFailed(ctx context.Context, log entity.EmailLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	log.Status = entity.EmailStatusFailed
	if log.SentAt.IsZero() {
		log.SentAt = time.Now().UTC()
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO email_logs (log_id, email, customer_name, ticket_id, status, error_detail, retry_count, is_retry, sent_at)
		VALUES (:log_id, :email, :customer_name, :ticket_id, :status, :error_detail, :retry_count, :is_retry, :sent_at)
		ON CONFLICT (ticket_id) WHERE status = 'FAILED'
		DO UPDATE SET
			error_detail = EXCLUDED.error_detail,
			retry_count = email_logs.retry_count + 1,
			is_retry = true,
			sent_at = EXCLUDED.sent_at
	`, log)
	return err
}

func (r *PostgresRepository) Stats(ctx context.Context, since time.Time) (entity.EmailStats, error) {
	var row struct {
		TotalTickets int          `db:"total_tickets"`
		SentEmails   int          `db:"sent_emails"`
		FailedEmails int          `db:"failed_emails"`
		LastSent     sql.NullTime `db:"last_sent"`
		LastFailed   sql.NullTime `db:"last_failed"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT
			(SELECT COUNT(*) FROM tickets WHERE payment_status = $1 AND NOT cancelled AND created_at >= $2) AS total_tickets,
			COUNT(*) FILTER (WHERE status = $3) AS sent_emails,
			COUNT(*) FILTER (WHERE status = $4) AS failed_emails,
			MAX(sent_at) FILTER (WHERE status = $3) AS last_sent,
			MAX(sent_at) FILTER (WHERE status = $4) AS last_failed
		FROM email_logs
		WHERE sent_at >= $2
	`, entity.PaymentStatusPaid, since, entity.EmailStatusSent, entity.EmailStatusFailed)
	if err != nil {
		return entity.EmailStats{}, err
	}

	stats := entity.EmailStats{
		TotalTickets: row.TotalTickets,
		SentEmails:   row.SentEmails,
		FailedEmails: row.FailedEmails,
	}
	if stats.TotalTickets > 0 {
		stats.SuccessRate = float64(stats.SentEmails) / float64(stats.TotalTickets) * 100
	}
	if row.LastSent.Valid {
		t := row.LastSent.Time
		stats.LastSent = &t
	}
	if row.LastFailed.Valid {
		t := row.LastFailed.Time
		stats.LastFailed = &t
	}
	return stats, nil
}
