package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"parktickets/db"
	"parktickets/entity"
	"parktickets/pubsub/bus"
	"parktickets/pubsub/outbox"
)

type PostgresRepository struct {
	db              *sqlx.DB
	watermillLogger watermill.LoggerAdapter
}

func NewPostgresRepository(db *sqlx.DB, watermillLogger watermill.LoggerAdapter) *PostgresRepository {
	if db == nil {
		panic("missing db")
	}
	return &PostgresRepository{db: db, watermillLogger: watermillLogger}
}

// Store books a ticket against a time slot. It runs inside a serializable
// transaction so that two concurrent bookings cannot both pass the capacity
// check and oversell the slot. Cash walk-ins are paid at the counter, so
// their confirmation event is published transactionally with the insert.
func (r *PostgresRepository) Store(ctx context.Context, ticket entity.Ticket, maxAdmissions int) error {
	return db.RunInTx(ctx, r.db, sql.LevelSerializable, func(ctx context.Context, tx *sqlx.Tx) error {
		sold, err := soldAdmissions(ctx, tx, ticket.Slot())
		if err != nil {
			return fmt.Errorf("could not get sold admissions: %w", err)
		}

		remaining := maxAdmissions - sold
		if remaining < ticket.TotalAdmissions() {
			if remaining < 0 {
				remaining = 0
			}
			return entity.NoCapacityError{Remaining: remaining, Requested: ticket.TotalAdmissions()}
		}

		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO tickets (
				ticket_id, slot_date, start_time, end_time,
				admissions, bundle_name, bundle_admissions, bundle_price,
				amount, subtotal,
				customer_name, customer_surname, customer_email, customer_phone,
				payment_method, payment_status,
				cancellation_enabled, cancellation_fee,
				refund_status, session_id, payment_intent_id, qr_data, created_at
			) VALUES (
				:ticket_id, :slot_date, :start_time, :end_time,
				:admissions, :bundle_name, :bundle_admissions, :bundle_price,
				:amount, :subtotal,
				:customer_name, :customer_surname, :customer_email, :customer_phone,
				:payment_method, :payment_status,
				:cancellation_enabled, :cancellation_fee,
				:refund_status, :session_id, :payment_intent_id, :qr_data, :created_at
			)
		`, ticket)
		if err != nil {
			return fmt.Errorf("could not add ticket: %w", err)
		}

		if ticket.PaymentStatus == entity.PaymentStatusPaid {
			err = r.publishInTx(ctx, tx, entity.TicketPaid{
				Header:   entity.NewEventHeaderWithIdempotencyKey(ticket.TicketID),
				TicketID: ticket.TicketID,
				Email:    ticket.Email,
				Name:     ticket.Name,
			})
			if err != nil {
				return fmt.Errorf("could not publish event: %w", err)
			}
		}

		return nil
	})
}

// MarkPaid transitions a ticket to paid and publishes TicketPaid in the same
// transaction. The update is conditional on the ticket not being paid yet, so
// redelivered webhooks and the polling sweep converge on a single event no
// matter how many of them observe the same completed session.
func (r *PostgresRepository) MarkPaid(ctx context.Context, ticketID, paymentIntentID string) (transitioned bool, err error) {
	err = db.RunInTx(ctx, r.db, sql.LevelDefault, func(ctx context.Context, tx *sqlx.Tx) error {
		var row struct {
			Email string `db:"customer_email"`
			Name  string `db:"customer_name"`
		}
		err := tx.GetContext(ctx, &row, `
			UPDATE tickets
			SET payment_status = $2,
			    payment_intent_id = CASE WHEN $3 <> '' THEN $3 ELSE payment_intent_id END
			WHERE ticket_id = $1 AND payment_status <> $2 AND NOT cancelled
			RETURNING customer_email, customer_name
		`, ticketID, entity.PaymentStatusPaid, paymentIntentID)
		if errors.Is(err, sql.ErrNoRows) {
			// already paid (or cancelled): nothing to do
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not mark ticket paid: %w", err)
		}

		transitioned = true

		err = r.publishInTx(ctx, tx, entity.TicketPaid{
			Header:   entity.NewEventHeaderWithIdempotencyKey(ticketID),
			TicketID: ticketID,
			Email:    row.Email,
			Name:     row.Name,
		})
		if err != nil {
			return fmt.Errorf("could not publish event: %w", err)
		}

		return nil
	})
	return transitioned, err
}

// SetSessionID backfills the gateway session opened for a stored ticket.
// Checkout books the ticket first so a capacity rejection never leaves a live
// session behind at the gateway.
func (r *PostgresRepository) SetSessionID(ctx context.Context, ticketID, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tickets SET session_id = $2 WHERE ticket_id = $1
	`, ticketID, sessionID)
	return err
}

// RecordPaymentIntent backfills the gateway's payment intent id for a session
// the sweep found still unsettled.
func (r *PostgresRepository) RecordPaymentIntent(ctx context.Context, ticketID, paymentIntentID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tickets
		SET payment_intent_id = $2, payment_status = $3
		WHERE ticket_id = $1 AND payment_status = $4
	`, ticketID, paymentIntentID, entity.PaymentStatusProcessing, entity.PaymentStatusPending)
	return err
}

// MarkUsed burns a ticket at the gate. Cancelled and already-used tickets are
// rejected with distinct errors so the gate can show the right message.
func (r *PostgresRepository) MarkUsed(ctx context.Context, ticketID string) error {
	return db.RunInTx(ctx, r.db, sql.LevelDefault, func(ctx context.Context, tx *sqlx.Tx) error {
		var row struct {
			Cancelled bool `db:"cancelled"`
			Used      bool `db:"used"`
		}
		err := tx.GetContext(ctx, &row, `
			SELECT cancelled, used FROM tickets WHERE ticket_id = $1 FOR UPDATE
		`, ticketID)
		if errors.Is(err, sql.ErrNoRows) {
			return entity.ErrNotFound
		}
		if err != nil {
			return err
		}

		if row.Cancelled {
			return entity.ErrTicketCancelled
		}
		if row.Used {
			return entity.ErrTicketUsed
		}

		_, err = tx.ExecContext(ctx, `UPDATE tickets SET used = true WHERE ticket_id = $1`, ticketID)
		return err
	})
}

// Cancel marks a ticket cancelled, freeing its admissions for rebooking.
func (r *PostgresRepository) Cancel(ctx context.Context, ticketID string) error {
	return db.RunInTx(ctx, r.db, sql.LevelDefault, func(ctx context.Context, tx *sqlx.Tx) error {
		var row struct {
			Cancelled bool `db:"cancelled"`
			Used      bool `db:"used"`
			Enabled   bool `db:"cancellation_enabled"`
		}
		err := tx.GetContext(ctx, &row, `
			SELECT cancelled, used, cancellation_enabled FROM tickets WHERE ticket_id = $1 FOR UPDATE
		`, ticketID)
		if errors.Is(err, sql.ErrNoRows) {
			return entity.ErrNotFound
		}
		if err != nil {
			return err
		}

		if row.Cancelled {
			return entity.ErrAlreadyCancelled
		}
		if row.Used {
			return entity.ErrTicketUsed
		}
		if !row.Enabled {
			return entity.ErrCancellationDisabled
		}

		_, err = tx.ExecContext(ctx, `UPDATE tickets SET cancelled = true WHERE ticket_id = $1`, ticketID)
		return err
	})
}

// MarkRefundRequested records the intent to refund before the gateway call is
// made. If the process dies between the gateway accepting the refund and the
// local write, the sweep picks the ticket up again from this state. The
// transition is re-runnable from requested, so a refund whose gateway call
// failed can simply be retried; only a settled refund blocks it.
func (r *PostgresRepository) MarkRefundRequested(ctx context.Context, ticketID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tickets
		SET refund_status = $2
		WHERE ticket_id = $1 AND refund_status IN ($2, $3)
	`, ticketID, entity.RefundStatusRequested, entity.RefundStatusNone)
	if err != nil {
		return err
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return entity.ErrAlreadyRefunded
	}
	return nil
}

// MarkRefunded settles a refund locally and publishes TicketRefunded in the
// same transaction.
func (r *PostgresRepository) MarkRefunded(ctx context.Context, ticketID, refundID string, amount decimal.Decimal, refundedAt time.Time) error {
	return db.RunInTx(ctx, r.db, sql.LevelDefault, func(ctx context.Context, tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE tickets
			SET refund_status = $2,
			    refunded_amount = $3,
			    refund_transaction_id = $4,
			    refund_date = $5,
			    cancelled = true
			WHERE ticket_id = $1 AND refund_status <> $2
		`, ticketID, entity.RefundStatusRefunded, amount, refundID, refundedAt)
		if err != nil {
			return fmt.Errorf("could not mark ticket refunded: %w", err)
		}
		rowsAffected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return entity.ErrAlreadyRefunded
		}

		err = r.publishInTx(ctx, tx, entity.TicketRefunded{
			Header:         entity.NewEventHeaderWithIdempotencyKey(ticketID),
			TicketID:       ticketID,
			RefundID:       refundID,
			AmountRefunded: amount.StringFixed(2),
		})
		if err != nil {
			return fmt.Errorf("could not publish event: %w", err)
		}

		return nil
	})
}

func (r *PostgresRepository) FindByID(ctx context.Context, ticketID string) (entity.Ticket, error) {
	var ticket entity.Ticket
	err := r.db.GetContext(ctx, &ticket, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = $1`, ticketID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Ticket{}, entity.ErrNotFound
	}
	return ticket, err
}

func (r *PostgresRepository) FindBySessionID(ctx context.Context, sessionID string) (entity.Ticket, error) {
	var ticket entity.Ticket
	err := r.db.GetContext(ctx, &ticket, `SELECT `+ticketColumns+` FROM tickets WHERE session_id = $1`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Ticket{}, entity.ErrNotFound
	}
	return ticket, err
}

func (r *PostgresRepository) FindAll(ctx context.Context) ([]entity.Ticket, error) {
	var tickets []entity.Ticket
	err := r.db.SelectContext(ctx, &tickets, `
		SELECT `+ticketColumns+` FROM tickets ORDER BY created_at DESC
	`)
	return tickets, err
}

func (r *PostgresRepository) FindByDate(ctx context.Context, date string) ([]entity.Ticket, error) {
	var tickets []entity.Ticket
	err := r.db.SelectContext(ctx, &tickets, `
		SELECT `+ticketColumns+` FROM tickets WHERE slot_date = $1 ORDER BY created_at
	`, date)
	return tickets, err
}

func (r *PostgresRepository) FindBySlot(ctx context.Context, slot entity.SlotKey) ([]entity.Ticket, error) {
	var tickets []entity.Ticket
	err := r.db.SelectContext(ctx, &tickets, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE slot_date = $1 AND start_time = $2 AND end_time = $3
		ORDER BY created_at
	`, slot.Date, slot.StartTime, slot.EndTime)
	return tickets, err
}

// FindIncomplete returns card tickets that went through checkout but were
// never reconciled: a session exists, a payment intent does not.
func (r *PostgresRepository) FindIncomplete(ctx context.Context) ([]entity.Ticket, error) {
	var tickets []entity.Ticket
	err := r.db.SelectContext(ctx, &tickets, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE session_id <> ''
		  AND payment_intent_id = ''
		  AND payment_status <> $1
		  AND NOT cancelled
		ORDER BY created_at
	`, entity.PaymentStatusPaid)
	return tickets, err
}

// FindRefundRequested returns tickets whose refund was initiated but never
// confirmed locally.
func (r *PostgresRepository) FindRefundRequested(ctx context.Context) ([]entity.Ticket, error) {
	var tickets []entity.Ticket
	err := r.db.SelectContext(ctx, &tickets, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE refund_status = $1
		ORDER BY created_at
	`, entity.RefundStatusRequested)
	return tickets, err
}

// FindEmailCandidates returns paid tickets created since the given time, the
// population the email retry sweep checks against the send log.
func (r *PostgresRepository) FindEmailCandidates(ctx context.Context, since time.Time) ([]entity.Ticket, error) {
	var tickets []entity.Ticket
	err := r.db.SelectContext(ctx, &tickets, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE payment_status = $1
		  AND NOT cancelled
		  AND created_at >= $2
		ORDER BY created_at
	`, entity.PaymentStatusPaid, since)
	return tickets, err
}

func (r *PostgresRepository) SoldAdmissions(ctx context.Context, slot entity.SlotKey) (int, error) {
	return soldAdmissions(ctx, r.db, slot)
}

// soldAdmissions counts admissions held by every non-cancelled ticket in the
// slot. Pending tickets keep their capacity until they are cancelled, so a
// shopper who is mid-checkout cannot lose their spot to a later booking.
func soldAdmissions(ctx context.Context, q sqlx.QueryerContext, slot entity.SlotKey) (int, error) {
	var sold int
	err := sqlx.GetContext(ctx, q, &sold, `
		SELECT COALESCE(SUM(admissions + bundle_admissions), 0)
		FROM tickets
		WHERE slot_date = $1 AND start_time = $2 AND end_time = $3
		  AND NOT cancelled
	`, slot.Date, slot.StartTime, slot.EndTime)
	if err != nil {
		return 0, fmt.Errorf("could not count sold admissions: %w", err)
	}
	return sold, nil
}

func (r *PostgresRepository) publishInTx(ctx context.Context, tx *sqlx.Tx, event any) error {
	publisher, err := outbox.PublisherForTx(tx.Tx, r.watermillLogger)
	if err != nil {
		return fmt.Errorf("could not create outbox publisher: %w", err)
	}

	eventBus, err := bus.NewEventBus(publisher)
	if err != nil {
		return err
	}

	return eventBus.Publish(ctx, event)
}

const ticketColumns = `
	ticket_id, slot_date, start_time, end_time,
	admissions, bundle_name, bundle_admissions, bundle_price,
	amount, subtotal,
	customer_name, customer_surname, customer_email, customer_phone,
	payment_method, payment_status,
	cancelled, used,
	cancellation_enabled, cancellation_fee,
	refund_status, refunded_amount, refund_transaction_id, refund_date,
	session_id, payment_intent_id, qr_data, created_at
`
