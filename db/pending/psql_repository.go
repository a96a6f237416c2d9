package pending

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"parktickets/entity"
)

// PostgresRepository stages booking payloads keyed by gateway session id
// until the payment settles.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Store(ctx context.Context, booking entity.PendingBooking) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO pending_bookings (session_id, booking_info, created_at)
		VALUES (:session_id, :booking_info, :created_at)
		ON CONFLICT (session_id) DO NOTHING
	`, booking)
	return err
}

func (r *PostgresRepository) FindBySessionID(ctx context.Context, sessionID string) (entity.PendingBooking, error) {
	var booking entity.PendingBooking
	err := r.db.GetContext(ctx, &booking, `
		SELECT session_id, booking_info, created_at
		FROM pending_bookings
		WHERE session_id = $1
	`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.PendingBooking{}, entity.ErrNotFound
	}
	return booking, err
}

func (r *PostgresRepository) Delete(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_bookings WHERE session_id = $1`, sessionID)
	return err
}
