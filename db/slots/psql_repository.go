package slots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"parktickets/entity"
)

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Store(ctx context.Context, slot entity.TimeSlot) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO time_slots (slot_id, slot_date, start_time, end_time, max_admissions)
		VALUES (:slot_id, :slot_date, :start_time, :end_time, :max_admissions)
	`, slot)
	if isUniqueViolation(err) {
		return entity.ErrConflict
	}
	return err
}

// StoreAll inserts slots in one transaction, skipping ones that already
// exist. Used by bulk creation over a date range.
func (r *PostgresRepository) StoreAll(ctx context.Context, slots []entity.TimeSlot) (created int, err error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			rollbackErr := tx.Rollback()
			err = errors.Join(err, rollbackErr)
			return
		}
		err = tx.Commit()
	}()

	for _, slot := range slots {
		res, err := tx.NamedExecContext(ctx, `
			INSERT INTO time_slots (slot_id, slot_date, start_time, end_time, max_admissions)
			VALUES (:slot_id, :slot_date, :start_time, :end_time, :max_admissions)
			ON CONFLICT (slot_date, start_time, end_time) DO NOTHING
		`, slot)
		if err != nil {
			return created, fmt.Errorf("could not add slot: %w", err)
		}
		rowsAffected, err := res.RowsAffected()
		if err != nil {
			return created, err
		}
		created += int(rowsAffected)
	}

	return created, nil
}

func (r *PostgresRepository) FindByKey(ctx context.Context, key entity.SlotKey) (entity.TimeSlot, error) {
	var slot entity.TimeSlot
	err := r.db.GetContext(ctx, &slot, `
		SELECT slot_id, slot_date, start_time, end_time, max_admissions
		FROM time_slots
		WHERE slot_date = $1 AND start_time = $2 AND end_time = $3
	`, key.Date, key.StartTime, key.EndTime)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.TimeSlot{}, entity.ErrNotFound
	}
	return slot, err
}

func (r *PostgresRepository) FindByDate(ctx context.Context, date string) ([]entity.TimeSlot, error) {
	var slots []entity.TimeSlot
	err := r.db.SelectContext(ctx, &slots, `
		SELECT slot_id, slot_date, start_time, end_time, max_admissions
		FROM time_slots
		WHERE slot_date = $1
		ORDER BY start_time
	`, date)
	return slots, err
}

func (r *PostgresRepository) FindAll(ctx context.Context) ([]entity.TimeSlot, error) {
	var slots []entity.TimeSlot
	err := r.db.SelectContext(ctx, &slots, `
		SELECT slot_id, slot_date, start_time, end_time, max_admissions
		FROM time_slots
		ORDER BY slot_date, start_time
	`)
	return slots, err
}

func (r *PostgresRepository) Update(ctx context.Context, slot entity.TimeSlot) error {
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE time_slots
		SET slot_date = :slot_date,
		    start_time = :start_time,
		    end_time = :end_time,
		    max_admissions = :max_admissions
		WHERE slot_id = :slot_id
	`, slot)
	if isUniqueViolation(err) {
		return entity.ErrConflict
	}
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, slotID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM time_slots WHERE slot_id = $1`, slotID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
