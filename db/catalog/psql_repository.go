package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"parktickets/entity"
)

// PostgresRepository holds the slow-moving catalog data: bundles, location
// settings and cancellation requests.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) StoreBundle(ctx context.Context, bundle entity.TicketBundle) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO ticket_bundles (bundle_id, bundle_name, discount_percent, price, description, admissions)
		VALUES (:bundle_id, :bundle_name, :discount_percent, :price, :description, :admissions)
		ON CONFLICT (bundle_id) DO UPDATE SET
			bundle_name = EXCLUDED.bundle_name,
			discount_percent = EXCLUDED.discount_percent,
			price = EXCLUDED.price,
			description = EXCLUDED.description,
			admissions = EXCLUDED.admissions
	`, bundle)
	return err
}

func (r *PostgresRepository) FindBundle(ctx context.Context, bundleID string) (entity.TicketBundle, error) {
	var bundle entity.TicketBundle
	err := r.db.GetContext(ctx, &bundle, `
		SELECT bundle_id, bundle_name, discount_percent, price, description, admissions
		FROM ticket_bundles
		WHERE bundle_id = $1
	`, bundleID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.TicketBundle{}, entity.ErrNotFound
	}
	return bundle, err
}

func (r *PostgresRepository) FindAllBundles(ctx context.Context) ([]entity.TicketBundle, error) {
	var bundles []entity.TicketBundle
	err := r.db.SelectContext(ctx, &bundles, `
		SELECT bundle_id, bundle_name, discount_percent, price, description, admissions
		FROM ticket_bundles
		ORDER BY admissions
	`)
	return bundles, err
}

func (r *PostgresRepository) DeleteBundle(ctx context.Context, bundleID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ticket_bundles WHERE bundle_id = $1`, bundleID)
	if err != nil {
		return err
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) StoreSetting(ctx context.Context, setting entity.Setting) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO settings (setting_id, location_name, address, start_date, end_date, ticket_price, socks_price, cancellation_fee)
		VALUES (:setting_id, :location_name, :address, :start_date, :end_date, :ticket_price, :socks_price, :cancellation_fee)
		ON CONFLICT (location_name) DO UPDATE SET
			address = EXCLUDED.address,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			ticket_price = EXCLUDED.ticket_price,
			socks_price = EXCLUDED.socks_price,
			cancellation_fee = EXCLUDED.cancellation_fee
	`, setting)
	return err
}

func (r *PostgresRepository) FindSetting(ctx context.Context, locationName string) (entity.Setting, error) {
	var setting entity.Setting
	err := r.db.GetContext(ctx, &setting, `
		SELECT setting_id, location_name, address, start_date, end_date, ticket_price, socks_price, cancellation_fee
		FROM settings
		WHERE location_name = $1
	`, locationName)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Setting{}, entity.ErrNotFound
	}
	return setting, err
}

func (r *PostgresRepository) FindAllSettings(ctx context.Context) ([]entity.Setting, error) {
	var settings []entity.Setting
	err := r.db.SelectContext(ctx, &settings, `
		SELECT setting_id, location_name, address, start_date, end_date, ticket_price, socks_price, cancellation_fee
		FROM settings
		ORDER BY location_name
	`)
	return settings, err
}

func (r *PostgresRepository) StoreCancelRequest(ctx context.Context, request entity.CancelRequest) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO cancel_requests (request_id, ticket_id, email, reason, reviewed, created_at)
		VALUES (:request_id, :ticket_id, :email, :reason, :reviewed, :created_at)
	`, request)
	return err
}

func (r *PostgresRepository) FindOpenCancelRequests(ctx context.Context) ([]entity.CancelRequest, error) {
	var requests []entity.CancelRequest
	err := r.db.SelectContext(ctx, &requests, `
		SELECT request_id, ticket_id, email, reason, reviewed, created_at
		FROM cancel_requests
		WHERE NOT reviewed
		ORDER BY created_at
	`)
	return requests, err
}

// MarkReviewedByTicket closes every open request for a ticket. Called from
// the TicketRefunded event handler, so it has to be idempotent.
func (r *PostgresRepository) MarkReviewedByTicket(ctx context.Context, ticketID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE cancel_requests SET reviewed = true WHERE ticket_id = $1 AND NOT reviewed
	`, ticketID)
	return err
}
