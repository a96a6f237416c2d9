package vouchers

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"parktickets/entity"
)

const voucherColumns = `
	voucher_id, code, voucher_name, description,
	discount_type, discount_value, minimum_amount, maximum_discount,
	usage_limit, used_count, valid_from, valid_until,
	is_active, applicable_for, created_at, updated_at
`

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Store(ctx context.Context, voucher entity.DiscountVoucher) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO discount_vouchers (
			voucher_id, code, voucher_name, description,
			discount_type, discount_value, minimum_amount, maximum_discount,
			usage_limit, used_count, valid_from, valid_until,
			is_active, applicable_for, created_at, updated_at
		) VALUES (
			:voucher_id, :code, :voucher_name, :description,
			:discount_type, :discount_value, :minimum_amount, :maximum_discount,
			:usage_limit, :used_count, :valid_from, :valid_until,
			:is_active, :applicable_for, :created_at, :updated_at
		)
	`, voucher)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return entity.ErrVoucherCodeTaken
	}
	return err
}

// FindActiveByCode looks up a voucher by code, case-insensitively, among
// active vouchers only.
func (r *PostgresRepository) FindActiveByCode(ctx context.Context, code string) (entity.DiscountVoucher, error) {
	var voucher entity.DiscountVoucher
	err := r.db.GetContext(ctx, &voucher, `
		SELECT `+voucherColumns+`
		FROM discount_vouchers
		WHERE UPPER(code) = UPPER($1) AND is_active
	`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.DiscountVoucher{}, entity.ErrNotFound
	}
	return voucher, err
}

func (r *PostgresRepository) FindAll(ctx context.Context) ([]entity.DiscountVoucher, error) {
	var vouchers []entity.DiscountVoucher
	err := r.db.SelectContext(ctx, &vouchers, `
		SELECT `+voucherColumns+`
		FROM discount_vouchers
		ORDER BY created_at DESC
	`)
	return vouchers, err
}

// IncrementUsage burns one use of the voucher. The condition repeats the
// limit check so that concurrent redemptions cannot push used_count past
// usage_limit.
func (r *PostgresRepository) IncrementUsage(ctx context.Context, voucherID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE discount_vouchers
		SET used_count = used_count + 1, updated_at = NOW()
		WHERE voucher_id = $1
		  AND is_active
		  AND (usage_limit = $2 OR used_count < usage_limit)
	`, voucherID, entity.UsageUnlimited)
	if err != nil {
		return err
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return entity.ErrVoucherLimitExceeded
	}
	return nil
}

func (r *PostgresRepository) SetActive(ctx context.Context, voucherID string, active bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE discount_vouchers SET is_active = $2, updated_at = NOW() WHERE voucher_id = $1
	`, voucherID, active)
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

func (r *PostgresRepository) Delete(ctx context.Context, voucherID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM discount_vouchers WHERE voucher_id = $1`, voucherID)
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
