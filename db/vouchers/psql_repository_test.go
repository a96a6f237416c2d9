package vouchers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parktickets/db"
	"parktickets/entity"
)

func TestMain(m *testing.M) {
	container, url := db.StartPostgresContainer()
	os.Setenv("POSTGRES_URL", url)

	code := m.Run()

	_ = container.Terminate(context.Background())
	os.Exit(code)
}

func newVoucher(code string, usageLimit int) entity.DiscountVoucher {
	now := time.Now().UTC()
	return entity.DiscountVoucher{
		ID:            uuid.NewString(),
		Code:          code,
		Name:          code,
		DiscountType:  entity.DiscountTypeFixed,
		DiscountValue: decimal.RequireFromString("5"),
		UsageLimit:    usageLimit,
		ValidFrom:     now.Add(-time.Hour),
		ValidUntil:    now.Add(time.Hour),
		IsActive:      true,
		ApplicableFor: "all",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestPostgresRepository_Store_duplicateCode(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresRepository(db.GetDb(t))

	require.NoError(t, repo.Store(ctx, newVoucher("DUPLICATE", entity.UsageUnlimited)))
	assert.ErrorIs(t, repo.Store(ctx, newVoucher("DUPLICATE", entity.UsageUnlimited)), entity.ErrVoucherCodeTaken)
}

func TestPostgresRepository_FindActiveByCode(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresRepository(db.GetDb(t))

	voucher := newVoucher("Summer20", entity.UsageUnlimited)
	require.NoError(t, repo.Store(ctx, voucher))

	// lookup is case-insensitive
	found, err := repo.FindActiveByCode(ctx, "sUmMeR20")
	require.NoError(t, err)
	assert.Equal(t, voucher.ID, found.ID)

	require.NoError(t, repo.SetActive(ctx, voucher.ID, false))
	_, err = repo.FindActiveByCode(ctx, "Summer20")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestPostgresRepository_IncrementUsage_respectsLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresRepository(db.GetDb(t))

	voucher := newVoucher("LIMITED2", 2)
	require.NoError(t, repo.Store(ctx, voucher))

	require.NoError(t, repo.IncrementUsage(ctx, voucher.ID))
	require.NoError(t, repo.IncrementUsage(ctx, voucher.ID))
	assert.ErrorIs(t, repo.IncrementUsage(ctx, voucher.ID), entity.ErrVoucherLimitExceeded)

	found, err := repo.FindActiveByCode(ctx, "LIMITED2")
	require.NoError(t, err)
	assert.Equal(t, 2, found.UsedCount)
}

func TestPostgresRepository_IncrementUsage_unlimited(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresRepository(db.GetDb(t))

	voucher := newVoucher("UNLIMITED", entity.UsageUnlimited)
	require.NoError(t, repo.Store(ctx, voucher))

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.IncrementUsage(ctx, voucher.ID))
	}
}
