package entity_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parktickets/entity"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func validVoucher() entity.DiscountVoucher {
	return entity.DiscountVoucher{
		Code:          "SUMMER20",
		DiscountType:  entity.DiscountTypePercentage,
		DiscountValue: dec("20"),
		UsageLimit:    entity.UsageUnlimited,
		ValidFrom:     time.Now().Add(-time.Hour),
		ValidUntil:    time.Now().Add(time.Hour),
		IsActive:      true,
	}
}

func TestVoucherValidateForAmount(t *testing.T) {
	now := time.Now()

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, validVoucher().ValidateForAmount(now, dec("100")))
	})

	t.Run("not yet valid", func(t *testing.T) {
		v := validVoucher()
		v.ValidFrom = now.Add(time.Hour)
		v.ValidUntil = now.Add(2 * time.Hour)
		assert.ErrorIs(t, v.ValidateForAmount(now, dec("100")), entity.ErrVoucherNotValidYet)
	})

	t.Run("expired", func(t *testing.T) {
		v := validVoucher()
		v.ValidFrom = now.Add(-2 * time.Hour)
		v.ValidUntil = now.Add(-time.Hour)
		assert.ErrorIs(t, v.ValidateForAmount(now, dec("100")), entity.ErrVoucherNotValidYet)
	})

	t.Run("usage limit reached", func(t *testing.T) {
		v := validVoucher()
		v.UsageLimit = 5
		v.UsedCount = 5
		assert.ErrorIs(t, v.ValidateForAmount(now, dec("100")), entity.ErrVoucherLimitExceeded)
	})

	t.Run("unlimited usage ignores used count", func(t *testing.T) {
		v := validVoucher()
		v.UsedCount = 10000
		require.NoError(t, v.ValidateForAmount(now, dec("100")))
	})

	t.Run("below minimum amount", func(t *testing.T) {
		v := validVoucher()
		v.MinimumAmount = dec("50")
		assert.ErrorIs(t, v.ValidateForAmount(now, dec("49.99")), entity.ErrVoucherMinimumAmount)
	})
}

func TestVoucherDiscountFor(t *testing.T) {
	t.Run("percentage", func(t *testing.T) {
		v := validVoucher()
		assert.True(t, dec("20").Equal(v.DiscountFor(dec("100"))))
	})

	t.Run("percentage capped by maximum discount", func(t *testing.T) {
		v := validVoucher()
		v.MaximumDiscount = dec("5")
		assert.True(t, dec("5").Equal(v.DiscountFor(dec("100"))))
	})

	t.Run("zero maximum means no cap", func(t *testing.T) {
		v := validVoucher()
		v.MaximumDiscount = decimal.Zero
		assert.True(t, dec("40").Equal(v.DiscountFor(dec("200"))))
	})

	t.Run("fixed", func(t *testing.T) {
		v := validVoucher()
		v.DiscountType = entity.DiscountTypeFixed
		v.DiscountValue = dec("15")
		assert.True(t, dec("15").Equal(v.DiscountFor(dec("100"))))
	})

	t.Run("fixed discount never exceeds amount", func(t *testing.T) {
		v := validVoucher()
		v.DiscountType = entity.DiscountTypeFixed
		v.DiscountValue = dec("15")
		assert.True(t, dec("10").Equal(v.DiscountFor(dec("10"))))
	})
}
