package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"

	// UsageUnlimited disables the usage limit check.
	UsageUnlimited = -1
)

type DiscountVoucher struct {
	ID            string          `json:"id" db:"voucher_id"`
	Code          string          `json:"code" db:"code"`
	Name          string          `json:"name" db:"voucher_name"`
	Description   string          `json:"description,omitempty" db:"description"`
	DiscountType  string          `json:"discount_type" db:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value" db:"discount_value"`
	MinimumAmount decimal.Decimal `json:"minimum_amount" db:"minimum_amount"`
	// MaximumDiscount caps percentage discounts; zero means no cap.
	MaximumDiscount decimal.Decimal `json:"maximum_discount,omitempty" db:"maximum_discount"`
	UsageLimit      int             `json:"usage_limit" db:"usage_limit"`
	UsedCount       int             `json:"used_count" db:"used_count"`
	ValidFrom       time.Time       `json:"valid_from" db:"valid_from"`
	ValidUntil      time.Time       `json:"valid_until" db:"valid_until"`
	IsActive        bool            `json:"is_active" db:"is_active"`
	ApplicableFor   string          `json:"applicable_for" db:"applicable_for"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// ValidateForAmount checks whether the voucher can be applied to the given
// amount at the given time. Usage limit enforcement at redemption time is a
// separate, atomic repository operation; the check here only rejects
// vouchers that are already exhausted.
func (v DiscountVoucher) ValidateForAmount(now time.Time, amount decimal.Decimal) error {
	if now.Before(v.ValidFrom) || now.After(v.ValidUntil) {
		return ErrVoucherNotValidYet
	}
	if v.UsageLimit != UsageUnlimited && v.UsedCount >= v.UsageLimit {
		return ErrVoucherLimitExceeded
	}
	if amount.LessThan(v.MinimumAmount) {
		return ErrVoucherMinimumAmount
	}
	return nil
}

// DiscountFor computes the discount for the given amount. Percentage
// discounts are capped by MaximumDiscount when set; the result never
// exceeds the amount itself.
func (v DiscountVoucher) DiscountFor(amount decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	if v.DiscountType == DiscountTypePercentage {
		discount = amount.Mul(v.DiscountValue).Div(decimal.NewFromInt(100))
		if v.MaximumDiscount.IsPositive() && discount.GreaterThan(v.MaximumDiscount) {
			discount = v.MaximumDiscount
		}
	} else {
		discount = v.DiscountValue
	}
	if discount.GreaterThan(amount) {
		discount = amount
	}
	return discount
}
