package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"parktickets/entity"
)

type voucherRequest struct {
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	DiscountType    string          `json:"discount_type"`
	DiscountValue   decimal.Decimal `json:"discount_value"`
	MinimumAmount   decimal.Decimal `json:"minimum_amount"`
	MaximumDiscount decimal.Decimal `json:"maximum_discount"`
	UsageLimit      *int            `json:"usage_limit"`
	ValidFrom       time.Time       `json:"valid_from"`
	ValidUntil      time.Time       `json:"valid_until"`
	ApplicableFor   string          `json:"applicable_for"`
}

func (s *Server) PostVoucher(c echo.Context) error {
	var req voucherRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Code == "" || req.Name == "" {
		return fail(c, http.StatusBadRequest, "code and name are required")
	}
	if req.DiscountType != entity.DiscountTypePercentage && req.DiscountType != entity.DiscountTypeFixed {
		return fail(c, http.StatusBadRequest, "discount_type must be percentage or fixed")
	}
	if !req.DiscountValue.IsPositive() {
		return fail(c, http.StatusBadRequest, "discount_value must be positive")
	}
	if !req.ValidUntil.After(req.ValidFrom) {
		return fail(c, http.StatusBadRequest, "valid_until must be after valid_from")
	}

	usageLimit := entity.UsageUnlimited
	if req.UsageLimit != nil {
		usageLimit = *req.UsageLimit
	}
	applicableFor := req.ApplicableFor
	if applicableFor == "" {
		applicableFor = "all"
	}

	now := time.Now().UTC()
	voucher := entity.DiscountVoucher{
		ID:              uuid.NewString(),
		Code:            req.Code,
		Name:            req.Name,
		Description:     req.Description,
		DiscountType:    req.DiscountType,
		DiscountValue:   req.DiscountValue,
		MinimumAmount:   req.MinimumAmount,
		MaximumDiscount: req.MaximumDiscount,
		UsageLimit:      usageLimit,
		ValidFrom:       req.ValidFrom,
		ValidUntil:      req.ValidUntil,
		IsActive:        true,
		ApplicableFor:   applicableFor,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.vouchersRepo.Store(c.Request().Context(), voucher)
	if errors.Is(err, entity.ErrVoucherCodeTaken) {
		return fail(c, http.StatusConflict, "voucher code already exists")
	}
	if err != nil {
		return err
	}

	return ok(c, http.StatusCreated, voucher)
}

func (s *Server) GetVouchers(c echo.Context) error {
	vouchers, err := s.vouchersRepo.FindAll(c.Request().Context())
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, vouchers)
}

type validateVoucherRequest struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}

type validateVoucherResponse struct {
	Valid       bool            `json:"valid"`
	Discount    decimal.Decimal `json:"discount"`
	FinalAmount decimal.Decimal `json:"final_amount"`
}

// PostValidateVoucher checks a voucher against an order amount without
// burning a use; redemption happens at checkout.
func (s *Server) PostValidateVoucher(c echo.Context) error {
	var req validateVoucherRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Code == "" {
		return fail(c, http.StatusBadRequest, "code is required")
	}

	voucher, err := s.vouchersRepo.FindActiveByCode(c.Request().Context(), req.Code)
	if errors.Is(err, entity.ErrNotFound) {
		return fail(c, http.StatusNotFound, "voucher not found")
	}
	if err != nil {
		return err
	}

	if err := voucher.ValidateForAmount(time.Now(), req.Amount); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	discount := voucher.DiscountFor(req.Amount)
	return ok(c, http.StatusOK, validateVoucherResponse{
		Valid:       true,
		Discount:    discount,
		FinalAmount: req.Amount.Sub(discount),
	})
}

type voucherActiveRequest struct {
	Active bool `json:"active"`
}

func (s *Server) PatchVoucherActive(c echo.Context) error {
	var req voucherActiveRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	err := s.vouchersRepo.SetActive(c.Request().Context(), c.Param("voucher_id"), req.Active)
	if errors.Is(err, entity.ErrNotFound) {
		return fail(c, http.StatusNotFound, "voucher not found")
	}
	if err != nil {
		return err
	}
	return okMessage(c, http.StatusOK, "voucher updated", nil)
}

func (s *Server) DeleteVoucher(c echo.Context) error {
	err := s.vouchersRepo.Delete(c.Request().Context(), c.Param("voucher_id"))
	if errors.Is(err, entity.ErrNotFound) {
		return fail(c, http.StatusNotFound, "voucher not found")
	}
	if err != nil {
		return err
	}
	return okMessage(c, http.StatusOK, "voucher deleted", nil)
}
