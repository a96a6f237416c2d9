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

func (s *Server) GetBundles(c echo.Context) error {
	bundles, err := s.catalogRepo.FindAllBundles(c.Request().Context())
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, bundles)
}

type bundleRequest struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Price           decimal.Decimal `json:"price"`
	Description     string          `json:"description"`
	Admissions      int             `json:"admissions"`
}

func (s *Server) PostBundle(c echo.Context) error {
	var req bundleRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" || req.Admissions <= 0 {
		return fail(c, http.StatusBadRequest, "name and a positive admissions count are required")
	}

	bundle := entity.TicketBundle{
		ID:              req.ID,
		Name:            req.Name,
		DiscountPercent: req.DiscountPercent,
		Price:           req.Price,
		Description:     req.Description,
		Admissions:      req.Admissions,
	}
	if bundle.ID == "" {
		bundle.ID = uuid.NewString()
	}

	if err := s.catalogRepo.StoreBundle(c.Request().Context(), bundle); err != nil {
		return err
	}
	return ok(c, http.StatusCreated, bundle)
}

func (s *Server) DeleteBundle(c echo.Context) error {
	err := s.catalogRepo.DeleteBundle(c.Request().Context(), c.Param("bundle_id"))
	if errors.Is(err, entity.ErrNotFound) {
		return fail(c, http.StatusNotFound, "bundle not found")
	}
	if err != nil {
		return err
	}
	return okMessage(c, http.StatusOK, "bundle deleted", nil)
}

func (s *Server) GetSettings(c echo.Context) error {
	ctx := c.Request().Context()

	if location := c.QueryParam("location"); location != "" {
		setting, err := s.catalogRepo.FindSetting(ctx, location)
		if errors.Is(err, entity.ErrNotFound) {
			return fail(c, http.StatusNotFound, "location not found")
		}
		if err != nil {
			return err
		}
		return ok(c, http.StatusOK, setting)
	}

	settings, err := s.catalogRepo.FindAllSettings(ctx)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, settings)
}

type settingRequest struct {
	LocationName    string          `json:"location_name"`
	Address         string          `json:"address"`
	StartDate       time.Time       `json:"start_date"`
	EndDate         time.Time       `json:"end_date"`
	TicketPrice     decimal.Decimal `json:"ticket_price"`
	SocksPrice      decimal.Decimal `json:"socks_price"`
	CancellationFee decimal.Decimal `json:"cancellation_fee"`
}

func (s *Server) PutSetting(c echo.Context) error {
	var req settingRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.LocationName == "" {
		return fail(c, http.StatusBadRequest, "location_name is required")
	}
	if !req.TicketPrice.IsPositive() {
		return fail(c, http.StatusBadRequest, "ticket_price must be positive")
	}

	setting := entity.Setting{
		ID:              uuid.NewString(),
		LocationName:    req.LocationName,
		Address:         req.Address,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		TicketPrice:     req.TicketPrice,
		SocksPrice:      req.SocksPrice,
		CancellationFee: req.CancellationFee,
	}

	if err := s.catalogRepo.StoreSetting(c.Request().Context(), setting); err != nil {
		return err
	}
	return ok(c, http.StatusOK, setting)
}

type cancelRequestBody struct {
	TicketID string `json:"ticket_id"`
	Email    string `json:"email"`
	Reason   string `json:"reason"`
}

// PostCancelRequest files a customer's cancellation request for staff
// review. It is closed automatically when the ticket's refund settles.
func (s *Server) PostCancelRequest(c echo.Context) error {
	var req cancelRequestBody
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.TicketID == "" || req.Email == "" {
		return fail(c, http.StatusBadRequest, "ticket_id and email are required")
	}

	ctx := c.Request().Context()

	ticket, err := s.ticketsRepo.FindByID(ctx, req.TicketID)
	if errors.Is(err, entity.ErrNotFound) {
		return fail(c, http.StatusNotFound, "ticket not found")
	}
	if err != nil {
		return err
	}
	if ticket.Email != req.Email {
		return fail(c, http.StatusForbidden, "email does not match the booking")
	}

	request := entity.CancelRequest{
		ID:        uuid.NewString(),
		TicketID:  req.TicketID,
		Email:     req.Email,
		Reason:    req.Reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.catalogRepo.StoreCancelRequest(ctx, request); err != nil {
		return err
	}
	return ok(c, http.StatusCreated, request)
}

func (s *Server) GetCancelRequests(c echo.Context) error {
	requests, err := s.catalogRepo.FindOpenCancelRequests(c.Request().Context())
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, requests)
}
