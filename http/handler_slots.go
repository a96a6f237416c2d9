package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"parktickets/entity"
)

const dateLayout = "2006-01-02"

type slotRequest struct {
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	MaxAdmissions int    `json:"max_admissions"`
}

func (r slotRequest) validate() error {
	if r.Date == "" || r.StartTime == "" || r.EndTime == "" {
		return errors.New("date, start_time and end_time are required")
	}
	if _, err := time.Parse(dateLayout, r.Date); err != nil {
		return fmt.Errorf("invalid date %q", r.Date)
	}
	if r.MaxAdmissions <= 0 {
		return errors.New("max_admissions must be positive")
	}
	return nil
}

type slotResponse struct {
	entity.TimeSlot
	SoldAdmissions int `json:"sold_admissions"`
	Available      int `json:"available"`
}

// GetSlots lists slots, with live availability, optionally filtered by date.
func (s *Server) GetSlots(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		slots []entity.TimeSlot
		err   error
	)
	if date := c.QueryParam("date"); date != "" {
		slots, err = s.slotsRepo.FindByDate(ctx, date)
	} else {
		slots, err = s.slotsRepo.FindAll(ctx)
	}
	if err != nil {
		return err
	}

	resp := make([]slotResponse, 0, len(slots))
	for _, slot := range slots {
		sold, err := s.ticketsRepo.SoldAdmissions(ctx, slot.Key())
		if err != nil {
			return err
		}
		available := slot.MaxAdmissions - sold
		if available < 0 {
			available = 0
		}
		resp = append(resp, slotResponse{TimeSlot: slot, SoldAdmissions: sold, Available: available})
	}

	return ok(c, http.StatusOK, resp)
}

func (s *Server) PostSlot(c echo.Context) error {
	var req slotRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	slot := entity.TimeSlot{
		ID:            uuid.NewString(),
		Date:          req.Date,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		MaxAdmissions: req.MaxAdmissions,
	}

	err := s.slotsRepo.Store(c.Request().Context(), slot)
	if errors.Is(err, entity.ErrConflict) {
		return fail(c, http.StatusConflict, "slot already exists")
	}
	if err != nil {
		return err
	}

	return ok(c, http.StatusCreated, slot)
}

type slotTemplate struct {
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	MaxAdmissions int    `json:"max_admissions"`
}

type bulkSlotsRequest struct {
	StartDate    string         `json:"start_date"`
	EndDate      string         `json:"end_date"`
	WeekdaySlots []slotTemplate `json:"weekday_slots"`
	WeekendSlots []slotTemplate `json:"weekend_slots"`
}

// PostSlotsBulk creates slots over a date range from weekday and weekend
// templates. Existing slots are left alone, so re-running an overlapping
// range is safe.
func (s *Server) PostSlotsBulk(c echo.Context) error {
	var req bulkSlotsRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return fail(c, http.StatusBadRequest, fmt.Sprintf("invalid start_date %q", req.StartDate))
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return fail(c, http.StatusBadRequest, fmt.Sprintf("invalid end_date %q", req.EndDate))
	}
	if end.Before(start) {
		return fail(c, http.StatusBadRequest, "end_date is before start_date")
	}
	if len(req.WeekdaySlots) == 0 && len(req.WeekendSlots) == 0 {
		return fail(c, http.StatusBadRequest, "no slot templates given")
	}

	var slots []entity.TimeSlot
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		templates := req.WeekdaySlots
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			templates = req.WeekendSlots
		}
		for _, tpl := range templates {
			slots = append(slots, entity.TimeSlot{
				ID:            uuid.NewString(),
				Date:          day.Format(dateLayout),
				StartTime:     tpl.StartTime,
				EndTime:       tpl.EndTime,
				MaxAdmissions: tpl.MaxAdmissions,
			})
		}
	}

	created, err := s.slotsRepo.StoreAll(c.Request().Context(), slots)
	if err != nil {
		return err
	}

	return okMessage(c, http.StatusCreated, fmt.Sprintf("created %d slots", created), map[string]int{
		"created": created,
		"skipped": len(slots) - created,
	})
}

func (s *Server) PutSlot(c echo.Context) error {
	var req slotRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	slot := entity.TimeSlot{
		ID:            c.Param("slot_id"),
		Date:          req.Date,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		MaxAdmissions: req.MaxAdmissions,
	}

	err := s.slotsRepo.Update(c.Request().Context(), slot)
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return fail(c, http.StatusNotFound, "slot not found")
	case errors.Is(err, entity.ErrConflict):
		return fail(c, http.StatusConflict, "another slot occupies that time")
	case err != nil:
		return err
	}

	return ok(c, http.StatusOK, slot)
}

func (s *Server) DeleteSlot(c echo.Context) error {
	err := s.slotsRepo.Delete(c.Request().Context(), c.Param("slot_id"))
	if errors.Is(err, entity.ErrNotFound) {
		return fail(c, http.StatusNotFound, "slot not found")
	}
	if err != nil {
		return err
	}
	return okMessage(c, http.StatusOK, "slot deleted", nil)
}
