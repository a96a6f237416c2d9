package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

func (s *Server) GetPaymentSyncStatus(c echo.Context) error {
	return ok(c, http.StatusOK, s.paymentSync.Status())
}

func (s *Server) PostPaymentSyncStart(c echo.Context) error {
	s.paymentSync.Start()
	return okMessage(c, http.StatusOK, "payment sync started", s.paymentSync.Status())
}

func (s *Server) PostPaymentSyncStop(c echo.Context) error {
	s.paymentSync.Stop()
	return okMessage(c, http.StatusOK, "payment sync stopped", s.paymentSync.Status())
}

// PostPaymentSyncTrigger runs one sweep synchronously so the caller gets the
// result back.
func (s *Server) PostPaymentSyncTrigger(c echo.Context) error {
	result := s.paymentSync.RunSweep(c.Request().Context())
	return okMessage(c, http.StatusOK, "payment sync triggered", result)
}

func (s *Server) GetEmailRetryStatus(c echo.Context) error {
	return ok(c, http.StatusOK, s.emailRetry.Status())
}

func (s *Server) PostEmailRetryStart(c echo.Context) error {
	s.emailRetry.Start()
	return okMessage(c, http.StatusOK, "email retry started", s.emailRetry.Status())
}

func (s *Server) PostEmailRetryStop(c echo.Context) error {
	s.emailRetry.Stop()
	return okMessage(c, http.StatusOK, "email retry stopped", s.emailRetry.Status())
}

func (s *Server) PostEmailRetryTrigger(c echo.Context) error {
	sent := s.emailRetry.RunSweep(c.Request().Context())
	return okMessage(c, http.StatusOK, "email retry triggered", map[string]int{"sent": sent})
}

func (s *Server) GetEmailStats(c echo.Context) error {
	since := time.Now().UTC().Add(-24 * time.Hour)
	if raw := c.QueryParam("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fail(c, http.StatusBadRequest, "since must be RFC3339")
		}
		since = parsed
	}

	stats, err := s.emailStats.Stats(c.Request().Context(), since)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, stats)
}
