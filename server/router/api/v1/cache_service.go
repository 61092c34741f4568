package v1

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/voxcache/ai/cache"
)

type LookupRequest struct {
	Text string `json:"text"`
}

type LookupResponse struct {
	Hit    bool          `json:"hit"`
	Result *cache.Result `json:"result,omitempty"`
}

type StoreResponse struct {
	Outcome cache.StoreOutcome `json:"outcome"`
	Stored  bool               `json:"stored"`
}

type HealthResponse struct {
	Status       string `json:"status"`
	AnchorsReady bool   `json:"anchors_ready"`
	Version      string `json:"version,omitempty"`
}

// Lookup serves POST /api/v1/cache/lookup. A miss is a 200 with hit=false.
func (s *APIV1Service) Lookup(c echo.Context) error {
	var req LookupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	result, hit := s.Cache.Lookup(c.Request().Context(), req.Text)
	return c.JSON(http.StatusOK, LookupResponse{Hit: hit, Result: result})
}

// Store serves POST /api/v1/cache/store. Skipped requests are not errors.
func (s *APIV1Service) Store(c echo.Context) error {
	var req cache.StoreRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" || req.Intent == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text and intent are required")
	}

	outcome := s.Cache.Store(c.Request().Context(), req)
	return c.JSON(http.StatusOK, StoreResponse{Outcome: outcome, Stored: outcome.Stored()})
}

// GetStats serves GET /api/v1/cache/stats.
func (s *APIV1Service) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Cache.Stats())
}

// Clear serves DELETE /api/v1/cache.
func (s *APIV1Service) Clear(c echo.Context) error {
	if err := s.Cache.Clear(c.Request().Context()); err != nil {
		s.Logger.Warn("Failed to clear cache", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to clear cache")
	}
	return c.NoContent(http.StatusNoContent)
}

// Health serves GET /healthz. The server is healthy while anchors are
// still being generated.
func (s *APIV1Service) Health(c echo.Context) error {
	resp := HealthResponse{Status: "ok", AnchorsReady: s.Cache.AnchorsReady()}
	if s.Profile != nil {
		resp.Version = s.Profile.Version
	}
	return c.JSON(http.StatusOK, resp)
}
