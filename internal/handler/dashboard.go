package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/forestwatch/forest-monitor/internal/config"
	"github.com/forestwatch/forest-monitor/internal/repository"
)

// DashboardHandler serves the read-only aggregation endpoints.  These
// are the cache-friendly routes; the router puts the Redis response
// cache in front of them.
type DashboardHandler struct {
	Cfg   config.Config
	Stats *repository.StatsRepo
}

// NewDashboardHandler constructs a DashboardHandler.
func NewDashboardHandler(cfg config.Config, stats *repository.StatsRepo) *DashboardHandler {
	if stats == nil {
		panic("nil dependency passed to NewDashboardHandler")
	}
	return &DashboardHandler{Cfg: cfg, Stats: stats}
}

// Overview handles GET /v1/dashboard/overview.
func (h *DashboardHandler) Overview(c echo.Context) error {
	o, err := h.Stats.GetOverview(c.Request().Context())
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	return respond(c, http.StatusOK, "overview", echo.Map{"overview": o})
}

// Species handles GET /v1/dashboard/species.
func (h *DashboardHandler) Species(c echo.Context) error {
	dist, err := h.Stats.SpeciesDistribution(c.Request().Context())
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	return respond(c, http.StatusOK, "species distribution", echo.Map{"species": dist})
}

// Health handles GET /v1/dashboard/health.
func (h *DashboardHandler) Health(c echo.Context) error {
	dist, err := h.Stats.HealthDistribution(c.Request().Context())
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	return respond(c, http.StatusOK, "health distribution", echo.Map{"health": dist})
}

// Heights handles GET /v1/dashboard/heights?limit=N (default 20, max 100).
func (h *DashboardHandler) Heights(c echo.Context) error {
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}
	heights, err := h.Stats.LatestHeights(c.Request().Context(), limit)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	return respond(c, http.StatusOK, "tallest trees", echo.Map{"heights": heights})
}

// Forests handles GET /v1/dashboard/forests.
func (h *DashboardHandler) Forests(c echo.Context) error {
	stats, err := h.Stats.ForestComparison(c.Request().Context())
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	return respond(c, http.StatusOK, "forest comparison", echo.Map{"forests": stats})
}
