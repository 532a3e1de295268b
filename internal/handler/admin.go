package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/repository"
	"github.com/iliyamo/event-booking/internal/service"
	"github.com/iliyamo/event-booking/internal/worker"
)

// SweepRunner is the expiry worker as seen by operators.
type SweepRunner interface {
	Stats() worker.Stats
	RunOnce(ctx context.Context) (service.SweepResult, error)
}

// AdminHandler exposes operator endpoints: booking search, the
// reconciliation issue queue and the expiry worker.  Routes require the
// ADMIN role.
type AdminHandler struct {
	store   repository.Store
	sweeper SweepRunner
}

func NewAdminHandler(store repository.Store, sweeper SweepRunner) *AdminHandler {
	return &AdminHandler{store: store, sweeper: sweeper}
}

// ListBookings handles GET /v1/admin/bookings?type=&status=&user=&limit=.
func (h *AdminHandler) ListBookings(c echo.Context) error {
	f, err := bookingFilter(c)
	if err != nil {
		return respondError(c, err)
	}
	f.UserID = c.QueryParam("user")
	items, err := h.store.ListBookings(c.Request().Context(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// ListIssues handles GET /v1/admin/reconciliation-issues.  Only
// unresolved issues are returned unless all=true.
func (h *AdminHandler) ListIssues(c echo.Context) error {
	items, err := h.store.ListIssues(c.Request().Context(), c.QueryParam("all") != "true")
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// ResolveIssue handles POST /v1/admin/reconciliation-issues/:id/resolve.
func (h *AdminHandler) ResolveIssue(c echo.Context) error {
	issue, err := h.store.ResolveIssue(c.Request().Context(), c.Param("id"), time.Now().UTC())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, issue)
}

// SweeperStats handles GET /v1/admin/sweeper.
func (h *AdminHandler) SweeperStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sweeper.Stats())
}

// RunSweep handles POST /v1/admin/sweeper/run and runs one pass now.
func (h *AdminHandler) RunSweep(c echo.Context) error {
	res, err := h.sweeper.RunOnce(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
