package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/catalog"
	"github.com/iliyamo/event-booking/internal/repository"
	"github.com/iliyamo/event-booking/internal/service"
)

// respondError maps domain errors onto HTTP responses.  Unknown errors
// become 500 without leaking details.
func respondError(c echo.Context, err error) error {
	var conflict *service.HoldConflictError
	switch {
	case errors.As(err, &conflict):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":       "resources unavailable",
			"unavailable": conflict.ConflictingIDs,
		})
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, catalog.ErrUnknownScope),
		errors.Is(err, catalog.ErrInvalidDate),
		errors.Is(err, catalog.ErrInvalidShift):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	case errors.Is(err, repository.ErrIssueNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "issue not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrTxAborted):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "busy, please retry"})
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusGatewayTimeout, echo.Map{"error": "timed out"})
	}
	zap.L().Error("unhandled handler error", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
