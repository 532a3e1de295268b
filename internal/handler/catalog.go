package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/catalog"
	"github.com/iliyamo/event-booking/internal/model"
)

// Catalog handles GET /v1/catalog/:type and returns the static layout of
// a resource-bound booking type.  The response never changes at runtime
// and is served behind the Redis cache.
func Catalog(c echo.Context) error {
	layout, ok := catalog.LayoutFor(model.BookingType(c.Param("type")))
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no layout for booking type"})
	}
	return c.JSON(http.StatusOK, layout)
}
