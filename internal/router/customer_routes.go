package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/middleware"
)

// RegisterCustomer registers buyer endpoints under /v1.  All of them need
// a valid JWT; hold creation also goes through the rate limiter.
// Availability is open to any authenticated role so operators can watch
// the floor.
func RegisterCustomer(e *echo.Echo, b *handler.BookingHandler, a *handler.AvailabilityHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))

	g.GET("/availability", a.Get)
	g.GET("/availability/:scope", a.Get)
	g.GET("/availability/:scope/live", a.Live)

	c := g.Group("", middleware.RequireRole(middleware.RoleCustomer, middleware.RoleAdmin))
	c.POST("/bookings", b.Create, limiter)
	c.GET("/bookings/:id", b.Get)
	c.POST("/bookings/:id/cancel", b.Cancel)
	c.GET("/my-bookings", b.ListMine)
}
