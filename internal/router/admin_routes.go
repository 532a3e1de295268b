package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/middleware"
)

// RegisterAdmin registers operator endpoints under /v1/admin.  All routes
// require a JWT with the ADMIN role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin", middleware.JWTAuth(jwtSecret), middleware.RequireRole(middleware.RoleAdmin))

	g.GET("/bookings", h.ListBookings)
	g.GET("/reconciliation-issues", h.ListIssues)
	g.POST("/reconciliation-issues/:id/resolve", h.ResolveIssue)
	g.GET("/sweeper", h.SweeperStats)
	g.POST("/sweeper/run", h.RunSweep)
}
