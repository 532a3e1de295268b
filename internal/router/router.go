// Package router registers HTTP routes on echo.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/event-booking/internal/handler"
)

// RegisterRoutes registers unauthenticated operational routes: liveness,
// readiness and Prometheus metrics.
func RegisterRoutes(e *echo.Echo, ready echo.HandlerFunc) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterCatalog registers the static layout endpoint behind cache.
func RegisterCatalog(e *echo.Echo, cache echo.MiddlewareFunc) {
	e.GET("/v1/catalog/:type", handler.Catalog, cache)
}

// RegisterPayments registers gateway callbacks.  They are authenticated
// by the gateway signature, not by JWT.
func RegisterPayments(e *echo.Echo, p *handler.PaymentHandler) {
	g := e.Group("/v1/payments")
	g.POST("/callback", p.Callback)
	g.POST("/stripe/webhook", p.Callback)
}
