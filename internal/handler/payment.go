package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/gateway"
	"github.com/iliyamo/event-booking/internal/logger"
	"github.com/iliyamo/event-booking/internal/service"
)

const maxCallbackBytes = 64 << 10

// PaymentHandler receives gateway callbacks.  The gateway verifies the
// signature and decodes the outcome; the reconciler applies it.  Replays
// and late callbacks for finished bookings answer 200 so the gateway
// stops redelivering.
type PaymentHandler struct {
	rec     *service.Reconciler
	gateway gateway.Gateway
	log     *zap.Logger
}

func NewPaymentHandler(rec *service.Reconciler, gw gateway.Gateway, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{rec: rec, gateway: gw, log: logger.OrGlobal(log)}
}

// Callback handles POST /v1/payments/callback (hosted form post) and
// POST /v1/payments/stripe/webhook.
func (h *PaymentHandler) Callback(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}

	out, err := h.gateway.ParseCallback(c.Request().Header, body)
	switch {
	case errors.Is(err, gateway.ErrIgnoredEvent):
		return c.JSON(http.StatusOK, echo.Map{"status": "ignored"})
	case errors.Is(err, gateway.ErrInvalidSignature):
		h.log.Warn("payment callback with bad signature", zap.String("gateway", h.gateway.Name()), zap.String("ip", c.RealIP()))
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid signature"})
	case err != nil:
		h.log.Warn("undecodable payment callback", zap.String("gateway", h.gateway.Name()), zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown payment outcome"})
	}

	res, err := h.rec.Reconcile(c.Request().Context(), out.OrderID, out)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking_id":           res.Booking.ID,
		"status":               res.Booking.Status,
		"applied":              res.Applied,
		"needs_reconciliation": res.Booking.NeedsReconciliation,
	})
}
