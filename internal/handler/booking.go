package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/catalog"
	"github.com/iliyamo/event-booking/internal/gateway"
	"github.com/iliyamo/event-booking/internal/logger"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
	"github.com/iliyamo/event-booking/internal/service"
)

// BookingHandler serves the buyer side of the booking flow: hold
// creation with checkout, booking lookup and cancellation.  Every method
// expects JWTAuth to have run.
type BookingHandler struct {
	holds   *service.HoldManager
	rec     *service.Reconciler
	store   repository.Store
	gateway gateway.Gateway
	log     *zap.Logger
}

func NewBookingHandler(holds *service.HoldManager, rec *service.Reconciler, store repository.Store, gw gateway.Gateway, log *zap.Logger) *BookingHandler {
	if holds == nil || rec == nil || store == nil || gw == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{holds: holds, rec: rec, store: store, gateway: gw, log: logger.OrGlobal(log)}
}

type createBookingRequest struct {
	Type        model.BookingType     `json:"booking_type"`
	ScopeKey    string                `json:"scope_key"`
	Date        string                `json:"date"`
	Shift       string                `json:"shift"`
	ResourceIDs []string              `json:"resource_ids"`
	Customer    model.CustomerDetails `json:"customer_details"`
	TotalAmount int64                 `json:"total_amount"`
}

// Create handles POST /v1/bookings.  It holds the selected resources,
// creates the pending booking and returns the checkout the client
// redirects to.  The scope is taken from scope_key or built from date and
// shift.  A conflict answers 409 with the unavailable ids.
func (h *BookingHandler) Create(c echo.Context) error {
	var body createBookingRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	scope := body.ScopeKey
	if scope == "" && body.Type.ResourceBound() {
		var err error
		if scope, err = catalog.ScopeKey(body.Type, body.Date, body.Shift); err != nil {
			return respondError(c, err)
		}
	}

	ctx := c.Request().Context()
	userID := middleware.UserID(c)
	b, err := h.holds.CreateHold(ctx, service.HoldRequest{
		Type:        body.Type,
		ScopeKey:    scope,
		ResourceIDs: body.ResourceIDs,
		UserID:      userID,
		Customer:    body.Customer,
		Amount:      body.TotalAmount,
	})
	if err != nil {
		return respondError(c, err)
	}

	checkout, err := h.gateway.Checkout(ctx, *b)
	if err != nil {
		h.log.Error("checkout failed, releasing hold",
			zap.String("booking_id", b.ID),
			zap.String("gateway", h.gateway.Name()),
			zap.Error(err))
		if _, cerr := h.rec.Cancel(ctx, b.ID, userID); cerr != nil {
			h.log.Warn("release after checkout failure", zap.String("booking_id", b.ID), zap.Error(cerr))
		}
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment gateway unavailable", "booking_id": b.ID})
	}
	return c.JSON(http.StatusCreated, echo.Map{"booking": b, "checkout": checkout})
}

// Get handles GET /v1/bookings/:id.  Bookings of other users are
// reported as not found.
func (h *BookingHandler) Get(c echo.Context) error {
	b, err := h.store.GetBooking(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if b.UserID != middleware.UserID(c) && middleware.Role(c) != middleware.RoleAdmin {
		return respondError(c, repository.ErrBookingNotFound)
	}
	return c.JSON(http.StatusOK, b)
}

// ListMine handles GET /v1/my-bookings with optional type, status and
// limit filters.
func (h *BookingHandler) ListMine(c echo.Context) error {
	f, err := bookingFilter(c)
	if err != nil {
		return respondError(c, err)
	}
	f.UserID = middleware.UserID(c)
	items, err := h.store.ListBookings(c.Request().Context(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Cancel handles POST /v1/bookings/:id/cancel.  Cancelling an already
// cancelled booking succeeds; a confirmed one answers 409.  Another user's
// booking answers 404, as in Get.
func (h *BookingHandler) Cancel(c echo.Context) error {
	res, err := h.rec.Cancel(c.Request().Context(), c.Param("id"), middleware.UserID(c))
	if errors.Is(err, repository.ErrForbidden) {
		err = repository.ErrBookingNotFound
	}
	if err != nil {
		return respondError(c, err)
	}
	if res.Booking.Status == model.StatusConfirmed {
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking already confirmed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking":  res.Booking,
		"applied":  res.Applied,
		"released": res.Released,
	})
}

func bookingFilter(c echo.Context) (repository.BookingFilter, error) {
	f := repository.BookingFilter{
		Type:   model.BookingType(c.QueryParam("type")),
		Status: model.BookingStatus(c.QueryParam("status")),
		Limit:  50,
	}
	if f.Type != "" && !f.Type.Valid() {
		return f, service.ErrInvalidRequest
	}
	switch f.Status {
	case "", model.StatusPendingPayment, model.StatusConfirmed, model.StatusCancelled:
	default:
		return f, service.ErrInvalidRequest
	}
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 500 {
			return f, service.ErrInvalidRequest
		}
		f.Limit = n
	}
	return f, nil
}
