package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/iliyamo/event-booking/internal/catalog"
	"github.com/iliyamo/event-booking/internal/logger"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/realtime"
)

const wsWriteTimeout = 10 * time.Second

// AvailabilityHandler serves the state of a scope, once or as a stream
// of full snapshots over a websocket.
type AvailabilityHandler struct {
	hub     *realtime.Hub
	origins []string
	log     *zap.Logger
}

// NewAvailabilityHandler returns a handler reading through hub.  origins
// are the websocket origin patterns accepted; empty means same origin.
func NewAvailabilityHandler(hub *realtime.Hub, origins []string, log *zap.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{hub: hub, origins: origins, log: logger.OrGlobal(log)}
}

// scopeParam resolves the scope from the :scope path parameter or from the
// type, date and shift query parameters.
func scopeParam(c echo.Context) (string, error) {
	scope := c.Param("scope")
	if scope == "" {
		var err error
		scope, err = catalog.ScopeKey(model.BookingType(c.QueryParam("type")), c.QueryParam("date"), c.QueryParam("shift"))
		if err != nil {
			return "", err
		}
	}
	scope, _, err := catalog.NormalizeScope(scope)
	if err != nil {
		return "", err
	}
	return scope, nil
}

// Get handles GET /v1/availability/:scope and GET /v1/availability.
func (h *AvailabilityHandler) Get(c echo.Context) error {
	scope, err := scopeParam(c)
	if err != nil {
		return respondError(c, err)
	}
	snap, err := h.hub.Snapshot(c.Request().Context(), scope)
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.JSON(http.StatusOK, snap)
}

// Live handles GET /v1/availability/:scope/live.  The first message is
// the current snapshot; every later message is a full snapshot after a
// change.  The stream ends when the client goes away.
func (h *AvailabilityHandler) Live(c echo.Context) error {
	scope, err := scopeParam(c)
	if err != nil {
		return respondError(c, err)
	}
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		// Accept has already written the HTTP error
		return nil
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx, cancel := context.WithCancel(conn.CloseRead(c.Request().Context()))
	defer cancel()

	unsubscribe, err := h.hub.Subscribe(ctx, scope, func(snap realtime.Snapshot) {
		if err := writeSnapshot(ctx, conn, snap); err != nil {
			cancel()
		}
	})
	if err != nil {
		h.log.Error("availability subscribe failed", zap.String("scope", scope), zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "snapshot unavailable")
		return nil
	}
	defer unsubscribe()

	<-ctx.Done()
	return nil
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, snap realtime.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
