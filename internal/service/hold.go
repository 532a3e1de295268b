package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/catalog"
	"github.com/iliyamo/event-booking/internal/metrics"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
)

// HoldRequest is a buyer's draft selection, promoted to a booking by
// CreateHold.  ScopeKey and ResourceIDs are empty for delegate and
// donation bookings.
type HoldRequest struct {
	Type        model.BookingType
	ScopeKey    string
	ResourceIDs []string
	UserID      string
	Customer    model.CustomerDetails
	Amount      int64
}

// HoldManager claims resources for a new booking.
type HoldManager struct {
	store repository.Store
	opts  options
}

func NewHoldManager(store repository.Store, opts ...Option) *HoldManager {
	return &HoldManager{store: store, opts: newOptions(opts)}
}

// HoldWindow is the lifetime of holds created by m.
func (m *HoldManager) HoldWindow() time.Duration { return m.opts.holdWindow }

// CreateHold holds every requested resource for the caller and creates a
// pending_payment booking, or changes nothing.  If any resource is held
// or booked by another live booking it returns *HoldConflictError listing
// them.  Holds whose window has lapsed are reclaimed in the same
// transaction instead of counting as conflicts.
func (m *HoldManager) CreateHold(ctx context.Context, req HoldRequest) (*model.Booking, error) {
	if err := normalize(&req); err != nil {
		return nil, err
	}

	var (
		booking *model.Booking
		expired []string
	)
	err := m.opts.retry(ctx, "hold", func() error {
		return m.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			var err error
			booking, expired, err = m.holdTx(ctx, tx, req)
			return err
		})
	})
	if err != nil {
		var conflict *HoldConflictError
		if errors.As(err, &conflict) {
			metrics.Booking().HoldConflict(string(req.Type))
			m.opts.log.Info("hold conflict",
				zap.String("scope", req.ScopeKey),
				zap.String("user_id", req.UserID),
				zap.Strings("conflicting_ids", conflict.ConflictingIDs))
		}
		return nil, err
	}

	for _, id := range expired {
		metrics.Booking().Cancelled(model.CancelReasonExpired)
		m.opts.log.Info("stale hold reclaimed", zap.String("booking_id", id), zap.String("scope", req.ScopeKey))
	}
	metrics.Booking().HoldCreated(string(req.Type))
	m.opts.log.Info("hold created",
		zap.String("booking_id", booking.ID),
		zap.String("scope", booking.ScopeKey),
		zap.Strings("resource_ids", booking.ResourceIDs),
		zap.Time("expires_at", booking.ExpiryTime))
	m.opts.publish(ctx, booking.ScopeKey)
	return booking, nil
}

func (m *HoldManager) holdTx(ctx context.Context, tx repository.Tx, req HoldRequest) (*model.Booking, []string, error) {
	now := m.opts.clock()
	b := &model.Booking{
		ID:          model.NewBookingID(req.Type),
		Type:        req.Type,
		ScopeKey:    req.ScopeKey,
		UserID:      req.UserID,
		ResourceIDs: append([]string(nil), req.ResourceIDs...),
		Customer:    req.Customer,
		TotalAmount: req.Amount,
		Status:      model.StatusPendingPayment,
		ExpiryTime:  now.Add(m.opts.holdWindow),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var expired []string
	if len(req.ResourceIDs) > 0 {
		cur, err := tx.LockStates(ctx, req.ScopeKey, req.ResourceIDs)
		if err != nil {
			return nil, nil, err
		}
		var conflicts []string
		for _, id := range req.ResourceIDs {
			st := cur.State(id)
			if st.IsAvailable() {
				continue
			}
			if st.HoldExpired(now) {
				cancelled, err := reclaimStale(ctx, tx, st.BookingID, now)
				if err != nil {
					return nil, nil, err
				}
				if cancelled {
					expired = append(expired, st.BookingID)
				}
				continue
			}
			conflicts = append(conflicts, id)
		}
		if len(conflicts) > 0 {
			return nil, nil, &HoldConflictError{ConflictingIDs: conflicts}
		}

		holds := make(model.Availability, len(req.ResourceIDs))
		for _, id := range req.ResourceIDs {
			holds[id] = model.Held(req.UserID, b.ID, now, b.ExpiryTime)
		}
		if err := tx.PutStates(ctx, req.ScopeKey, holds); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.CreateBooking(ctx, b); err != nil {
		return nil, nil, err
	}
	return b, expired, nil
}

// reclaimStale expires the booking behind a lapsed hold so its resources
// can be taken.  It reports whether the booking was cancelled here; a
// booking that is already terminal or missing leaves an orphan entry that
// the new hold simply overwrites.
func reclaimStale(ctx context.Context, tx repository.Tx, bookingID string, now time.Time) (bool, error) {
	b, err := tx.GetBookingForUpdate(ctx, bookingID)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if b.Status.Terminal() {
		return false, nil
	}
	if _, err := cancelBooking(ctx, tx, b, model.CancelReasonExpired, now); err != nil {
		return false, err
	}
	return true, nil
}

// normalize validates req against the catalog and fills derived fields.
func normalize(req *HoldRequest) error {
	if !req.Type.Valid() {
		return invalidf("unknown booking type %q", req.Type)
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return invalidf("user id is required")
	}
	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	if req.Customer.Name == "" {
		return invalidf("customer name is required")
	}
	if req.Amount <= 0 {
		return invalidf("amount must be positive")
	}

	if !req.Type.ResourceBound() {
		if len(req.ResourceIDs) > 0 {
			return invalidf("%s bookings do not take resources", req.Type)
		}
		req.ScopeKey = ""
		return nil
	}

	if len(req.ResourceIDs) == 0 {
		return invalidf("at least one resource is required")
	}
	scope, layout, err := catalog.NormalizeScope(req.ScopeKey)
	if err != nil {
		return invalidf("%v", err)
	}
	req.ScopeKey = scope
	if layout.Type != req.Type {
		return invalidf("scope %q is not a %s scope", req.ScopeKey, req.Type)
	}
	seen := make(map[string]struct{}, len(req.ResourceIDs))
	for _, id := range req.ResourceIDs {
		if _, dup := seen[id]; dup {
			return invalidf("resource %q requested twice", id)
		}
		seen[id] = struct{}{}
	}
	bad, err := catalog.Validate(req.ScopeKey, req.ResourceIDs)
	if err != nil {
		return invalidf("%v", err)
	}
	if len(bad) > 0 {
		return invalidf("unknown resources in %s: %s", req.ScopeKey, strings.Join(bad, ", "))
	}
	return nil
}
