package service

import (
	"context"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
)

// cancelBooking moves a pending booking to cancelled and releases every
// resource still held under its ID.  The booking must have been loaded
// with GetBookingForUpdate in the same transaction.
func cancelBooking(ctx context.Context, tx repository.Tx, b *model.Booking, reason string, now time.Time) ([]string, error) {
	b.Status = model.StatusCancelled
	b.CancelReason = reason
	b.CancelledAt = &now
	b.UpdatedAt = now
	released, err := releaseHolds(ctx, tx, b)
	if err != nil {
		return nil, err
	}
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return nil, err
	}
	return released, nil
}

// releaseHolds deletes the entries of b's resources that are Held for b.
// Entries held or booked by another booking are left alone.
func releaseHolds(ctx context.Context, tx repository.Tx, b *model.Booking) ([]string, error) {
	if b.ScopeKey == "" || len(b.ResourceIDs) == 0 {
		return nil, nil
	}
	cur, err := tx.LockStates(ctx, b.ScopeKey, b.ResourceIDs)
	if err != nil {
		return nil, err
	}
	var release []string
	for _, id := range b.ResourceIDs {
		if cur.State(id).HeldFor(b.ID) {
			release = append(release, id)
		}
	}
	if len(release) == 0 {
		return nil, nil
	}
	if err := tx.DeleteStates(ctx, b.ScopeKey, release); err != nil {
		return nil, err
	}
	return release, nil
}
