package repository

import (
	"context"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
)

// Tx is the view of the store inside one atomic transaction.  Every
// mutation of resource state goes through a Tx so that availability and
// bookings change together or not at all.
type Tx interface {
	// LockStates locks the given resources of a scope for the rest of the
	// transaction and returns their current states.  Resources without a
	// stored state are absent from the result (Available).
	LockStates(ctx context.Context, scope string, ids []string) (model.Availability, error)
	// PutStates writes Held or Booked states.  A resource LockStates found
	// absent must still be absent; if another transaction created it in
	// the meantime PutStates returns ErrTxAborted instead of overwriting.
	PutStates(ctx context.Context, scope string, states model.Availability) error
	// DeleteStates removes entries, reverting them to implicit Available.
	DeleteStates(ctx context.Context, scope string, ids []string) error

	CreateBooking(ctx context.Context, b *model.Booking) error
	// GetBookingForUpdate loads a booking and locks it until the
	// transaction ends.
	GetBookingForUpdate(ctx context.Context, id string) (*model.Booking, error)
	UpdateBooking(ctx context.Context, b *model.Booking) error

	CreateIssue(ctx context.Context, issue *model.ReconciliationIssue) error
}

// BookingFilter narrows ListBookings.  Zero fields do not filter.
type BookingFilter struct {
	Type   model.BookingType
	Status model.BookingStatus
	UserID string
	Limit  int
}

// Store is the single source of truth for resource state, bookings and
// reconciliation issues.
type Store interface {
	// WithTx runs fn inside one transaction.  If fn returns an error the
	// transaction is rolled back and the error is returned unchanged;
	// commit failures caused by contention are reported as ErrTxAborted.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// ReadScope returns the latest committed state of a scope.
	ReadScope(ctx context.Context, scope string) (model.Availability, error)
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	// ListBookings returns matching bookings, newest first.
	ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error)
	// ListExpiredPending returns the IDs of pending_payment bookings whose
	// expiry time is at or before now, oldest first.
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]string, error)

	ListIssues(ctx context.Context, unresolvedOnly bool) ([]model.ReconciliationIssue, error)
	// ResolveIssue stamps an issue as resolved.  Resolving twice keeps the
	// first timestamp.
	ResolveIssue(ctx context.Context, id string, at time.Time) (*model.ReconciliationIssue, error)
}
