// Package repository defines error types that are reused across the
// stores.  These sentinel values allow higher layers such as services and
// handlers to distinguish between different failure scenarios.  For
// example, ErrTxAborted indicates that the atomic transaction over
// availability and bookings could not commit and the whole operation must
// be retried from a fresh read, while ErrBookingNotFound means the caller
// referenced a booking that was never created.
package repository

import "errors"

// ErrBookingNotFound is returned when no booking exists with the given
// ID.  Handlers should translate this into an HTTP 404 response.
var ErrBookingNotFound = errors.New("booking not found")

// ErrIssueNotFound is returned when no reconciliation issue exists with
// the given ID.
var ErrIssueNotFound = errors.New("reconciliation issue not found")

// ErrTxAborted is returned when the store could not commit a transaction
// because of contention or a transient fault (deadlock, lock wait
// timeout).  Nothing inside the transaction took effect.  Handlers should
// translate this into an HTTP 503 response.
var ErrTxAborted = errors.New("transaction aborted")

// ErrForbidden is returned when the caller attempts an operation on a
// booking they do not own.  Handlers should translate this into an HTTP
// 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be performed because of
// conflicting state, such as cancelling a booking that is already paid.
// Handlers should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")
