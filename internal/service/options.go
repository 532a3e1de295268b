// Package service implements the reservation core: the hold manager that
// atomically claims resources for a new booking, the reconciler that
// applies payment outcomes and cancellations, and the sweeper that
// reclaims abandoned holds.  All state changes run inside one store
// transaction over availability and bookings.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/logger"
	"github.com/iliyamo/event-booking/internal/metrics"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
)

const (
	DefaultHoldWindow    = 5 * time.Minute
	DefaultTxAttempts    = 3
	DefaultSweepBatch    = 100
	defaultNotifyTimeout = 10 * time.Second
	txRetryBackoff       = 25 * time.Millisecond
)

// SnapshotPublisher is told about every committed change to a scope so it
// can push a fresh snapshot to subscribers.
type SnapshotPublisher interface {
	Publish(ctx context.Context, scope string)
}

// Notifier is called after a booking is confirmed.  Failures are logged
// and never affect the booking.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b model.Booking) error
}

type options struct {
	now           func() time.Time
	log           *zap.Logger
	holdWindow    time.Duration
	txAttempts    int
	sweepBatch    int
	publisher     SnapshotPublisher
	notifier      Notifier
	notifyTimeout time.Duration
}

// Option configures the services in this package.
type Option func(*options)

// WithHoldWindow overrides how long a hold lasts.
func WithHoldWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.holdWindow = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithTxAttempts sets how many times a hold is attempted when the store
// aborts the transaction because of contention.
func WithTxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.txAttempts = n
		}
	}
}

// WithSweepBatch caps how many expired bookings one sweep handles.
func WithSweepBatch(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sweepBatch = n
		}
	}
}

func WithPublisher(p SnapshotPublisher) Option {
	return func(o *options) { o.publisher = p }
}

func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

func newOptions(opts []Option) options {
	o := options{
		now:           time.Now,
		holdWindow:    DefaultHoldWindow,
		txAttempts:    DefaultTxAttempts,
		sweepBatch:    DefaultSweepBatch,
		notifyTimeout: defaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = logger.OrGlobal(o.log)
	return o
}

func (o *options) clock() time.Time { return o.now().UTC() }

// retry runs fn again while the store reports ErrTxAborted, up to the
// configured number of attempts.  Each attempt starts from a fresh read.
func (o *options) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= o.txAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, repository.ErrTxAborted) {
			return err
		}
		metrics.Booking().TxAborted(op)
		o.log.Warn("store transaction aborted", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		if attempt == o.txAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * txRetryBackoff):
		}
	}
	return err
}

func (o *options) publish(ctx context.Context, scope string) {
	if o.publisher == nil || scope == "" {
		return
	}
	o.publisher.Publish(ctx, scope)
}

// notify runs the notifier in the background with its own deadline so a
// slow broker never holds up the caller.
func (o *options) notify(b model.Booking) {
	if o.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.notifyTimeout)
		defer cancel()
		if err := o.notifier.BookingConfirmed(ctx, b); err != nil {
			o.log.Warn("booking confirmation notify failed", zap.String("booking_id", b.ID), zap.Error(err))
		}
	}()
}
