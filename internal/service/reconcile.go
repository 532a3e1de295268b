package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/metrics"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
)

// Result describes what a reconcile, cancel or expire call did.  Applied
// is false when the booking was already terminal (or, for Expire, not yet
// due) and nothing changed.
type Result struct {
	Booking  *model.Booking
	Applied  bool
	Released []string
	Issues   []model.ReconciliationIssue
}

// Reconciler finalizes bookings: it applies payment outcomes and performs
// user and expiry cancellations.  Every transition is first-writer-wins;
// a call that finds the booking terminal is a successful no-op.
type Reconciler struct {
	store repository.Store
	opts  options
}

func NewReconciler(store repository.Store, opts ...Option) *Reconciler {
	return &Reconciler{store: store, opts: newOptions(opts)}
}

// Reconcile applies a verified gateway outcome to bookingID.  Store
// failures are returned as is and not retried; the gateway's redelivery
// is the retry policy.
func (r *Reconciler) Reconcile(ctx context.Context, bookingID string, out model.GatewayOutcome) (*Result, error) {
	if out.Status != model.OutcomeSuccess && out.Status != model.OutcomeFailure {
		return nil, invalidf("unknown outcome status %q", out.Status)
	}
	if out.OrderID != "" && out.OrderID != bookingID {
		return nil, invalidf("outcome is for order %q, not %q", out.OrderID, bookingID)
	}

	var res *Result
	err := r.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		res = &Result{Booking: b}
		now := r.opts.clock()
		if b.Status.Terminal() {
			if b.Status == model.StatusCancelled && out.Status == model.OutcomeSuccess {
				res.Issues, err = recordPaidAfterCancel(ctx, tx, b, out, now)
			}
			return err
		}
		b.Payment = paymentOf(out)
		res.Applied = true
		if out.Status == model.OutcomeFailure {
			res.Released, err = cancelBooking(ctx, tx, b, model.CancelReasonPaymentFailed, now)
			return err
		}
		res.Issues, err = confirmBooking(ctx, tx, b, now)
		return err
	})
	if err != nil {
		r.txFailed("reconcile", bookingID, err)
		return nil, err
	}

	metrics.Booking().Reconciled(string(out.Status), res.Applied)
	if !res.Applied {
		if len(res.Issues) > 0 {
			r.reportIssues(res)
			return res, nil
		}
		r.opts.log.Info("stale payment outcome ignored",
			zap.String("booking_id", bookingID),
			zap.String("outcome", string(out.Status)),
			zap.String("status", string(res.Booking.Status)))
		return res, nil
	}

	b := res.Booking
	if b.Status == model.StatusCancelled {
		r.cancelled(ctx, res)
		return res, nil
	}
	r.reportIssues(res)
	r.opts.log.Info("booking confirmed",
		zap.String("booking_id", b.ID),
		zap.String("gateway_ref", out.GatewayRef),
		zap.Bool("needs_reconciliation", b.NeedsReconciliation))
	r.opts.publish(ctx, b.ScopeKey)
	r.opts.notify(b.Clone())
	return res, nil
}

func (r *Reconciler) reportIssues(res *Result) {
	for _, is := range res.Issues {
		metrics.Booking().Issue(is.Kind)
		r.opts.log.Error("reconciliation issue",
			zap.String("booking_id", is.BookingID),
			zap.String("status", string(res.Booking.Status)),
			zap.String("kind", is.Kind),
			zap.String("scope", is.ScopeKey),
			zap.String("resource_id", is.ResourceID),
			zap.String("detail", is.Detail))
	}
}

func paymentOf(out model.GatewayOutcome) *model.Payment {
	return &model.Payment{
		Outcome:       out.Status,
		GatewayRef:    out.GatewayRef,
		BankRef:       out.BankRef,
		Method:        out.Method,
		StatusMessage: out.Message,
		Amount:        out.Amount,
		Raw:           out.Raw,
	}
}

// recordPaidAfterCancel flags money taken for a booking whose resources
// were already released.  The booking stays cancelled; only the first
// success outcome is recorded.
func recordPaidAfterCancel(ctx context.Context, tx repository.Tx, b *model.Booking, out model.GatewayOutcome, now time.Time) ([]model.ReconciliationIssue, error) {
	if b.Payment != nil && b.Payment.Outcome == model.OutcomeSuccess {
		return nil, nil
	}
	is := model.ReconciliationIssue{
		ID:        uuid.NewString(),
		BookingID: b.ID,
		ScopeKey:  b.ScopeKey,
		Kind:      model.IssuePaidAfterCancel,
		Detail:    fmt.Sprintf("paid %d via %s after cancellation (%s)", out.Amount, out.GatewayRef, b.CancelReason),
		CreatedAt: now,
	}
	if err := tx.CreateIssue(ctx, &is); err != nil {
		return nil, err
	}
	b.Payment = paymentOf(out)
	b.NeedsReconciliation = true
	b.UpdatedAt = now
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return nil, err
	}
	return []model.ReconciliationIssue{is}, nil
}

// confirmBooking marks b confirmed and turns its holds into bookings.
// Resources that are no longer held for b are left untouched and recorded
// as issues; the booking is confirmed regardless because it was paid.
func confirmBooking(ctx context.Context, tx repository.Tx, b *model.Booking, now time.Time) ([]model.ReconciliationIssue, error) {
	b.Status = model.StatusConfirmed
	b.ConfirmedAt = &now
	b.UpdatedAt = now

	var issues []model.ReconciliationIssue
	newIssue := func(kind, resourceID, detail string) {
		issues = append(issues, model.ReconciliationIssue{
			ID:         uuid.NewString(),
			BookingID:  b.ID,
			ScopeKey:   b.ScopeKey,
			ResourceID: resourceID,
			Kind:       kind,
			Detail:     detail,
			CreatedAt:  now,
		})
	}

	if b.ScopeKey != "" && len(b.ResourceIDs) > 0 {
		cur, err := tx.LockStates(ctx, b.ScopeKey, b.ResourceIDs)
		if err != nil {
			return nil, err
		}
		booked := make(model.Availability, len(b.ResourceIDs))
		for _, id := range b.ResourceIDs {
			st := cur.State(id)
			if st.HeldFor(b.ID) || (st.Status == model.ResourceBooked && st.BookingID == b.ID) {
				booked[id] = model.Booked(b.UserID, b.ID, b.Customer.Name, now)
				continue
			}
			newIssue(model.IssueResourceConflict, id, describeState(st))
		}
		if err := tx.PutStates(ctx, b.ScopeKey, booked); err != nil {
			return nil, err
		}
	}

	if b.Payment != nil && b.Payment.Amount != 0 && b.Payment.Amount != b.TotalAmount {
		newIssue(model.IssueAmountMismatch, "",
			fmt.Sprintf("paid %d, due %d", b.Payment.Amount, b.TotalAmount))
	}

	if len(issues) > 0 {
		b.NeedsReconciliation = true
		for i := range issues {
			if err := tx.CreateIssue(ctx, &issues[i]); err != nil {
				return nil, err
			}
		}
	}
	return issues, tx.UpdateBooking(ctx, b)
}

func describeState(st model.ResourceState) string {
	switch st.Status {
	case model.ResourceHeld:
		return fmt.Sprintf("held by booking %s", st.BookingID)
	case model.ResourceBooked:
		return fmt.Sprintf("booked by booking %s", st.BookingID)
	default:
		return "hold was released before payment arrived"
	}
}

// Cancel cancels userID's own pending booking.  Cancelling a terminal
// booking is a no-op.
func (r *Reconciler) Cancel(ctx context.Context, bookingID, userID string) (*Result, error) {
	return r.cancel(ctx, "cancel", bookingID, func(b *model.Booking, _ time.Time) (string, error) {
		if b.UserID != userID {
			return "", repository.ErrForbidden
		}
		return model.CancelReasonUserCancelled, nil
	})
}

// Expire cancels bookingID if it is still pending and its hold window
// has passed.
func (r *Reconciler) Expire(ctx context.Context, bookingID string) (*Result, error) {
	return r.cancel(ctx, "expire", bookingID, func(b *model.Booking, now time.Time) (string, error) {
		if b.ExpiryTime.After(now) {
			return "", nil
		}
		return model.CancelReasonExpired, nil
	})
}

// cancel runs one cancellation.  decide returns the reason to cancel
// with, or "" to leave the booking alone.
func (r *Reconciler) cancel(ctx context.Context, op, bookingID string, decide func(*model.Booking, time.Time) (string, error)) (*Result, error) {
	var res *Result
	err := r.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		now := r.opts.clock()
		reason, err := decide(b, now)
		if err != nil {
			return err
		}
		res = &Result{Booking: b}
		if b.Status.Terminal() || reason == "" {
			return nil
		}
		res.Applied = true
		res.Released, err = cancelBooking(ctx, tx, b, reason, now)
		return err
	})
	if err != nil {
		r.txFailed(op, bookingID, err)
		return nil, err
	}
	if res.Applied {
		r.cancelled(ctx, res)
	}
	return res, nil
}

func (r *Reconciler) cancelled(ctx context.Context, res *Result) {
	b := res.Booking
	metrics.Booking().Cancelled(b.CancelReason)
	r.opts.log.Info("booking cancelled",
		zap.String("booking_id", b.ID),
		zap.String("reason", b.CancelReason),
		zap.Strings("released", res.Released))
	if len(res.Released) > 0 {
		r.opts.publish(ctx, b.ScopeKey)
	}
}

func (r *Reconciler) txFailed(op, bookingID string, err error) {
	if errors.Is(err, repository.ErrTxAborted) {
		metrics.Booking().TxAborted(op)
	}
	if errors.Is(err, repository.ErrBookingNotFound) || errors.Is(err, repository.ErrForbidden) {
		return
	}
	r.opts.log.Error("booking transition failed", zap.String("op", op), zap.String("booking_id", bookingID), zap.Error(err))
}
