package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-booking/internal/model"
)

var t0 = time.Date(2025, 1, 14, 9, 0, 0, 0, time.UTC)

func newBooking(id, user string, ids ...string) *model.Booking {
	return &model.Booking{
		ID:          id,
		Type:        model.BookingTypeHavan,
		ScopeKey:    "havan:2025-01-14:morning",
		UserID:      user,
		ResourceIDs: ids,
		Customer:    model.CustomerDetails{Name: "Asha", Extra: map[string]string{"gotra": "Kashyap"}},
		TotalAmount: 1100,
		Status:      model.StatusPendingPayment,
		ExpiryTime:  t0.Add(5 * time.Minute),
		CreatedAt:   t0,
		UpdatedAt:   t0,
	}
}

// runStoreContract exercises behaviour every Store implementation shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	scope := "havan:2025-01-14:morning"

	t.Run("hold and read back", func(t *testing.T) {
		s := newStore(t)
		b := newBooking("HAVAN-1", "u1", "A1-K1-S1", "A1-K1-S2")
		err := s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			cur, err := tx.LockStates(ctx, scope, b.ResourceIDs)
			if err != nil {
				return err
			}
			assert.Empty(t, cur)
			states := model.Availability{}
			for _, id := range b.ResourceIDs {
				states[id] = model.Held(b.UserID, b.ID, t0, b.ExpiryTime)
			}
			if err := tx.PutStates(ctx, scope, states); err != nil {
				return err
			}
			return tx.CreateBooking(ctx, b)
		})
		require.NoError(t, err)

		avail, err := s.ReadScope(ctx, scope)
		require.NoError(t, err)
		require.Len(t, avail, 2)
		assert.True(t, avail.State("A1-K1-S1").HeldFor("HAVAN-1"))
		assert.True(t, avail.State("A1-K1-S3").IsAvailable())

		got, err := s.GetBooking(ctx, "HAVAN-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"A1-K1-S1", "A1-K1-S2"}, got.ResourceIDs)
		assert.Equal(t, "Kashyap", got.Customer.Extra["gotra"])
		assert.Equal(t, model.StatusPendingPayment, got.Status)
	})

	t.Run("failed transaction leaves nothing", func(t *testing.T) {
		s := newStore(t)
		boom := errors.New("boom")
		err := s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.PutStates(ctx, scope, model.Availability{"A2-K1-S1": model.Held("u1", "HAVAN-2", t0, t0.Add(time.Minute))}); err != nil {
				return err
			}
			if err := tx.CreateBooking(ctx, newBooking("HAVAN-2", "u1", "A2-K1-S1")); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		avail, err := s.ReadScope(ctx, scope)
		require.NoError(t, err)
		assert.True(t, avail.State("A2-K1-S1").IsAvailable())
		_, err = s.GetBooking(ctx, "HAVAN-2")
		assert.ErrorIs(t, err, ErrBookingNotFound)
	})

	t.Run("update booking and delete states", func(t *testing.T) {
		s := newStore(t)
		b := newBooking("HAVAN-3", "u2", "A3-K1-S1")
		require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.PutStates(ctx, scope, model.Availability{"A3-K1-S1": model.Held("u2", b.ID, t0, b.ExpiryTime)}); err != nil {
				return err
			}
			return tx.CreateBooking(ctx, b)
		}))

		require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			got, err := tx.GetBookingForUpdate(ctx, b.ID)
			if err != nil {
				return err
			}
			now := t0.Add(time.Minute)
			got.Status = model.StatusCancelled
			got.CancelReason = model.CancelReasonPaymentFailed
			got.CancelledAt = &now
			got.Payment = &model.Payment{GatewayRef: "TX1", Amount: 1100}
			if err := tx.UpdateBooking(ctx, got); err != nil {
				return err
			}
			return tx.DeleteStates(ctx, scope, got.ResourceIDs)
		}))

		got, err := s.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, got.Status)
		require.NotNil(t, got.Payment)
		assert.Equal(t, "TX1", got.Payment.GatewayRef)
		require.NotNil(t, got.CancelledAt)

		avail, err := s.ReadScope(ctx, scope)
		require.NoError(t, err)
		assert.True(t, avail.State("A3-K1-S1").IsAvailable())
	})

	t.Run("missing booking", func(t *testing.T) {
		s := newStore(t)
		err := s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.GetBookingForUpdate(ctx, "nope")
			return err
		})
		assert.ErrorIs(t, err, ErrBookingNotFound)
	})

	t.Run("list and expired pending", func(t *testing.T) {
		s := newStore(t)
		old := newBooking("HAVAN-OLD", "u1")
		old.ExpiryTime = t0.Add(-time.Minute)
		fresh := newBooking("HAVAN-NEW", "u2")
		fresh.CreatedAt = t0.Add(time.Second)
		done := newBooking("HAVAN-DONE", "u1")
		done.ExpiryTime = t0.Add(-time.Hour)
		done.Status = model.StatusConfirmed
		require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			for _, b := range []*model.Booking{old, fresh, done} {
				if err := tx.CreateBooking(ctx, b); err != nil {
					return err
				}
			}
			return nil
		}))

		ids, err := s.ListExpiredPending(ctx, t0, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"HAVAN-OLD"}, ids)

		mine, err := s.ListBookings(ctx, BookingFilter{UserID: "u1"})
		require.NoError(t, err)
		assert.Len(t, mine, 2)

		all, err := s.ListBookings(ctx, BookingFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "HAVAN-NEW", all[0].ID)

		confirmed, err := s.ListBookings(ctx, BookingFilter{Status: model.StatusConfirmed})
		require.NoError(t, err)
		require.Len(t, confirmed, 1)
		assert.Equal(t, "HAVAN-DONE", confirmed[0].ID)
	})

	t.Run("issues", func(t *testing.T) {
		s := newStore(t)
		is := &model.ReconciliationIssue{
			ID: "ISS-1", BookingID: "HAVAN-9", ScopeKey: scope, ResourceID: "A1-K1-S1",
			Kind: model.IssueResourceConflict, Detail: "held by HAVAN-8", CreatedAt: t0,
		}
		require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.CreateIssue(ctx, is)
		}))

		open, err := s.ListIssues(ctx, true)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, "A1-K1-S1", open[0].ResourceID)

		resolved, err := s.ResolveIssue(ctx, "ISS-1", t0.Add(time.Hour))
		require.NoError(t, err)
		require.NotNil(t, resolved.ResolvedAt)

		again, err := s.ResolveIssue(ctx, "ISS-1", t0.Add(2*time.Hour))
		require.NoError(t, err)
		assert.True(t, again.ResolvedAt.Equal(t0.Add(time.Hour)))

		open, err = s.ListIssues(ctx, true)
		require.NoError(t, err)
		assert.Empty(t, open)

		_, err = s.ResolveIssue(ctx, "ISS-404", t0)
		assert.ErrorIs(t, err, ErrIssueNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	b := newBooking("HAVAN-ISO", "u1", "A1-K1-S1")
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx Tx) error { return tx.CreateBooking(ctx, b) }))

	b.ResourceIDs[0] = "mutated"
	got, err := s.GetBooking(ctx, "HAVAN-ISO")
	require.NoError(t, err)
	assert.Equal(t, "A1-K1-S1", got.ResourceIDs[0])

	got.Customer.Extra["gotra"] = "other"
	again, _ := s.GetBooking(ctx, "HAVAN-ISO")
	assert.Equal(t, "Kashyap", again.Customer.Extra["gotra"])
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewMemoryStore().WithTx(ctx, func(context.Context, Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
