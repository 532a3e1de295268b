package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/metrics"
	"github.com/iliyamo/event-booking/internal/repository"
)

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Sweeper cancels pending bookings whose hold window has passed and
// releases their resources.  It races the reconciler; whichever commits
// first wins and the other sees a terminal booking.
type Sweeper struct {
	store repository.Store
	rec   *Reconciler
	opts  options
}

func NewSweeper(store repository.Store, rec *Reconciler, opts ...Option) *Sweeper {
	return &Sweeper{store: store, rec: rec, opts: newOptions(opts)}
}

// Sweep expires up to one batch of overdue bookings, each in its own
// transaction.  A failure on one booking is logged and left for the next
// pass; only a failure to list candidates is returned.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	metrics.Booking().SweepRun()
	ids, err := s.store.ListExpiredPending(ctx, s.opts.clock(), s.opts.sweepBatch)
	if err != nil {
		return res, err
	}
	res.Scanned = len(ids)
	for _, id := range ids {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		out, err := s.rec.Expire(ctx, id)
		switch {
		case err != nil:
			res.Failed++
			s.opts.log.Warn("expire booking failed", zap.String("booking_id", id), zap.Error(err))
		case out.Applied:
			res.Expired++
		default:
			res.Skipped++
		}
	}
	if res.Scanned > 0 {
		s.opts.log.Info("expiry sweep",
			zap.Int("scanned", res.Scanned),
			zap.Int("expired", res.Expired),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed))
	}
	return res, nil
}
