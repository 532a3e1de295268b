// Package worker runs background jobs next to the HTTP server.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/logger"
	"github.com/iliyamo/event-booking/internal/service"
)

// Sweeper is the expiry pass the worker drives.
type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

var _ Sweeper = (*service.Sweeper)(nil)

// Stats summarizes the worker since start.
type Stats struct {
	Running      bool                `json:"running"`
	Interval     string              `json:"interval"`
	Runs         int64               `json:"runs"`
	TotalExpired int64               `json:"total_expired"`
	TotalFailed  int64               `json:"total_failed"`
	LastRunAt    *time.Time          `json:"last_run_at,omitempty"`
	LastResult   service.SweepResult `json:"last_result"`
	LastError    string              `json:"last_error,omitempty"`
}

// ErrAlreadyRunning is returned by Start on a running worker.
var ErrAlreadyRunning = errors.New("expiry worker already running")

// ExpiryWorker sweeps expired holds on a fixed interval.  A failed pass
// is logged and the next tick tries again.
type ExpiryWorker struct {
	sweeper  Sweeper
	interval time.Duration
	log      *zap.Logger

	runMu   sync.Mutex // serializes passes between the ticker and RunOnce
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	stats   Stats
}

func NewExpiryWorker(sweeper Sweeper, interval time.Duration, log *zap.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ExpiryWorker{
		sweeper:  sweeper,
		interval: interval,
		log:      logger.OrGlobal(log),
	}
}

// Start runs one pass immediately and then one per interval until Stop
// is called or ctx is done.
func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	w.log.Info("starting expiry worker", zap.Duration("interval", w.interval))
	w.wg.Add(1)
	go w.loop(ctx, w.stopCh)
	return nil
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (w *ExpiryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	w.log.Info("expiry worker stopped")
}

func (w *ExpiryWorker) loop(ctx context.Context, stop <-chan struct{}) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	_, _ = w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-stop:
			return
		case <-ticker.C:
			_, _ = w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single pass and records it in the stats.
func (w *ExpiryWorker) RunOnce(ctx context.Context) (service.SweepResult, error) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	res, err := w.sweeper.Sweep(ctx)
	now := time.Now().UTC()

	w.mu.Lock()
	w.stats.Runs++
	w.stats.TotalExpired += int64(res.Expired)
	w.stats.TotalFailed += int64(res.Failed)
	w.stats.LastRunAt = &now
	w.stats.LastResult = res
	w.stats.LastError = ""
	if err != nil {
		w.stats.LastError = err.Error()
	}
	w.mu.Unlock()

	switch {
	case err != nil:
		w.log.Error("expiry sweep failed", zap.Error(err))
	case res.Expired > 0 || res.Failed > 0:
		w.log.Info("expiry sweep",
			zap.Int("scanned", res.Scanned),
			zap.Int("expired", res.Expired),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed))
	}
	return res, err
}

// Stats returns a copy of the worker statistics.
func (w *ExpiryWorker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.Running = w.running
	s.Interval = w.interval.String()
	return s
}
