package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
)

const (
	havanScope = "havan:2025-01-14:morning"
	stallScope = "stall:global"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 14, 6, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recordingPublisher remembers every scope it was asked to publish.
type recordingPublisher struct {
	mu     sync.Mutex
	scopes []string
}

func (p *recordingPublisher) Publish(_ context.Context, scope string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scopes = append(p.scopes, scope)
}

func (p *recordingPublisher) Scopes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.scopes...)
}

type chanNotifier chan model.Booking

func (n chanNotifier) BookingConfirmed(_ context.Context, b model.Booking) error {
	n <- b
	return nil
}

// flakyStore aborts the first fails transactions, or fails every one with
// err when err is set.
type flakyStore struct {
	repository.Store
	mu    sync.Mutex
	fails int
	calls int
	err   error
}

func (s *flakyStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	s.calls++
	failNow := s.calls <= s.fails
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if failNow {
		return repository.ErrTxAborted
	}
	return s.Store.WithTx(ctx, fn)
}

type fixture struct {
	store *repository.MemoryStore
	clock *fakeClock
	pub   *recordingPublisher
	holds *HoldManager
	rec   *Reconciler
	sweep *Sweeper
}

func newFixture(t *testing.T, extra ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store: repository.NewMemoryStore(),
		clock: newFakeClock(),
		pub:   &recordingPublisher{},
	}
	opts := append([]Option{
		WithClock(f.clock.Now),
		WithLogger(zap.NewNop()),
		WithPublisher(f.pub),
	}, extra...)
	f.holds = NewHoldManager(f.store, opts...)
	f.rec = NewReconciler(f.store, opts...)
	f.sweep = NewSweeper(f.store, f.rec, opts...)
	return f
}

func (f *fixture) hold(t *testing.T, user, scope string, ids ...string) *model.Booking {
	t.Helper()
	typ := model.BookingTypeHavan
	if scope == stallScope {
		typ = model.BookingTypeStall
	}
	b, err := f.holds.CreateHold(context.Background(), HoldRequest{
		Type:        typ,
		ScopeKey:    scope,
		ResourceIDs: ids,
		UserID:      user,
		Customer:    model.CustomerDetails{Name: "Customer " + user, Email: user + "@example.com"},
		Amount:      int64(500 * len(ids)),
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) state(t *testing.T, scope, id string) model.ResourceState {
	t.Helper()
	avail, err := f.store.ReadScope(context.Background(), scope)
	require.NoError(t, err)
	return avail.State(id)
}

func (f *fixture) booking(t *testing.T, id string) *model.Booking {
	t.Helper()
	b, err := f.store.GetBooking(context.Background(), id)
	require.NoError(t, err)
	return b
}

func success(b *model.Booking) model.GatewayOutcome {
	return model.GatewayOutcome{
		OrderID:    b.ID,
		Status:     model.OutcomeSuccess,
		GatewayRef: "TXN-" + b.ID,
		BankRef:    "BANK-1",
		Method:     "upi",
		Message:    "Transaction successful",
		Amount:     b.TotalAmount,
	}
}

func failure(b *model.Booking) model.GatewayOutcome {
	return model.GatewayOutcome{OrderID: b.ID, Status: model.OutcomeFailure, GatewayRef: "TXN-" + b.ID, Message: "Declined"}
}
