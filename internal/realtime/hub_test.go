package realtime

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
)

const scope = "stall:global"

func hold(t *testing.T, store *repository.MemoryStore, id, bookingID string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.PutStates(ctx, scope, model.Availability{id: model.Held("u", bookingID, now, now.Add(time.Minute))})
	}))
}

func next(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
		return Snapshot{}
	}
}

func TestSubscribeDeliversInitialAndUpdates(t *testing.T) {
	store := repository.NewMemoryStore()
	hold(t, store, "ST-01", "STALL-1")
	hub := NewHub(store, nil, zap.NewNop())

	got := make(chan Snapshot, 8)
	cancel, err := hub.Subscribe(context.Background(), scope, func(s Snapshot) { got <- s })
	require.NoError(t, err)
	defer cancel()

	first := next(t, got)
	assert.Equal(t, scope, first.Scope)
	assert.True(t, first.States.State("ST-01").HeldFor("STALL-1"))

	hold(t, store, "ST-02", "STALL-2")
	hub.Publish(context.Background(), scope)

	second := next(t, got)
	assert.Len(t, second.States, 2)
	assert.True(t, second.States.State("ST-02").HeldFor("STALL-2"))
}

func TestPublishOnlyReachesSameScope(t *testing.T) {
	store := repository.NewMemoryStore()
	hub := NewHub(store, nil, zap.NewNop())

	got := make(chan Snapshot, 8)
	cancel, err := hub.Subscribe(context.Background(), "show:2025-01-14:evening", func(s Snapshot) { got <- s })
	require.NoError(t, err)
	defer cancel()
	next(t, got)

	hub.Publish(context.Background(), scope)
	select {
	case s := <-got:
		t.Fatalf("unexpected snapshot for %s", s.Scope)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowSubscriberGetsLatest(t *testing.T) {
	store := repository.NewMemoryStore()
	hub := NewHub(store, nil, zap.NewNop())

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	got := make(chan Snapshot, 8)
	cancel, err := hub.Subscribe(context.Background(), scope, func(s Snapshot) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		got <- s
	})
	require.NoError(t, err)
	defer cancel()

	// The subscriber is now stuck on the initial snapshot.
	<-entered
	for _, id := range []string{"ST-01", "ST-02", "ST-03"} {
		hold(t, store, id, "STALL-"+id)
		hub.Publish(context.Background(), scope)
	}
	close(release)

	assert.Empty(t, next(t, got).States)
	assert.Len(t, next(t, got).States, 3)
	select {
	case s := <-got:
		t.Fatalf("intermediate snapshot delivered with %d states", len(s.States))
	case <-time.After(50 * time.Millisecond):
	}
}

// stalledReader returns its first read only after release is closed.
type stalledReader struct {
	Reader
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *stalledReader) ReadScope(ctx context.Context, scope string) (model.Availability, error) {
	states, err := r.Reader.ReadScope(ctx, scope)
	first := false
	r.once.Do(func() { first = true })
	if first {
		close(r.entered)
		<-r.release
	}
	return states, err
}

func TestChangeDuringFirstReadIsDelivered(t *testing.T) {
	store := repository.NewMemoryStore()
	reader := &stalledReader{Reader: store, entered: make(chan struct{}), release: make(chan struct{})}
	hub := NewHub(reader, nil, zap.NewNop())

	got := make(chan Snapshot, 8)
	subscribed := make(chan error, 1)
	go func() {
		_, err := hub.Subscribe(context.Background(), scope, func(s Snapshot) { got <- s })
		subscribed <- err
	}()

	<-reader.entered
	hold(t, store, "ST-01", "STALL-1")
	hub.Publish(context.Background(), scope)
	close(reader.release)
	require.NoError(t, <-subscribed)

	snap := next(t, got)
	assert.True(t, snap.States.State("ST-01").HeldFor("STALL-1"))
	select {
	case s := <-got:
		t.Fatalf("stale snapshot delivered with %d states", len(s.States))
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOfferDropsOlderSnapshot(t *testing.T) {
	s := &subscriber{mailbox: make(chan Snapshot, 1)}
	now := time.Now()
	s.offer(Snapshot{Scope: scope, At: now})
	s.offer(Snapshot{Scope: scope, At: now.Add(-time.Second)})
	assert.Equal(t, now, (<-s.mailbox).At)
}

func TestCancelStopsDelivery(t *testing.T) {
	store := repository.NewMemoryStore()
	hub := NewHub(store, nil, zap.NewNop())

	ctx, stop := context.WithCancel(context.Background())
	got := make(chan Snapshot, 8)
	_, err := hub.Subscribe(ctx, scope, func(s Snapshot) { got <- s })
	require.NoError(t, err)
	next(t, got)
	assert.Equal(t, 1, hub.Subscribers(scope))

	stop()
	assert.Eventually(t, func() bool { return hub.Subscribers(scope) == 0 }, time.Second, 5*time.Millisecond)

	hub.Publish(context.Background(), scope)
	select {
	case <-got:
		t.Fatal("delivered after cancel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRedisFanOut(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	store := repository.NewMemoryStore()
	publisher := NewHub(store, rdb, zap.NewNop())
	listener := NewHub(store, rdb, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = listener.Run(ctx) }()

	got := make(chan Snapshot, 8)
	unsub, err := listener.Subscribe(ctx, scope, func(s Snapshot) { got <- s })
	require.NoError(t, err)
	defer unsub()
	next(t, got)

	hold(t, store, "ST-09", "STALL-9")
	assert.Eventually(t, func() bool {
		publisher.Publish(ctx, scope)
		select {
		case s := <-got:
			return s.States.State("ST-09").HeldFor("STALL-9")
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}
