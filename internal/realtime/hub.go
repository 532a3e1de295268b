// Package realtime fans availability snapshots out to live subscribers.
// Every delivery is a full snapshot of a scope, never a diff, so a
// subscriber that misses intermediate updates still converges on the
// latest state.
package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/logger"
	"github.com/iliyamo/event-booking/internal/model"
)

// ChannelPrefix prefixes the Redis channel of each scope.
const ChannelPrefix = "availability:"

const publishTimeout = 3 * time.Second

// Reader reads the committed state of a scope.
type Reader interface {
	ReadScope(ctx context.Context, scope string) (model.Availability, error)
}

// Snapshot is the full state of one scope at a point in time.
type Snapshot struct {
	Scope  string             `json:"scope"`
	States model.Availability `json:"states"`
	At     time.Time          `json:"at"`
}

type subscriber struct {
	fn      func(Snapshot)
	mailbox chan Snapshot
	done    chan struct{}
	once    sync.Once

	mu     sync.Mutex
	latest time.Time
}

// offer replaces any undelivered snapshot with snap.  Snapshots read
// before the newest one already offered are dropped.
func (s *subscriber) offer(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.At.Before(s.latest) {
		return
	}
	s.latest = snap.At
	for {
		select {
		case s.mailbox <- snap:
			return
		default:
		}
		select {
		case <-s.mailbox:
		default:
		}
	}
}

func (s *subscriber) loop() {
	for {
		select {
		case <-s.done:
			return
		case snap := <-s.mailbox:
			s.fn(snap)
		}
	}
}

// Hub delivers snapshots to subscribers.  With a Redis client, Publish
// goes through Redis pub/sub so every instance behind the load balancer
// sees every change and Run must be running; without one, delivery is
// local to the process.
type Hub struct {
	reader Reader
	rdb    *redis.Client
	log    *zap.Logger

	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

// NewHub returns a Hub.  rdb may be nil.
func NewHub(reader Reader, rdb *redis.Client, log *zap.Logger) *Hub {
	return &Hub{
		reader: reader,
		rdb:    rdb,
		log:    logger.OrGlobal(log),
		subs:   make(map[string]map[*subscriber]struct{}),
	}
}

// Snapshot reads the current state of scope.  At is taken before the read,
// so a snapshot with a later At reflects at least every change the earlier
// one does.
func (h *Hub) Snapshot(ctx context.Context, scope string) (Snapshot, error) {
	at := time.Now().UTC()
	states, err := h.reader.ReadScope(ctx, scope)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Scope: scope, States: states, At: at}, nil
}

// Subscribe calls fn with the current snapshot of scope and again after
// every published change, from a goroutine owned by the subscription.
// Calls never overlap; if fn is slow, intermediate snapshots are dropped
// in favour of the newest.  The subscription ends when cancel is called
// or ctx is done.
func (h *Hub) Subscribe(ctx context.Context, scope string, fn func(Snapshot)) (cancel func(), err error) {
	s := &subscriber{fn: fn, mailbox: make(chan Snapshot, 1), done: make(chan struct{})}
	h.mu.Lock()
	set := h.subs[scope]
	if set == nil {
		set = make(map[*subscriber]struct{})
		h.subs[scope] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	cancel = func() {
		s.once.Do(func() {
			h.mu.Lock()
			delete(h.subs[scope], s)
			if len(h.subs[scope]) == 0 {
				delete(h.subs, scope)
			}
			h.mu.Unlock()
			close(s.done)
		})
	}

	// Registered before the first read so no change published meanwhile
	// is missed.
	snap, err := h.Snapshot(ctx, scope)
	if err != nil {
		cancel()
		return nil, err
	}
	s.offer(snap)

	go s.loop()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-s.done:
		}
	}()
	return cancel, nil
}

// Subscribers returns the number of live subscriptions on scope.
func (h *Hub) Subscribers(scope string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[scope])
}

// Publish reads the committed state of scope and pushes it to every
// subscriber.  It never fails the caller; errors are logged.
func (h *Hub) Publish(ctx context.Context, scope string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	snap, err := h.Snapshot(ctx, scope)
	if err != nil {
		h.log.Warn("availability snapshot read failed", zap.String("scope", scope), zap.Error(err))
		return
	}
	if h.rdb == nil {
		h.broadcast(snap)
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		h.log.Error("availability snapshot encode failed", zap.String("scope", scope), zap.Error(err))
		return
	}
	if err := h.rdb.Publish(ctx, ChannelPrefix+scope, payload).Err(); err != nil {
		// Local subscribers still get the update when Redis is down.
		h.log.Warn("availability publish failed", zap.String("scope", scope), zap.Error(err))
		h.broadcast(snap)
	}
}

func (h *Hub) broadcast(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[snap.Scope] {
		s.offer(snap)
	}
}

// Run relays snapshots published by any instance to local subscribers
// until ctx is done.  It returns immediately when the hub has no Redis
// client.
func (h *Hub) Run(ctx context.Context) error {
	if h.rdb == nil {
		return nil
	}
	ps := h.rdb.PSubscribe(ctx, ChannelPrefix+"*")
	defer ps.Close()

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var snap Snapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
				h.log.Warn("availability message decode failed", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if snap.Scope == "" {
				snap.Scope = strings.TrimPrefix(msg.Channel, ChannelPrefix)
			}
			h.broadcast(snap)
		}
	}
}
