package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
)

// MemoryStore keeps availability, bookings and issues in process memory.
// Transactions are serialized by a single mutex held for the whole of
// WithTx, and writes are staged until fn returns nil, so a failed or
// panicking transaction leaves no trace.  It backs tests and single
// instance deployments (STORE_DRIVER=memory).
type MemoryStore struct {
	mu       sync.Mutex
	scopes   map[string]model.Availability
	bookings map[string]model.Booking
	issues   map[string]model.ReconciliationIssue
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scopes:   make(map[string]model.Availability),
		bookings: make(map[string]model.Booking),
		issues:   make(map[string]model.ReconciliationIssue),
	}
}

// memTx stages writes on top of the committed maps.  A nil state pointer
// marks a deleted entry.
type memTx struct {
	s        *MemoryStore
	states   map[string]map[string]*model.ResourceState
	bookings map[string]model.Booking
	issues   []model.ReconciliationIssue
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:        s,
		states:   make(map[string]map[string]*model.ResourceState),
		bookings: make(map[string]model.Booking),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (tx *memTx) commit() {
	s := tx.s
	for scope, staged := range tx.states {
		cur := s.scopes[scope]
		if cur == nil {
			cur = make(model.Availability)
			s.scopes[scope] = cur
		}
		for id, st := range staged {
			if st == nil {
				delete(cur, id)
				continue
			}
			cur[id] = *st
		}
	}
	for id, b := range tx.bookings {
		s.bookings[id] = b
	}
	for _, is := range tx.issues {
		s.issues[is.ID] = is
	}
}

func (tx *memTx) LockStates(_ context.Context, scope string, ids []string) (model.Availability, error) {
	out := make(model.Availability, len(ids))
	staged := tx.states[scope]
	committed := tx.s.scopes[scope]
	for _, id := range ids {
		if st, ok := staged[id]; ok {
			if st != nil {
				out[id] = *st
			}
			continue
		}
		if st, ok := committed[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

func (tx *memTx) stage(scope string) map[string]*model.ResourceState {
	m := tx.states[scope]
	if m == nil {
		m = make(map[string]*model.ResourceState)
		tx.states[scope] = m
	}
	return m
}

func (tx *memTx) PutStates(_ context.Context, scope string, states model.Availability) error {
	m := tx.stage(scope)
	for id, st := range states {
		st := st
		m[id] = &st
	}
	return nil
}

func (tx *memTx) DeleteStates(_ context.Context, scope string, ids []string) error {
	m := tx.stage(scope)
	for _, id := range ids {
		m[id] = nil
	}
	return nil
}

func (tx *memTx) lookup(id string) (model.Booking, bool) {
	if b, ok := tx.bookings[id]; ok {
		return b, true
	}
	b, ok := tx.s.bookings[id]
	return b, ok
}

func (tx *memTx) CreateBooking(_ context.Context, b *model.Booking) error {
	if _, exists := tx.lookup(b.ID); exists {
		return ErrConflict
	}
	tx.bookings[b.ID] = b.Clone()
	return nil
}

func (tx *memTx) GetBookingForUpdate(_ context.Context, id string) (*model.Booking, error) {
	b, ok := tx.lookup(id)
	if !ok {
		return nil, ErrBookingNotFound
	}
	out := b.Clone()
	return &out, nil
}

func (tx *memTx) UpdateBooking(_ context.Context, b *model.Booking) error {
	if _, ok := tx.lookup(b.ID); !ok {
		return ErrBookingNotFound
	}
	tx.bookings[b.ID] = b.Clone()
	return nil
}

func (tx *memTx) CreateIssue(_ context.Context, issue *model.ReconciliationIssue) error {
	tx.issues = append(tx.issues, *issue)
	return nil
}

func (s *MemoryStore) ReadScope(_ context.Context, scope string) (model.Availability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(model.Availability, len(s.scopes[scope]))
	for id, st := range s.scopes[scope] {
		out[id] = st
	}
	return out, nil
}

func (s *MemoryStore) GetBooking(_ context.Context, id string) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	out := b.Clone()
	return &out, nil
}

func (s *MemoryStore) ListBookings(_ context.Context, f BookingFilter) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if f.Type != "" && b.Type != f.Type {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.UserID != "" && b.UserID != f.UserID {
			continue
		}
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []model.Booking
	for _, b := range s.bookings {
		if b.Status == model.StatusPendingPayment && !b.ExpiryTime.After(now) {
			expired = append(expired, b)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiryTime.Before(expired[j].ExpiryTime) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	ids := make([]string, 0, len(expired))
	for _, b := range expired {
		ids = append(ids, b.ID)
	}
	return ids, nil
}

func (s *MemoryStore) ListIssues(_ context.Context, unresolvedOnly bool) ([]model.ReconciliationIssue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ReconciliationIssue
	for _, is := range s.issues {
		if unresolvedOnly && is.ResolvedAt != nil {
			continue
		}
		out = append(out, is)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ResolveIssue(_ context.Context, id string, at time.Time) (*model.ReconciliationIssue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	is, ok := s.issues[id]
	if !ok {
		return nil, ErrIssueNotFound
	}
	if is.ResolvedAt == nil {
		t := at.UTC()
		is.ResolvedAt = &t
		s.issues[id] = is
	}
	return &is, nil
}
