// Package catalog describes the bookable resource space: which scopes exist
// for each booking type and which resource IDs are valid inside them.  It is
// static data; resource state lives in the availability store.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
)

// StallPool is the single scope every stall booking is made in.
const StallPool = "global"

var (
	// ErrUnknownScope is returned for scope keys that do not name a known
	// booking type or that are malformed.
	ErrUnknownScope = errors.New("unknown scope")
	// ErrInvalidDate is returned when a dated scope is given a date that is
	// not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date")
	// ErrInvalidShift is returned for shifts the booking type does not run.
	ErrInvalidShift = errors.New("invalid shift")
)

// Layout is the static resource space of one booking type.  Dated layouts
// (havan, show) are repeated for every date+shift scope; pooled layouts
// (stall) have exactly one scope.
type Layout struct {
	Type   model.BookingType    `json:"booking_type"`
	Pooled bool                 `json:"pooled"`
	Shifts []string             `json:"shifts,omitempty"`
	Units  []model.ResourceUnit `json:"units"`

	index map[string]int
}

// Contains reports whether id is a valid resource in this layout.
func (l *Layout) Contains(id string) bool {
	_, ok := l.index[id]
	return ok
}

func (l *Layout) hasShift(shift string) bool {
	for _, s := range l.Shifts {
		if s == shift {
			return true
		}
	}
	return false
}

var layouts = map[model.BookingType]*Layout{
	model.BookingTypeHavan: havanLayout(),
	model.BookingTypeShow:  showLayout(),
	model.BookingTypeStall: stallLayout(),
}

// LayoutFor returns the layout of a resource-bound booking type.
func LayoutFor(t model.BookingType) (*Layout, bool) {
	l, ok := layouts[t]
	return l, ok
}

// ScopeKey builds the scope key a booking of type t is tracked under.
// Dated types need a YYYY-MM-DD date and one of their shifts; stalls always
// map to the global pool; types that hold no resources have no scope and
// yield "".
func ScopeKey(t model.BookingType, date, shift string) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("%w: booking type %q", ErrUnknownScope, t)
	}
	l, ok := layouts[t]
	if !ok {
		return "", nil
	}
	if l.Pooled {
		return string(t) + ":" + StallPool, nil
	}
	date = strings.TrimSpace(date)
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	shift = strings.ToLower(strings.TrimSpace(shift))
	if !l.hasShift(shift) {
		return "", fmt.Errorf("%w: %q for %s", ErrInvalidShift, shift, t)
	}
	return string(t) + ":" + date + ":" + shift, nil
}

// NormalizeScope returns the canonical form of scope and its layout.  The
// booking type, pool name and shift are trimmed and lowercased; a scope that
// cannot be normalized is an error.
func NormalizeScope(scope string) (string, *Layout, error) {
	parts := strings.Split(strings.TrimSpace(scope), ":")
	l, ok := layouts[model.BookingType(strings.ToLower(strings.TrimSpace(parts[0])))]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
	if l.Pooled {
		if len(parts) != 2 || strings.ToLower(strings.TrimSpace(parts[1])) != StallPool {
			return "", nil, fmt.Errorf("%w: %q", ErrUnknownScope, scope)
		}
		return string(l.Type) + ":" + StallPool, l, nil
	}
	if len(parts) != 3 {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
	key, err := ScopeKey(l.Type, parts[1], parts[2])
	if err != nil {
		return "", nil, err
	}
	return key, l, nil
}

// ParseScope validates a canonical scope key and returns its layout.  Keys
// that differ from their NormalizeScope form are rejected so one date and
// shift never maps to two availability pools.
func ParseScope(scope string) (*Layout, error) {
	key, l, err := NormalizeScope(scope)
	if err != nil {
		return nil, err
	}
	if key != scope {
		return nil, fmt.Errorf("%w: %q is not canonical, use %q", ErrUnknownScope, scope, key)
	}
	return l, nil
}

// Validate returns the IDs that are not valid resources inside scope, in
// input order.  An unknown scope is an error.
func Validate(scope string, ids []string) ([]string, error) {
	l, err := ParseScope(scope)
	if err != nil {
		return nil, err
	}
	var invalid []string
	for _, id := range ids {
		if !l.Contains(id) {
			invalid = append(invalid, id)
		}
	}
	return invalid, nil
}

// Unit returns the resource unit id inside scope with its scope key set.
func Unit(scope, id string) (model.ResourceUnit, bool) {
	l, err := ParseScope(scope)
	if err != nil {
		return model.ResourceUnit{}, false
	}
	i, ok := l.index[id]
	if !ok {
		return model.ResourceUnit{}, false
	}
	u := l.Units[i]
	u.ScopeKey = scope
	return u, true
}

func newLayout(t model.BookingType, pooled bool, shifts []string, units []model.ResourceUnit) *Layout {
	l := &Layout{Type: t, Pooled: pooled, Shifts: shifts, Units: units, index: make(map[string]int, len(units))}
	for i, u := range units {
		l.index[u.ID] = i
	}
	return l
}
