package model

import "time"

// ResourceStatus is the tag of a ResourceState.
type ResourceStatus string

const (
	ResourceAvailable ResourceStatus = "available"
	ResourceHeld      ResourceStatus = "held"
	ResourceBooked    ResourceStatus = "booked"
)

// ResourceState is the state of one resource inside a scope.  The zero value
// is Available.  A Held state carries HeldAt/ExpiresAt; a Booked state
// carries CustomerName/BookedAt.  Both carry the owning booking and user.
type ResourceState struct {
	Status       ResourceStatus `json:"status"`
	HolderUserID string         `json:"holder_user_id,omitempty"`
	BookingID    string         `json:"booking_id,omitempty"`
	CustomerName string         `json:"customer_name,omitempty"`
	HeldAt       *time.Time     `json:"held_at,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	BookedAt     *time.Time     `json:"booked_at,omitempty"`
}

// Held builds a Held state for a booking.
func Held(userID, bookingID string, heldAt, expiresAt time.Time) ResourceState {
	h, e := heldAt.UTC(), expiresAt.UTC()
	return ResourceState{
		Status:       ResourceHeld,
		HolderUserID: userID,
		BookingID:    bookingID,
		HeldAt:       &h,
		ExpiresAt:    &e,
	}
}

// Booked builds a Booked state.  Hold-only fields are not carried over.
func Booked(userID, bookingID, customerName string, bookedAt time.Time) ResourceState {
	b := bookedAt.UTC()
	return ResourceState{
		Status:       ResourceBooked,
		HolderUserID: userID,
		BookingID:    bookingID,
		CustomerName: customerName,
		BookedAt:     &b,
	}
}

// IsAvailable reports whether the resource can be held.
func (s ResourceState) IsAvailable() bool {
	return s.Status == "" || s.Status == ResourceAvailable
}

// HeldFor reports whether the state is a hold belonging to bookingID.
func (s ResourceState) HeldFor(bookingID string) bool {
	return s.Status == ResourceHeld && s.BookingID == bookingID
}

// HoldExpired reports whether a Held state has outlived its window at now.
func (s ResourceState) HoldExpired(now time.Time) bool {
	return s.Status == ResourceHeld && s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// Availability maps resource IDs to their state for one scope.  Resources
// that are absent from the map are Available.
type Availability map[string]ResourceState

// State returns the state of id, defaulting to Available.
func (a Availability) State(id string) ResourceState {
	if s, ok := a[id]; ok {
		return s
	}
	return ResourceState{Status: ResourceAvailable}
}
