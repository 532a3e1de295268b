package model

// BookingType identifies what a booking is for.  Havan, stall and show
// bookings claim uniquely identified resources from a shared pool; delegate
// and donation bookings carry only a payment.
type BookingType string

const (
	BookingTypeHavan    BookingType = "havan"
	BookingTypeStall    BookingType = "stall"
	BookingTypeShow     BookingType = "show"
	BookingTypeDelegate BookingType = "delegate"
	BookingTypeDonation BookingType = "donation"
)

// Valid reports whether t is one of the known booking types.
func (t BookingType) Valid() bool {
	switch t {
	case BookingTypeHavan, BookingTypeStall, BookingTypeShow, BookingTypeDelegate, BookingTypeDonation:
		return true
	}
	return false
}

// ResourceBound reports whether bookings of this type hold resources.
func (t BookingType) ResourceBound() bool {
	return t == BookingTypeHavan || t == BookingTypeStall || t == BookingTypeShow
}

// ResourceUnit is one addressable, bookable thing: a havan seat, a show seat
// or a stall.  It is a coordinate inside a scope, not a stored row; its
// state lives in the availability store.
//
// Fields:
//  ID       – identifier, unique within its scope (e.g. "A1-K1-S1").
//  ScopeKey – partition the unit belongs to (e.g. "havan:2025-01-14:morning").
//  Block    – layout block (havan block, stall side, show row group).
//  Row      – row within the block (kund for havan seats).
//  Position – 1-based position within the row.
type ResourceUnit struct {
	ID       string `json:"id"`
	ScopeKey string `json:"scope_key,omitempty"`
	Block    string `json:"block"`
	Row      string `json:"row"`
	Position int    `json:"position"`
}
