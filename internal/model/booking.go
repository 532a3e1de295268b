package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPendingPayment BookingStatus = "pending_payment"
	StatusConfirmed      BookingStatus = "confirmed"
	StatusCancelled      BookingStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s BookingStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

// Cancellation reasons recorded on cancelled bookings.
const (
	CancelReasonExpired       = "expired"
	CancelReasonPaymentFailed = "payment_failed"
	CancelReasonUserCancelled = "user_cancelled"
)

// CustomerDetails is the buyer-supplied payload attached to a booking.  The
// fixed fields are shared by every booking type; type-specific fields
// (gotra for havan, organisation for delegates, PAN for donation receipts)
// travel in Extra.
type CustomerDetails struct {
	Name     string            `json:"name"`
	Email    string            `json:"email,omitempty"`
	Phone    string            `json:"phone,omitempty"`
	IDType   string            `json:"id_type,omitempty"`
	IDNumber string            `json:"id_number,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Payment is the gateway sub-record stored on a booking once an outcome
// has been applied.
type Payment struct {
	Outcome       OutcomeStatus   `json:"outcome,omitempty"`
	GatewayRef    string          `json:"gateway_ref,omitempty"`
	BankRef       string          `json:"bank_ref,omitempty"`
	Method        string          `json:"method,omitempty"`
	StatusMessage string          `json:"status_message,omitempty"`
	Amount        int64           `json:"amount"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

// Booking records one purchase attempt.  It is created in pending_payment
// together with the holds on its resources and is moved to confirmed or
// cancelled exactly once.  Bookings are never deleted.
//
// Fields:
//  ID                  – generated, globally unique (type prefix + UUID).
//  Type                – what is being booked.
//  ScopeKey            – availability scope of ResourceIDs (empty for delegate/donation).
//  UserID              – stable identifier from the authentication provider.
//  ResourceIDs         – ordered selection; non-empty for resource-bound types.
//  Customer            – buyer details.
//  TotalAmount         – amount due in whole currency units.
//  Status              – pending_payment, confirmed or cancelled.
//  ExpiryTime          – end of the hold window.
//  Payment             – gateway outcome details, set on reconcile.
//  CancelReason        – why a cancelled booking was cancelled.
//  NeedsReconciliation – set when a confirmation hit an inconsistency an operator must resolve.
type Booking struct {
	ID                  string          `json:"id"`
	Type                BookingType     `json:"booking_type"`
	ScopeKey            string          `json:"scope_key,omitempty"`
	UserID              string          `json:"user_id"`
	ResourceIDs         []string        `json:"selected_resource_ids"`
	Customer            CustomerDetails `json:"customer_details"`
	TotalAmount         int64           `json:"total_amount"`
	Status              BookingStatus   `json:"status"`
	ExpiryTime          time.Time       `json:"expiry_time"`
	Payment             *Payment        `json:"payment,omitempty"`
	CancelReason        string          `json:"cancel_reason,omitempty"`
	NeedsReconciliation bool            `json:"needs_reconciliation"`
	CreatedAt           time.Time       `json:"created_at"`
	ConfirmedAt         *time.Time      `json:"confirmed_at,omitempty"`
	CancelledAt         *time.Time      `json:"cancelled_at,omitempty"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Clone returns a deep copy so stores can hand out bookings without sharing
// slices or maps with their own state.
func (b Booking) Clone() Booking {
	out := b
	out.ResourceIDs = append([]string(nil), b.ResourceIDs...)
	if b.Customer.Extra != nil {
		out.Customer.Extra = make(map[string]string, len(b.Customer.Extra))
		for k, v := range b.Customer.Extra {
			out.Customer.Extra[k] = v
		}
	}
	if b.Payment != nil {
		p := *b.Payment
		p.Raw = append(json.RawMessage(nil), b.Payment.Raw...)
		out.Payment = &p
	}
	if b.ConfirmedAt != nil {
		t := *b.ConfirmedAt
		out.ConfirmedAt = &t
	}
	if b.CancelledAt != nil {
		t := *b.CancelledAt
		out.CancelledAt = &t
	}
	return out
}

var bookingIDPrefix = map[BookingType]string{
	BookingTypeHavan:    "HAVAN",
	BookingTypeStall:    "STALL",
	BookingTypeShow:     "SHOW",
	BookingTypeDelegate: "DLG",
	BookingTypeDonation: "DON",
}

// NewBookingID returns a new booking identifier such as
// "STALL-3f2c9e0a4b5d4c1e8f7a6b5c4d3e2f10".
func NewBookingID(t BookingType) string {
	prefix, ok := bookingIDPrefix[t]
	if !ok {
		prefix = "BK"
	}
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
