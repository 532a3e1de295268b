// Package queue carries booking events over RabbitMQ: the publisher used
// as the confirmation notifier and the background consumer that turns
// confirmations into the notification log.
package queue

import (
	"time"

	"github.com/iliyamo/event-booking/internal/model"
)

// BookingConfirmedQueue is the durable queue confirmations are sent to.
const BookingConfirmedQueue = "booking.confirmed"

// BookingConfirmedEvent is published when a booking is confirmed.  It
// contains enough information for downstream consumers to send the
// receipt email or log the sale without querying the primary database.
type BookingConfirmedEvent struct {
	BookingID           string   `json:"booking_id"`
	BookingType         string   `json:"booking_type"`
	UserID              string   `json:"user_id"`
	ScopeKey            string   `json:"scope_key,omitempty"`
	ResourceIDs         []string `json:"resource_ids"`
	CustomerName        string   `json:"customer_name"`
	CustomerEmail       string   `json:"customer_email,omitempty"`
	CustomerPhone       string   `json:"customer_phone,omitempty"`
	TotalAmount         int64    `json:"total_amount"`
	GatewayRef          string   `json:"gateway_ref,omitempty"`
	NeedsReconciliation bool     `json:"needs_reconciliation"`
	ConfirmedAt         string   `json:"confirmed_at"`
}

// NewBookingConfirmedEvent builds the event for a confirmed booking.
func NewBookingConfirmedEvent(b model.Booking) BookingConfirmedEvent {
	ev := BookingConfirmedEvent{
		BookingID:           b.ID,
		BookingType:         string(b.Type),
		UserID:              b.UserID,
		ScopeKey:            b.ScopeKey,
		ResourceIDs:         append([]string{}, b.ResourceIDs...),
		CustomerName:        b.Customer.Name,
		CustomerEmail:       b.Customer.Email,
		CustomerPhone:       b.Customer.Phone,
		TotalAmount:         b.TotalAmount,
		NeedsReconciliation: b.NeedsReconciliation,
	}
	if b.Payment != nil {
		ev.GatewayRef = b.Payment.GatewayRef
	}
	if b.ConfirmedAt != nil {
		ev.ConfirmedAt = b.ConfirmedAt.UTC().Format(time.RFC3339)
	}
	return ev
}
