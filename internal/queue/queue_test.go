package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/model"
)

func confirmedBooking() model.Booking {
	at := time.Date(2025, 1, 14, 6, 3, 0, 0, time.UTC)
	return model.Booking{
		ID:          "STALL-abc",
		Type:        model.BookingTypeStall,
		ScopeKey:    "stall:global",
		UserID:      "u1",
		ResourceIDs: []string{"ST-01", "ST-02"},
		Customer:    model.CustomerDetails{Name: "Ravi Traders", Email: "ravi@example.com"},
		TotalAmount: 3000,
		Status:      model.StatusConfirmed,
		Payment:     &model.Payment{GatewayRef: "TXN9"},
		ConfirmedAt: &at,
	}
}

func TestNewBookingConfirmedEvent(t *testing.T) {
	ev := NewBookingConfirmedEvent(confirmedBooking())
	assert.Equal(t, "STALL-abc", ev.BookingID)
	assert.Equal(t, "stall", ev.BookingType)
	assert.Equal(t, []string{"ST-01", "ST-02"}, ev.ResourceIDs)
	assert.Equal(t, "TXN9", ev.GatewayRef)
	assert.Equal(t, "2025-01-14T06:03:00Z", ev.ConfirmedAt)

	empty := NewBookingConfirmedEvent(model.Booking{ID: "DON-1"})
	assert.Equal(t, []string{}, empty.ResourceIDs)
	assert.Empty(t, empty.ConfirmedAt)
}

func TestConsumerHandleAppendsLine(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	c := NewConsumer("", dir, zap.NewNop())

	body, err := json.Marshal(NewBookingConfirmedEvent(confirmedBooking()))
	require.NoError(t, err)
	require.NoError(t, c.handle(body))
	require.NoError(t, c.handle(body))

	data, err := os.ReadFile(filepath.Join(dir, "booking.log"))
	require.NoError(t, err)
	want := "[2025-01-14T06:03:00Z] Booking confirmed | booking_id=STALL-abc | type=stall | user_id=u1 | customer=\"Ravi Traders\" | email=ravi@example.com | total=3000 | resources=[ST-01,ST-02]\n"
	assert.Equal(t, want+want, string(data))
}

func TestConsumerRejectsBadMessages(t *testing.T) {
	c := NewConsumer("", t.TempDir(), zap.NewNop())
	assert.Error(t, c.handle([]byte("{not json")))
	assert.Error(t, c.handle([]byte(`{"booking_type":"stall"}`)))
}

func TestFormatLineFlagsReconciliation(t *testing.T) {
	b := confirmedBooking()
	b.NeedsReconciliation = true
	assert.Contains(t, formatLine(NewBookingConfirmedEvent(b)), "needs_reconciliation=true")
}
