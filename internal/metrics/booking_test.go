package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBookingCounters(t *testing.T) {
	m := Booking()
	assert.Same(t, m, Booking())

	before := testutil.ToFloat64(m.issues.WithLabelValues("resource_conflict"))
	m.Issue("resource_conflict")
	assert.Equal(t, before+1, testutil.ToFloat64(m.issues.WithLabelValues("resource_conflict")))

	before = testutil.ToFloat64(m.reconciled.WithLabelValues("success", "false"))
	m.Reconciled("success", false)
	assert.Equal(t, before+1, testutil.ToFloat64(m.reconciled.WithLabelValues("success", "false")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *bookingMetrics
	assert.NotPanics(t, func() {
		m.HoldCreated("havan")
		m.Cancelled("expired")
		m.SweepRun()
	})
}
