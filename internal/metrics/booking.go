// Package metrics exposes Prometheus counters for the booking pipeline.
// Collectors are registered on the default registry the first time
// Booking is called and served by promhttp at /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type bookingMetrics struct {
	holds        *prometheus.CounterVec
	conflicts    *prometheus.CounterVec
	reconciled   *prometheus.CounterVec
	cancelled    *prometheus.CounterVec
	issues       *prometheus.CounterVec
	txAborts     *prometheus.CounterVec
	sweepBatches prometheus.Counter
}

var (
	bookingOnce     sync.Once
	bookingRegistry *bookingMetrics
)

// Booking returns the booking pipeline metrics.
func Booking() *bookingMetrics {
	bookingOnce.Do(func() {
		m := &bookingMetrics{
			holds: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "booking",
				Subsystem: "holds",
				Name:      "created_total",
				Help:      "Holds created, segmented by booking type.",
			}, []string{"type"}),
			conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "booking",
				Subsystem: "holds",
				Name:      "conflicts_total",
				Help:      "Hold attempts rejected because a resource was taken.",
			}, []string{"type"}),
			reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "booking",
				Subsystem: "payments",
				Name:      "reconciled_total",
				Help:      "Payment outcomes applied, segmented by outcome and whether they changed state.",
			}, []string{"outcome", "applied"}),
			cancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "booking",
				Subsystem: "bookings",
				Name:      "cancelled_total",
				Help:      "Bookings cancelled, segmented by reason.",
			}, []string{"reason"}),
			issues: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "booking",
				Subsystem: "reconciliation",
				Name:      "issues_total",
				Help:      "Reconciliation issues recorded for operators, segmented by kind.",
			}, []string{"kind"}),
			txAborts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "booking",
				Subsystem: "store",
				Name:      "tx_aborted_total",
				Help:      "Store transactions aborted by contention, segmented by operation.",
			}, []string{"op"}),
			sweepBatches: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "booking",
				Subsystem: "sweeper",
				Name:      "runs_total",
				Help:      "Expiry sweeper passes.",
			}),
		}
		prometheus.MustRegister(m.holds, m.conflicts, m.reconciled, m.cancelled, m.issues, m.txAborts, m.sweepBatches)
		bookingRegistry = m
	})
	return bookingRegistry
}

func (m *bookingMetrics) HoldCreated(bookingType string) {
	if m == nil {
		return
	}
	m.holds.WithLabelValues(bookingType).Inc()
}

func (m *bookingMetrics) HoldConflict(bookingType string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(bookingType).Inc()
}

// Reconciled counts an applied outcome; applied is false for duplicate or
// late deliveries that hit a terminal booking.
func (m *bookingMetrics) Reconciled(outcome string, applied bool) {
	if m == nil {
		return
	}
	label := "false"
	if applied {
		label = "true"
	}
	m.reconciled.WithLabelValues(outcome, label).Inc()
}

func (m *bookingMetrics) Cancelled(reason string) {
	if m == nil {
		return
	}
	m.cancelled.WithLabelValues(reason).Inc()
}

func (m *bookingMetrics) Issue(kind string) {
	if m == nil {
		return
	}
	m.issues.WithLabelValues(kind).Inc()
}

func (m *bookingMetrics) TxAborted(op string) {
	if m == nil {
		return
	}
	m.txAborts.WithLabelValues(op).Inc()
}

func (m *bookingMetrics) SweepRun() {
	if m == nil {
		return
	}
	m.sweepBatches.Inc()
}
