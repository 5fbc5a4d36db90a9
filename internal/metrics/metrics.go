// Package metrics exposes booking counters in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"parking-booking-backend/internal/model"
	"parking-booking-backend/internal/store"
)

const namespace = "parking"

// Metrics holds the service's collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	admissions  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	retries     prometheus.Counter
	corrections *prometheus.CounterVec
	notifyDrops prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_admissions_total",
			Help:      "Booking admission decisions by outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Committed booking status transitions.",
		}, []string{"from", "to"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_retries_total",
			Help:      "Transactions retried after lock contention.",
		}),
		corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_corrections_total",
			Help:      "Occupancy counters corrected by the reconciler.",
		}, []string{"counter"}),
		notifyDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Booking notifications dropped because the queue was full.",
		}),
	}
	m.registry.MustRegister(
		m.admissions, m.transitions, m.retries, m.corrections, m.notifyDrops,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) AdmissionDecided(outcome string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TransitionApplied(from, to model.BookingStatus) {
	if m == nil {
		return
	}
	if from == "" {
		from = "new"
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) LedgerCorrected(_ string, d store.Delta) {
	if m == nil {
		return
	}
	for counter, delta := range map[string]int{"available": d.Available, "occupied": d.Occupied, "reserved": d.Reserved} {
		if delta != 0 {
			m.corrections.WithLabelValues(counter).Inc()
		}
	}
}

// TransactionRetried matches store.RetryPolicy.OnRetry.
func (m *Metrics) TransactionRetried(int, error) {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.notifyDrops.Inc()
}
