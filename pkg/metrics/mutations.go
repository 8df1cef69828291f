package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MutationMetrics times wishlist mutations and counts failures per operation.
type MutationMetrics struct {
	duration *prometheus.HistogramVec
	failure  *prometheus.CounterVec
}

// NewMutationMetrics registers the mutation metrics on the provided registerer.
func NewMutationMetrics(reg prometheus.Registerer) *MutationMetrics {
	if reg == nil {
		return &MutationMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wishlist_mutation_duration_seconds",
		Help:    "Duration of wishlist mutations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wishlist_mutation_failures_total",
		Help: "Wishlist mutations that returned an error.",
	}, []string{"operation"})
	reg.MustRegister(duration, failure)
	return &MutationMetrics{
		duration: duration,
		failure:  failure,
	}
}

// Observe records one mutation attempt.
func (m *MutationMetrics) Observe(operation string, elapsed time.Duration, err error) {
	if m == nil || m.duration == nil {
		return
	}
	label := normalizeLabel(operation)
	m.duration.WithLabelValues(label).Observe(elapsed.Seconds())
	if err != nil {
		m.failure.WithLabelValues(label).Inc()
	}
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
