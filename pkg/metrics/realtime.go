package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RealtimeMetrics tracks live sessions, rooms and event fan-out.
type RealtimeMetrics struct {
	sessions   prometheus.Gauge
	rooms      prometheus.Gauge
	published  *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	dropped    *prometheus.CounterVec
}

// NewRealtimeMetrics registers the realtime metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	if reg == nil {
		return &RealtimeMetrics{}
	}
	m := &RealtimeMetrics{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_sessions",
			Help: "Currently connected realtime sessions.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_rooms",
			Help: "Wishlist rooms with at least one subscriber.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_events_published_total",
			Help: "Domain events handed to the broadcaster.",
		}, []string{"type"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_deliveries_total",
			Help: "Events enqueued to a session.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_deliveries_dropped_total",
			Help: "Events that could not be enqueued to a session.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.sessions, m.rooms, m.published, m.deliveries, m.dropped)
	return m
}

func (m *RealtimeMetrics) SetSessions(n int) {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.Set(float64(n))
}

func (m *RealtimeMetrics) SetRooms(n int) {
	if m == nil || m.rooms == nil {
		return
	}
	m.rooms.Set(float64(n))
}

func (m *RealtimeMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *RealtimeMetrics) IncDelivered(eventType string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *RealtimeMetrics) IncDropped(eventType string) {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeLabel(eventType)).Inc()
}
