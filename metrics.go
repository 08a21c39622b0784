package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes delivery-layer counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	eventsRouted    *prometheus.CounterVec
	eventsDiscarded *prometheus.CounterVec
	reconnects      prometheus.Counter
	dials           *prometheus.CounterVec
	connected       prometheus.Gauge
	effects         *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		eventsRouted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notify",
			Name:      "events_routed_total",
			Help:      "Inbound events applied, by event kind.",
		}, []string{"kind"}),
		eventsDiscarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notify",
			Name:      "events_discarded_total",
			Help:      "Inbound events dropped, by reason.",
		}, []string{"reason"}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: "notify",
			Name:      "reconnect_attempts_total",
			Help:      "Scheduled reconnection attempts.",
		}),
		dials: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notify",
			Name:      "dials_total",
			Help:      "Connection handshakes, by result.",
		}, []string{"result"}),
		connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "notify",
			Name:      "connected",
			Help:      "1 while the real-time connection is up.",
		}),
		effects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notify",
			Name:      "side_effects_total",
			Help:      "Desktop notification and sound side effects, by outcome.",
		}, []string{"effect", "outcome"}),
	}
}

func (m *Metrics) routed(kind string) {
	if m != nil {
		m.eventsRouted.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) discarded(reason string) {
	if m != nil {
		m.eventsDiscarded.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) reconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) dial(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.dials.WithLabelValues("error").Inc()
		return
	}
	m.dials.WithLabelValues("ok").Inc()
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	if s == StateConnected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Metrics) effect(effect, outcome string) {
	if m != nil {
		m.effects.WithLabelValues(effect, outcome).Inc()
	}
}
