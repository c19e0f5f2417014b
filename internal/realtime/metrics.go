package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the socket layer's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	connections     prometheus.Gauge
	broadcasts      *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	dropped         prometheus.Counter
	backplaneErrors *prometheus.CounterVec
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "valuecore",
			Subsystem: "realtime",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "valuecore",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Currently connected sockets.",
		}),
		broadcasts: newCounterVec("broadcasts_total",
			"Broadcast envelopes delivered on this node, by origin (local or remote).",
			[]string{"origin"}),
		deliveries: newCounterVec("deliveries_total",
			"Messages queued to individual sockets, by origin.",
			[]string{"origin"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "valuecore",
			Subsystem: "realtime",
			Name:      "dropped_messages_total",
			Help:      "Messages dropped because a socket's send buffer was full.",
		}),
		backplaneErrors: newCounterVec("backplane_errors_total",
			"Backplane publish and decode failures.",
			[]string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.broadcasts, m.deliveries, m.dropped, m.backplaneErrors)
	}
	return m
}

func (m *Metrics) socketConnected() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) socketDisconnected() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) delivered(origin string, recipients int) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(origin).Inc()
	m.deliveries.WithLabelValues(origin).Add(float64(recipients))
}

func (m *Metrics) droppedMessage() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *Metrics) backplaneError(op string) {
	if m != nil {
		m.backplaneErrors.WithLabelValues(op).Inc()
	}
}
