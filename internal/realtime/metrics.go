package realtime

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "helpdesk_realtime"

// Metrics holds the realtime collectors. A nil *Metrics records nothing.
type Metrics struct {
	connections      prometheus.Gauge
	delivered        *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
	relayed          *prometheus.CounterVec
	droppedFrames    *prometheus.CounterVec
}

// NewMetrics builds the realtime collectors and registers them with registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	metrics := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections",
			Help:      "Live realtime connections.",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_delivered_total",
			Help:      "Frames handed to connection send buffers, by frame type.",
		}, []string{"type"}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "delivery_failures_total",
			Help:      "Frames that could not be handed to a connection, by frame type.",
		}, []string{"type"}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "signaling_frames_total",
			Help:      "Inbound frames handled by the signaling relay, by frame type.",
		}, []string{"type"}),
		droppedFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "inbound_frames_dropped_total",
			Help:      "Inbound frames dropped as malformed, by reason.",
		}, []string{"reason"}),
	}
	if registerer == nil {
		return metrics, nil
	}
	collectors := []prometheus.Collector{
		metrics.connections,
		metrics.delivered,
		metrics.deliveryFailures,
		metrics.relayed,
		metrics.droppedFrames,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return metrics, nil
}

func (m *Metrics) connectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) frameDelivered(frameType string) {
	if m != nil {
		m.delivered.WithLabelValues(frameType).Inc()
	}
}

func (m *Metrics) deliveryFailed(frameType string) {
	if m != nil {
		m.deliveryFailures.WithLabelValues(frameType).Inc()
	}
}

func (m *Metrics) frameRelayed(frameType FrameType) {
	if m != nil {
		m.relayed.WithLabelValues(string(frameType)).Inc()
	}
}

func (m *Metrics) frameDropped(reason string) {
	if m != nil {
		m.droppedFrames.WithLabelValues(reason).Inc()
	}
}
