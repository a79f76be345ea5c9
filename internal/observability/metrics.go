package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ActiveConnectors prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	Packets          *prometheus.CounterVec
	Events           *prometheus.CounterVec
	DroppedPartials  prometheus.Counter
	Flushes          prometheus.Counter
	FlushedEvents    prometheus.Counter
	ProviderErrors   *prometheus.CounterVec
	TranscriptDrops  prometheus.Counter
	WSMessages       *prometheus.CounterVec
	SendLatency      *prometheus.HistogramVec

	window *latencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveConnectors: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connectors",
			Help:      "Number of live character connectors.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Connector lifecycle events by type.",
		}, []string{"event"}),
		Packets: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Provider packets received by payload kind.",
		}, []string{"kind"}),
		Events: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Normalized events queued by kind.",
		}, []string{"kind"}),
		DroppedPartials: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "player_partials_dropped_total",
			Help:      "Partial player transcriptions discarded by the classifier.",
		}),
		Flushes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_flushes_total",
			Help:      "Queue drains that returned at least one event.",
		}),
		FlushedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_flushed_events_total",
			Help:      "Events handed to hosts by queue drains.",
		}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Character service errors by code.",
		}, []string{"code"}),
		TranscriptDrops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_dropped_total",
			Help:      "Transcript lines dropped because the recorder queue was full.",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Host WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		SendLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_latency_ms",
			Help:      "Round trip of host operations against the character service in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3200},
		}, []string{"op"}),
		window: newLatencyWindow(256),
	}
}

// ObserveSend records one host operation against the provider.
func (m *Metrics) ObserveSend(op string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.SendLatency.WithLabelValues(op).Observe(ms)
	m.window.Observe(op, ms)
}

// ObserveFlush records a queue drain and how long its oldest event waited.
func (m *Metrics) ObserveFlush(count int, oldestWait time.Duration) {
	if m == nil || count <= 0 {
		return
	}
	m.Flushes.Inc()
	m.FlushedEvents.Add(float64(count))
	m.window.Observe(StageQueueWait, float64(oldestWait.Microseconds())/1000)
}

func (m *Metrics) ObservePacket(kind string) {
	if m == nil {
		return
	}
	m.Packets.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveEvent(kind string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveDroppedPartial() {
	if m == nil {
		return
	}
	m.DroppedPartials.Inc()
}

func (m *Metrics) ObserveProviderError(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.ProviderErrors.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveTranscriptDrop() {
	if m == nil {
		return
	}
	m.TranscriptDrops.Inc()
}

func (m *Metrics) SetActiveConnectors(n int) {
	if m == nil {
		return
	}
	m.ActiveConnectors.Set(float64(n))
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.window.ObserveIndicator(name)
}

func (m *Metrics) LatencySnapshot() LatencySnapshot {
	if m == nil {
		return newLatencyWindow(0).Snapshot()
	}
	return m.window.Snapshot()
}

func (m *Metrics) ResetLatency() {
	if m == nil {
		return
	}
	m.window.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
