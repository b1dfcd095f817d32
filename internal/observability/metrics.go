package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	OutboundMessages  *prometheus.CounterVec
	Generations       *prometheus.CounterVec
	StreamChunks      *prometheus.CounterVec
	Synthesis         *prometheus.CounterVec
	Transcriptions    *prometheus.CounterVec
	Errors            *prometheus.CounterVec
	FirstChunkLatency prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of connected voice chat sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and event name.",
		}, []string{"direction", "event"}),
		OutboundMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_messages_total",
			Help:      "Outbound queue results by event name.",
		}, []string{"event", "result"}),
		Generations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Model generations by outcome.",
		}, []string{"outcome"}),
		StreamChunks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunks_total",
			Help:      "Response chunks emitted, split by segment or final flush.",
		}, []string{"kind"}),
		Synthesis: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_total",
			Help:      "Speech synthesis calls by result.",
		}, []string{"result"}),
		Transcriptions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Transcription calls by result.",
		}, []string{"result"}),
		Errors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Request-scoped failures by kind.",
		}, []string{"kind"}),
		FirstChunkLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_chunk_latency_ms",
			Help:      "Latency from prompt to first emitted response chunk in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 3000, 5000, 8000, 13000},
		}),
	}
}

func (m *Metrics) ObserveFirstChunkLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.FirstChunkLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveOutboundMessage(event, result string) {
	if m == nil {
		return
	}
	m.OutboundMessages.WithLabelValues(event, result).Inc()
}

func (m *Metrics) CountSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) CountGeneration(outcome string) {
	if m == nil {
		return
	}
	m.Generations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CountChunk(kind string) {
	if m == nil {
		return
	}
	m.StreamChunks.WithLabelValues(kind).Inc()
}

func (m *Metrics) CountSynthesis(result string) {
	if m == nil {
		return
	}
	m.Synthesis.WithLabelValues(result).Inc()
}

func (m *Metrics) CountTranscription(result string) {
	if m == nil {
		return
	}
	m.Transcriptions.WithLabelValues(result).Inc()
}

func (m *Metrics) CountError(kind string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(kind).Inc()
}

func (m *Metrics) CountWSMessage(direction, event string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, event).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
