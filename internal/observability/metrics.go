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
	InferenceCalls    *prometheus.CounterVec
	Fallbacks         *prometheus.CounterVec
	EvaluationLatency *prometheus.HistogramVec
	PrimaryAvailable  prometheus.Gauge

	window *latencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of open interview sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		InferenceCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_calls_total",
			Help:      "Inference calls by backend, operation and outcome.",
		}, []string{"backend", "operation", "outcome"}),
		Fallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Calls served by the fallback path, by operation and reason.",
		}, []string{"operation", "reason"}),
		EvaluationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_latency_ms",
			Help:      "End-to-end answer evaluation latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}, []string{"backend"}),
		PrimaryAvailable: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "primary_model_available",
			Help:      "1 when the primary multimodal model loaded at startup.",
		}),
		window: newLatencyWindow(256),
	}
}

func (m *Metrics) ObserveInference(backend, operation, outcome string) {
	m.InferenceCalls.WithLabelValues(backend, operation, outcome).Inc()
}

func (m *Metrics) ObserveFallback(operation, reason string) {
	m.Fallbacks.WithLabelValues(operation, reason).Inc()
	m.window.ObserveIndicator(operation + "_" + reason)
}

func (m *Metrics) ObserveEvaluation(backend string, d time.Duration) {
	ms := float64(d.Milliseconds())
	m.EvaluationLatency.WithLabelValues(backend).Observe(ms)
	m.window.Observe("evaluation_"+backend, ms)
}

// ObserveQuestion records question generation latency for the stats window.
func (m *Metrics) ObserveQuestion(d time.Duration) {
	m.window.Observe("question", float64(d.Milliseconds()))
}

func (m *Metrics) SetPrimaryAvailable(available bool) {
	if available {
		m.PrimaryAvailable.Set(1)
		return
	}
	m.PrimaryAvailable.Set(0)
}

// LatencySnapshot summarizes the recent latency window.
func (m *Metrics) LatencySnapshot() LatencySnapshot {
	return m.window.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
