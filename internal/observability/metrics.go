package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	latency  *LatencyWindow

	ActiveSessions      prometheus.Gauge
	SessionEvents       *prometheus.CounterVec
	OrchestrationTime   prometheus.Histogram
	CapabilityRuns      *prometheus.CounterVec
	ProviderErrors      *prometheus.CounterVec
	TranscriberFallback *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	WSMessages          *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		latency:  NewLatencyWindow(256),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live sessions held by the in-memory store.",
		}),
		SessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		OrchestrationTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "orchestration_duration_ms",
			Help:      "End-to-end orchestration latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000, 60000},
		}),
		CapabilityRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_runs_total",
			Help:      "Capability executions by capability and outcome.",
		}, []string{"capability", "outcome"}),
		ProviderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Upstream provider errors by provider and operation.",
		}, []string{"provider", "operation"}),
		TranscriberFallback: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriber_fallbacks_total",
			Help:      "Transcriber provider switches by source and target.",
		}, []string{"from", "to"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
	}
}

func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) ObserveOrchestration(d time.Duration) {
	if m == nil {
		return
	}
	m.OrchestrationTime.Observe(float64(d.Milliseconds()))
	m.latency.Observe("orchestration_total", float64(d.Milliseconds()))
}

// ObserveCapability records one capability run. outcome is "ok", "error"
// or "fallback".
func (m *Metrics) ObserveCapability(capability, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CapabilityRuns.WithLabelValues(capability, outcome).Inc()
	m.latency.Observe(capability, float64(d.Milliseconds()))
	if outcome != "ok" {
		m.latency.ObserveIndicator(capability + "_" + outcome)
	}
}

func (m *Metrics) ProviderError(provider, operation string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, operation).Inc()
}

func (m *Metrics) TranscriberSwitched(from, to string) {
	if m == nil {
		return
	}
	m.TranscriberFallback.WithLabelValues(from, to).Inc()
}

func (m *Metrics) HTTPRequest(route, method, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, status).Inc()
}

func (m *Metrics) WSMessage(direction, typ string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, typ).Inc()
}

// Latency returns a snapshot of the rolling per-stage latency window.
func (m *Metrics) Latency() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.latency.Snapshot()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
