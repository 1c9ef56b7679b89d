package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "launcher"

// Metrics holds all Prometheus metrics on a private registry
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Plugin lifecycle metrics
	PluginsRunning  prometheus.Gauge
	PluginsDetached prometheus.Gauge
	PluginCreates   *prometheus.CounterVec
	PluginKills     *prometheus.CounterVec
	PluginCrashes   prometheus.Counter
	ModeResolutions *prometheus.CounterVec

	// RPC bridge metrics
	RPCCalls         *prometheus.CounterVec
	RPCDuration      *prometheus.HistogramVec
	RPCLateResponses prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time
}

// NewMetrics creates a metrics collector with its own registry, so several
// collectors can coexist in one process (tests build one per case).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),

		PluginsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "plugins_running",
			Help:      "Number of plugin instances in the main registry",
		}),
		PluginsDetached: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "plugins_detached",
			Help:      "Number of plugin instances living in standalone windows",
		}),
		PluginCreates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plugin_creates_total",
				Help:      "Create requests by outcome (built, cached, reentered, detached, failed)",
			},
			[]string{"outcome"},
		),
		PluginKills: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plugin_kills_total",
				Help:      "Plugin instances destroyed, by reason",
			},
			[]string{"reason"},
		),
		PluginCrashes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_crashes_total",
			Help:      "Plugin surfaces that terminated unexpectedly",
		}),
		ModeResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plugin_mode_resolutions_total",
				Help:      "Mode negotiation results (headed, headless, fallback)",
			},
			[]string{"mode"},
		),

		RPCCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_calls_total",
				Help:      "Bridge calls by channel and status",
			},
			[]string{"channel", "status"},
		),
		RPCDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rpc_duration_seconds",
				Help:      "Bridge call latency in seconds",
				Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 5, 30},
			},
			[]string{"channel"},
		),
		RPCLateResponses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_late_responses_total",
			Help:      "Responses that arrived after their call settled",
		}),

		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Number of active event stream connections",
		}),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_messages_total",
				Help:      "Event stream messages by type",
			},
			[]string{"type"},
		),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Host uptime in seconds",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	})

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry for tests and custom collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordCreate counts a create request outcome
func (m *Metrics) RecordCreate(outcome string) {
	m.PluginCreates.WithLabelValues(outcome).Inc()
}

// RecordKill counts a destroyed instance
func (m *Metrics) RecordKill(reason string) {
	m.PluginKills.WithLabelValues(reason).Inc()
}

// RecordCrash counts an unexpected surface termination
func (m *Metrics) RecordCrash() {
	m.PluginCrashes.Inc()
}

// RecordMode counts a mode negotiation result
func (m *Metrics) RecordMode(mode string) {
	m.ModeResolutions.WithLabelValues(mode).Inc()
}

// SetInstances publishes registry sizes
func (m *Metrics) SetInstances(registered, detached int) {
	m.PluginsRunning.Set(float64(registered))
	m.PluginsDetached.Set(float64(detached))
}

// ObserveCall records a settled bridge call
func (m *Metrics) ObserveCall(channel, status string, duration time.Duration) {
	m.RPCCalls.WithLabelValues(channel, status).Inc()
	m.RPCDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// LateResponse counts a response that found no pending call
func (m *Metrics) LateResponse() {
	m.RPCLateResponses.Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// RecordWSMessage records an outbound event stream message
func (m *Metrics) RecordWSMessage(msgType string) {
	m.WSMessages.WithLabelValues(msgType).Inc()
}
