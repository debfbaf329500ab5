package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for a baselayer process
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Access verification metrics
	VerificationChecksTotal *prometheus.CounterVec
	SessionCommitsTotal     *prometheus.CounterVec
	AccessLeaksTotal        *prometheus.CounterVec

	// Fan-out metrics
	FanoutPublishedTotal *prometheus.CounterVec
	FanoutDeliveredTotal prometheus.Counter
	FanoutDroppedTotal   prometheus.Counter
	WebsocketConnections prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "baselayer_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "baselayer_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		VerificationChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "baselayer_verification_checks_total",
				Help: "Total number of bulk access verifications by mode and result",
			},
			[]string{"mode", "result"},
		),
		SessionCommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "baselayer_session_commits_total",
				Help: "Total number of verified session commits by result",
			},
			[]string{"result"},
		),
		AccessLeaksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "baselayer_access_leaks_total",
				Help: "Total number of access leaks detected by mode",
			},
			[]string{"mode"},
		),
		FanoutPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "baselayer_fanout_published_total",
				Help: "Total number of messages pushed onto the message bus",
			},
			[]string{"target"},
		),
		FanoutDeliveredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "baselayer_fanout_delivered_total",
				Help: "Total number of messages written to websockets",
			},
		),
		FanoutDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "baselayer_fanout_dropped_total",
				Help: "Total number of messages dropped due to slow websocket clients",
			},
		),
		WebsocketConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "baselayer_websocket_connections",
				Help: "Number of open websocket connections on this server",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.VerificationChecksTotal,
		m.SessionCommitsTotal,
		m.AccessLeaksTotal,
		m.FanoutPublishedTotal,
		m.FanoutDeliveredTotal,
		m.FanoutDroppedTotal,
		m.WebsocketConnections,
	)

	return m
}

// Handler returns an http.Handler serving the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps an HTTP handler with request count and duration metrics
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
