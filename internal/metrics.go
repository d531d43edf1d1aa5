package internal

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the HTTP and domain collectors on a private registry.
type Metrics struct {
	reqTotal      *prometheus.CounterVec
	reqLatency    *prometheus.HistogramVec
	qrGenerated   prometheus.Counter
	qrFailures    *prometheus.CounterVec
	loginFailures *prometheus.CounterVec
	registry      *prometheus.Registry
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		reqLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		qrGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itam_qr_codes_generated_total",
			Help: "QR codes rendered and published to storage",
		}),
		qrFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "itam_qr_failures_total",
			Help: "QR publish failures by stage",
		}, []string{"stage"}),
		loginFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "itam_login_failures_total",
			Help: "Rejected login attempts by reason",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(m.reqTotal, m.reqLatency, m.qrGenerated, m.qrFailures, m.loginFailures)
	return m
}

// Middleware records request count and latency by route pattern.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rec, r)

			path := routePattern(r)
			status := strconv.Itoa(rec.code)
			m.reqTotal.WithLabelValues(r.Method, path, status).Inc()
			m.reqLatency.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		})
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) QRGenerated() { m.qrGenerated.Inc() }

// QRFailed counts a failure at stage: encode, upload or save.
func (m *Metrics) QRFailed(stage string) { m.qrFailures.WithLabelValues(stage).Inc() }

// LoginFailed counts a rejected login: credentials or locked.
func (m *Metrics) LoginFailed(reason string) { m.loginFailures.WithLabelValues(reason).Inc() }
