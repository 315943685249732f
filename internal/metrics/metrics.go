// Package metrics provides Prometheus instrumentation for the FraudGuard service.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudguard",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraudguard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AssessmentsTotal counts risk assessments by flow and decision.
	AssessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudguard",
			Name:      "assessments_total",
			Help:      "Total risk assessments by flow and decision.",
		},
		[]string{"flow", "decision"},
	)

	// AssessmentScore observes the score distribution per flow.
	AssessmentScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraudguard",
			Name:      "assessment_score",
			Help:      "Risk score distribution per flow.",
			Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"flow"},
	)

	// AdapterFailuresTotal counts fail-open events per external adapter.
	// Every increment here is a decision that went out with one signal
	// missing, so this is the first graph to check when scores look flat.
	AdapterFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudguard",
			Name:      "adapter_failures_total",
			Help:      "External adapter failures resolved fail-open, by adapter and reason.",
		},
		[]string{"adapter", "reason"},
	)

	// BlocklistHitsTotal counts blocklist short-circuits.
	BlocklistHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fraudguard",
			Name:      "blocklist_hits_total",
			Help:      "Total assessments short-circuited by a blocklist hit.",
		},
	)

	// BansTotal counts account ban transitions by trigger.
	BansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudguard",
			Name:      "bans_total",
			Help:      "Total account ban transitions by trigger.",
		},
		[]string{"trigger"},
	)

	// OTPVerificationsTotal counts OTP verification outcomes.
	OTPVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudguard",
			Name:      "otp_verifications_total",
			Help:      "Total OTP verification attempts by result.",
		},
		[]string{"result"},
	)

	// AuditWriteFailuresTotal counts audit-store writes that failed after
	// the decision was already returned.
	AuditWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fraudguard",
			Name:      "audit_write_failures_total",
			Help:      "Total audit record writes that failed (decisions were still served).",
		},
	)

	// ActiveWebSocketClients tracks connected live-monitor clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fraudguard",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AssessmentsTotal,
		AssessmentScore,
		AdapterFailuresTotal,
		BlocklistHitsTotal,
		BansTotal,
		OTPVerificationsTotal,
		AuditWriteFailuresTotal,
		ActiveWebSocketClients,
	)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // route pattern, not actual path, to bound cardinality
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
