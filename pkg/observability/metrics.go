// Package observability provides Prometheus metrics, health checks and the
// HTTP surface exposing them.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Remote service metrics
	remoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repoinsight_remote_requests_total",
			Help: "Total number of requests to the analysis service",
		},
		[]string{"route", "outcome"},
	)

	remoteRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repoinsight_remote_request_duration_seconds",
			Help:    "Analysis service request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Chat metrics
	inboundMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repoinsight_inbound_messages_total",
			Help: "Total number of routed inbound messages",
		},
		[]string{"kind"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repoinsight_notifications_total",
			Help: "Total number of push notification attempts",
		},
		[]string{"outcome"},
	)

	// Session metrics
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repoinsight_session_transitions_total",
			Help: "Total number of session state transitions",
		},
		[]string{"to_state"},
	)

	evictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "repoinsight_session_evictions_total",
			Help: "Total number of evicted inactive sessions",
		},
	)

	// Scheduler metrics
	pollTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repoinsight_poll_ticks_total",
			Help: "Total number of polling loop iterations",
		},
		[]string{"loop", "outcome"},
	)

	metricsInitOnce sync.Once
)

// InitMetrics registers all metrics with the default registry.
func InitMetrics() {
	metricsInitOnce.Do(func() {
		prometheus.MustRegister(
			remoteRequestsTotal,
			remoteRequestDuration,
			inboundMessagesTotal,
			notificationsTotal,
			transitionsTotal,
			evictionsTotal,
			pollTicksTotal,
		)
	})
}

// MetricsHandler returns the Prometheus exposition handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// ObserveRemoteRequest records one request to the analysis service.
func ObserveRemoteRequest(route, outcome string, duration time.Duration) {
	remoteRequestsTotal.WithLabelValues(route, outcome).Inc()
	remoteRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// CountInbound records one routed inbound message.
func CountInbound(kind string) {
	inboundMessagesTotal.WithLabelValues(kind).Inc()
}

// CountNotification records one push notification attempt.
func CountNotification(outcome string) {
	notificationsTotal.WithLabelValues(outcome).Inc()
}

// CountTransition records one session state transition.
func CountTransition(toState string) {
	transitionsTotal.WithLabelValues(toState).Inc()
}

// CountEvictions records evicted sessions.
func CountEvictions(n int) {
	evictionsTotal.Add(float64(n))
}

// CountPollTick records one polling loop iteration.
func CountPollTick(loop, outcome string) {
	pollTicksTotal.WithLabelValues(loop, outcome).Inc()
}
