// Package metrics holds the Prometheus collectors of the server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "groupbets",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groupbets",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "groupbets",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	betTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groupbets",
			Subsystem: "bets",
			Name:      "transitions_total",
			Help:      "Bet lifecycle transitions applied, by target status.",
		},
		[]string{"status"},
	)

	progressUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groupbets",
			Subsystem: "bets",
			Name:      "progress_updates_total",
			Help:      "Progress writes, split by in-place update or append.",
		},
		[]string{"mode"},
	)

	membershipChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groupbets",
			Subsystem: "groups",
			Name:      "membership_changes_total",
			Help:      "Join and leave operations applied.",
		},
		[]string{"op"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		betTransitions,
		progressUpdates,
		membershipChanges,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RequestStarted marks a request in flight and returns the func that records its completion.
func RequestStarted() func(method, route, status string) {
	start := time.Now()
	httpInFlight.Inc()
	return func(method, route, status string) {
		httpInFlight.Dec()
		httpRequests.WithLabelValues(method, route, status).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// RecordBetTransition counts a lifecycle write to status.
func RecordBetTransition(status string) {
	betTransitions.WithLabelValues(status).Inc()
}

// RecordProgressUpdate counts a progress write; mode is "update" or "append".
func RecordProgressUpdate(mode string) {
	progressUpdates.WithLabelValues(mode).Inc()
}

// RecordMembershipChange counts a join or leave.
func RecordMembershipChange(op string) {
	membershipChanges.WithLabelValues(op).Inc()
}
