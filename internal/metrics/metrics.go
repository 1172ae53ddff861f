// Package metrics holds the Prometheus collectors shared by the server and worker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration is labelled by route template, not raw path
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "route", "status"},
	)

	ProcessingResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gtd_processing_results_total",
			Help: "Processing results applied to the store",
		},
		[]string{"action", "origin"},
	)

	EmailsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gtd_emails_fetched_total",
			Help: "New emails stored by the sync cycle",
		},
		[]string{"account"},
	)

	EmailSyncFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gtd_email_sync_failures_total",
			Help: "Email sync runs that ended in an error",
		},
	)

	HTTPPanics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gtd_http_panics_total",
			Help: "Handler panics recovered by the error middleware",
		},
		[]string{"method"},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gtd_gateway_request_duration_seconds",
			Help:    "IMAP, SMTP and calendar call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"gateway", "operation", "status"},
	)
)

// RecordHTTPRequestDuration observes one HTTP request
func RecordHTTPRequestDuration(method, route, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// IncrementHTTPPanic counts one recovered panic
func IncrementHTTPPanic(method string) {
	HTTPPanics.WithLabelValues(method).Inc()
}

// IncrementProcessingResult counts one applied result
func IncrementProcessingResult(action, origin string) {
	ProcessingResults.WithLabelValues(action, origin).Inc()
}

// AddEmailsFetched counts n newly stored emails for account
func AddEmailsFetched(account string, n int) {
	if n <= 0 {
		return
	}
	EmailsFetched.WithLabelValues(account).Add(float64(n))
}

// IncrementEmailSyncFailure counts one failed sync
func IncrementEmailSyncFailure() {
	EmailSyncFailures.Inc()
}

// ObserveGateway records an upstream call. status is "ok" or "error".
func ObserveGateway(gateway, operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	GatewayRequestDuration.WithLabelValues(gateway, operation, status).Observe(time.Since(start).Seconds())
}
