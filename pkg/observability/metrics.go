package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for gateway HTTP requests
const (
	OutcomeSuccess     = "success"
	OutcomeServerError = "server_error"
	OutcomeTransport   = "transport_error"
	OutcomeRejected    = "rejected" // failed before any I/O
)

var (
	// Gateway HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_sdk_http_requests_total",
			Help: "Total number of HTTP requests issued to the gateway",
		},
		[]string{"method", "outcome"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_sdk_http_request_duration_seconds",
			Help:    "Duration of gateway HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_sdk_http_requests_in_flight",
			Help: "Number of gateway HTTP requests currently in flight",
		},
	)

	// Configuration loader metrics
	configurationFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_sdk_configuration_fetches_total",
			Help: "Configuration documents fetched from the gateway, by result",
		},
		[]string{"result"},
	)

	configurationCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_sdk_configuration_cache_hits_total",
			Help: "Configuration loads served from the in-process cache",
		},
	)

	// Analytics events emitted by verification flows
	analyticsEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_sdk_analytics_events_total",
			Help: "Analytics events emitted, by event name",
		},
		[]string{"event"},
	)
)

// TrackHTTPRequest marks a request in flight and returns a func recording its outcome
func TrackHTTPRequest(method string) func(outcome string) {
	start := time.Now()
	httpRequestsInFlight.Inc()

	return func(outcome string) {
		httpRequestsInFlight.Dec()
		httpRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, outcome).Inc()
	}
}

// RecordHTTPRejection counts a request that failed before any I/O
func RecordHTTPRejection(method string) {
	httpRequestsTotal.WithLabelValues(method, OutcomeRejected).Inc()
}

// RecordConfigurationFetch counts one configuration fetch attempt
func RecordConfigurationFetch(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	configurationFetchesTotal.WithLabelValues(result).Inc()
}

// RecordConfigurationCacheHit counts a load served from cache
func RecordConfigurationCacheHit() {
	configurationCacheHitsTotal.Inc()
}
