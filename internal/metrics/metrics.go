// Package metrics records Prometheus metrics for outbound API calls made by the portal client.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the interface the API client reports to.
type Recorder interface {
	RecordRequest(method string, statusCode int, duration time.Duration)
	RecordNetworkFailure(method string)
	RecordSessionInvalidated(reason string)
}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	requests             *prometheus.CounterVec
	networkFailures      *prometheus.CounterVec
	latency              *prometheus.HistogramVec
	sessionInvalidations *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qaportal_client_requests_total",
			Help: "API responses received, by method and status code",
		}, []string{"method", "status_code"}),
		networkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qaportal_client_network_failures_total",
			Help: "API calls that received no response",
		}, []string{"method"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qaportal_client_request_duration_seconds",
			Help:    "Round trip time of API calls that received a response",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		sessionInvalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qaportal_client_session_invalidations_total",
			Help: "Sessions cleared without an explicit logout",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.requests,
		c.networkFailures,
		c.latency,
		c.sessionInvalidations,
	)

	return c
}

// RecordRequest records a call that received an HTTP response.
func (c *Collector) RecordRequest(method string, statusCode int, duration time.Duration) {
	c.requests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordNetworkFailure records a call that failed before any response arrived.
func (c *Collector) RecordNetworkFailure(method string) {
	c.networkFailures.WithLabelValues(method).Inc()
}

// RecordSessionInvalidated records a forced transition back to an anonymous session.
func (c *Collector) RecordSessionInvalidated(reason string) {
	c.sessionInvalidations.WithLabelValues(reason).Inc()
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordRequest(string, int, time.Duration) {}
func (Noop) RecordNetworkFailure(string)              {}
func (Noop) RecordSessionInvalidated(string)          {}
