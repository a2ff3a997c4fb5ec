// Package metrics exposes engagement, records and HTTP counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/MarcoPoloResearchLab/agentstore/internal/engagement"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agentstore"

// Collector records engagement outcomes, records store operations and HTTP
// traffic. It satisfies engagement.Observer and records.OperationRecorder.
type Collector struct {
	engagementEvents *prometheus.CounterVec
	storeOperations  *prometheus.CounterVec
	storeLatency     *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
	rateLimited      prometheus.Counter
}

// NewCollector constructs a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		engagementEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engagement_events_total",
			Help:      "Engagement outcomes by event.",
		}, []string{"event"}),
		storeOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_operations_total",
			Help:      "Records store operations by operation, table and outcome.",
		}, []string{"operation", "table", "outcome"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "records_operation_seconds",
			Help:      "Records store operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP responses by route and status code.",
		}, []string{"route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Write requests rejected by the per-viewer limiter.",
		}),
	}

	reg.MustRegister(
		c.engagementEvents,
		c.storeOperations,
		c.storeLatency,
		c.httpRequests,
		c.httpLatency,
		c.rateLimited,
	)
	return c
}

// RecordEngagementEvent counts an engagement outcome.
func (c *Collector) RecordEngagementEvent(event engagement.Event) {
	c.engagementEvents.WithLabelValues(string(event)).Inc()
}

// RecordStoreOperation counts a records store call and observes its latency.
func (c *Collector) RecordStoreOperation(operation, table, outcome string, duration time.Duration) {
	c.storeOperations.WithLabelValues(operation, table, outcome).Inc()
	c.storeLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPRequest counts a response for route.
func (c *Collector) RecordHTTPRequest(route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordRateLimited counts a rejected write.
func (c *Collector) RecordRateLimited() {
	c.rateLimited.Inc()
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
