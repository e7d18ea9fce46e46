package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the proxy's Prometheus instruments. A nil *Collector is
// valid and records nothing, which keeps tests and optional wiring simple.
type Collector struct {
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	sharedFlights    prometheus.Counter
	storeErrors      *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
}

// NewCollector registers the proxy metrics on the supplied registerer.
func NewCollector(registry prometheus.Registerer) *Collector {
	factory := promauto.With(registry)
	return &Collector{
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "user_proxy_cache_hits_total",
			Help: "Total number of profile lookups served from the cache",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "user_proxy_cache_misses_total",
			Help: "Total number of profile lookups that required aggregation",
		}),
		sharedFlights: factory.NewCounter(prometheus.CounterOpts{
			Name: "user_proxy_cache_shared_flights_total",
			Help: "Total number of lookups that joined an in-flight aggregation",
		}),
		storeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "user_proxy_cache_store_errors_total",
			Help: "Total number of profile store failures",
		}, []string{"operation"}),
		upstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "user_proxy_upstream_requests_total",
			Help: "Total number of upstream API requests",
		}, []string{"operation", "outcome"}),
		upstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "user_proxy_upstream_request_duration_seconds",
			Help:    "Duration of upstream API requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "user_proxy_http_requests_total",
			Help: "Total number of HTTP requests served",
		}, []string{"route", "status_code"}),
	}
}

func (c *Collector) RecordCacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

func (c *Collector) RecordCacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

func (c *Collector) RecordSharedFlight() {
	if c == nil {
		return
	}
	c.sharedFlights.Inc()
}

func (c *Collector) RecordStoreError(operation string) {
	if c == nil {
		return
	}
	c.storeErrors.WithLabelValues(operation).Inc()
}

// RecordUpstream records one upstream call. outcome is "ok" or an error kind.
func (c *Collector) RecordUpstream(operation, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.upstreamRequests.WithLabelValues(operation, outcome).Inc()
	c.upstreamDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (c *Collector) RecordHTTPRequest(route string, status int) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
