package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics exported by the gateway
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Gateway metrics
	GatewayOperationsTotal *prometheus.CounterVec
	QuotaDenialsTotal      *prometheus.CounterVec
	WebhookEventsTotal     *prometheus.CounterVec
	ObjectStoreOperations  *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Rate limiting
	RateLimitedTotal prometheus.Counter
}

// NewMetrics creates and registers all gateway metrics on registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grc_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grc_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		GatewayOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grc_gateway_operations_total",
				Help: "Gateway operations by operation and outcome (error kind or ok)",
			},
			[]string{"operation", "outcome"},
		),
		QuotaDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grc_quota_denials_total",
				Help: "Requests denied because a plan quota was exhausted",
			},
			[]string{"resource", "plan"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grc_billing_webhook_events_total",
				Help: "Billing webhook events by type and outcome",
			},
			[]string{"event_type", "outcome"},
		),
		ObjectStoreOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grc_object_store_operations_total",
				Help: "Object storage operations by kind and outcome",
			},
			[]string{"operation", "outcome"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grc_cache_hits_total",
				Help: "Cache hits by cache and tier",
			},
			[]string{"cache", "tier"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grc_cache_misses_total",
				Help: "Cache misses by cache",
			},
			[]string{"cache"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "grc_rate_limited_requests_total",
				Help: "Requests rejected by the per-actor rate limiter",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GatewayOperationsTotal,
		m.QuotaDenialsTotal,
		m.WebhookEventsTotal,
		m.ObjectStoreOperations,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.RateLimitedTotal,
	)

	return m
}

// ObserveOperation records the outcome of a gateway operation.
// Safe to call on a nil receiver.
func (m *Metrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.GatewayOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveQuotaDenial records a quota denial
func (m *Metrics) ObserveQuotaDenial(resource, plan string) {
	if m == nil {
		return
	}
	m.QuotaDenialsTotal.WithLabelValues(resource, plan).Inc()
}

// ObserveWebhook records a processed webhook event
func (m *Metrics) ObserveWebhook(eventType, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// ObserveObjectStore records an object storage call
func (m *Metrics) ObserveObjectStore(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ObjectStoreOperations.WithLabelValues(operation, outcome).Inc()
}

// CacheHit records a cache hit in the given tier (l1, l2)
func (m *Metrics) CacheHit(cache, tier string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(cache, tier).Inc()
}

// CacheMiss records a cache miss
func (m *Metrics) CacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// RateLimited records a rate-limited request
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel returns the mux route template so that label cardinality stays bounded
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
