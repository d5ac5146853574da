package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
)

// Fetch outcomes recorded by RecordViewFetch.
const (
	FetchApplied = "applied"
	FetchStale   = "stale"
	FetchFailed  = "failed"
)

// Metrics holds all Prometheus metric instruments for the BFF. Every
// recording helper is safe to call on a nil *Metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Marketplace API metrics
	BackendRequestsTotal       *prometheus.CounterVec
	BackendRequestDuration     *prometheus.HistogramVec
	BackendCircuitBreakerState prometheus.Gauge
	BackendRetriesTotal        *prometheus.CounterVec

	// List view metrics
	ViewFetchesTotal   *prometheus.CounterVec
	ViewFetchDuration  *prometheus.HistogramVec
	RowActionsTotal    *prometheus.CounterVec
	FormSubmitsTotal   *prometheus.CounterVec
	ViewsOpen          prometheus.Gauge
	ViewEvictionsTotal *prometheus.CounterVec

	// Import metrics
	ImportsTotal    *prometheus.CounterVec
	ImportRowsTotal *prometheus.CounterVec

	// Cache metrics
	CapabilityCacheHitsTotal   prometheus.Counter
	CapabilityCacheMissesTotal prometheus.Counter
	IdempotencyReplaysTotal    prometheus.Counter

	// System metrics
	DefinitionReloadTotal    *prometheus.CounterVec
	DefinitionsLoaded        prometheus.Gauge
	OpenAPIOperationsIndexed prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdesk_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketdesk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketdesk_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketdesk_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Marketplace
		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdesk_backend_requests_total",
			Help: "Total number of marketplace API requests.",
		}, []string{"method", "resource", "status"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketdesk_backend_request_duration_seconds",
			Help:    "Marketplace API request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"method", "resource"}),
		BackendCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketdesk_backend_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		BackendRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdesk_backend_retries_total",
			Help: "Total number of marketplace API request retries.",
		}, []string{"method"}),

		// Views
		ViewFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdesk_view_fetches_total",
			Help: "Total list view page fetches by outcome (applied, stale, failed).",
		}, []string{"collection", "outcome"}),
		ViewFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketdesk_view_fetch_duration_seconds",
			Help:    "List view page fetch duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"collection"}),
		RowActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdesk_row_actions_total",
			Help: "Total row actions by kind and outcome.",
		}, []string{"collection", "action", "outcome"}),
		FormSubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdesk_form_submits_total",
			Help: "Total create/edit form submissions by outcome.",
		}, []string{"collection", "mode", "outcome"}),
		ViewsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketdesk_views_open",
			Help: "Number of open list views.",
		}),
		ViewEvictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdesk_view_evictions_total",
			Help: "Total list views closed by the server.",
		}, []string{"reason"}),

		// Imports
		ImportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdesk_imports_total",
			Help: "Total bulk user imports by outcome.",
		}, []string{"outcome"}),
		ImportRowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdesk_import_rows_total",
			Help: "Total imported rows by result (inserted, skipped).",
		}, []string{"result"}),

		// Cache
		CapabilityCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdesk_capability_cache_hits_total",
			Help: "Total capability cache hits.",
		}),
		CapabilityCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdesk_capability_cache_misses_total",
			Help: "Total capability cache misses.",
		}),
		IdempotencyReplaysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdesk_idempotency_replays_total",
			Help: "Total form submissions answered from the idempotency store.",
		}),

		// System
		DefinitionReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdesk_definition_reload_total",
			Help: "Total definition reloads.",
		}, []string{"status"}),
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketdesk_definitions_loaded",
			Help: "Number of loaded collection definitions.",
		}),
		OpenAPIOperationsIndexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketdesk_openapi_operations_indexed",
			Help: "Number of indexed marketplace OpenAPI operations.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Marketplace
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendCircuitBreakerState,
		m.BackendRetriesTotal,
		// Views
		m.ViewFetchesTotal,
		m.ViewFetchDuration,
		m.RowActionsTotal,
		m.FormSubmitsTotal,
		m.ViewsOpen,
		m.ViewEvictionsTotal,
		// Imports
		m.ImportsTotal,
		m.ImportRowsTotal,
		// Cache
		m.CapabilityCacheHitsTotal,
		m.CapabilityCacheMissesTotal,
		m.IdempotencyReplaysTotal,
		// System
		m.DefinitionReloadTotal,
		m.DefinitionsLoaded,
		m.OpenAPIOperationsIndexed,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordBackendRequest records a marketplace API request. status is 0 when
// no response was received.
func (m *Metrics) RecordBackendRequest(method, resource string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.BackendRequestsTotal.WithLabelValues(method, resource, strconv.Itoa(status)).Inc()
	m.BackendRequestDuration.WithLabelValues(method, resource).Observe(duration.Seconds())
}

// SetBackendCircuitBreakerState sets the circuit breaker state.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetBackendCircuitBreakerState(state float64) {
	if m == nil {
		return
	}
	m.BackendCircuitBreakerState.Set(state)
}

// RecordBackendRetry records a marketplace API request retry.
func (m *Metrics) RecordBackendRetry(method string) {
	if m == nil {
		return
	}
	m.BackendRetriesTotal.WithLabelValues(method).Inc()
}

// RecordViewFetch records a completed page fetch and whether its result was
// applied, discarded as stale, or failed.
func (m *Metrics) RecordViewFetch(collection, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ViewFetchesTotal.WithLabelValues(collection, outcome).Inc()
	m.ViewFetchDuration.WithLabelValues(collection).Observe(duration.Seconds())
}

// RecordRowAction records a toggle or delete on a single row.
func (m *Metrics) RecordRowAction(collection, action, outcome string) {
	if m == nil {
		return
	}
	m.RowActionsTotal.WithLabelValues(collection, action, outcome).Inc()
}

// RecordFormSubmit records a create or edit form submission.
func (m *Metrics) RecordFormSubmit(collection, mode, outcome string) {
	if m == nil {
		return
	}
	m.FormSubmitsTotal.WithLabelValues(collection, mode, outcome).Inc()
}

// SetViewsOpen sets the number of open list views.
func (m *Metrics) SetViewsOpen(n int) {
	if m == nil {
		return
	}
	m.ViewsOpen.Set(float64(n))
}

// RecordViewEviction records a view closed by the server (idle, limit).
func (m *Metrics) RecordViewEviction(reason string) {
	if m == nil {
		return
	}
	m.ViewEvictionsTotal.WithLabelValues(reason).Inc()
}

// RecordImport records a bulk import and its row counts.
func (m *Metrics) RecordImport(outcome string, inserted, skipped int) {
	if m == nil {
		return
	}
	m.ImportsTotal.WithLabelValues(outcome).Inc()
	m.ImportRowsTotal.WithLabelValues("inserted").Add(float64(inserted))
	m.ImportRowsTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordCapabilityCacheHit records a capability cache hit.
func (m *Metrics) RecordCapabilityCacheHit() {
	if m == nil {
		return
	}
	m.CapabilityCacheHitsTotal.Inc()
}

// RecordCapabilityCacheMiss records a capability cache miss.
func (m *Metrics) RecordCapabilityCacheMiss() {
	if m == nil {
		return
	}
	m.CapabilityCacheMissesTotal.Inc()
}

// RecordIdempotencyReplay records a submission answered from the store.
func (m *Metrics) RecordIdempotencyReplay() {
	if m == nil {
		return
	}
	m.IdempotencyReplaysTotal.Inc()
}

// RecordDefinitionReload records a definition reload.
func (m *Metrics) RecordDefinitionReload(status string) {
	if m == nil {
		return
	}
	m.DefinitionReloadTotal.WithLabelValues(status).Inc()
}

// SetDefinitionsLoaded sets the number of loaded collection definitions.
func (m *Metrics) SetDefinitionsLoaded(count float64) {
	if m == nil {
		return
	}
	m.DefinitionsLoaded.Set(count)
}

// SetOpenAPIOperationsIndexed sets the number of indexed OpenAPI operations.
func (m *Metrics) SetOpenAPIOperationsIndexed(count float64) {
	if m == nil {
		return
	}
	m.OpenAPIOperationsIndexed.Set(count)
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	pattern = strings.ReplaceAll(pattern, "/*/", "/")
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
