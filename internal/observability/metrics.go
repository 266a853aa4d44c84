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

// Metrics holds all Prometheus metric instruments for the dashboard service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Resource metrics
	ResourceRequestsTotal     *prometheus.CounterVec
	ResourceSaveFailures      *prometheus.CounterVec
	SchemaGenerationsTotal    *prometheus.CounterVec
	SchemaUnknownFieldTypes   *prometheus.CounterVec
	FilterReplaysTotal        *prometheus.CounterVec

	// Matrix metrics
	MatrixLoadsTotal       *prometheus.CounterVec
	MatrixSavesTotal       *prometheus.CounterVec
	MatrixCopyForwardTotal *prometheus.CounterVec
	MatrixCellsSubmitted   prometheus.Histogram
	MatrixDraftsStored     *prometheus.CounterVec

	// Backend invocation metrics
	BackendRequestsTotal   *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec
	BackendRejectionsTotal *prometheus.CounterVec

	// Cache metrics
	CapabilityCacheHitsTotal   prometheus.Counter
	CapabilityCacheMissesTotal prometheus.Counter

	// System metrics
	ResourceDefinitionsLoaded prometheus.Gauge
	OpenAPIOperationsIndexed  prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brokerdesk_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "brokerdesk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "brokerdesk_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "brokerdesk_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Resources
		ResourceRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brokerdesk_resource_requests_total",
			Help: "Total number of resource operations.",
		}, []string{"resource", "operation", "status"}),
		ResourceSaveFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brokerdesk_resource_save_failures_total",
			Help: "Total number of failed resource saves.",
		}, []string{"resource", "reason"}),
		SchemaGenerationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brokerdesk_schema_generations_total",
			Help: "Total number of validation schema generations.",
		}, []string{"resource"}),
		SchemaUnknownFieldTypes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brokerdesk_schema_unknown_field_types_total",
			Help: "Total field definitions that fell back to an unconstrained schema.",
		}, []string{"field_type"}),
		FilterReplaysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brokerdesk_filter_replays_total",
			Help: "Total number of remembered filter replays.",
		}, []string{"resource"}),

		// Matrix
		MatrixLoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brokerdesk_matrix_loads_total",
			Help: "Total number of matrix grid loads.",
		}, []string{"variant", "status"}),
		MatrixSavesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brokerdesk_matrix_saves_total",
			Help: "Total number of matrix grid saves.",
		}, []string{"variant", "status"}),
		MatrixCopyForwardTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brokerdesk_matrix_copy_forward_total",
			Help: "Total number of copy-forward operations.",
		}, []string{"variant"}),
		MatrixCellsSubmitted: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "brokerdesk_matrix_cells_submitted",
			Help:    "Number of cells per matrix save.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500},
		}),
		MatrixDraftsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brokerdesk_matrix_drafts_stored_total",
			Help: "Total number of matrix drafts stored.",
		}, []string{"status"}),

		// Backend
		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brokerdesk_backend_requests_total",
			Help: "Total number of rebate API requests.",
		}, []string{"operation_id", "status"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "brokerdesk_backend_request_duration_seconds",
			Help:    "Rebate API request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"operation_id"}),
		BackendRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brokerdesk_backend_rejections_total",
			Help: "Total envelopes returned with success=false.",
		}, []string{"operation_id"}),

		// Cache
		CapabilityCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brokerdesk_capability_cache_hits_total",
			Help: "Total capability cache hits.",
		}),
		CapabilityCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brokerdesk_capability_cache_misses_total",
			Help: "Total capability cache misses.",
		}),

		// System
		ResourceDefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "brokerdesk_resource_definitions_loaded",
			Help: "Number of loaded resource definitions.",
		}),
		OpenAPIOperationsIndexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "brokerdesk_openapi_operations_indexed",
			Help: "Number of indexed rebate API operations.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Resources
		m.ResourceRequestsTotal,
		m.ResourceSaveFailures,
		m.SchemaGenerationsTotal,
		m.SchemaUnknownFieldTypes,
		m.FilterReplaysTotal,
		// Matrix
		m.MatrixLoadsTotal,
		m.MatrixSavesTotal,
		m.MatrixCopyForwardTotal,
		m.MatrixCellsSubmitted,
		m.MatrixDraftsStored,
		// Backend
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendRejectionsTotal,
		// Cache
		m.CapabilityCacheHitsTotal,
		m.CapabilityCacheMissesTotal,
		// System
		m.ResourceDefinitionsLoaded,
		m.OpenAPIOperationsIndexed,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordResourceRequest records a resource operation.
func (m *Metrics) RecordResourceRequest(resource, operation, status string) {
	m.ResourceRequestsTotal.WithLabelValues(resource, operation, status).Inc()
}

// RecordResourceSaveFailure records a failed resource save.
func (m *Metrics) RecordResourceSaveFailure(resource, reason string) {
	m.ResourceSaveFailures.WithLabelValues(resource, reason).Inc()
}

// RecordSchemaGeneration records a validation schema generation.
func (m *Metrics) RecordSchemaGeneration(resource string) {
	m.SchemaGenerationsTotal.WithLabelValues(resource).Inc()
}

// RecordSchemaUnknownFieldType records a field type that fell back to an
// unconstrained schema.
func (m *Metrics) RecordSchemaUnknownFieldType(fieldType string) {
	m.SchemaUnknownFieldTypes.WithLabelValues(fieldType).Inc()
}

// RecordFilterReplay records a remembered filter replay for a table.
func (m *Metrics) RecordFilterReplay(resource string) {
	m.FilterReplaysTotal.WithLabelValues(resource).Inc()
}

// RecordMatrixLoad records a matrix grid load.
func (m *Metrics) RecordMatrixLoad(variant, status string) {
	m.MatrixLoadsTotal.WithLabelValues(variant, status).Inc()
}

// RecordMatrixSave records a matrix grid save.
func (m *Metrics) RecordMatrixSave(variant, status string, cells int) {
	m.MatrixSavesTotal.WithLabelValues(variant, status).Inc()
	m.MatrixCellsSubmitted.Observe(float64(cells))
}

// RecordMatrixCopyForward records a copy-forward operation.
func (m *Metrics) RecordMatrixCopyForward(variant string) {
	m.MatrixCopyForwardTotal.WithLabelValues(variant).Inc()
}

// RecordMatrixDraft records a stored matrix draft.
func (m *Metrics) RecordMatrixDraft(status string) {
	m.MatrixDraftsStored.WithLabelValues(status).Inc()
}

// RecordBackendRequest records a rebate API request.
func (m *Metrics) RecordBackendRequest(operationID, status string, duration time.Duration) {
	m.BackendRequestsTotal.WithLabelValues(operationID, status).Inc()
	m.BackendRequestDuration.WithLabelValues(operationID).Observe(duration.Seconds())
}

// RecordBackendRejection records an envelope returned with success=false.
func (m *Metrics) RecordBackendRejection(operationID string) {
	m.BackendRejectionsTotal.WithLabelValues(operationID).Inc()
}

// RecordCapabilityCacheHit records a capability cache hit.
func (m *Metrics) RecordCapabilityCacheHit() {
	m.CapabilityCacheHitsTotal.Inc()
}

// RecordCapabilityCacheMiss records a capability cache miss.
func (m *Metrics) RecordCapabilityCacheMiss() {
	m.CapabilityCacheMissesTotal.Inc()
}

// SetResourceDefinitionsLoaded sets the number of loaded resource definitions.
func (m *Metrics) SetResourceDefinitionsLoaded(count float64) {
	m.ResourceDefinitionsLoaded.Set(count)
}

// SetOpenAPIOperationsIndexed sets the number of indexed rebate API operations.
func (m *Metrics) SetOpenAPIOperationsIndexed(count float64) {
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
	// chi route patterns have trailing /*, remove it.
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
