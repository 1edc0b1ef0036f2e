// Package metrics provides Prometheus metrics for the refbench service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup outcomes.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheExpired = "expired"
	CacheForced  = "forced"
)

// Manager owns every Prometheus collector exported by refbench.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Snapshot computation
	snapshotsComputed prometheus.Counter
	computeLatency    prometheus.Histogram
	cacheLookups      *prometheus.CounterVec
	historyWrites     prometheus.Counter

	// Population folds
	populationRuns    *prometheus.CounterVec
	populationGaps    *prometheus.CounterVec
	populationSize    prometheus.Gauge
	populationLatency *prometheus.HistogramVec
	benchmarkLookups  *prometheus.CounterVec

	// Refresh pipeline
	refreshQueueSize     prometheus.Gauge
	refreshQueueCapacity prometheus.Gauge
	refreshEnqueued      prometheus.Counter
	refreshRejected      prometheus.Counter
	refreshProcessed     *prometheus.CounterVec
	refreshLatency       prometheus.Histogram
	workerActiveCount    prometheus.Gauge

	// Repository
	repositoryQueryLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "refbench",
		subsystem:        "engine",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		enabled:          true,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}
	if !m.enabled {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.snapshotsComputed = m.counter("snapshots_computed_total", "Total number of metrics snapshots computed from raw review events")
	m.computeLatency = m.histogram("snapshot_compute_latency_milliseconds", "Latency of a single snapshot computation including store reads", m.histogramBuckets)
	m.cacheLookups = m.counterVec("cache_lookups_total", "Snapshot cache lookups by outcome", "result")
	m.historyWrites = m.counter("history_writes_total", "Daily history points upserted")

	m.populationRuns = m.counterVec("population_runs_total", "Population-wide folds by operation", "operation")
	m.populationGaps = m.counterVec("population_gaps_total", "Referees skipped or served stale during a population fold", "reason")
	m.populationSize = m.gauge("population_size", "Referees in the most recent population fold")
	m.populationLatency = m.histogramVec("population_latency_milliseconds", "Duration of population-wide folds", "operation")
	m.benchmarkLookups = m.counterVec("benchmark_lookups_total", "Benchmark cache lookups by outcome", "result")

	m.refreshQueueSize = m.gauge("refresh_queue_size", "Pending refresh requests")
	m.refreshQueueCapacity = m.gauge("refresh_queue_capacity", "Maximum pending refresh requests")
	m.refreshEnqueued = m.counter("refresh_enqueued_total", "Refresh requests accepted onto the queue")
	m.refreshRejected = m.counter("refresh_rejected_total", "Refresh requests rejected by backpressure")
	m.refreshProcessed = m.counterVec("refresh_processed_total", "Refresh requests processed by outcome", "result")
	m.refreshLatency = m.histogram("refresh_latency_milliseconds", "Refresh processing latency", m.histogramBuckets)
	m.workerActiveCount = m.gauge("worker_active_count", "Number of running refresh workers")

	m.repositoryQueryLatency = m.histogramVec("repository_query_latency_milliseconds", "Store query latency by operation", "operation")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordSnapshotComputed counts one snapshot computation and its latency.
func RecordSnapshotComputed(latencyMs float64) {
	globalManager.snapshotsComputed.Inc()
	globalManager.computeLatency.Observe(latencyMs)
}

// RecordCacheLookup counts a snapshot cache lookup with one of the Cache* outcomes.
func RecordCacheLookup(result string) {
	globalManager.cacheLookups.WithLabelValues(result).Inc()
}

// RecordHistoryWrite counts one history upsert.
func RecordHistoryWrite() {
	globalManager.historyWrites.Inc()
}

// RecordPopulationRun records a population fold of size n.
func RecordPopulationRun(operation string, n int, latencyMs float64) {
	globalManager.populationRuns.WithLabelValues(operation).Inc()
	globalManager.populationSize.Set(float64(n))
	globalManager.populationLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordPopulationGap counts a referee that was skipped or served stale.
func RecordPopulationGap(reason string) {
	globalManager.populationGaps.WithLabelValues(reason).Inc()
}

// RecordBenchmarkLookup counts a benchmark cache lookup (hit or miss).
func RecordBenchmarkLookup(result string) {
	globalManager.benchmarkLookups.WithLabelValues(result).Inc()
}

// UpdateRefreshQueue sets the refresh queue depth and capacity.
func UpdateRefreshQueue(size, capacity int) {
	globalManager.refreshQueueSize.Set(float64(size))
	globalManager.refreshQueueCapacity.Set(float64(capacity))
}

// RecordRefreshEnqueued counts an accepted refresh request.
func RecordRefreshEnqueued() {
	globalManager.refreshEnqueued.Inc()
}

// RecordRefreshRejected counts a refresh request rejected by backpressure.
func RecordRefreshRejected() {
	globalManager.refreshRejected.Inc()
}

// RecordRefreshProcessed counts a processed refresh and its latency.
func RecordRefreshProcessed(result string, latencyMs float64) {
	globalManager.refreshProcessed.WithLabelValues(result).Inc()
	globalManager.refreshLatency.Observe(latencyMs)
}

// UpdateWorkerActiveCount sets the number of running refresh workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordRepositoryQueryLatency records store query latency for an operation.
func RecordRepositoryQueryLatency(operation string, latencyMs float64) {
	globalManager.repositoryQueryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
