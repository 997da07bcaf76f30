// Package metrics provides Prometheus metrics for the larkgate service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	errorsByComponent   *prometheus.CounterVec

	// Webhook gate and dedupe
	webhookEvents  *prometheus.CounterVec
	dedupeSize     prometheus.Gauge
	dedupeEvicted  prometheus.Counter
	dedupeFull     prometheus.Counter
	queueSize      prometheus.Gauge
	queueCapacity  prometheus.Gauge
	queueEnqueued  prometheus.Counter
	queueDropped   *prometheus.CounterVec
	workerCount    prometheus.Gauge
	tasksProcessed *prometheus.CounterVec
	taskLatency    *prometheus.HistogramVec

	// Attendance
	aggregations        *prometheus.CounterVec
	aggregationDuration *prometheus.HistogramVec
	fillRate            prometheus.Gauge
	leaveLookups        *prometheus.CounterVec
	holidayLookups      *prometheus.CounterVec

	// Scheduler
	schedulerRuns *prometheus.CounterVec
	schedulerJobs prometheus.Gauge

	// Outbound platform API
	larkCalls   *prometheus.CounterVec
	larkLatency *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
		namespace:        "larkgate",
		subsystem:        "bot",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Total number of HTTP errors by endpoint", "endpoint", "method", "error_type")
	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")

	m.webhookEvents = m.counterVec("webhook_events_total",
		"Inbound webhook deliveries by gate outcome", "outcome")
	m.dedupeSize = m.gauge("dedupe_entries", "Event ids currently retained by the dedupe store")
	m.dedupeEvicted = m.counter("dedupe_evicted_total", "Event ids evicted after the retention window")
	m.dedupeFull = m.counter("dedupe_capacity_evicted_total",
		"Unexpired event ids evicted because the dedupe store was full")
	m.queueSize = m.gauge("queue_size", "Current number of background tasks waiting")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum number of background tasks that may wait")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Background tasks accepted by the queue")
	m.queueDropped = m.counterVec("queue_dropped_total", "Background tasks rejected by the queue", "reason")
	m.workerCount = m.gauge("worker_count", "Number of background workers")
	m.tasksProcessed = m.counterVec("tasks_processed_total",
		"Background tasks by kind and outcome", "kind", "outcome")
	m.taskLatency = m.histogramVec("task_duration_milliseconds",
		"Background task duration in milliseconds", "kind")

	m.aggregations = m.counterVec("aggregations_total",
		"Attendance aggregations by kind and outcome", "kind", "outcome")
	m.aggregationDuration = m.histogramVec("aggregation_duration_milliseconds",
		"Attendance aggregation duration in milliseconds", "kind")
	m.fillRate = m.gauge("fill_rate", "Fill rate of the most recent single-day check")
	m.leaveLookups = m.counterVec("leave_lookups_total", "Leave status lookups by outcome", "outcome")
	m.holidayLookups = m.counterVec("holiday_lookups_total", "Holiday lookups by answering source", "source")

	m.schedulerRuns = m.counterVec("scheduler_runs_total", "Scheduled job runs by job and outcome", "job", "outcome")
	m.schedulerJobs = m.gauge("scheduler_jobs", "Number of jobs registered with the scheduler")

	m.larkCalls = m.counterVec("lark_calls_total", "Open platform API calls by operation and outcome", "operation", "outcome")
	m.larkLatency = m.histogramVec("lark_call_duration_milliseconds",
		"Open platform API call duration in milliseconds", "operation")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordWebhookEvent counts a webhook delivery by outcome
// (challenge, duplicate, accepted, rejected, malformed).
func RecordWebhookEvent(outcome string) {
	globalManager.webhookEvents.WithLabelValues(outcome).Inc()
}

// UpdateDedupeSize sets the number of retained event ids.
func UpdateDedupeSize(size int64) {
	globalManager.dedupeSize.Set(float64(size))
}

// RecordDedupeEvictions adds n evicted event ids.
func RecordDedupeEvictions(n int) {
	if n > 0 {
		globalManager.dedupeEvicted.Add(float64(n))
	}
}

// RecordDedupeCapacityEviction counts an unexpired id dropped to make room.
func RecordDedupeCapacityEviction() {
	globalManager.dedupeFull.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDrop counts a rejected enqueue.
func RecordQueueDrop(reason string) {
	globalManager.queueDropped.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordTask records a finished background task.
func RecordTask(kind, outcome string, latencyMs float64) {
	globalManager.tasksProcessed.WithLabelValues(kind, outcome).Inc()
	globalManager.taskLatency.WithLabelValues(kind).Observe(latencyMs)
}

// RecordAggregation records an attendance aggregation run.
func RecordAggregation(kind, outcome string, durationMs float64) {
	globalManager.aggregations.WithLabelValues(kind, outcome).Inc()
	globalManager.aggregationDuration.WithLabelValues(kind).Observe(durationMs)
}

// UpdateFillRate sets the fill rate gauge.
func UpdateFillRate(rate float64) {
	globalManager.fillRate.Set(rate)
}

// RecordLeaveLookup counts a leave lookup (on_leave, not_on_leave, error).
func RecordLeaveLookup(outcome string) {
	globalManager.leaveLookups.WithLabelValues(outcome).Inc()
}

// RecordHolidayLookup counts a holiday lookup by the source that answered it
// (cache, api, fallback).
func RecordHolidayLookup(source string) {
	globalManager.holidayLookups.WithLabelValues(source).Inc()
}

// RecordSchedulerRun records a scheduled job execution.
func RecordSchedulerRun(job, outcome string) {
	globalManager.schedulerRuns.WithLabelValues(job, outcome).Inc()
}

// UpdateSchedulerJobs sets the number of registered jobs.
func UpdateSchedulerJobs(count int) {
	globalManager.schedulerJobs.Set(float64(count))
}

// RecordLarkCall records an outbound open platform API call.
func RecordLarkCall(operation, outcome string, latencyMs float64) {
	globalManager.larkCalls.WithLabelValues(operation, outcome).Inc()
	globalManager.larkLatency.WithLabelValues(operation).Observe(latencyMs)
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
