// Package metrics provides Prometheus metrics for the catador service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Game
	nameReservations      *prometheus.CounterVec
	sessionTransitions    *prometheus.CounterVec
	forcedFinalizations   *prometheus.CounterVec
	timerCommands         *prometheus.CounterVec
	timerExpiries         prometheus.Counter
	timerSubscribers      prometheus.Gauge
	scoringRuns           *prometheus.CounterVec
	scoringLatency        prometheus.Histogram
	broadcastPublications *prometheus.CounterVec

	// Autosave pipeline
	autosaves               *prometheus.CounterVec
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueued           prometheus.Counter
	queueDequeued           prometheus.Counter
	queueEnqueueErrors      *prometheus.CounterVec
	workerActive            prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Store
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry keeps the default Go collectors out of /metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Init rebuilds the global manager on a fresh registry with opts applied.
// Call it once at startup, before any handler reads GetRegistry.
func Init(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append([]Option{WithPrometheusRegistry(registry)}, opts...)...)
	customRegistry = registry
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "catador",
		subsystem:        "game",
		histogramBuckets: prometheus.DefBuckets,
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
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.histogramBuckets,
	})
}

func (m *Manager) initializeMetrics() {
	m.nameReservations = m.counterVec("name_reservations_total",
		"Name reservation attempts by outcome", "outcome")
	m.sessionTransitions = m.counterVec("session_transitions_total",
		"Session state machine transitions", "from", "to")
	m.forcedFinalizations = m.counterVec("forced_finalizations_total",
		"Sessions finalized by timer expiry by outcome", "outcome")
	m.timerCommands = m.counterVec("timer_commands_total",
		"Host timer commands by command and result", "command", "result")
	m.timerExpiries = m.counter("timer_expiries_total",
		"Timers that reached zero")
	m.timerSubscribers = m.gauge("timer_subscribers",
		"Open timer streams")
	m.scoringRuns = m.counterVec("scoring_runs_total",
		"Leaderboard computations by outcome", "outcome")
	m.scoringLatency = m.histogram("scoring_latency_milliseconds",
		"Leaderboard computation latency in milliseconds")
	m.broadcastPublications = m.counterVec("broadcast_publications_total",
		"Timer snapshots published by transport", "transport")

	m.autosaves = m.counterVec("autosaves_total",
		"Progress autosaves by outcome", "outcome")
	m.queueSize = m.gauge("autosave_queue_size",
		"Pending autosave requests")
	m.queueCapacity = m.gauge("autosave_queue_capacity",
		"Autosave queue capacity")
	m.queueEnqueued = m.counter("autosave_queue_enqueued_total",
		"Autosave requests accepted by the queue")
	m.queueDequeued = m.counter("autosave_queue_dequeued_total",
		"Autosave requests handed to workers")
	m.queueEnqueueErrors = m.counterVec("autosave_queue_enqueue_errors_total",
		"Autosave requests rejected by the queue", "reason")
	m.workerActive = m.gauge("autosave_workers_active",
		"Running autosave workers")
	m.workerProcessingLatency = m.histogram("autosave_worker_latency_milliseconds",
		"Time spent persisting one autosave request")
	m.workerErrors = m.counter("autosave_worker_errors_total",
		"Autosave writes that failed")

	m.repositoryUpdateLatency = m.histogram("repository_update_latency_milliseconds",
		"Store write latency in milliseconds")
	m.repositoryQueryLatency = m.histogram("repository_query_latency_milliseconds",
		"Store read latency in milliseconds")

	m.httpRequests = m.counterVec("http_requests_total",
		"HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and type", "component", "error_type")
}

// RecordNameReservation counts a reservation attempt: reserved, taken, invalid or error.
func RecordNameReservation(outcome string) {
	globalManager.nameReservations.WithLabelValues(outcome).Inc()
}

// RecordSessionTransition counts a state machine transition.
func RecordSessionTransition(from, to string) {
	globalManager.sessionTransitions.WithLabelValues(from, to).Inc()
}

// RecordForcedFinalization counts a forced finalization: finalized, noop or failed.
func RecordForcedFinalization(outcome string) {
	globalManager.forcedFinalizations.WithLabelValues(outcome).Inc()
}

// RecordTimerCommand counts a host timer command.
func RecordTimerCommand(command, result string) {
	globalManager.timerCommands.WithLabelValues(command, result).Inc()
}

// RecordTimerExpiry counts a timer reaching zero.
func RecordTimerExpiry() {
	globalManager.timerExpiries.Inc()
}

// AddTimerSubscribers moves the open stream gauge by delta.
func AddTimerSubscribers(delta int) {
	globalManager.timerSubscribers.Add(float64(delta))
}

// RecordScoringRun counts a leaderboard computation: ready, pending or error.
func RecordScoringRun(outcome string) {
	globalManager.scoringRuns.WithLabelValues(outcome).Inc()
}

// RecordScoringLatency records scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordBroadcast counts a timer snapshot published on transport (local or nats).
func RecordBroadcast(transport string) {
	globalManager.broadcastPublications.WithLabelValues(transport).Inc()
}

// RecordAutosave counts an autosave: saved, stale, failed or dropped.
func RecordAutosave(outcome string) {
	globalManager.autosaves.WithLabelValues(outcome).Inc()
}

// UpdateQueueSize sets the current autosave backlog.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the autosave queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a rejected enqueue by reason.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActive.Set(float64(count))
}

// RecordWorkerProcessingLatency records how long one request took to persist.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordRepositoryUpdateLatency records store write latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records store read latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
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

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
