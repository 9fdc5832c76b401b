// Package metrics provides Prometheus metrics for the scoring engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Scorecards
	scorecardOperations  *prometheus.CounterVec
	scorecardTransitions *prometheus.CounterVec
	scorecardsTotal      prometheus.Gauge

	// Rankings
	rankingRecalculations *prometheus.CounterVec
	rankingDuration       prometheus.Histogram
	rankingEntries        prometheus.Histogram
	rankingTies           prometheus.Counter
	rankingPublications   *prometheus.CounterVec

	// Recalculation queue
	queueSize      prometheus.Gauge
	queueCapacity  prometheus.Gauge
	queueEnqueued  prometheus.Counter
	queueCoalesced prometheus.Counter
	queueRejected  *prometheus.CounterVec

	// Workers
	workerActive     prometheus.Gauge
	workerProcessing prometheus.Histogram
	workerErrors     prometheus.Counter

	// Repository
	repositoryLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry served on /metrics instead of the default one.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	customRegistry.MustRegister(collectors.NewGoCollector())
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "fei",
		subsystem:        "scoring",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.scorecardOperations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scorecard_operations_total",
		Help:      "Scorecard operations by name and outcome",
	}, []string{"operation", "result"})

	m.scorecardTransitions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scorecard_transitions_total",
		Help:      "Scorecard status transitions",
	}, []string{"to"})

	m.scorecardsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scorecards",
		Help:      "Number of stored scorecards",
	})

	m.rankingRecalculations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_recalculations_total",
		Help:      "Ranking recalculations by discipline and outcome",
	}, []string{"discipline", "result"})

	m.rankingDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_recalculation_duration_seconds",
		Help:      "Time spent recalculating one category ranking",
		Buckets:   m.histogramBuckets,
	})

	m.rankingEntries = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_entries",
		Help:      "Entries per recalculated ranking",
		Buckets:   []float64{1, 5, 10, 20, 40, 80, 160},
	})

	m.rankingTies = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_tied_entries_total",
		Help:      "Ranking entries that shared a position",
	})

	m.rankingPublications = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_publications_total",
		Help:      "Ranking publication attempts by outcome",
	}, []string{"result"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recalc_queue_size",
		Help:      "Pending ranking recalculation requests",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recalc_queue_capacity",
		Help:      "Capacity of the recalculation queue",
	})

	m.queueEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recalc_queue_enqueued_total",
		Help:      "Recalculation requests accepted by the queue",
	})

	m.queueCoalesced = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recalc_queue_coalesced_total",
		Help:      "Recalculation requests merged into one already pending",
	})

	m.queueRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recalc_queue_rejected_total",
		Help:      "Recalculation requests the queue refused",
	}, []string{"reason"})

	m.workerActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "workers_active",
		Help:      "Running recalculation workers",
	})

	m.workerProcessing = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_processing_seconds",
		Help:      "Time a worker spent on one recalculation request",
		Buckets:   m.histogramBuckets,
	})

	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_errors_total",
		Help:      "Recalculation requests that failed in a worker",
	})

	m.repositoryLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repository_operation_seconds",
		Help:      "Repository operation latency",
		Buckets:   m.histogramBuckets,
	}, []string{"store", "operation"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_total",
		Help:      "Errors by component and kind",
	}, []string{"component", "kind"})
}

// RecordScoreCardOperation counts one scorecard operation.
func RecordScoreCardOperation(operation, result string) {
	globalManager.scorecardOperations.WithLabelValues(operation, result).Inc()
}

// RecordScoreCardTransition counts a status change into status to.
func RecordScoreCardTransition(to string) {
	globalManager.scorecardTransitions.WithLabelValues(to).Inc()
}

// UpdateScoreCardsTotal sets the number of stored scorecards.
func UpdateScoreCardsTotal(n int) {
	globalManager.scorecardsTotal.Set(float64(n))
}

// RecordRankingRecalculation records one recalculation and its duration.
func RecordRankingRecalculation(discipline, result string, seconds float64) {
	globalManager.rankingRecalculations.WithLabelValues(discipline, result).Inc()
	globalManager.rankingDuration.Observe(seconds)
}

// RecordRankingShape records the size of a ranking and how many entries tied.
func RecordRankingShape(entries, tied int) {
	globalManager.rankingEntries.Observe(float64(entries))
	globalManager.rankingTies.Add(float64(tied))
}

// RecordRankingPublication counts a publication attempt.
func RecordRankingPublication(result string) {
	globalManager.rankingPublications.WithLabelValues(result).Inc()
}

// UpdateQueueSize sets the current recalculation queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the recalculation queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted request.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueCoalesced counts a request merged into a pending one.
func RecordQueueCoalesced() {
	globalManager.queueCoalesced.Inc()
}

// RecordQueueRejected counts a refused request.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActive.Set(float64(count))
}

// RecordWorkerProcessing observes the time spent on one request.
func RecordWorkerProcessing(seconds float64) {
	globalManager.workerProcessing.Observe(seconds)
}

// RecordWorkerError counts a failed request.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordRepositoryLatency observes one repository call.
func RecordRepositoryLatency(store, operation string, seconds float64) {
	globalManager.repositoryLatency.WithLabelValues(store, operation).Observe(seconds)
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes an HTTP request duration in seconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, seconds float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(seconds)
}

// RecordError counts an error of the given kind raised by component.
func RecordError(component, kind string) {
	globalManager.errorsByComponent.WithLabelValues(component, kind).Inc()
}

// GetRegistry returns the registry served on /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
