package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels stamped on every sync metric.
type Config struct {
	ServiceName string
	Environment string
}

// SyncMetrics captures the health signals of the price sync pipeline.
type SyncMetrics struct {
	runs            *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	fetchOutcomes   *prometheus.CounterVec
	fetchDuration   prometheus.Observer
	priceLines      prometheus.Counter
	historyRows     prometheus.Counter
	poolInUse       prometheus.Gauge
	breakerOpen     prometheus.Gauge
	heapBytes       prometheus.Gauge
	memoryEvents    *prometheus.CounterVec
	eventsQueued    prometheus.Counter
	eventsDeduped   prometheus.Counter
	eventsDeferred  prometheus.Counter
	jobRuns         *prometheus.CounterVec
	jobErrors       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
}

var (
	syncMetrics     *SyncMetrics
	syncMetricsOnce sync.Once
)

// Sync returns the singleton sync metrics registry.
func Sync() *SyncMetrics {
	return SyncWithConfig(Config{})
}

// SyncWithConfig returns the singleton sync metrics registry using config labels.
func SyncWithConfig(cfg Config) *SyncMetrics {
	syncMetricsOnce.Do(func() {
		syncMetrics = newSyncMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return syncMetrics
}

// ResetSyncMetricsForTest resets the sync metrics singleton for tests.
func ResetSyncMetricsForTest() {
	syncMetricsOnce = sync.Once{}
	syncMetrics = nil
}

func newSyncMetrics(registerer prometheus.Registerer, cfg Config) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "cruisesync"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cruisesync_runs_total",
		Help:        "Sync runs by final status.",
		ConstLabels: constLabels,
	}, []string{"status"})
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "cruisesync_run_duration_seconds",
		Help:        "Sync run latency per cruise line.",
		Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		ConstLabels: constLabels,
	}, []string{"line"})
	fetchOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cruisesync_fetch_outcomes_total",
		Help:        "Per-file fetch outcomes by classified kind.",
		ConstLabels: constLabels,
	}, []string{"kind"})
	fetchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "cruisesync_fetch_duration_seconds",
		Help:        "Per-file download latency.",
		Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 45},
		ConstLabels: constLabels,
	})
	priceLines := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "cruisesync_price_lines_written_total",
		Help:        "Price lines written by the merge engine.",
		ConstLabels: constLabels,
	})
	historyRows := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "cruisesync_history_rows_total",
		Help:        "Price history snapshot rows appended.",
		ConstLabels: constLabels,
	})
	poolInUse := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "cruisesync_pool_sessions_in_use",
		Help:        "Transfer-channel sessions currently leased.",
		ConstLabels: constLabels,
	})
	breakerOpen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "cruisesync_pool_breaker_open",
		Help:        "1 while the transfer-channel circuit breaker is open.",
		ConstLabels: constLabels,
	})
	heapBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "cruisesync_heap_alloc_bytes",
		Help:        "Heap bytes as sampled by the memory supervisor.",
		ConstLabels: constLabels,
	})
	memoryEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cruisesync_memory_events_total",
		Help:        "Memory supervisor interventions by level.",
		ConstLabels: constLabels,
	}, []string{"level"})
	eventsQueued := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "cruisesync_webhook_events_queued_total",
		Help:        "Webhook events accepted for processing.",
		ConstLabels: constLabels,
	})
	eventsDeduped := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "cruisesync_webhook_events_deduplicated_total",
		Help:        "Webhook events dropped inside the dedup window.",
		ConstLabels: constLabels,
	})
	eventsDeferred := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "cruisesync_webhook_events_deferred_total",
		Help:        "Webhook events deferred on lock contention.",
		ConstLabels: constLabels,
	})

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cruisesync_job_runs_total",
		Help:        "Background job executions by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cruisesync_job_errors_total",
		Help:        "Background job failures by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "cruisesync_job_duration_seconds",
		Help:        "Background job latency by name.",
		Buckets:     []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1800},
		ConstLabels: constLabels,
	}, []string{"job"})

	registerer.MustRegister(
		runs,
		runDuration,
		fetchOutcomes,
		fetchDuration,
		priceLines,
		historyRows,
		poolInUse,
		breakerOpen,
		heapBytes,
		memoryEvents,
		eventsQueued,
		eventsDeduped,
		eventsDeferred,
		jobRuns,
		jobErrors,
		jobDuration,
	)

	return &SyncMetrics{
		runs:           runs,
		runDuration:    runDuration,
		fetchOutcomes:  fetchOutcomes,
		fetchDuration:  fetchDuration,
		priceLines:     priceLines,
		historyRows:    historyRows,
		poolInUse:      poolInUse,
		breakerOpen:    breakerOpen,
		heapBytes:      heapBytes,
		memoryEvents:   memoryEvents,
		eventsQueued:   eventsQueued,
		eventsDeduped:  eventsDeduped,
		eventsDeferred: eventsDeferred,
		jobRuns:        jobRuns,
		jobErrors:      jobErrors,
		jobDuration:    jobDuration,
	}
}

func (m *SyncMetrics) IncRun(status string)          { m.runs.WithLabelValues(status).Inc() }
func (m *SyncMetrics) ObserveRun(line string, d time.Duration) {
	m.runDuration.WithLabelValues(line).Observe(d.Seconds())
}
func (m *SyncMetrics) IncFetchOutcome(kind string)   { m.fetchOutcomes.WithLabelValues(kind).Inc() }
func (m *SyncMetrics) ObserveFetch(d time.Duration)  { m.fetchDuration.Observe(d.Seconds()) }
func (m *SyncMetrics) AddPriceLines(n int)           { m.priceLines.Add(float64(n)) }
func (m *SyncMetrics) AddHistoryRows(n int)          { m.historyRows.Add(float64(n)) }
func (m *SyncMetrics) SetPoolInUse(n int)            { m.poolInUse.Set(float64(n)) }
func (m *SyncMetrics) SetBreakerOpen(open bool) {
	if open {
		m.breakerOpen.Set(1)
	} else {
		m.breakerOpen.Set(0)
	}
}
func (m *SyncMetrics) SetHeapBytes(n uint64)         { m.heapBytes.Set(float64(n)) }
func (m *SyncMetrics) IncMemoryEvent(level string)   { m.memoryEvents.WithLabelValues(level).Inc() }
func (m *SyncMetrics) IncEventQueued()               { m.eventsQueued.Inc() }
func (m *SyncMetrics) IncEventDeduplicated()         { m.eventsDeduped.Inc() }
func (m *SyncMetrics) IncEventDeferred()             { m.eventsDeferred.Inc() }
func (m *SyncMetrics) IncJobRun(job string)          { m.jobRuns.WithLabelValues(job).Inc() }
func (m *SyncMetrics) IncJobError(job string)        { m.jobErrors.WithLabelValues(job).Inc() }
func (m *SyncMetrics) ObserveJobDuration(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}
