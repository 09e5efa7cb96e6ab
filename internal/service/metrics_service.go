package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rastion/rastion-datasets/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the dataset service.
// Every recorder is safe to call on a nil receiver.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheLookups    *prometheus.CounterVec

	datasetsIngested *prometheus.CounterVec
	ingestBytes      prometheus.Histogram
	ingestRejected   *prometheus.CounterVec
	datasetsDeleted  prometheus.Counter
	datasetAccess    *prometheus.CounterVec
	ledgerFailures   *prometheus.CounterVec
	scoringDuration  prometheus.Histogram
	scoringPairs     *prometheus.CounterVec
	healthUnhealthy  prometheus.Gauge
	healthOrphans    prometheus.Gauge
	healthLastRun    prometheus.Gauge
}

// NewMetricsService registers the Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache set operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache lookups by result",
		}, []string{"result"}),
		datasetsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datasets_ingested_total",
			Help: "Datasets accepted by format",
		}, []string{"format"}),
		ingestBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dataset_ingest_bytes",
			Help:    "Size of accepted dataset uploads",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		ingestRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataset_ingest_rejected_total",
			Help: "Rejected dataset uploads by error code",
		}, []string{"code"}),
		datasetsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datasets_deleted_total",
			Help: "Datasets deleted by their owners",
		}),
		datasetAccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataset_access_total",
			Help: "Ledger entries recorded by access type",
		}, []string{"access_type"}),
		ledgerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataset_ledger_failures_total",
			Help: "Failed ledger writes by access type",
		}, []string{"access_type"}),
		scoringDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dataset_scoring_duration_seconds",
			Help:    "Time spent scoring one dataset against the catalog",
			Buckets: prometheus.DefBuckets,
		}),
		scoringPairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataset_scoring_pairs_total",
			Help: "Scored dataset and repository pairs by outcome",
		}, []string{"outcome"}),
		healthUnhealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dataset_health_unhealthy",
			Help: "Datasets whose blob is missing, unreadable or of the wrong size at the last check",
		}),
		healthOrphans: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dataset_health_orphans",
			Help: "Blobs without a dataset row at the last check",
		}),
		healthLastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dataset_health_last_run_timestamp_seconds",
			Help: "Unix time of the last completed health check",
		}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal, m.cacheLatency, m.cacheWrite, m.cacheLookups,
		m.datasetsIngested, m.ingestBytes, m.ingestRejected, m.datasetsDeleted, m.datasetAccess, m.ledgerFailures,
		m.scoringDuration, m.scoringPairs, m.healthUnhealthy, m.healthOrphans, m.healthLastRun, goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordIngest counts an accepted upload.
func (m *MetricsService) RecordIngest(format string, size int64) {
	if m == nil {
		return
	}
	m.datasetsIngested.WithLabelValues(format).Inc()
	m.ingestBytes.Observe(float64(size))
}

// RecordIngestRejected counts an upload refused with code.
func (m *MetricsService) RecordIngestRejected(code string) {
	if m == nil {
		return
	}
	m.ingestRejected.WithLabelValues(code).Inc()
}

// RecordDelete counts a dataset deletion.
func (m *MetricsService) RecordDelete() {
	if m == nil {
		return
	}
	m.datasetsDeleted.Inc()
}

// RecordAccess counts a ledger entry or a failed ledger write.
func (m *MetricsService) RecordAccess(accessType models.AccessType, failed bool) {
	if m == nil {
		return
	}
	if failed {
		m.ledgerFailures.WithLabelValues(string(accessType)).Inc()
		return
	}
	m.datasetAccess.WithLabelValues(string(accessType)).Inc()
}

// ObserveScoring records one dataset scoring pass.
func (m *MetricsService) ObserveScoring(pairs, failed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.scoringDuration.Observe(duration.Seconds())
	m.scoringPairs.WithLabelValues("ok").Add(float64(pairs - failed))
	if failed > 0 {
		m.scoringPairs.WithLabelValues("failed").Add(float64(failed))
	}
}

// ObserveHealthReport publishes the outcome of a reconciler run.
func (m *MetricsService) ObserveHealthReport(report *models.HealthReport) {
	if m == nil || report == nil {
		return
	}
	m.healthUnhealthy.Set(float64(report.Unhealthy))
	m.healthOrphans.Set(float64(len(report.Orphans)))
	m.healthLastRun.Set(float64(report.CheckedAt.Unix()))
}
