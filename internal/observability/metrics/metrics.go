package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bizadmin-backend/internal/storage"
)

const namespace = "bizadmin"

// Metrics owns a private registry. All methods are safe on a nil receiver so
// components can run without instrumentation in tests and tools.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	uploadsTotal        *prometheus.CounterVec
	archiveEntriesTotal *prometheus.CounterVec
	archiveBuilds       *prometheus.HistogramVec
	storageOpsTotal     *prometheus.CounterVec
	jobRunsTotal        *prometheus.CounterVec
	jobDuration         *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "Total HTTP requests processed.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "documents", Name: "uploads_total",
			Help: "Template uploads by result.",
		}, []string{"result"}),
		archiveEntriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "documents", Name: "archive_entries_total",
			Help: "Archive candidates by outcome (added, skipped, duplicate).",
		}, []string{"outcome"}),
		archiveBuilds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "documents", Name: "archive_build_seconds",
			Help: "Archive build duration in seconds.", Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		storageOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "storage", Name: "operations_total",
			Help: "Blob backend operations by result.",
		}, []string{"backend", "op", "result"}),
		jobRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "jobs", Name: "runs_total",
			Help: "Scheduled job runs by status.",
		}, []string{"job", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "jobs", Name: "run_duration_seconds",
			Help: "Scheduled job duration in seconds.", Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestTotal, m.requestDuration,
		m.uploadsTotal, m.archiveEntriesTotal, m.archiveBuilds,
		m.storageOpsTotal, m.jobRunsTotal, m.jobDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if path == "" {
		path = "unmatched"
	}
	m.requestTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveUpload(result string) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveArchiveEntry(outcome string) {
	if m == nil {
		return
	}
	m.archiveEntriesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveArchiveBuild(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.archiveBuilds.WithLabelValues(result).Observe(elapsed.Seconds())
}

// ObserveStorage matches storage.Observer.
func (m *Metrics) ObserveStorage(kind storage.Kind, op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrObjectNotFound):
		result = "not_found"
	case storage.IsCircuitOpen(err):
		result = "circuit_open"
	default:
		result = "error"
	}
	m.storageOpsTotal.WithLabelValues(string(kind), op, result).Inc()
}

func (m *Metrics) ObserveJob(job, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobRunsTotal.WithLabelValues(job, status).Inc()
	m.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}
