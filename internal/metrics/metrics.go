// Package metrics exposes Prometheus instrumentation for the ingestion orchestrator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/resume-ingest/constants"
)

// Metrics tracks upload, batch and failure-registry metrics.
//
// All metrics use the ingest_ prefix. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// UploadsTotal counts upload attempts by status and error kind
	UploadsTotal *prometheus.CounterVec

	// UploadDuration tracks remote call latency
	UploadDuration prometheus.Histogram

	// InFlight tracks uploads currently waiting on the remote service
	InFlight prometheus.Gauge

	// BatchesTotal counts finished batches by terminal stage
	BatchesTotal *prometheus.CounterVec

	// RetriesTotal counts failure-registry retries by result
	RetriesTotal *prometheus.CounterVec

	// OpenFailures tracks records currently held by the failure registry
	OpenFailures prometheus.Gauge

	// CountRefreshErrors counts failed authoritative count refreshes
	CountRefreshErrors prometheus.Counter
}

// New creates metrics and registers them with reg.
// Panics if registration fails (expected during initialization only).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		UploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_uploads_total",
				Help: "Total upload attempts by outcome status and error kind",
			},
			[]string{"status", "error_kind"},
		),
		UploadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_upload_duration_seconds",
				Help:    "Upload call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_uploads_in_flight",
				Help: "Uploads currently in flight",
			},
		),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_batches_total",
				Help: "Finished batches by terminal stage",
			},
			[]string{"stage"},
		),
		RetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_failure_retries_total",
				Help: "Failure registry retries by result",
			},
			[]string{"result"}, // "recovered", "failed"
		),
		OpenFailures: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_open_failures",
				Help: "Failure records awaiting attention",
			},
		),
		CountRefreshErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_count_refresh_errors_total",
				Help: "Failed authoritative count refreshes",
			},
		),
	}

	reg.MustRegister(
		m.UploadsTotal,
		m.UploadDuration,
		m.InFlight,
		m.BatchesTotal,
		m.RetriesTotal,
		m.OpenFailures,
		m.CountRefreshErrors,
	)
	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) UploadStarted() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

// UploadFinished records one completed attempt.
func (m *Metrics) UploadFinished(status constants.ItemStatus, kind constants.ErrorKind, seconds float64) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.UploadsTotal.WithLabelValues(string(status), string(kind)).Inc()
	m.UploadDuration.Observe(seconds)
}

func (m *Metrics) BatchFinished(stage constants.Stage) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(string(stage)).Inc()
}

func (m *Metrics) RetryFinished(recovered bool) {
	if m == nil {
		return
	}
	result := "failed"
	if recovered {
		result = "recovered"
	}
	m.RetriesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetOpenFailures(n int) {
	if m == nil {
		return
	}
	m.OpenFailures.Set(float64(n))
}

func (m *Metrics) CountRefreshFailed() {
	if m == nil {
		return
	}
	m.CountRefreshErrors.Inc()
}
