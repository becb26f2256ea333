package pipeline

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the ingestion pipeline.
type Metrics struct {
	// Intake
	ArrivalsTotal *prometheus.CounterVec
	QueueDepth    prometheus.Gauge

	// Processing
	ProcessedTotal  *prometheus.CounterVec
	FailuresTotal   *prometheus.CounterVec
	BatchSize       prometheus.Gauge
	ProcessDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers pipeline metrics.
//
// Registration runs once per process via sync.Once, preventing
// "duplicate metrics collector registration" panics when the pipeline
// is rebuilt in tests.
//
// All metrics are prefixed with "resultd_".
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			ArrivalsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "resultd_arrivals_total",
					Help: "Total number of raw arrivals accepted into the queue",
				},
				[]string{"category"},
			),

			QueueDepth: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "resultd_queue_depth",
					Help: "Current number of arrivals waiting in the queue",
				},
			),

			ProcessedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "resultd_processed_total",
					Help: "Total number of artifacts enriched and persisted",
				},
				[]string{"category"},
			),

			FailuresTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "resultd_failures_total",
					Help: "Total number of arrivals that failed processing",
				},
				[]string{"category"},
			),

			BatchSize: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "resultd_batch_size",
					Help: "Number of items taken on the most recent processing pass",
				},
			),

			ProcessDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "resultd_process_duration_seconds",
					Help:    "Duration of single-item enrich and persist in seconds",
					Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~2s
				},
				[]string{"category"},
			),
		}
	})

	return globalMetrics
}

// RecordArrival records an accepted arrival and the new queue depth.
func (m *Metrics) RecordArrival(category string, depth int) {
	m.ArrivalsTotal.WithLabelValues(category).Inc()
	m.QueueDepth.Set(float64(depth))
}

// RecordProcessed records a successful enrich-and-persist.
func (m *Metrics) RecordProcessed(category string, durationSeconds float64) {
	m.ProcessedTotal.WithLabelValues(category).Inc()
	m.ProcessDuration.WithLabelValues(category).Observe(durationSeconds)
}

// RecordFailure records a failed arrival.
func (m *Metrics) RecordFailure(category string) {
	m.FailuresTotal.WithLabelValues(category).Inc()
}

// RecordBatch records the size of a processing pass and queue depth after it.
func (m *Metrics) RecordBatch(size, depth int) {
	m.BatchSize.Set(float64(size))
	m.QueueDepth.Set(float64(depth))
}
