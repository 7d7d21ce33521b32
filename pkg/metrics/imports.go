package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sheet_importer"

type ImportMetrics struct {
	Runs          *prometheus.CounterVec
	Rows          *prometheus.CounterVec
	Warnings      *prometheus.CounterVec
	ChunkDuration *prometheus.HistogramVec
	RunDuration   *prometheus.HistogramVec
	Jobs          *prometheus.CounterVec
	ActiveJobs    prometheus.Gauge
	DroppedEvents prometheus.Counter
}

// Imports returns the process-wide import metrics, registering them on first use.
var Imports = sync.OnceValue(func() *ImportMetrics {
	return &ImportMetrics{
		Runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Import pipeline invocations by destination table and final status.",
		}, []string{"table", "status"}),
		Rows: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows processed by destination table and outcome (attempted, inserted, skipped).",
		}, []string{"table", "outcome"}),
		Warnings: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversion_warnings_total",
			Help:      "Cells whose visible value could not be coerced to the column type.",
		}, []string{"table"}),
		ChunkDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_duration_seconds",
			Help:      "Latency of one bulk insert chunk.",
			Buckets: []float64{
				0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5, 10, 30,
			},
		}, []string{"table", "result"}),
		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a whole import pipeline run.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"table", "status"}),
		Jobs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Import jobs reaching a status.",
		}, []string{"status"}),
		ActiveJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Import jobs currently executing on the worker pool.",
		}),
		DroppedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_events_dropped_total",
			Help:      "Job events not delivered because a subscriber buffer was full.",
		}),
	}
})
