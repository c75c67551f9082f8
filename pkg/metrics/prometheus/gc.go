package prometheus

import (
	"time"

	"github.com/marmos91/storagecloud/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// gcMetrics is the Prometheus implementation of metrics.GCMetrics.
type gcMetrics struct {
	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
	reclaimedFiles prometheus.Counter
	reclaimedBytes prometheus.Counter
	failedFiles    prometheus.Counter
}

// NewGCMetrics creates a new Prometheus-backed GCMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled.
func NewGCMetrics() metrics.GCMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopGCMetrics()
	}

	reg := metrics.GetRegistry()

	return &gcMetrics{
		runsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "storagecloud_gc_runs_total",
				Help: "Total number of stale upload collection passes by status",
			},
			[]string{"status"},
		),
		runDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "storagecloud_gc_run_duration_seconds",
				Help:    "Duration of stale upload collection passes in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		reclaimedFiles: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "storagecloud_gc_reclaimed_files_total",
				Help: "Total number of abandoned uploads deleted",
			},
		),
		reclaimedBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "storagecloud_gc_reclaimed_bytes_total",
				Help: "Total quota bytes returned by deleting abandoned uploads",
			},
		),
		failedFiles: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "storagecloud_gc_failed_files_total",
				Help: "Total number of abandoned uploads that could not be deleted",
			},
		),
	}
}

func (m *gcMetrics) RecordRun(duration time.Duration, err error) {
	m.runsTotal.WithLabelValues(metrics.Status(err)).Inc()
	m.runDuration.Observe(duration.Seconds())
}

func (m *gcMetrics) RecordReclaimed(files int, bytes uint64) {
	m.reclaimedFiles.Add(float64(files))
	m.reclaimedBytes.Add(float64(bytes))
}

func (m *gcMetrics) RecordFailed(files int) {
	m.failedFiles.Add(float64(files))
}
