package prometheus

import (
	"time"

	"github.com/marmos91/storagecloud/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// directoryMetrics is the Prometheus implementation of metrics.DirectoryMetrics.
type directoryMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	quotaRejections   prometheus.Counter
	integrityFailures prometheus.Counter
}

// NewDirectoryMetrics creates a new Prometheus-backed DirectoryMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewDirectoryMetrics() metrics.DirectoryMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopDirectoryMetrics()
	}

	reg := metrics.GetRegistry()

	return &directoryMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "storagecloud_directory_operations_total",
				Help: "Total number of directory operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "storagecloud_directory_operation_duration_seconds",
				Help: "Duration of directory operations in seconds",
				Buckets: []float64{
					0.0005, // 500µs
					0.001,  // 1ms
					0.005,  // 5ms
					0.01,   // 10ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.5,    // 500ms
					1.0,    // 1s
					5.0,    // 5s
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "storagecloud_directory_bytes_transferred_total",
				Help: "Total chunk bytes transferred by direction",
			},
			[]string{"direction"}, // upload or download
		),
		quotaRejections: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "storagecloud_directory_quota_rejections_total",
				Help: "Total number of requests refused for lack of free space",
			},
		),
		integrityFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "storagecloud_directory_integrity_failures_total",
				Help: "Total number of completed uploads that failed validation",
			},
		),
	}
}

func (m *directoryMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(operation, metrics.Status(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *directoryMetrics) RecordBytesTransferred(direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *directoryMetrics) RecordQuotaRejection() {
	m.quotaRejections.Inc()
}

func (m *directoryMetrics) RecordIntegrityFailure() {
	m.integrityFailures.Inc()
}
