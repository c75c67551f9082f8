package metrics

import "time"

// GCMetrics provides observability for stale upload collection.
type GCMetrics interface {
	// RecordRun records a completed collection pass.
	RecordRun(duration time.Duration, err error)

	// RecordReclaimed records uploads deleted and the quota bytes they returned.
	RecordReclaimed(files int, bytes uint64)

	// RecordFailed counts uploads that could not be deleted.
	RecordFailed(files int)
}

// NewNoopGCMetrics returns a GCMetrics that records nothing.
func NewNoopGCMetrics() GCMetrics {
	return noopGCMetrics{}
}

type noopGCMetrics struct{}

func (noopGCMetrics) RecordRun(duration time.Duration, err error) {}
func (noopGCMetrics) RecordReclaimed(files int, bytes uint64)     {}
func (noopGCMetrics) RecordFailed(files int)                      {}
