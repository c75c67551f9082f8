package metrics

import "time"

// Transfer directions reported to RecordBytesTransferred.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// DirectoryMetrics provides observability for account and file operations.
//
// This interface is optional - if not provided to the directory, operations
// proceed without metrics collection (zero overhead).
//
// Example usage:
//
//	// With metrics enabled
//	dir := directory.New(meta, files, cfg, directory.WithMetrics(prometheus.NewDirectoryMetrics()))
//
//	// Without metrics (no-op)
//	dir := directory.New(meta, files, cfg)
type DirectoryMetrics interface {
	// RecordOperation records a completed directory operation with its name,
	// duration, and outcome.
	//
	// Parameters:
	//   - operation: Operation name (e.g., "RegisterUser", "AppendChunk")
	//   - duration: Time taken to complete the operation
	//   - err: Error if operation failed, nil if successful
	RecordOperation(operation string, duration time.Duration, err error)

	// RecordBytesTransferred records chunk bytes accepted or served.
	//
	// Parameters:
	//   - direction: DirectionUpload or DirectionDownload
	//   - bytes: Number of bytes transferred
	RecordBytesTransferred(direction string, bytes int64)

	// RecordQuotaRejection counts a request refused for lack of free space.
	RecordQuotaRejection()

	// RecordIntegrityFailure counts a completed upload whose length or hash
	// did not match the declared values.
	RecordIntegrityFailure()
}

// NewNoopDirectoryMetrics returns a DirectoryMetrics that records nothing.
func NewNoopDirectoryMetrics() DirectoryMetrics {
	return noopDirectoryMetrics{}
}

// noopDirectoryMetrics is a no-op implementation of DirectoryMetrics with zero overhead.
type noopDirectoryMetrics struct{}

func (noopDirectoryMetrics) RecordOperation(operation string, duration time.Duration, err error) {}
func (noopDirectoryMetrics) RecordBytesTransferred(direction string, bytes int64)                {}
func (noopDirectoryMetrics) RecordQuotaRejection()                                               {}
func (noopDirectoryMetrics) RecordIntegrityFailure()                                             {}
