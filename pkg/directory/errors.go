package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/storagecloud/internal/logger"
	"github.com/marmos91/storagecloud/pkg/store/content"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

// ============================================================================
// Directory Errors
// ============================================================================

// Every error returned by Directory wraps exactly one of these kinds, so
// callers can branch with errors.Is:
//
//	if errors.Is(err, directory.ErrQuotaExceeded) { ... }
var (
	// ErrNotFound indicates an unknown username, file or path.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a taken username or file path.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidPath indicates a filename without a leading slash, with an
	// empty leaf, or whose parent directory does not exist.
	ErrInvalidPath = errors.New("invalid path")

	// ErrQuotaExceeded indicates the account lacks free space for the
	// declared size or the chunk, or a quota change below the space in use.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrIntegrityMismatch indicates a completed upload whose length or
	// content hash differs from the declared values. The file is deleted.
	ErrIntegrityMismatch = errors.New("integrity mismatch")

	// ErrUnauthorized indicates the caller may not perform the operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStoreFailure indicates the metadata store failed.
	ErrStoreFailure = errors.New("store failure")

	// ErrDiskFailure indicates the content store failed.
	ErrDiskFailure = errors.New("disk failure")

	// ErrInternalInconsistency indicates a write was accepted but a
	// dependent invariant could not be established.
	ErrInternalInconsistency = errors.New("internal inconsistency")

	// ErrNoTransfer indicates a chunk operation without an active cursor.
	ErrNoTransfer = errors.New("no active transfer")

	// ErrChunkOverflow indicates a chunk that would extend an upload past
	// its declared size.
	ErrChunkOverflow = errors.New("chunk exceeds declared size")

	// ErrConcurrentTransfer indicates another writer advanced the same
	// upload since the cursor was taken.
	ErrConcurrentTransfer = errors.New("concurrent transfer")

	// ErrInvalidOffset indicates a download start at or past the end of file.
	ErrInvalidOffset = errors.New("invalid offset")
)

// storeError maps a metadata store error onto a directory error kind.
//
// Context cancellation is returned unchanged.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var storeErr *metadata.StoreError
	if errors.As(err, &storeErr) {
		switch storeErr.Code {
		case metadata.ErrNotFound:
			return fmt.Errorf("%s: %w: %s", op, ErrNotFound, storeErr)
		case metadata.ErrAlreadyExists:
			return fmt.Errorf("%s: %w: %s", op, ErrAlreadyExists, storeErr)
		case metadata.ErrNoSpace:
			return fmt.Errorf("%s: %w: %s", op, ErrQuotaExceeded, storeErr)
		case metadata.ErrConflict:
			return fmt.Errorf("%s: %w: %s", op, ErrConcurrentTransfer, storeErr)
		case metadata.ErrInvalidArgument:
			return fmt.Errorf("%s: %w: %s", op, ErrInternalInconsistency, storeErr)
		case metadata.ErrIOError:
			logger.Error("%s: stored record unreadable: %v", op, storeErr)
		}
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStoreFailure, err)
}

// diskError maps a content store error onto a directory error kind.
func diskError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	switch {
	case errors.Is(err, content.ErrNotFound):
		return fmt.Errorf("%s: %w: %v", op, ErrNotFound, err)
	case errors.Is(err, content.ErrExists):
		return fmt.Errorf("%s: %w: %v", op, ErrAlreadyExists, err)
	case errors.Is(err, content.ErrInvalidPath):
		return fmt.Errorf("%s: %w: %v", op, ErrInvalidPath, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrDiskFailure, err)
	}
}
