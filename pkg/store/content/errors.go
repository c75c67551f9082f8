package content

import "errors"

// ============================================================================
// Standard Content Store Errors
// ============================================================================

// Implementations wrap these with the offending path:
//
//	return fmt.Errorf("file %s: %w", path, content.ErrNotFound)

var (
	// ErrNotFound indicates the file or directory does not exist.
	ErrNotFound = errors.New("content not found")

	// ErrExists indicates Mkdir found an existing entry at the path.
	ErrExists = errors.New("content already exists")

	// ErrInvalidOffset indicates a write or truncate past the current end of file.
	ErrInvalidOffset = errors.New("invalid offset")

	// ErrInvalidPath indicates a path that is not absolute or contains
	// empty, "." or ".." segments.
	ErrInvalidPath = errors.New("invalid path")
)
