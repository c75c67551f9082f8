package content

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Store holds the bytes of uploaded files and the directory tree that
// contains them.
//
// Paths are absolute and slash-separated ("/alice/docs/report.pdf"); the
// backend maps them below its own root. A file's path is its owner's home
// directory joined with the filename recorded in the metadata store.
//
// Thread Safety:
// Implementations must be safe for concurrent use. Concurrent writes to the
// same path are not ordered by the store; callers serialize them.
type Store interface {
	// Create makes an empty file at path, truncating any existing content.
	Create(ctx context.Context, path string) error

	// WriteAt writes data at offset. Offset 0 truncates the file first (and
	// creates it if missing); any other offset must not exceed the current
	// size and the file must exist.
	WriteAt(ctx context.Context, path string, offset uint64, data []byte) error

	// ReadAt reads up to len(p) bytes starting at offset, following
	// io.ReaderAt semantics: a short read returns io.EOF.
	ReadAt(ctx context.Context, path string, p []byte, offset uint64) (int, error)

	// Open returns a reader over the whole file.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Size returns the current length of the file.
	Size(ctx context.Context, path string) (uint64, error)

	// Truncate shrinks the file to size. Growing a file is not supported.
	Truncate(ctx context.Context, path string, size uint64) error

	// Remove deletes a single file.
	Remove(ctx context.Context, path string) error

	// Mkdir creates a single directory. Returns ErrExists if anything is
	// already present at path.
	Mkdir(ctx context.Context, path string) error

	// RemoveAll deletes path and everything below it. A missing path is not
	// an error.
	RemoveAll(ctx context.Context, path string) error

	// Close releases the backend's resources.
	Close() error
}

// ValidatePath checks that path is absolute and free of empty, "." and ".."
// segments, so it can be joined below a backend root safely.
func ValidatePath(path string) error {
	if !strings.HasPrefix(path, "/") || len(path) < 2 {
		return fmt.Errorf("%q: %w", path, ErrInvalidPath)
	}
	for _, segment := range strings.Split(path[1:], "/") {
		switch segment {
		case "", ".", "..":
			return fmt.Errorf("%q: %w", path, ErrInvalidPath)
		}
	}
	return nil
}
