// Package fs implements filesystem-based content storage.
//
// Every path handed to the store is mapped below a single root directory,
// so "/alice/docs/a.txt" lives at "<root>/alice/docs/a.txt".
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/marmos91/storagecloud/pkg/store/content"
)

const defaultFDCacheSize = 512

// FSContentStore implements content.Store on the local filesystem.
type FSContentStore struct {
	basePath string
	fdCache  *FDCache
}

// FSContentStoreConfig contains configuration for the filesystem store.
type FSContentStoreConfig struct {
	// Path is the root directory (created if missing)
	Path string `mapstructure:"path"`

	// FDCacheSize bounds the number of descriptors kept open (default: 512)
	FDCacheSize int `mapstructure:"fd_cache_size"`
}

// NewFSContentStore creates a new filesystem-based content store.
//
// The root directory is created with permissions 0755 if it doesn't exist.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: Root path and descriptor cache size
//
// Returns:
//   - *FSContentStore: Initialized store
//   - error: Returns error if directory creation fails or context is cancelled
func NewFSContentStore(ctx context.Context, cfg FSContentStoreConfig) (*FSContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	cacheSize := cfg.FDCacheSize
	if cacheSize == 0 {
		cacheSize = defaultFDCacheSize
	}

	return &FSContentStore{
		basePath: cfg.Path,
		fdCache:  NewFDCache(cacheSize),
	}, nil
}

// resolve validates path and maps it below the root.
func (r *FSContentStore) resolve(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := content.ValidatePath(path); err != nil {
		return "", err
	}
	return filepath.Join(r.basePath, filepath.FromSlash(path)), nil
}

// translate maps os errors onto the content sentinels.
func translate(path string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w", path, content.ErrNotFound)
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%s: %w", path, content.ErrExists)
	default:
		return fmt.Errorf("%s: %w", path, err)
	}
}

func (r *FSContentStore) Create(ctx context.Context, path string) error {
	full, err := r.resolve(ctx, path)
	if err != nil {
		return err
	}

	_ = r.fdCache.Remove(full)
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return translate(path, err)
	}
	return f.Close()
}

func (r *FSContentStore) WriteAt(ctx context.Context, path string, offset uint64, data []byte) error {
	full, err := r.resolve(ctx, path)
	if err != nil {
		return err
	}

	if offset == 0 {
		if err := r.Create(ctx, path); err != nil {
			return err
		}
	}

	file, err := r.fdCache.Acquire(full)
	if err != nil {
		return translate(path, err)
	}

	info, err := file.Stat()
	if err != nil {
		return translate(path, err)
	}
	if offset > uint64(info.Size()) {
		return fmt.Errorf("%s: offset %d beyond size %d: %w", path, offset, info.Size(), content.ErrInvalidOffset)
	}

	if _, err := file.WriteAt(data, int64(offset)); err != nil {
		return translate(path, err)
	}
	return nil
}

func (r *FSContentStore) ReadAt(ctx context.Context, path string, p []byte, offset uint64) (int, error) {
	full, err := r.resolve(ctx, path)
	if err != nil {
		return 0, err
	}

	file, err := r.fdCache.Acquire(full)
	if err != nil {
		return 0, translate(path, err)
	}

	n, err := file.ReadAt(p, int64(offset))
	if err != nil && err != io.EOF {
		return n, translate(path, err)
	}
	return n, err
}

func (r *FSContentStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	full, err := r.resolve(ctx, path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, translate(path, err)
	}
	return f, nil
}

func (r *FSContentStore) Size(ctx context.Context, path string) (uint64, error) {
	full, err := r.resolve(ctx, path)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return 0, translate(path, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s: is a directory: %w", path, content.ErrInvalidPath)
	}
	return uint64(info.Size()), nil
}

func (r *FSContentStore) Truncate(ctx context.Context, path string, size uint64) error {
	current, err := r.Size(ctx, path)
	if err != nil {
		return err
	}
	if size > current {
		return fmt.Errorf("%s: truncate to %d beyond size %d: %w", path, size, current, content.ErrInvalidOffset)
	}

	full, _ := r.resolve(ctx, path)
	file, err := r.fdCache.Acquire(full)
	if err != nil {
		return translate(path, err)
	}
	return translate(path, file.Truncate(int64(size)))
}

func (r *FSContentStore) Remove(ctx context.Context, path string) error {
	full, err := r.resolve(ctx, path)
	if err != nil {
		return err
	}

	_ = r.fdCache.Remove(full)
	return translate(path, os.Remove(full))
}

func (r *FSContentStore) Mkdir(ctx context.Context, path string) error {
	full, err := r.resolve(ctx, path)
	if err != nil {
		return err
	}
	return translate(path, os.Mkdir(full, 0755))
}

func (r *FSContentStore) RemoveAll(ctx context.Context, path string) error {
	full, err := r.resolve(ctx, path)
	if err != nil {
		return err
	}

	_ = r.fdCache.RemovePrefix(full)
	return translate(path, os.RemoveAll(full))
}

// Close closes all cached file descriptors.
func (r *FSContentStore) Close() error {
	return r.fdCache.Close()
}

var _ content.Store = (*FSContentStore)(nil)
