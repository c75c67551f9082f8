// Package memory implements an in-process content store for tests and
// ephemeral deployments.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/marmos91/storagecloud/pkg/store/content"
)

// MemoryContentStore implements content.Store with maps guarded by a mutex.
// Parent directories are not tracked strictly: a file may be created
// anywhere, mirroring object stores.
type MemoryContentStore struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]struct{}
}

func NewMemoryContentStore() *MemoryContentStore {
	return &MemoryContentStore{
		files: make(map[string][]byte),
		dirs:  make(map[string]struct{}),
	}
}

func check(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return content.ValidatePath(path)
}

func notFound(path string) error {
	return fmt.Errorf("%s: %w", path, content.ErrNotFound)
}

func (s *MemoryContentStore) Create(ctx context.Context, path string) error {
	if err := check(ctx, path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = []byte{}
	return nil
}

func (s *MemoryContentStore) WriteAt(ctx context.Context, path string, offset uint64, data []byte) error {
	if err := check(ctx, path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.files[path]
	if offset == 0 {
		existing, ok = nil, true
	}
	if !ok {
		return notFound(path)
	}
	if offset > uint64(len(existing)) {
		return fmt.Errorf("%s: offset %d beyond size %d: %w", path, offset, len(existing), content.ErrInvalidOffset)
	}

	end := offset + uint64(len(data))
	buf := existing
	if end > uint64(len(buf)) {
		buf = make([]byte, end)
		copy(buf, existing)
	}
	copy(buf[offset:], data)
	s.files[path] = buf
	return nil
}

func (s *MemoryContentStore) ReadAt(ctx context.Context, path string, p []byte, offset uint64) (int, error) {
	if err := check(ctx, path); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.files[path]
	if !ok {
		return 0, notFound(path)
	}
	if offset >= uint64(len(data)) {
		return 0, io.EOF
	}

	n := copy(p, data[offset:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *MemoryContentStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := check(ctx, path); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.files[path]
	if !ok {
		return nil, notFound(path)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

func (s *MemoryContentStore) Size(ctx context.Context, path string) (uint64, error) {
	if err := check(ctx, path); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.files[path]
	if !ok {
		return 0, notFound(path)
	}
	return uint64(len(data)), nil
}

func (s *MemoryContentStore) Truncate(ctx context.Context, path string, size uint64) error {
	if err := check(ctx, path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.files[path]
	if !ok {
		return notFound(path)
	}
	if size > uint64(len(data)) {
		return fmt.Errorf("%s: truncate to %d beyond size %d: %w", path, size, len(data), content.ErrInvalidOffset)
	}
	s.files[path] = data[:size]
	return nil
}

func (s *MemoryContentStore) Remove(ctx context.Context, path string) error {
	if err := check(ctx, path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[path]; !ok {
		return notFound(path)
	}
	delete(s.files, path)
	return nil
}

func (s *MemoryContentStore) Mkdir(ctx context.Context, path string) error {
	if err := check(ctx, path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, isFile := s.files[path]
	_, isDir := s.dirs[path]
	if isFile || isDir {
		return fmt.Errorf("%s: %w", path, content.ErrExists)
	}
	s.dirs[path] = struct{}{}
	return nil
}

func (s *MemoryContentStore) RemoveAll(ctx context.Context, path string) error {
	if err := check(ctx, path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	below := path + "/"
	for p := range s.files {
		if p == path || strings.HasPrefix(p, below) {
			delete(s.files, p)
		}
	}
	for p := range s.dirs {
		if p == path || strings.HasPrefix(p, below) {
			delete(s.dirs, p)
		}
	}
	return nil
}

// Exists reports whether a file or directory is present at path.
func (s *MemoryContentStore) Exists(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, isFile := s.files[path]
	_, isDir := s.dirs[path]
	return isFile || isDir
}

func (s *MemoryContentStore) Close() error {
	return nil
}

var _ content.Store = (*MemoryContentStore)(nil)
