package memory

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

func (s *MemoryMetadataStore) CreateFile(ctx context.Context, entry metadata.FileEntry) (*metadata.FileEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := pathKey{owner: entry.Owner, filename: entry.Filename}
	if _, exists := s.paths[key]; exists {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrAlreadyExists,
			Message: "file already exists",
			Path:    entry.Filename,
		}
	}

	stored := entry.Clone()
	stored.ID = metadata.FileID(uuid.NewString())
	s.files[stored.ID] = stored
	s.paths[key] = stored.ID

	return stored.Clone(), nil
}

func (s *MemoryMetadataStore) GetFile(ctx context.Context, id metadata.FileID) (*metadata.FileEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return nil, metadata.NewNotFoundError("file", string(id))
	}
	return f.Clone(), nil
}

func (s *MemoryMetadataStore) GetFileByPath(ctx context.Context, owner metadata.AccountID, filename string) (*metadata.FileEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.paths[pathKey{owner: owner, filename: filename}]
	if !ok {
		return nil, metadata.NewNotFoundError("file", filename)
	}
	return s.files[id].Clone(), nil
}

// collect returns clones of every entry accepted by keep, ordered by filename.
func (s *MemoryMetadataStore) collect(keep func(f *metadata.FileEntry) bool) []*metadata.FileEntry {
	var result []*metadata.FileEntry
	for _, f := range s.files {
		if keep(f) {
			result = append(result, f.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *metadata.FileEntry) int {
		if c := strings.Compare(string(a.Owner), string(b.Owner)); c != 0 {
			return c
		}
		return strings.Compare(a.Filename, b.Filename)
	})
	return result
}

func (s *MemoryMetadataStore) FindFilesByLeafAndHash(ctx context.Context, owner metadata.AccountID, leaf string, hash []byte) ([]*metadata.FileEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(f *metadata.FileEntry) bool {
		return f.Owner == owner && f.Kind == metadata.KindRegular &&
			f.Leaf() == leaf && bytes.Equal(f.Hash, hash)
	}), nil
}

func (s *MemoryMetadataStore) ListChildren(ctx context.Context, owner metadata.AccountID, dir string) ([]*metadata.FileEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(f *metadata.FileEntry) bool {
		return f.Owner == owner && metadata.IsImmediateChild(dir, f.Filename)
	}), nil
}

func (s *MemoryMetadataStore) AdjustChildCount(ctx context.Context, owner metadata.AccountID, dir string, delta int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.paths[pathKey{owner: owner, filename: dir}]
	if !ok {
		return metadata.NewNotFoundError("directory", dir)
	}
	return metadata.ApplyChildCountDelta(s.files[id], delta)
}

func (s *MemoryMetadataStore) AdvanceLastValid(ctx context.Context, id metadata.FileID, expected, n uint64, at time.Time) (*metadata.FileEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return nil, metadata.NewNotFoundError("file", string(id))
	}
	if err := metadata.ApplyAdvance(f, expected, n, at); err != nil {
		return nil, err
	}
	return f.Clone(), nil
}

func (s *MemoryMetadataStore) MarkValid(ctx context.Context, id metadata.FileID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return metadata.NewNotFoundError("file", string(id))
	}
	return metadata.ApplyMarkValid(f)
}

func (s *MemoryMetadataStore) DeleteFile(ctx context.Context, id metadata.FileID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return metadata.NewNotFoundError("file", string(id))
	}
	delete(s.paths, pathKey{owner: f.Owner, filename: f.Filename})
	delete(s.files, id)
	return nil
}

func (s *MemoryMetadataStore) SumLastValidUnder(ctx context.Context, owner metadata.AccountID, dir string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var total uint64
	for _, f := range s.files {
		if f.Owner == owner && f.Kind == metadata.KindRegular && metadata.IsBelow(dir, f.Filename) {
			total += f.LastValid
		}
	}
	return total, nil
}

func (s *MemoryMetadataStore) DeleteFilesUnder(ctx context.Context, owner metadata.AccountID, dir string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, f := range s.files {
		if f.Owner == owner && metadata.IsAtOrBelow(dir, f.Filename) {
			delete(s.paths, pathKey{owner: f.Owner, filename: f.Filename})
			delete(s.files, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryMetadataStore) ListInvalidFiles(ctx context.Context, filter metadata.InvalidFileFilter) ([]*metadata.FileEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(filter.Matches), nil
}
