package memory

import (
	"context"
	"slices"

	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

func (s *MemoryMetadataStore) AddGrant(ctx context.Context, id metadata.FileID, grantee metadata.AccountID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return metadata.NewNotFoundError("file", string(id))
	}
	if !f.IsSharedWith(grantee) {
		f.SharedWith = append(f.SharedWith, grantee)
	}
	return nil
}

func (s *MemoryMetadataStore) RemoveGrant(ctx context.Context, id metadata.FileID, grantee metadata.AccountID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return metadata.NewNotFoundError("file", string(id))
	}
	f.SharedWith = slices.DeleteFunc(f.SharedWith, func(g metadata.AccountID) bool { return g == grantee })
	return nil
}

func (s *MemoryMetadataStore) ListSharedWith(ctx context.Context, grantee metadata.AccountID) ([]*metadata.FileEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(f *metadata.FileEntry) bool {
		return f.Kind == metadata.KindRegular && f.IsValid && f.IsSharedWith(grantee)
	}), nil
}
