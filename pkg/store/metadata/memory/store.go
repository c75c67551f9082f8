package memory

import (
	"context"
	"sync"

	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

// MemoryMetadataStore implements metadata.Store with in-process maps.
//
// Suitable for tests and ephemeral deployments; nothing survives a restart.
// A single RWMutex guards all maps, so every method is trivially atomic.
type MemoryMetadataStore struct {
	mu sync.RWMutex

	accounts  map[metadata.AccountID]*metadata.Account
	usernames map[string]metadata.AccountID
	files     map[metadata.FileID]*metadata.FileEntry
	paths     map[pathKey]metadata.FileID
	closed    bool
}

type pathKey struct {
	owner    metadata.AccountID
	filename string
}

// NewMemoryMetadataStore creates an empty store.
func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{
		accounts:  make(map[metadata.AccountID]*metadata.Account),
		usernames: make(map[string]metadata.AccountID),
		files:     make(map[metadata.FileID]*metadata.FileEntry),
		paths:     make(map[pathKey]metadata.FileID),
	}
}

// Healthcheck reports an error once the store has been closed.
func (s *MemoryMetadataStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return &metadata.StoreError{Code: metadata.ErrIOError, Message: "store is closed"}
	}
	return nil
}

// Close marks the store closed. Data remains readable for tests.
func (s *MemoryMetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ metadata.Store = (*MemoryMetadataStore)(nil)
