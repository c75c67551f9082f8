package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/storagecloud/internal/logger"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

// maxTxnRetries bounds how often an update is replayed after a write conflict.
const maxTxnRetries = 64

// BadgerMetadataStore implements metadata.Store using BadgerDB for persistence.
//
// Every Store method runs in a single BadgerDB transaction, so conditional
// updates (free space, upload offsets) are serializable. Transactions that
// lose a write conflict are replayed up to maxTxnRetries times.
//
// Storage Model:
// See keys.go for the key namespace layout.
type BadgerMetadataStore struct {
	// db is the BadgerDB database handle (thread-safe, uses internal MVCC)
	db *badger.DB
}

// BadgerMetadataStoreConfig contains configuration for creating a BadgerDB metadata store.
type BadgerMetadataStoreConfig struct {
	// DBPath is the directory where BadgerDB will store its files
	DBPath string `mapstructure:"db_path"`

	// InMemory keeps all data in RAM. DBPath is ignored when set.
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 64)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 32)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`
}

// NewBadgerMetadataStore opens (or creates) a BadgerDB database at config.DBPath.
//
// Parameters:
//   - ctx: Context for cancellation
//   - config: Database path and cache sizing
//
// Returns:
//   - *BadgerMetadataStore: A new store instance ready for use
//   - error: Error if the database cannot be opened or context is cancelled
func NewBadgerMetadataStore(ctx context.Context, config BadgerMetadataStoreConfig) (*BadgerMetadataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(config.DBPath)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}

	// Account and file records are small JSON documents
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	logger.Debug("Opened BadgerDB metadata store at %s (in_memory=%t)", config.DBPath, config.InMemory)
	return &BadgerMetadataStore{db: db}, nil
}

// update runs fn in a read-write transaction, replaying it on write conflicts.
func (s *BadgerMetadataStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) && attempt < maxTxnRetries {
			logger.Debug("BadgerDB write conflict, retrying (attempt %d)", attempt+1)
			continue
		}
		return err
	}
}

// view runs fn in a read-only transaction.
func (s *BadgerMetadataStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

// Healthcheck verifies the database is open and readable.
func (s *BadgerMetadataStore) Healthcheck(ctx context.Context) error {
	if s.db.IsClosed() {
		return &metadata.StoreError{Code: metadata.ErrIOError, Message: "database is closed"}
	}
	return s.view(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(keyUsername(""))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// Close closes the BadgerDB database and releases all resources.
func (s *BadgerMetadataStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}

var _ metadata.Store = (*BadgerMetadataStore)(nil)
