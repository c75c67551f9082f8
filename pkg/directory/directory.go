// Package directory implements the account and file directory: accounts,
// sessions and warnings, per-account quotas, sharing grants and the
// resumable chunked transfer protocol.
//
// Records live in a metadata.Store and file bytes in a content.Store. A
// file's content path is its owner's home directory joined with the
// filename, so "/docs/a.pdf" owned by alice lives at "/alice/docs/a.pdf".
//
// Atomicity:
// Contended fields (free space, LastValid, IsValid) are only changed
// through single conditional store operations. Multi-step sequences order
// their side effects as check, then disk, then store, and undo the disk
// step when the store step fails.
//
// Thread Safety:
// A Directory is safe for concurrent use. Appends, validation and deletion
// of a given file are serialized by a per-file lock.
package directory

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/storagecloud/pkg/metrics"
	"github.com/marmos91/storagecloud/pkg/store/content"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

const (
	// DefaultQuota is the total space granted to new regular accounts (1 GiB).
	DefaultQuota uint64 = 1 << 30

	// DefaultDownloadChunkSize is the largest chunk ReadChunk returns (64 KiB).
	DefaultDownloadChunkSize = 64 * 1024
)

// Config contains the directory settings.
type Config struct {
	// DefaultQuota is the total space of newly registered regular accounts
	DefaultQuota uint64 `mapstructure:"default_quota" yaml:"default_quota"`

	// DownloadChunkSize bounds the bytes returned by one ReadChunk call
	DownloadChunkSize int `mapstructure:"download_chunk_size" yaml:"download_chunk_size" validate:"omitempty,gt=0"`
}

func (c *Config) applyDefaults() {
	if c.DefaultQuota == 0 {
		c.DefaultQuota = DefaultQuota
	}
	if c.DownloadChunkSize <= 0 {
		c.DownloadChunkSize = DefaultDownloadChunkSize
	}
}

// Directory is the central account and file service.
type Directory struct {
	meta    metadata.Store
	files   content.Store
	config  Config
	metrics metrics.DirectoryMetrics
	now     func() time.Time
	locks   *fileLocks
}

// Option customizes a Directory.
type Option func(*Directory)

// WithMetrics sets the metrics sink. A nil value keeps the no-op sink.
func WithMetrics(m metrics.DirectoryMetrics) Option {
	return func(d *Directory) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		d.now = now
	}
}

// New creates a directory over the given stores.
func New(meta metadata.Store, files content.Store, cfg Config, opts ...Option) *Directory {
	cfg.applyDefaults()

	d := &Directory{
		meta:    meta,
		files:   files,
		config:  cfg,
		metrics: metrics.NewNoopDirectoryMetrics(),
		now:     time.Now,
		locks:   newFileLocks(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns the effective configuration.
func (d *Directory) Config() Config {
	return d.config
}

// Healthcheck verifies the metadata store is reachable.
func (d *Directory) Healthcheck(ctx context.Context) error {
	return storeError("healthcheck", d.meta.Healthcheck(ctx))
}

// observe records the outcome of an operation started at start.
//
//	defer d.observe("ListFiles", time.Now(), &err)
func (d *Directory) observe(op string, start time.Time, err *error) {
	d.metrics.RecordOperation(op, time.Since(start), *err)
}

// account loads an account record.
func (d *Directory) account(ctx context.Context, op string, id metadata.AccountID) (*metadata.Account, error) {
	acct, err := d.meta.GetAccount(ctx, id)
	if err != nil {
		return nil, storeError(op, err)
	}
	return acct, nil
}

// contentPath joins a home directory and a filename into a content store path.
func contentPath(homeDir, filename string) string {
	return homeDir + filename
}

// ============================================================================
// Per-file locks
// ============================================================================

// fileLocks hands out one mutex per file id, dropping it once no goroutine
// holds or waits for it.
type fileLocks struct {
	mu    sync.Mutex
	locks map[metadata.FileID]*fileLock
}

type fileLock struct {
	mu   sync.Mutex
	refs int
}

func newFileLocks() *fileLocks {
	return &fileLocks{locks: make(map[metadata.FileID]*fileLock)}
}

// lock acquires the mutex for id and returns its release function.
func (l *fileLocks) lock(id metadata.FileID) func() {
	l.mu.Lock()
	fl, ok := l.locks[id]
	if !ok {
		fl = &fileLock{}
		l.locks[id] = fl
	}
	fl.refs++
	l.mu.Unlock()

	fl.mu.Lock()

	return func() {
		fl.mu.Unlock()

		l.mu.Lock()
		fl.refs--
		if fl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// held returns the number of ids with a holder or waiter.
func (l *fileLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
