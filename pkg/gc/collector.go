// Package gc reclaims abandoned uploads.
//
// An upload is abandoned when its record is still invalid and no chunk has
// arrived for longer than a configured threshold (a client that disconnected
// and never resumed). Abandoned uploads hold quota for the bytes they
// received and occupy space in the content store; the collector deletes
// them through the same path as an explicit delete, returning both.
//
// The collector works against any Reclaimer; *directory.Directory is the
// production implementation.
package gc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/storagecloud/internal/logger"
	"github.com/marmos91/storagecloud/pkg/metrics"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

const (
	// DefaultInterval is how often the collector wakes up.
	DefaultInterval = 5 * time.Minute

	// DefaultStaleAfter is how long an upload may go without a chunk.
	DefaultStaleAfter = 30 * time.Minute

	// runTimeout bounds a single periodic pass.
	runTimeout = 10 * time.Minute
)

// Reclaimer lists and deletes abandoned uploads.
type Reclaimer interface {
	// StaleUploads lists unfinished uploads whose last chunk is older than before.
	StaleUploads(ctx context.Context, before time.Time) ([]*metadata.FileEntry, error)

	// ReclaimUpload deletes the upload if it is still unfinished and older
	// than before, returning the quota bytes given back.
	ReclaimUpload(ctx context.Context, id metadata.FileID, before time.Time) (credited uint64, reclaimed bool, err error)
}

// Config contains configuration for the garbage collector.
type Config struct {
	// Enabled controls whether the background loop runs (RunNow works either way)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval is how often to sweep (default: 5m)
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"omitempty,gt=0"`

	// StaleAfter is the age of the last chunk after which an unfinished
	// upload is reclaimed (default: 30m)
	StaleAfter time.Duration `mapstructure:"stale_after" yaml:"stale_after" validate:"omitempty,gt=0"`

	// DryRun logs what would be reclaimed without deleting anything
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`
}

// ApplyDefaults fills in zero durations.
func (c *Config) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
}

// Collector periodically reclaims abandoned uploads.
//
// Thread Safety: Safe for concurrent use. Passes never overlap; RunNow waits
// for a running periodic pass and vice versa.
type Collector struct {
	reclaimer Reclaimer
	config    Config
	metrics   metrics.GCMetrics
	now       func() time.Time

	// runMu serializes passes; mu guards the lifecycle fields
	runMu     sync.Mutex
	mu        sync.Mutex
	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	cancel    context.CancelFunc
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// Option customizes a Collector.
type Option func(*Collector)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

// NewCollector creates a new garbage collector.
//
// The collector is initialized but not started. Call Start() to begin
// background collection.
//
// Parameters:
//   - reclaimer: Source and sink of abandoned uploads
//   - config: Collection settings (zero durations get defaults)
//   - m: Metrics sink, nil for none
//
// Returns:
//   - *Collector: Initialized collector (not started)
//   - error: Returns error if reclaimer is nil
func NewCollector(reclaimer Reclaimer, config Config, m metrics.GCMetrics, opts ...Option) (*Collector, error) {
	if reclaimer == nil {
		return nil, errors.New("gc: reclaimer is required")
	}
	if m == nil {
		m = metrics.NewNoopGCMetrics()
	}
	config.ApplyDefaults()

	c := &Collector{
		reclaimer: reclaimer,
		config:    config,
		metrics:   m,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the effective configuration.
func (c *Collector) Config() Config {
	return c.config
}

// Start begins background collection.
//
// Safe to call multiple times (subsequent calls are no-ops). Does nothing
// when collection is disabled.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Garbage collection disabled")
		return
	}

	c.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())

		c.mu.Lock()
		c.started = true
		c.cancel = cancel
		c.mu.Unlock()

		logger.Info("Starting garbage collector: interval=%s stale_after=%s dry_run=%v",
			c.config.Interval, c.config.StaleAfter, c.config.DryRun)

		go c.worker(ctx)
	})
}

// Stop stops the background loop and waits for it to finish.
//
// A pass in progress is cancelled. Safe to call multiple times and before
// Start.
//
// Parameters:
//   - ctx: Bounds the wait for the worker to exit
//
// Returns:
//   - error: Returns ctx's error if the worker did not exit in time
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	started, cancel := c.started, c.cancel
	c.mu.Unlock()

	if !started {
		return nil
	}

	c.stopOnce.Do(func() {
		logger.Info("Stopping garbage collector...")
		close(c.stopCh)
		cancel()
	})

	select {
	case <-c.doneCh:
		logger.Info("Garbage collector stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Garbage collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow runs one collection pass immediately and blocks until it ends.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//
// Returns:
//   - *Stats: Collection statistics (also on error, for the part that ran)
//   - error: Listing failure or context cancellation
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	logger.Debug("Running garbage collection (manual trigger)")
	return c.collect(ctx)
}

// worker is the background goroutine that runs periodic collection.
func (c *Collector) worker(ctx context.Context) {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, runTimeout)
			stats, err := c.collect(runCtx)
			cancel()

			switch {
			case err != nil && ctx.Err() != nil:
				logger.Info("Garbage collection interrupted by shutdown: %s", stats.Summary())
			case err != nil:
				logger.Error("Garbage collection failed: %v", err)
			case stats.Examined > 0:
				logger.Info("Garbage collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect performs a single pass.
//
//  1. List unfinished uploads whose last chunk is older than now - StaleAfter
//  2. Reclaim each one; the reclaimer re-checks the age under its own lock,
//     so uploads resumed since the listing are skipped
func (c *Collector) collect(ctx context.Context) (stats *Stats, err error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	start := time.Now()
	stats = &Stats{StartTime: start}
	defer func() {
		stats.EndTime = time.Now()
		c.metrics.RecordRun(stats.Duration(), err)
		c.metrics.RecordReclaimed(int(stats.Reclaimed), stats.BytesReclaimed)
		c.metrics.RecordFailed(int(stats.Failed))
	}()

	before := c.now().Add(-c.config.StaleAfter)

	// Phase 1: Candidates
	stale, err := c.reclaimer.StaleUploads(ctx, before)
	if err != nil {
		return stats, fmt.Errorf("list stale uploads: %w", err)
	}
	stats.Examined = uint64(len(stale))

	if len(stale) == 0 {
		return stats, nil
	}

	if c.config.DryRun {
		logger.Info("GC: DRY RUN - would reclaim %d uploads:", len(stale))
		for i, entry := range stale {
			if i == 10 {
				logger.Info("  ... and %d more", len(stale)-10)
				break
			}
			logger.Info("  - %s of %s (%d/%d bytes, last chunk %s)",
				entry.Filename, entry.Owner, entry.LastValid, entry.Size, entry.LastChunkAt.Format(time.RFC3339))
		}
		stats.Skipped = stats.Examined
		return stats, nil
	}

	// Phase 2: Reclaim
	for _, entry := range stale {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		credited, reclaimed, err := c.reclaimer.ReclaimUpload(ctx, entry.ID, before)
		switch {
		case err != nil:
			logger.Warn("GC: Failed to reclaim %s of %s: %v", entry.Filename, entry.Owner, err)
			stats.Failed++
		case !reclaimed:
			logger.Debug("GC: %s of %s changed since listing, skipped", entry.Filename, entry.Owner)
			stats.Skipped++
		default:
			stats.Reclaimed++
			stats.BytesReclaimed += credited
		}
	}

	logger.Debug("GC: %s", stats.Summary())
	return stats, nil
}

// Stats contains statistics from a collection pass.
type Stats struct {
	StartTime      time.Time // When the pass started
	EndTime        time.Time // When the pass ended
	Examined       uint64    // Stale uploads listed
	Reclaimed      uint64    // Uploads deleted
	Skipped        uint64    // Uploads left alone (resumed meanwhile, or dry run)
	Failed         uint64    // Uploads whose deletion failed
	BytesReclaimed uint64    // Quota bytes returned to owners
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the pass.
func (s *Stats) Summary() string {
	return fmt.Sprintf("examined=%d reclaimed=%d skipped=%d failed=%d bytes=%d duration=%s",
		s.Examined, s.Reclaimed, s.Skipped, s.Failed, s.BytesReclaimed, s.Duration())
}
