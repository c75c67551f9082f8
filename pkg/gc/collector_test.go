package gc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/storagecloud/pkg/cryptoutil"
	"github.com/marmos91/storagecloud/pkg/directory"
	contentmemory "github.com/marmos91/storagecloud/pkg/store/content/memory"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
	"github.com/marmos91/storagecloud/pkg/store/metadata/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type reclaimResult struct {
	credited  uint64
	reclaimed bool
	err       error
}

// fakeReclaimer returns canned entries and outcomes.
type fakeReclaimer struct {
	mu       sync.Mutex
	entries  []*metadata.FileEntry
	results  map[metadata.FileID]reclaimResult
	listErr  error
	block    bool
	before   time.Time
	listings atomic.Int64
	reclaims []metadata.FileID
}

func (r *fakeReclaimer) StaleUploads(ctx context.Context, before time.Time) ([]*metadata.FileEntry, error) {
	r.listings.Add(1)
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.before = before
	return r.entries, r.listErr
}

func (r *fakeReclaimer) ReclaimUpload(ctx context.Context, id metadata.FileID, before time.Time) (uint64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reclaims = append(r.reclaims, id)

	res, ok := r.results[id]
	if !ok {
		return 0, false, nil
	}
	return res.credited, res.reclaimed, res.err
}

type countingGCMetrics struct {
	runs      atomic.Int64
	failures  atomic.Int64
	reclaimed atomic.Int64
	bytes     atomic.Uint64
	failed    atomic.Int64
}

func (m *countingGCMetrics) RecordRun(_ time.Duration, err error) {
	m.runs.Add(1)
	if err != nil {
		m.failures.Add(1)
	}
}

func (m *countingGCMetrics) RecordReclaimed(files int, bytes uint64) {
	m.reclaimed.Add(int64(files))
	m.bytes.Add(bytes)
}

func (m *countingGCMetrics) RecordFailed(files int) {
	m.failed.Add(int64(files))
}

func entries(ids ...string) []*metadata.FileEntry {
	list := make([]*metadata.FileEntry, 0, len(ids))
	for _, id := range ids {
		list = append(list, &metadata.FileEntry{ID: metadata.FileID(id), Filename: "/" + id, Owner: "owner"})
	}
	return list
}

func TestNewCollector(t *testing.T) {
	_, err := NewCollector(nil, Config{}, nil)
	require.Error(t, err)

	c, err := NewCollector(&fakeReclaimer{}, Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, c.Config().Interval)
	assert.Equal(t, DefaultStaleAfter, c.Config().StaleAfter)
}

func TestRunNow(t *testing.T) {
	ctx := context.Background()
	reclaimer := &fakeReclaimer{
		entries: entries("a", "b", "c", "d"),
		results: map[metadata.FileID]reclaimResult{
			"a": {credited: 100, reclaimed: true},
			"b": {reclaimed: false},
			"c": {err: errors.New("disk failure")},
			"d": {credited: 23, reclaimed: true},
		},
	}
	m := &countingGCMetrics{}

	c, err := NewCollector(reclaimer, Config{StaleAfter: time.Hour}, m, WithClock(func() time.Time { return epoch }))
	require.NoError(t, err)

	stats, err := c.RunNow(ctx)
	require.NoError(t, err)

	assert.Equal(t, uint64(4), stats.Examined)
	assert.Equal(t, uint64(2), stats.Reclaimed)
	assert.Equal(t, uint64(1), stats.Skipped)
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, uint64(123), stats.BytesReclaimed)
	assert.False(t, stats.EndTime.IsZero())
	assert.Contains(t, stats.Summary(), "reclaimed=2")

	assert.Equal(t, epoch.Add(-time.Hour), reclaimer.before, "cutoff is now minus StaleAfter")
	assert.Equal(t, []metadata.FileID{"a", "b", "c", "d"}, reclaimer.reclaims)

	assert.Equal(t, int64(1), m.runs.Load())
	assert.Equal(t, int64(2), m.reclaimed.Load())
	assert.Equal(t, uint64(123), m.bytes.Load())
	assert.Equal(t, int64(1), m.failed.Load())
}

func TestRunNowDryRun(t *testing.T) {
	reclaimer := &fakeReclaimer{entries: entries("a", "b")}

	c, err := NewCollector(reclaimer, Config{DryRun: true}, nil)
	require.NoError(t, err)

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.Examined)
	assert.Equal(t, uint64(2), stats.Skipped)
	assert.Zero(t, stats.Reclaimed)
	assert.Empty(t, reclaimer.reclaims)
}

func TestRunNowListFailure(t *testing.T) {
	reclaimer := &fakeReclaimer{listErr: errors.New("store down")}
	m := &countingGCMetrics{}

	c, err := NewCollector(reclaimer, Config{}, m)
	require.NoError(t, err)

	stats, err := c.RunNow(context.Background())
	require.Error(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, int64(1), m.failures.Load())
}

func TestRunNowCancelled(t *testing.T) {
	reclaimer := &fakeReclaimer{entries: entries("a")}

	c, err := NewCollector(reclaimer, Config{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.RunNow(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reclaimer.reclaims)
}

func TestStartStop(t *testing.T) {
	reclaimer := &fakeReclaimer{}

	c, err := NewCollector(reclaimer, Config{Enabled: true, Interval: 5 * time.Millisecond}, nil)
	require.NoError(t, err)

	c.Start()
	c.Start()

	require.Eventually(t, func() bool {
		return reclaimer.listings.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx), "Stop is idempotent")

	after := reclaimer.listings.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, reclaimer.listings.Load(), "no passes after Stop")
}

func TestStopInterruptsPass(t *testing.T) {
	reclaimer := &fakeReclaimer{block: true}

	c, err := NewCollector(reclaimer, Config{Enabled: true, Interval: time.Millisecond}, nil)
	require.NoError(t, err)
	c.Start()

	require.Eventually(t, func() bool {
		return reclaimer.listings.Load() >= 1
	}, 2*time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
}

func TestDisabled(t *testing.T) {
	reclaimer := &fakeReclaimer{}

	c, err := NewCollector(reclaimer, Config{Enabled: false, Interval: time.Millisecond}, nil)
	require.NoError(t, err)

	c.Start()
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, reclaimer.listings.Load())
	require.NoError(t, c.Stop(context.Background()))
}

func TestStopBeforeStart(t *testing.T) {
	c, err := NewCollector(&fakeReclaimer{}, Config{Enabled: true}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Stop(context.Background()))
}

// TestCollectDirectory runs a pass against a real directory.
func TestCollectDirectory(t *testing.T) {
	ctx := context.Background()

	var (
		mu  sync.Mutex
		now = epoch
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	files := contentmemory.NewMemoryContentStore()
	dir := directory.New(memory.NewMemoryMetadataStore(), files,
		directory.Config{DefaultQuota: 1000}, directory.WithClock(clock))

	acct, err := dir.RegisterUser(ctx, directory.NewAccount{Username: "alice", Password: "pw"})
	require.NoError(t, err)

	begin := func(filename string, data []byte, n int) {
		t.Helper()
		cursor, _, err := dir.BeginUpload(ctx, acct.ID, directory.AddFileRequest{
			Filename: filename,
			Kind:     metadata.KindRegular,
			Size:     uint64(len(data)),
			Hash:     cryptoutil.HashContent(data),
		})
		require.NoError(t, err)
		if n > 0 {
			require.NoError(t, dir.AppendChunk(ctx, cursor, data[:n]))
		}
	}

	data := make([]byte, 100)
	begin("/abandoned.bin", data, 40)
	begin("/never-started.bin", data, 0)
	begin("/done.bin", data[:10], 10)

	advance(45 * time.Minute)
	begin("/recent.bin", data, 25)

	m := &countingGCMetrics{}
	c, err := NewCollector(dir, Config{StaleAfter: 30 * time.Minute}, m, WithClock(clock))
	require.NoError(t, err)

	stats, err := c.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.Reclaimed)
	assert.Equal(t, uint64(40), stats.BytesReclaimed)

	free, err := dir.FreeSpace(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000-10-25), free)

	assert.False(t, files.Exists("/alice/abandoned.bin"))
	assert.False(t, files.Exists("/alice/never-started.bin"))
	assert.True(t, files.Exists("/alice/recent.bin"))
	assert.True(t, files.Exists("/alice/done.bin"))

	// Nothing left to do
	stats, err = c.RunNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Examined)
}
