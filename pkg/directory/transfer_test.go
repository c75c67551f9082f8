package directory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/storagecloud/pkg/cryptoutil"
	"github.com/marmos91/storagecloud/pkg/store/content"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func regular(filename string, data []byte) AddFileRequest {
	return AddFileRequest{
		Filename: filename,
		Kind:     metadata.KindRegular,
		Size:     uint64(len(data)),
		Hash:     cryptoutil.HashContent(data),
	}
}

// ============================================================================
// Uploads
// ============================================================================

func TestUploadAndValidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	f.mkdir(t, alice, "/docs")
	data := payload(500)

	cursor, status, err := f.dir.BeginUpload(ctx, alice, regular("/docs/report.pdf", data))
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, status)
	assert.True(t, cursor.Active())
	assert.Equal(t, uint64(500), cursor.Remaining())

	entry := f.entry(t, alice, "/docs/report.pdf")
	assert.Zero(t, entry.LastValid)
	assert.False(t, entry.IsValid)
	assert.Equal(t, uint64(1000), f.free(t, alice), "nothing is reserved up front")

	require.NoError(t, f.dir.AppendChunk(ctx, cursor, data))

	assert.True(t, cursor.Completed())
	assert.False(t, cursor.Active())
	assert.Equal(t, uint64(500), f.free(t, alice))

	entry = f.entry(t, alice, "/docs/report.pdf")
	assert.True(t, entry.IsValid)
	assert.Equal(t, uint64(500), entry.LastValid)
	assert.Equal(t, int64(500), f.metrics.uploaded.Load())

	assert.ErrorIs(t, f.dir.AppendChunk(ctx, cursor, []byte("x")), ErrNoTransfer)
	f.assertLedger(t, alice)
}

func TestUploadInChunks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	data := payload(100)

	cursor := f.begin(t, alice, "/a.bin", data)
	for off := 0; off < len(data); off += 30 {
		end := min(off+30, len(data))
		require.NoError(t, f.dir.AppendChunk(ctx, cursor, data[off:end]))

		entry := cursor.Entry()
		assert.Equal(t, uint64(end), entry.LastValid)
		assert.Equal(t, uint64(1000-end), f.free(t, alice))
		f.assertLedger(t, alice)
	}
	assert.True(t, cursor.Completed())

	rc, err := f.files.Open(ctx, "/alice/a.bin")
	require.NoError(t, err)
	defer rc.Close()
	digest, _, err := cryptoutil.HashReader(rc)
	require.NoError(t, err)
	assert.Equal(t, cryptoutil.HashContent(data), digest)
}

func TestLastChunkTimeTracksAppends(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	data := payload(20)

	cursor := f.begin(t, alice, "/a.bin", data)
	assert.Equal(t, epoch, f.entry(t, alice, "/a.bin").LastChunkAt, "creation counts as the first activity")

	f.clock.Advance(time.Minute)
	require.NoError(t, f.dir.AppendChunk(ctx, cursor, data[:5]))
	assert.Equal(t, epoch.Add(time.Minute), f.entry(t, alice, "/a.bin").LastChunkAt)
}

func TestResumeUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	f.mkdir(t, alice, "/docs")
	data := payload(500)

	f.partial(t, alice, "/docs/report.pdf", data, 300)
	assert.Equal(t, uint64(700), f.free(t, alice))

	cursor, status, err := f.dir.BeginUpload(ctx, alice, regular("/docs/report.pdf", data))
	require.NoError(t, err)
	assert.Equal(t, StatusResumed, status)
	assert.Equal(t, uint64(300), cursor.Entry().LastValid)
	assert.Equal(t, uint64(200), cursor.Remaining())

	// 201 bytes would pass the declared size
	tooMuch := append(data[300:], 'x')
	err = f.dir.AppendChunk(ctx, cursor, tooMuch)
	assert.ErrorIs(t, err, ErrChunkOverflow)
	assert.Equal(t, uint64(700), f.free(t, alice), "rejected chunk has no side effects")
	assert.Equal(t, uint64(300), f.entry(t, alice, "/docs/report.pdf").LastValid)

	require.NoError(t, f.dir.AppendChunk(ctx, cursor, data[300:]))
	assert.True(t, cursor.Completed())
	assert.Equal(t, uint64(500), f.free(t, alice))
	f.assertLedger(t, alice)
}

func TestResumeRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	data := payload(500)

	f.partial(t, alice, "/r.bin", data, 300)

	t.Run("DifferentHash", func(t *testing.T) {
		req := regular("/r.bin", data)
		req.Hash = cryptoutil.HashContent([]byte("something else"))
		_, _, err := f.dir.BeginUpload(ctx, alice, req)
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("DifferentSize", func(t *testing.T) {
		req := regular("/r.bin", data)
		req.Size = 499
		_, _, err := f.dir.BeginUpload(ctx, alice, req)
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("AsDirectory", func(t *testing.T) {
		_, _, err := f.dir.BeginUpload(ctx, alice, AddFileRequest{Filename: "/r.bin", Kind: metadata.KindDirectory})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("NotEnoughSpace", func(t *testing.T) {
		_, err := f.dir.ChangeFreeSpace(ctx, alice, -600)
		require.NoError(t, err)
		defer func() {
			_, err := f.dir.ChangeFreeSpace(ctx, alice, 600)
			require.NoError(t, err)
		}()

		_, _, err = f.dir.BeginUpload(ctx, alice, regular("/r.bin", data))
		assert.ErrorIs(t, err, ErrQuotaExceeded)
	})

	t.Run("Completed", func(t *testing.T) {
		f.upload(t, alice, "/done.bin", payload(10))
		_, _, err := f.dir.BeginUpload(ctx, alice, regular("/done.bin", payload(10)))
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})
}

func TestBeginUploadPathChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	f.upload(t, alice, "/file.txt", payload(3))
	f.mkdir(t, alice, "/dir")

	tests := []struct {
		name     string
		filename string
		want     error
	}{
		{"root", "/", ErrInvalidPath},
		{"relative", "docs/a.txt", ErrInvalidPath},
		{"trailing slash", "/dir/", ErrInvalidPath},
		{"dot dot", "/dir/../a.txt", ErrInvalidPath},
		{"missing parent", "/nowhere/a.txt", ErrInvalidPath},
		{"parent is a file", "/file.txt/a.txt", ErrInvalidPath},
		{"directory exists", "/dir", ErrAlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.dir.BeginUpload(ctx, alice, regular(tt.filename, payload(1)))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, _, err := f.dir.BeginUpload(ctx, alice, AddFileRequest{Filename: "/x", Kind: metadata.FileKind(9)})
	assert.ErrorIs(t, err, ErrInternalInconsistency)

	assert.Equal(t, uint64(997), f.free(t, alice))
}

func TestBeginUploadQuota(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")

	_, _, err := f.dir.BeginUpload(ctx, alice, regular("/huge.bin", payload(1001)))
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, int64(1), f.metrics.quotaRejections.Load())
	assert.False(t, f.files.Exists("/alice/huge.bin"), "quota is checked before any side effect")

	_, err = f.meta.GetFileByPath(ctx, alice, "/huge.bin")
	assert.True(t, metadata.IsNotFound(err))
}

func TestAppendChunkQuota(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	first, second := payload(600), payload(600)
	second[0] = 'z'

	c1 := f.begin(t, alice, "/one.bin", first)
	c2 := f.begin(t, alice, "/two.bin", second)

	require.NoError(t, f.dir.AppendChunk(ctx, c1, first))

	err := f.dir.AppendChunk(ctx, c2, second)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, uint64(400), f.free(t, alice))
	assert.Zero(t, f.entry(t, alice, "/two.bin").LastValid)
	assert.True(t, c2.Active(), "cursor survives a rejected chunk")

	// Still fits in smaller pieces up to the free space
	require.NoError(t, f.dir.AppendChunk(ctx, c2, second[:400]))
	assert.Zero(t, f.free(t, alice))
	f.assertLedger(t, alice)
}

func TestEmptyChunkIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	data := payload(10)

	cursor := f.begin(t, alice, "/a.bin", data)
	require.NoError(t, f.dir.AppendChunk(ctx, cursor, nil))
	assert.Zero(t, cursor.Entry().LastValid)
	assert.True(t, cursor.Active())
}

func TestEmptyFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")

	cursor, status, err := f.dir.BeginUpload(ctx, alice, regular("/empty", nil))
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, status)
	assert.True(t, cursor.Completed())
	assert.False(t, cursor.Active())

	list, err := f.dir.ListFiles(ctx, alice, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"/empty"}, filenames(list))
	assert.Equal(t, uint64(1000), f.free(t, alice))
}

func TestIntegrityMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")

	declared := payload(50)
	actual := payload(50)
	actual[10] = '!'

	cursor := f.begin(t, alice, "/bad.bin", declared)
	require.NoError(t, f.dir.AppendChunk(ctx, cursor, actual[:20]))

	err := f.dir.AppendChunk(ctx, cursor, actual[20:])
	assert.ErrorIs(t, err, ErrIntegrityMismatch)
	assert.False(t, cursor.Active())
	assert.False(t, cursor.Completed())

	_, err = f.meta.GetFileByPath(ctx, alice, "/bad.bin")
	assert.True(t, metadata.IsNotFound(err), "record removed")
	assert.False(t, f.files.Exists("/alice/bad.bin"), "content removed")
	assert.Equal(t, uint64(1000), f.free(t, alice), "bytes refunded")
	assert.Equal(t, int64(1), f.metrics.integrityFailures.Load())
	f.assertLedger(t, alice)
}

func TestIntegrityLengthMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	data := payload(40)

	cursor := f.begin(t, alice, "/a.bin", data)
	require.NoError(t, f.dir.AppendChunk(ctx, cursor, data[:30]))

	// Something else grew the content behind the directory's back
	require.NoError(t, f.files.WriteAt(ctx, "/alice/a.bin", 30, payload(20)))

	err := f.dir.AppendChunk(ctx, cursor, data[30:])
	assert.ErrorIs(t, err, ErrIntegrityMismatch)
	assert.Equal(t, uint64(1000), f.free(t, alice))
}

func TestDeletedDuringUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	data := payload(30)

	cursor := f.partial(t, alice, "/a.bin", data, 10)
	require.NoError(t, f.dir.DeleteFile(ctx, alice, "/a.bin"))

	err := f.dir.AppendChunk(ctx, cursor, data[10:])
	assert.ErrorIs(t, err, ErrNoTransfer)
	assert.False(t, cursor.Active())
	assert.Equal(t, uint64(1000), f.free(t, alice))
}

func TestStaleCursor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	data := payload(60)

	f.partial(t, alice, "/a.bin", data, 20)

	first, _, err := f.dir.BeginUpload(ctx, alice, regular("/a.bin", data))
	require.NoError(t, err)
	second, _, err := f.dir.BeginUpload(ctx, alice, regular("/a.bin", data))
	require.NoError(t, err)

	require.NoError(t, f.dir.AppendChunk(ctx, first, data[20:40]))

	err = f.dir.AppendChunk(ctx, second, data[20:40])
	assert.ErrorIs(t, err, ErrConcurrentTransfer)
	assert.Equal(t, uint64(40), f.entry(t, alice, "/a.bin").LastValid)
	assert.Equal(t, uint64(960), f.free(t, alice))
}

func TestConcurrentResume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	data := payload(200)

	f.partial(t, alice, "/race.bin", data, 50)

	const writers = 8
	cursors := make([]*UploadCursor, writers)
	for i := range cursors {
		c, status, err := f.dir.BeginUpload(ctx, alice, regular("/race.bin", data))
		require.NoError(t, err)
		require.Equal(t, StatusResumed, status)
		cursors[i] = c
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		won    int
		others []error
	)
	for _, c := range cursors {
		wg.Add(1)
		go func(c *UploadCursor) {
			defer wg.Done()
			err := f.dir.AppendChunk(ctx, c, data[50:])

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				won++
			} else {
				others = append(others, err)
			}
		}(c)
	}
	wg.Wait()

	assert.Equal(t, 1, won, "exactly one writer commits")
	for _, err := range others {
		assert.ErrorIs(t, err, ErrConcurrentTransfer)
	}

	entry := f.entry(t, alice, "/race.bin")
	assert.True(t, entry.IsValid)
	assert.Equal(t, uint64(800), f.free(t, alice))
	f.assertLedger(t, alice)
	assert.Zero(t, f.dir.locks.held())
}

func TestConcurrentUploadsShareQuota(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")

	const uploads = 10
	contents := make([][]byte, uploads)
	cursors := make([]*UploadCursor, uploads)
	for i := range uploads {
		contents[i] = payload(150)
		contents[i][0] = byte(i)
		cursors[i] = f.begin(t, alice, "/f"+string(rune('a'+i)), contents[i])
	}

	var wg sync.WaitGroup
	for i := range uploads {
		wg.Add(1)
		go func(cursor *UploadCursor, data []byte) {
			defer wg.Done()
			for off := 0; off < len(data); off += 50 {
				if err := f.dir.AppendChunk(ctx, cursor, data[off:off+50]); err != nil {
					return
				}
			}
		}(cursors[i], contents[i])
	}
	wg.Wait()

	// 10 x 150 bytes cannot fit in 1000; whatever was accepted is accounted
	f.assertLedger(t, alice)
	assert.Zero(t, f.free(t, alice)%50)
}

func TestAppendRollback(t *testing.T) {
	ctx := context.Background()

	t.Run("DiskFailure", func(t *testing.T) {
		var files *faultyFiles
		f := newFixture(t, nil, func(s content.Store) content.Store {
			files = &faultyFiles{Store: s}
			return files
		})
		alice := f.register(t, "alice")
		data := payload(40)

		cursor := f.partial(t, alice, "/a.bin", data, 10)
		files.writeErr = errors.New("disk full")

		err := f.dir.AppendChunk(ctx, cursor, data[10:])
		assert.ErrorIs(t, err, ErrDiskFailure)
		assert.Equal(t, uint64(990), f.free(t, alice), "debit refunded")
		assert.Equal(t, uint64(10), f.entry(t, alice, "/a.bin").LastValid)
		assert.True(t, cursor.Active())

		files.writeErr = nil
		require.NoError(t, f.dir.AppendChunk(ctx, cursor, data[10:]))
		assert.True(t, cursor.Completed())
		f.assertLedger(t, alice)
	})

	t.Run("CommitFailure", func(t *testing.T) {
		var meta *faultyMeta
		f := newFixture(t, func(s metadata.Store) metadata.Store {
			meta = &faultyMeta{Store: s}
			return meta
		}, nil)
		alice := f.register(t, "alice")
		data := payload(40)

		cursor := f.partial(t, alice, "/a.bin", data, 10)
		meta.advanceErr = errors.New("connection reset")

		err := f.dir.AppendChunk(ctx, cursor, data[10:])
		assert.ErrorIs(t, err, ErrStoreFailure)
		assert.Equal(t, uint64(990), f.free(t, alice), "debit refunded")

		size, err := f.files.Size(ctx, "/alice/a.bin")
		require.NoError(t, err)
		assert.Equal(t, uint64(10), size, "content cut back to LastValid")

		meta.advanceErr = nil
		require.NoError(t, f.dir.AppendChunk(ctx, cursor, data[10:]))
		assert.True(t, cursor.Completed())
	})

	t.Run("MarkValidFailure", func(t *testing.T) {
		var meta *faultyMeta
		f := newFixture(t, func(s metadata.Store) metadata.Store {
			meta = &faultyMeta{Store: s}
			return meta
		}, nil)
		alice := f.register(t, "alice")
		data := payload(40)

		cursor := f.begin(t, alice, "/a.bin", data)
		meta.markValidErr = errors.New("write conflict")

		err := f.dir.AppendChunk(ctx, cursor, data)
		assert.ErrorIs(t, err, ErrInternalInconsistency)
		assert.False(t, cursor.Active())

		_, err = f.meta.GetFileByPath(ctx, alice, "/a.bin")
		assert.True(t, metadata.IsNotFound(err))
		assert.Equal(t, uint64(1000), f.free(t, alice))
	})
}

// TestCreateRaceKeepsWinnerContent starts the same new file from a second
// directory whose store has not seen the first insert yet. The loser must
// fail without touching the content the winner is writing.
func TestCreateRaceKeepsWinnerContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	data := payload(10)

	winner := f.partial(t, alice, "/f.bin", data, 5)

	stale := &faultyMeta{Store: f.meta, pathMisses: 1}
	other := New(stale, f.files, f.dir.Config(), WithClock(f.clock.Now))
	_, _, err := other.BeginUpload(ctx, alice, AddFileRequest{
		Filename: "/f.bin",
		Kind:     metadata.KindRegular,
		Size:     uint64(len(data)),
		Hash:     cryptoutil.HashContent(data),
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	size, err := f.files.Size(ctx, "/alice/f.bin")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), size, "winner's bytes untouched")

	require.NoError(t, f.dir.AppendChunk(ctx, winner, data[5:]))
	assert.True(t, winner.Completed())

	cursor, err := f.dir.BeginDownload(ctx, alice, "/f.bin", 0)
	require.NoError(t, err)
	assert.Equal(t, data, readAll(t, f.dir, cursor))
	f.assertLedger(t, alice)
}

func TestBeginUploadDiskFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("RegularFile", func(t *testing.T) {
		var files *faultyFiles
		f := newFixture(t, nil, func(s content.Store) content.Store {
			files = &faultyFiles{Store: s, createErr: errors.New("read-only filesystem")}
			return files
		})
		alice := f.register(t, "alice")
		data := payload(8)

		_, _, err := f.dir.BeginUpload(ctx, alice, AddFileRequest{
			Filename: "/a.bin",
			Kind:     metadata.KindRegular,
			Size:     uint64(len(data)),
			Hash:     cryptoutil.HashContent(data),
		})
		assert.ErrorIs(t, err, ErrDiskFailure)

		_, err = f.meta.GetFileByPath(ctx, alice, "/a.bin")
		assert.True(t, metadata.IsNotFound(err), "record removed again")

		files.createErr = nil
		f.upload(t, alice, "/a.bin", data)
	})

	t.Run("Directory", func(t *testing.T) {
		var files *faultyFiles
		f := newFixture(t, nil, func(s content.Store) content.Store {
			files = &faultyFiles{Store: s, mkdirErr: errors.New("read-only filesystem")}
			return files
		})
		alice := f.register(t, "alice")

		_, _, err := f.dir.BeginUpload(ctx, alice, AddFileRequest{
			Filename: "/docs",
			Kind:     metadata.KindDirectory,
		})
		assert.ErrorIs(t, err, ErrDiskFailure)

		_, err = f.meta.GetFileByPath(ctx, alice, "/docs")
		assert.True(t, metadata.IsNotFound(err), "record removed again")

		files.mkdirErr = nil
		f.mkdir(t, alice, "/docs")
	})
}

func TestAdminCannotUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	admin, err := f.dir.RegisterUser(ctx, NewAccount{Username: "root", Role: metadata.RoleAdmin})
	require.NoError(t, err)

	_, _, err = f.dir.BeginUpload(ctx, admin.ID, regular("/a.bin", payload(1)))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

// ============================================================================
// Downloads
// ============================================================================

func readAll(t *testing.T, d *Directory, cursor *DownloadCursor) []byte {
	t.Helper()
	var out []byte
	for cursor.Active() {
		chunk, err := d.ReadChunk(context.Background(), cursor)
		require.NoError(t, err)
		require.LessOrEqual(t, len(chunk), 4)
		out = append(out, chunk...)
	}
	return out
}

func TestDownload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	data := payload(10)
	f.upload(t, alice, "/a.txt", data)

	t.Run("Whole", func(t *testing.T) {
		cursor, err := f.dir.BeginDownload(ctx, alice, "/a.txt", 0)
		require.NoError(t, err)

		chunk, err := f.dir.ReadChunk(ctx, cursor)
		require.NoError(t, err)
		assert.Equal(t, data[:4], chunk)
		assert.Equal(t, uint64(4), cursor.Offset())

		rest := readAll(t, f.dir, cursor)
		assert.Equal(t, data[4:], rest)
		assert.False(t, cursor.Active())

		_, err = f.dir.ReadChunk(ctx, cursor)
		assert.ErrorIs(t, err, ErrNoTransfer)
	})

	t.Run("FromOffset", func(t *testing.T) {
		cursor, err := f.dir.BeginDownload(ctx, alice, "/a.txt", 6)
		require.NoError(t, err)
		assert.Equal(t, data[6:], readAll(t, f.dir, cursor))
	})

	t.Run("LastByte", func(t *testing.T) {
		cursor, err := f.dir.BeginDownload(ctx, alice, "/a.txt", 9)
		require.NoError(t, err)
		assert.Equal(t, data[9:], readAll(t, f.dir, cursor))
	})

	t.Run("OffsetAtEnd", func(t *testing.T) {
		_, err := f.dir.BeginDownload(ctx, alice, "/a.txt", 10)
		assert.ErrorIs(t, err, ErrInvalidOffset)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := f.dir.BeginDownload(ctx, alice, "/nope", 0)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.Equal(t, int64(10+4+1), f.metrics.downloaded.Load())
}

func TestDownloadRequiresValidRegularFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	f.partial(t, alice, "/half.bin", payload(20), 10)
	f.mkdir(t, alice, "/dir")

	_, err := f.dir.BeginDownload(ctx, alice, "/half.bin", 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.dir.BeginDownload(ctx, alice, "/dir", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestShortRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	f.upload(t, alice, "/a.txt", payload(10))

	cursor, err := f.dir.BeginDownload(ctx, alice, "/a.txt", 4)
	require.NoError(t, err)

	require.NoError(t, f.files.Truncate(ctx, "/alice/a.txt", 6))

	_, err = f.dir.ReadChunk(ctx, cursor)
	assert.ErrorIs(t, err, ErrDiskFailure)
	assert.Equal(t, uint64(4), cursor.Offset(), "cursor unchanged")
	assert.True(t, cursor.Active())
}

func TestSharedDownload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	carol := f.register(t, "carol")

	data := payload(9)
	hash := cryptoutil.HashContent(data)
	f.mkdir(t, alice, "/docs")
	f.upload(t, alice, "/docs/report.pdf", data)
	require.NoError(t, f.dir.ShareWith(ctx, alice, "/docs/report.pdf", "bob"))

	t.Run("Grantee", func(t *testing.T) {
		cursor, err := f.dir.BeginSharedDownload(ctx, bob, "alice", "report.pdf", hash, 0)
		require.NoError(t, err)
		assert.Equal(t, data, readAll(t, f.dir, cursor))
	})

	t.Run("Owner", func(t *testing.T) {
		cursor, err := f.dir.BeginSharedDownload(ctx, alice, "alice", "report.pdf", hash, 5)
		require.NoError(t, err)
		assert.Equal(t, data[5:], readAll(t, f.dir, cursor))
	})

	t.Run("NoGrant", func(t *testing.T) {
		_, err := f.dir.BeginSharedDownload(ctx, carol, "alice", "report.pdf", hash, 0)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("WrongHash", func(t *testing.T) {
		_, err := f.dir.BeginSharedDownload(ctx, bob, "alice", "report.pdf", cryptoutil.HashContent(nil), 0)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("UnknownOwner", func(t *testing.T) {
		_, err := f.dir.BeginSharedDownload(ctx, bob, "mallory", "report.pdf", hash, 0)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

// TestSharedDownloadSkipsUnusableCopies places an unfinished copy and an
// unshared copy with the same leaf and hash before the shared one.
func TestSharedDownloadSkipsUnusableCopies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	data := payload(9)
	hash := cryptoutil.HashContent(data)
	f.mkdir(t, alice, "/a")
	f.mkdir(t, alice, "/b")
	f.mkdir(t, alice, "/c")

	// "/a/report.pdf" sorts first but is unfinished and shared
	f.partial(t, alice, "/a/report.pdf", data, 3)
	require.NoError(t, f.meta.AddGrant(ctx, f.entry(t, alice, "/a/report.pdf").ID, bob))

	// "/b/report.pdf" is valid but not shared
	f.upload(t, alice, "/b/report.pdf", data)

	f.upload(t, alice, "/c/report.pdf", data)
	require.NoError(t, f.dir.ShareWith(ctx, alice, "/c/report.pdf", "bob"))

	cursor, err := f.dir.BeginSharedDownload(ctx, bob, "alice", "report.pdf", hash, 0)
	require.NoError(t, err)
	assert.Equal(t, data, readAll(t, f.dir, cursor))

	info, err := f.dir.FindSharedFile(ctx, alice, "report.pdf", hash)
	require.NoError(t, err)
	assert.Equal(t, "/b/report.pdf", info.Filename, "first valid copy")
}

// ============================================================================
// Abandoned uploads
// ============================================================================

func TestReclaimUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	data := payload(100)

	f.mkdir(t, alice, "/tmp")
	f.partial(t, alice, "/tmp/old.bin", data, 30)
	f.upload(t, alice, "/kept.bin", payload(5))

	f.clock.Advance(time.Hour)
	fresh := f.partial(t, alice, "/fresh.bin", data, 20)

	before := f.clock.Now().Add(-30 * time.Minute)
	stale, err := f.dir.StaleUploads(ctx, before)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "/tmp/old.bin", stale[0].Filename)

	credited, reclaimed, err := f.dir.ReclaimUpload(ctx, stale[0].ID, before)
	require.NoError(t, err)
	assert.True(t, reclaimed)
	assert.Equal(t, uint64(30), credited)
	assert.False(t, f.files.Exists("/alice/tmp/old.bin"))
	assert.Zero(t, f.entry(t, alice, "/tmp").Size)

	// Reclaiming twice finds nothing
	credited, reclaimed, err = f.dir.ReclaimUpload(ctx, stale[0].ID, before)
	require.NoError(t, err)
	assert.False(t, reclaimed)
	assert.Zero(t, credited)

	// A fresh upload is never reclaimed
	_, reclaimed, err = f.dir.ReclaimUpload(ctx, fresh.Entry().ID, before)
	require.NoError(t, err)
	assert.False(t, reclaimed)

	assert.Equal(t, uint64(1000-5-20), f.free(t, alice))
	f.assertLedger(t, alice)
}

func TestReclaimSkipsResumedUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	data := payload(100)

	cursor := f.partial(t, alice, "/a.bin", data, 30)
	f.clock.Advance(time.Hour)
	before := f.clock.Now().Add(-30 * time.Minute)

	stale, err := f.dir.StaleUploads(ctx, before)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	// A chunk arrives between the scan and the reclaim
	require.NoError(t, f.dir.AppendChunk(ctx, cursor, data[30:40]))

	_, reclaimed, err := f.dir.ReclaimUpload(ctx, stale[0].ID, before)
	require.NoError(t, err)
	assert.False(t, reclaimed)
	assert.Equal(t, uint64(40), f.entry(t, alice, "/a.bin").LastValid)
}

func TestRemoveUnfinished(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	f.partial(t, alice, "/one.bin", payload(50), 10)
	f.partial(t, alice, "/two.bin", payload(50), 20)
	f.upload(t, alice, "/done.bin", payload(7))
	f.partial(t, bob, "/bob.bin", payload(50), 5)

	removed, err := f.dir.RemoveUnfinished(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	list, err := f.dir.ListFiles(ctx, alice, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"/done.bin"}, filenames(list))
	assert.Equal(t, uint64(993), f.free(t, alice))
	f.assertLedger(t, alice)

	_, err = f.meta.GetFileByPath(ctx, bob, "/bob.bin")
	assert.NoError(t, err, "other accounts are untouched")

	removed, err = f.dir.RemoveUnfinished(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
