package directory

import (
	"context"
	"testing"

	"github.com/marmos91/storagecloud/pkg/cryptoutil"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filenames(list []FileInfo) []string {
	names := make([]string, 0, len(list))
	for _, info := range list {
		names = append(names, info.Filename)
	}
	return names
}

func TestListFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")

	f.mkdir(t, alice, "/docs")
	f.upload(t, alice, "/docs/a.txt", payload(5))
	f.upload(t, alice, "/docs/b.txt", payload(6))
	f.partial(t, alice, "/docs/c.txt", payload(10), 4)
	f.mkdir(t, alice, "/docs/old")
	f.upload(t, alice, "/docs/old/deep.txt", payload(3))
	f.upload(t, alice, "/readme", payload(2))

	t.Run("Root", func(t *testing.T) {
		for _, root := range []string{"", "/"} {
			list, err := f.dir.ListFiles(ctx, alice, root)
			require.NoError(t, err)
			assert.Equal(t, []string{"/docs", "/readme"}, filenames(list))
		}
	})

	t.Run("OneLevelValidOnly", func(t *testing.T) {
		list, err := f.dir.ListFiles(ctx, alice, "/docs")
		require.NoError(t, err)
		assert.Equal(t, []string{"/docs/a.txt", "/docs/b.txt", "/docs/old"}, filenames(list))

		assert.Equal(t, "/alice/docs/a.txt", list[0].RealPath)
		assert.Equal(t, "alice", list[0].OwnerUsername)
		assert.Equal(t, "Name-alice Surname-alice", list[0].OwnerName)
		assert.False(t, list[0].IsShared)
	})

	t.Run("TrailingSlash", func(t *testing.T) {
		list, err := f.dir.ListFiles(ctx, alice, "/docs/")
		require.NoError(t, err)
		assert.Len(t, list, 3)
	})

	t.Run("ChildCount", func(t *testing.T) {
		info, err := f.dir.FileMetadata(ctx, alice, "/docs", metadata.KindDirectory)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), info.Size, "directories count their children")
	})

	t.Run("Relative", func(t *testing.T) {
		_, err := f.dir.ListFiles(ctx, alice, "docs")
		assert.ErrorIs(t, err, ErrInvalidPath)
	})

	t.Run("Empty", func(t *testing.T) {
		list, err := f.dir.ListFiles(ctx, alice, "/nowhere")
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestFileMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	data := payload(9)

	f.mkdir(t, alice, "/docs")
	f.upload(t, alice, "/docs/a.txt", data)

	info, err := f.dir.FileMetadata(ctx, alice, "/docs/a.txt", metadata.KindRegular)
	require.NoError(t, err)
	assert.Equal(t, "/alice/docs/a.txt", info.RealPath)
	assert.Equal(t, uint64(9), info.Size)
	assert.Equal(t, cryptoutil.HashContent(data), info.Hash)
	assert.True(t, info.IsValid)

	_, err = f.dir.FileMetadata(ctx, alice, "/docs/a.txt", metadata.KindDirectory)
	assert.ErrorIs(t, err, ErrNotFound, "kind must match")

	_, err = f.dir.FileMetadata(ctx, alice, "/missing", metadata.KindRegular)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindSharedFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	data := payload(12)

	f.mkdir(t, alice, "/x")
	f.mkdir(t, alice, "/y")
	f.upload(t, alice, "/y/report.pdf", data)
	f.upload(t, alice, "/x/report.pdf", data)
	f.upload(t, alice, "/x/other.pdf", data)

	info, err := f.dir.FindSharedFile(ctx, alice, "report.pdf", cryptoutil.HashContent(data))
	require.NoError(t, err)
	assert.Equal(t, "/x/report.pdf", info.Filename, "smallest filename wins")

	_, err = f.dir.FindSharedFile(ctx, alice, "report.pdf", cryptoutil.HashContent([]byte("other")))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.dir.FindSharedFile(ctx, alice, "port.pdf", cryptoutil.HashContent(data))
	assert.ErrorIs(t, err, ErrNotFound, "leaf must match exactly")
}

func TestDeleteFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")

	f.mkdir(t, alice, "/docs")
	f.upload(t, alice, "/docs/a.txt", payload(100))
	assert.Equal(t, uint64(900), f.free(t, alice))

	require.NoError(t, f.dir.DeleteFile(ctx, alice, "/docs/a.txt"))

	assert.Equal(t, uint64(1000), f.free(t, alice))
	assert.False(t, f.files.Exists("/alice/docs/a.txt"))
	assert.Zero(t, f.entry(t, alice, "/docs").Size, "parent counter decremented")

	assert.ErrorIs(t, f.dir.DeleteFile(ctx, alice, "/docs/a.txt"), ErrNotFound)
	assert.ErrorIs(t, f.dir.DeleteFile(ctx, alice, "/docs"), ErrNotFound, "directories go through DeletePath")
}

func TestDeleteFileCreditsCommittedBytes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")

	f.partial(t, alice, "/big.bin", payload(500), 120)
	assert.Equal(t, uint64(880), f.free(t, alice))

	require.NoError(t, f.dir.DeleteFile(ctx, alice, "/big.bin"))
	assert.Equal(t, uint64(1000), f.free(t, alice), "only LastValid was charged")
	f.assertLedger(t, alice)
}

func TestDeletePath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")

	f.mkdir(t, alice, "/a")
	f.mkdir(t, alice, "/a/b")
	f.upload(t, alice, "/a/x.bin", payload(40))
	f.upload(t, alice, "/a/b/y.bin", payload(60))
	f.partial(t, alice, "/a/b/z.bin", payload(90), 10)
	f.upload(t, alice, "/ab.bin", payload(7))
	assert.Equal(t, uint64(1000-40-60-10-7), f.free(t, alice))

	require.NoError(t, f.dir.DeletePath(ctx, alice, "/a"))

	assert.Equal(t, uint64(993), f.free(t, alice), "credit equals sum of LastValid below /a")
	assert.False(t, f.files.Exists("/alice/a"))
	assert.False(t, f.files.Exists("/alice/a/b/y.bin"))
	assert.True(t, f.files.Exists("/alice/ab.bin"), "sibling with common prefix survives")

	for _, name := range []string{"/a", "/a/b", "/a/x.bin", "/a/b/y.bin", "/a/b/z.bin"} {
		_, err := f.meta.GetFileByPath(ctx, alice, name)
		assert.True(t, metadata.IsNotFound(err), name)
	}
	f.assertLedger(t, alice)

	assert.ErrorIs(t, f.dir.DeletePath(ctx, alice, "/ab.bin"), ErrNotFound, "regular files go through DeleteFile")
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")

	f.mkdir(t, alice, "/d")
	f.upload(t, alice, "/d/f.txt", payload(3))
	f.upload(t, alice, "/g.txt", payload(4))

	require.NoError(t, f.dir.Delete(ctx, alice, "/g.txt"))
	require.NoError(t, f.dir.Delete(ctx, alice, "/d"))
	assert.ErrorIs(t, f.dir.Delete(ctx, alice, "/d"), ErrNotFound)

	list, err := f.dir.ListFiles(ctx, alice, "")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, uint64(1000), f.free(t, alice))
}
