package directory

import (
	"context"
	"testing"

	"github.com/marmos91/storagecloud/pkg/cryptoutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	carol := f.register(t, "carol")

	f.mkdir(t, alice, "/docs")
	f.upload(t, alice, "/docs/report.pdf", payload(20))
	f.upload(t, alice, "/notes.txt", payload(8))

	require.NoError(t, f.dir.ShareWith(ctx, alice, "/docs/report.pdf", "carol"))
	require.NoError(t, f.dir.ShareWith(ctx, alice, "/docs/report.pdf", "bob"))
	require.NoError(t, f.dir.ShareWith(ctx, alice, "/docs/report.pdf", "bob"), "granting twice is a no-op")

	t.Run("ShareInfo", func(t *testing.T) {
		users, err := f.dir.ShareInfo(ctx, alice, "/docs/report.pdf")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob", "carol"}, users)

		users, err = f.dir.ShareInfo(ctx, alice, "/notes.txt")
		require.NoError(t, err)
		assert.Empty(t, users)
	})

	t.Run("ListShared", func(t *testing.T) {
		list, err := f.dir.ListShared(ctx, bob)
		require.NoError(t, err)
		require.Len(t, list, 1)

		info := list[0]
		assert.Equal(t, "report.pdf", info.Filename, "grantees see the leaf only")
		assert.Empty(t, info.RealPath)
		assert.True(t, info.IsShared)
		assert.Equal(t, "alice", info.OwnerUsername)
		assert.Equal(t, "Name-alice Surname-alice", info.OwnerName)
		assert.Equal(t, uint64(20), info.Size)
	})

	t.Run("OwnerListingFlagsShared", func(t *testing.T) {
		list, err := f.dir.ListFiles(ctx, alice, "/docs")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, list[0].IsShared)
	})

	t.Run("Unshare", func(t *testing.T) {
		require.NoError(t, f.dir.UnshareWith(ctx, alice, "/docs/report.pdf", "carol"))
		require.NoError(t, f.dir.UnshareWith(ctx, alice, "/docs/report.pdf", "carol"), "revoking twice is a no-op")

		list, err := f.dir.ListShared(ctx, carol)
		require.NoError(t, err)
		assert.Empty(t, list)

		users, err := f.dir.ShareInfo(ctx, alice, "/docs/report.pdf")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob"}, users)
	})

	t.Run("Errors", func(t *testing.T) {
		assert.ErrorIs(t, f.dir.ShareWith(ctx, alice, "/docs/report.pdf", "nobody"), ErrNotFound)
		assert.ErrorIs(t, f.dir.ShareWith(ctx, alice, "/missing", "bob"), ErrNotFound)
		assert.ErrorIs(t, f.dir.ShareWith(ctx, alice, "/docs", "bob"), ErrNotFound, "directories cannot be shared")
	})
}

func TestListSharedHidesIncomplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	data := payload(30)
	cursor := f.partial(t, alice, "/draft.bin", data, 10)
	require.NoError(t, f.dir.ShareWith(ctx, alice, "/draft.bin", "bob"))

	list, err := f.dir.ListShared(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, f.dir.AppendChunk(ctx, cursor, data[10:]))

	list, err = f.dir.ListShared(ctx, bob)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, cryptoutil.HashContent(data), list[0].Hash)
}

func TestDeleteDropsGrants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	f.upload(t, alice, "/a.txt", payload(5))
	require.NoError(t, f.dir.ShareWith(ctx, alice, "/a.txt", "bob"))
	require.NoError(t, f.dir.DeleteFile(ctx, alice, "/a.txt"))

	list, err := f.dir.ListShared(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, list)
}
