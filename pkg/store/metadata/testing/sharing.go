package testing

import (
	"context"
	"testing"

	"github.com/marmos91/storagecloud/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSharingTests executes grant tests.
func (suite *StoreTestSuite) RunSharingTests(t *testing.T) {
	t.Run("GrantAndRevoke", suite.testGrantAndRevoke)
	t.Run("OnlyValidFilesListed", suite.testSharedOnlyValid)
	t.Run("DeleteFileDropsGrants", suite.testDeleteFileDropsGrants)
}

func (suite *StoreTestSuite) testGrantAndRevoke(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	alice := createAccount(t, store, "alice", 100)
	bob := createAccount(t, store, "bob", 100)
	f := createValidFile(t, store, alice.ID, "/r.pdf", []byte("report"))

	require.NoError(t, store.AddGrant(ctx, f.ID, bob.ID))
	require.NoError(t, store.AddGrant(ctx, f.ID, bob.ID))

	got, err := store.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, []metadata.AccountID{bob.ID}, got.SharedWith)

	shared, err := store.ListSharedWith(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.Equal(t, f.ID, shared[0].ID)

	require.NoError(t, store.RemoveGrant(ctx, f.ID, bob.ID))
	require.NoError(t, store.RemoveGrant(ctx, f.ID, bob.ID))

	shared, err = store.ListSharedWith(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, shared)

	err = store.AddGrant(ctx, "missing", bob.ID)
	assert.True(t, metadata.IsNotFound(err))
}

func (suite *StoreTestSuite) testSharedOnlyValid(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	alice := createAccount(t, store, "alice", 100)
	bob := createAccount(t, store, "bob", 100)

	pending := createUpload(t, store, alice.ID, "/pending.bin", []byte("p"))
	done := createValidFile(t, store, alice.ID, "/done.bin", []byte("d"))
	require.NoError(t, store.AddGrant(ctx, pending.ID, bob.ID))
	require.NoError(t, store.AddGrant(ctx, done.ID, bob.ID))

	shared, err := store.ListSharedWith(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/done.bin"}, filenames(shared))
}

func (suite *StoreTestSuite) testDeleteFileDropsGrants(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	alice := createAccount(t, store, "alice", 100)
	bob := createAccount(t, store, "bob", 100)
	f := createValidFile(t, store, alice.ID, "/r.pdf", []byte("report"))
	require.NoError(t, store.AddGrant(ctx, f.ID, bob.ID))

	require.NoError(t, store.DeleteFile(ctx, f.ID))

	shared, err := store.ListSharedWith(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, shared)
}
