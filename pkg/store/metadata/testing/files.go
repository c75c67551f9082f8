package testing

import (
	"context"
	"testing"

	"github.com/marmos91/storagecloud/pkg/cryptoutil"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunFileTests executes file record tests.
func (suite *StoreTestSuite) RunFileTests(t *testing.T) {
	t.Run("CreateAndGet", suite.testCreateAndGetFile)
	t.Run("DuplicatePath", suite.testDuplicatePath)
	t.Run("ListChildren", suite.testListChildren)
	t.Run("ChildCount", suite.testChildCount)
	t.Run("FindByLeafAndHash", suite.testFindByLeafAndHash)
	t.Run("DeleteUnder", suite.testDeleteUnder)
}

func (suite *StoreTestSuite) testCreateAndGetFile(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	acct := createAccount(t, store, "alice", 100)

	created := createUpload(t, store, acct.ID, "/notes.txt", []byte("hello"))

	got, err := store.GetFile(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "/notes.txt", got.Filename)
	assert.Equal(t, metadata.KindRegular, got.Kind)
	assert.Equal(t, uint64(5), got.Size)
	assert.Zero(t, got.LastValid)
	assert.False(t, got.IsValid)
	assert.Equal(t, cryptoutil.HashContent([]byte("hello")), got.Hash)
	assert.Equal(t, "notes.txt", got.Leaf())

	byPath, err := store.GetFileByPath(ctx, acct.ID, "/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byPath.ID)

	_, err = store.GetFileByPath(ctx, acct.ID, "/other.txt")
	assert.True(t, metadata.IsNotFound(err))
}

func (suite *StoreTestSuite) testDuplicatePath(t *testing.T) {
	store := suite.NewStore(t)
	alice := createAccount(t, store, "alice", 100)
	bob := createAccount(t, store, "bob", 100)

	createDir(t, store, alice.ID, "/docs")

	_, err := store.CreateFile(context.Background(), metadata.FileEntry{
		Owner:    alice.ID,
		Filename: "/docs",
		Kind:     metadata.KindRegular,
	})
	assert.True(t, metadata.IsCode(err, metadata.ErrAlreadyExists))

	// Same filename under another owner is fine
	createDir(t, store, bob.ID, "/docs")
}

func (suite *StoreTestSuite) testListChildren(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	alice := createAccount(t, store, "alice", 100)
	bob := createAccount(t, store, "bob", 100)

	createDir(t, store, alice.ID, "/docs")
	createValidFile(t, store, alice.ID, "/docs/b.txt", []byte("b"))
	createUpload(t, store, alice.ID, "/docs/a.txt", []byte("a"))
	createDir(t, store, alice.ID, "/docs/sub")
	createValidFile(t, store, alice.ID, "/docs/sub/deep.txt", []byte("d"))
	createValidFile(t, store, alice.ID, "/docsx.txt", []byte("x"))
	createValidFile(t, store, bob.ID, "/docs/bob.txt", []byte("bob"))

	children, err := store.ListChildren(ctx, alice.ID, "/docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/a.txt", "/docs/b.txt", "/docs/sub"}, filenames(children))

	root, err := store.ListChildren(ctx, alice.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs", "/docsx.txt"}, filenames(root))

	empty, err := store.ListChildren(ctx, alice.ID, "/docs/sub/deep.txt")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func (suite *StoreTestSuite) testChildCount(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	acct := createAccount(t, store, "alice", 100)
	createDir(t, store, acct.ID, "/docs")

	require.NoError(t, store.AdjustChildCount(ctx, acct.ID, "/docs", 2))
	require.NoError(t, store.AdjustChildCount(ctx, acct.ID, "/docs", -1))

	dir, err := store.GetFileByPath(ctx, acct.ID, "/docs")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), dir.Size)

	require.NoError(t, store.AdjustChildCount(ctx, acct.ID, "/docs", -5))
	dir, err = store.GetFileByPath(ctx, acct.ID, "/docs")
	require.NoError(t, err)
	assert.Zero(t, dir.Size)

	err = store.AdjustChildCount(ctx, acct.ID, "/missing", 1)
	assert.True(t, metadata.IsNotFound(err))
}

func (suite *StoreTestSuite) testFindByLeafAndHash(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	acct := createAccount(t, store, "alice", 100)

	createDir(t, store, acct.ID, "/a")
	createDir(t, store, acct.ID, "/b")
	first := createValidFile(t, store, acct.ID, "/a/report.pdf", []byte("v1"))
	second := createValidFile(t, store, acct.ID, "/b/report.pdf", []byte("v2"))
	third := createValidFile(t, store, acct.ID, "/report.pdf", []byte("v1"))
	createValidFile(t, store, acct.ID, "/b/old-report.pdf", []byte("v1"))

	got, err := store.FindFilesByLeafAndHash(ctx, acct.ID, "report.pdf", cryptoutil.HashContent([]byte("v2")))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, second.ID, got[0].ID)

	got, err = store.FindFilesByLeafAndHash(ctx, acct.ID, "report.pdf", cryptoutil.HashContent([]byte("v1")))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, third.ID, got[1].ID)

	got, err = store.FindFilesByLeafAndHash(ctx, acct.ID, "report.pdf", cryptoutil.HashContent([]byte("v3")))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func (suite *StoreTestSuite) testDeleteUnder(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	acct := createAccount(t, store, "alice", 100)
	other := createAccount(t, store, "bob", 100)

	createDir(t, store, acct.ID, "/docs")
	createValidFile(t, store, acct.ID, "/docs/a.txt", []byte("aaaa"))
	createDir(t, store, acct.ID, "/docs/sub")
	createValidFile(t, store, acct.ID, "/docs/sub/b.txt", []byte("bb"))
	partial := createUpload(t, store, acct.ID, "/docs/sub/c.txt", []byte("cccccc"))
	_, err := store.AdvanceLastValid(ctx, partial.ID, 0, 3, epoch)
	require.NoError(t, err)
	keep := createValidFile(t, store, acct.ID, "/docs2.txt", []byte("keep"))
	foreign := createValidFile(t, store, other.ID, "/docs/a.txt", []byte("bob"))

	sum, err := store.SumLastValidUnder(ctx, acct.ID, "/docs")
	require.NoError(t, err)
	assert.Equal(t, uint64(4+2+3), sum)

	removed, err := store.DeleteFilesUnder(ctx, acct.ID, "/docs")
	require.NoError(t, err)
	assert.Equal(t, 5, removed)

	_, err = store.GetFileByPath(ctx, acct.ID, "/docs")
	assert.True(t, metadata.IsNotFound(err))
	_, err = store.GetFile(ctx, keep.ID)
	assert.NoError(t, err)
	_, err = store.GetFile(ctx, foreign.ID)
	assert.NoError(t, err)

	require.NoError(t, store.DeleteFile(ctx, keep.ID))
	err = store.DeleteFile(ctx, keep.ID)
	assert.True(t, metadata.IsNotFound(err))
}
