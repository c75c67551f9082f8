package testing

import (
	"context"
	"io"
	"testing"

	"github.com/marmos91/storagecloud/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite is a conformance suite for content.Store implementations.
//
// Usage:
//
//	func TestMyContentStore(t *testing.T) {
//	    suite := &contenttesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) content.Store {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func(t *testing.T) content.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("CreateAndSize", suite.testCreateAndSize)
	t.Run("AppendChunks", suite.testAppendChunks)
	t.Run("WriteAtZeroTruncates", suite.testWriteAtZeroTruncates)
	t.Run("WriteBeyondEnd", suite.testWriteBeyondEnd)
	t.Run("ReadAt", suite.testReadAt)
	t.Run("Truncate", suite.testTruncate)
	t.Run("Remove", suite.testRemove)
	t.Run("Directories", suite.testDirectories)
	t.Run("InvalidPath", suite.testInvalidPath)
}

func readAll(t *testing.T, store content.Store, path string) []byte {
	t.Helper()
	rc, err := store.Open(context.Background(), path)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func (suite *StoreTestSuite) testCreateAndSize(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	require.NoError(t, store.Mkdir(ctx, "/alice"))

	require.NoError(t, store.Create(ctx, "/alice/empty.txt"))
	size, err := store.Size(ctx, "/alice/empty.txt")
	require.NoError(t, err)
	assert.Zero(t, size)

	_, err = store.Size(ctx, "/alice/missing.txt")
	assert.ErrorIs(t, err, content.ErrNotFound)
}

func (suite *StoreTestSuite) testAppendChunks(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	require.NoError(t, store.Mkdir(ctx, "/alice"))

	require.NoError(t, store.Create(ctx, "/alice/f.bin"))
	require.NoError(t, store.WriteAt(ctx, "/alice/f.bin", 0, []byte("hello ")))
	require.NoError(t, store.WriteAt(ctx, "/alice/f.bin", 6, []byte("world")))

	size, err := store.Size(ctx, "/alice/f.bin")
	require.NoError(t, err)
	assert.Equal(t, uint64(11), size)
	assert.Equal(t, []byte("hello world"), readAll(t, store, "/alice/f.bin"))
}

func (suite *StoreTestSuite) testWriteAtZeroTruncates(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	require.NoError(t, store.Mkdir(ctx, "/alice"))

	require.NoError(t, store.WriteAt(ctx, "/alice/f.bin", 0, []byte("a much longer body")))
	require.NoError(t, store.WriteAt(ctx, "/alice/f.bin", 0, []byte("short")))

	assert.Equal(t, []byte("short"), readAll(t, store, "/alice/f.bin"))
}

func (suite *StoreTestSuite) testWriteBeyondEnd(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	require.NoError(t, store.Mkdir(ctx, "/alice"))
	require.NoError(t, store.WriteAt(ctx, "/alice/f.bin", 0, []byte("abc")))

	err := store.WriteAt(ctx, "/alice/f.bin", 10, []byte("x"))
	assert.ErrorIs(t, err, content.ErrInvalidOffset)

	err = store.WriteAt(ctx, "/alice/missing.bin", 3, []byte("x"))
	assert.ErrorIs(t, err, content.ErrNotFound)
}

func (suite *StoreTestSuite) testReadAt(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	require.NoError(t, store.Mkdir(ctx, "/alice"))
	require.NoError(t, store.WriteAt(ctx, "/alice/f.bin", 0, []byte("0123456789")))

	buf := make([]byte, 4)
	n, err := store.ReadAt(ctx, "/alice/f.bin", buf, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("2345"), buf)

	n, err = store.ReadAt(ctx, "/alice/f.bin", buf, 8)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte("89"), buf[:n])

	_, err = store.ReadAt(ctx, "/alice/missing.bin", buf, 0)
	assert.ErrorIs(t, err, content.ErrNotFound)
}

func (suite *StoreTestSuite) testTruncate(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	require.NoError(t, store.Mkdir(ctx, "/alice"))
	require.NoError(t, store.WriteAt(ctx, "/alice/f.bin", 0, []byte("0123456789")))

	require.NoError(t, store.Truncate(ctx, "/alice/f.bin", 4))
	assert.Equal(t, []byte("0123"), readAll(t, store, "/alice/f.bin"))

	// Appending after a truncate continues from the new end
	require.NoError(t, store.WriteAt(ctx, "/alice/f.bin", 4, []byte("xy")))
	assert.Equal(t, []byte("0123xy"), readAll(t, store, "/alice/f.bin"))

	err := store.Truncate(ctx, "/alice/f.bin", 100)
	assert.ErrorIs(t, err, content.ErrInvalidOffset)
}

func (suite *StoreTestSuite) testRemove(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	require.NoError(t, store.Mkdir(ctx, "/alice"))
	require.NoError(t, store.WriteAt(ctx, "/alice/f.bin", 0, []byte("data")))

	require.NoError(t, store.Remove(ctx, "/alice/f.bin"))
	_, err := store.Size(ctx, "/alice/f.bin")
	assert.ErrorIs(t, err, content.ErrNotFound)

	err = store.Remove(ctx, "/alice/f.bin")
	assert.ErrorIs(t, err, content.ErrNotFound)
}

func (suite *StoreTestSuite) testDirectories(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.Mkdir(ctx, "/alice"))
	assert.ErrorIs(t, store.Mkdir(ctx, "/alice"), content.ErrExists)

	require.NoError(t, store.Mkdir(ctx, "/alice/docs"))
	require.NoError(t, store.Mkdir(ctx, "/alice/docs/sub"))
	require.NoError(t, store.WriteAt(ctx, "/alice/docs/a.txt", 0, []byte("a")))
	require.NoError(t, store.WriteAt(ctx, "/alice/docs/sub/b.txt", 0, []byte("b")))
	require.NoError(t, store.Mkdir(ctx, "/alice/docs2"))
	require.NoError(t, store.WriteAt(ctx, "/alice/docs2/keep.txt", 0, []byte("k")))

	require.NoError(t, store.RemoveAll(ctx, "/alice/docs"))

	_, err := store.Size(ctx, "/alice/docs/a.txt")
	assert.ErrorIs(t, err, content.ErrNotFound)
	_, err = store.Size(ctx, "/alice/docs/sub/b.txt")
	assert.ErrorIs(t, err, content.ErrNotFound)

	size, err := store.Size(ctx, "/alice/docs2/keep.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), size)

	// The directory can be recreated after removal
	require.NoError(t, store.Mkdir(ctx, "/alice/docs"))

	// Missing paths are fine
	require.NoError(t, store.RemoveAll(ctx, "/nobody"))
}

func (suite *StoreTestSuite) testInvalidPath(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.Create(ctx, "/alice/../etc"), content.ErrInvalidPath)
	assert.ErrorIs(t, store.Mkdir(ctx, "relative"), content.ErrInvalidPath)
	assert.ErrorIs(t, store.RemoveAll(ctx, "/"), content.ErrInvalidPath)
}
