package testing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/storagecloud/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunUploadTests executes the conditional upload-progress tests.
func (suite *StoreTestSuite) RunUploadTests(t *testing.T) {
	t.Run("AdvanceLastValid", suite.testAdvanceLastValid)
	t.Run("ConcurrentAdvance", suite.testConcurrentAdvance)
	t.Run("MarkValid", suite.testMarkValid)
	t.Run("ListInvalidFiles", suite.testListInvalidFiles)
}

func (suite *StoreTestSuite) testAdvanceLastValid(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	acct := createAccount(t, store, "alice", 100)
	f := createUpload(t, store, acct.ID, "/f.bin", []byte("0123456789"))

	later := epoch.Add(time.Minute)
	updated, err := store.AdvanceLastValid(ctx, f.ID, 0, 4, later)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), updated.LastValid)
	assert.True(t, updated.LastChunkAt.Equal(later))

	// Stale expected offset
	_, err = store.AdvanceLastValid(ctx, f.ID, 0, 4, later)
	assert.True(t, metadata.IsCode(err, metadata.ErrConflict))

	// Past declared size
	_, err = store.AdvanceLastValid(ctx, f.ID, 4, 7, later)
	assert.True(t, metadata.IsCode(err, metadata.ErrInvalidArgument))

	updated, err = store.AdvanceLastValid(ctx, f.ID, 4, 6, later)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), updated.LastValid)

	_, err = store.AdvanceLastValid(ctx, "missing", 0, 1, later)
	assert.True(t, metadata.IsNotFound(err))
}

func (suite *StoreTestSuite) testConcurrentAdvance(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	acct := createAccount(t, store, "alice", 100)
	f := createUpload(t, store, acct.ID, "/f.bin", make([]byte, 8))

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.AdvanceLastValid(ctx, f.ID, 0, 4, epoch); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, err := store.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, winners)
	assert.Equal(t, uint64(4), got.LastValid)
}

func (suite *StoreTestSuite) testMarkValid(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	acct := createAccount(t, store, "alice", 100)
	f := createUpload(t, store, acct.ID, "/f.bin", []byte("abc"))

	err := store.MarkValid(ctx, f.ID)
	assert.True(t, metadata.IsCode(err, metadata.ErrConflict))

	_, err = store.AdvanceLastValid(ctx, f.ID, 0, 3, epoch)
	require.NoError(t, err)
	require.NoError(t, store.MarkValid(ctx, f.ID))

	got, err := store.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, got.IsValid)

	// Validated files accept no more chunks
	_, err = store.AdvanceLastValid(ctx, f.ID, 3, 0, epoch)
	assert.True(t, metadata.IsCode(err, metadata.ErrConflict))
}

func (suite *StoreTestSuite) testListInvalidFiles(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	alice := createAccount(t, store, "alice", 100)
	bob := createAccount(t, store, "bob", 100)

	stale := createUpload(t, store, alice.ID, "/stale.bin", []byte("xx"))
	fresh := createUpload(t, store, alice.ID, "/fresh.bin", []byte("yy"))
	_, err := store.AdvanceLastValid(ctx, fresh.ID, 0, 1, epoch.Add(time.Hour))
	require.NoError(t, err)
	createValidFile(t, store, alice.ID, "/done.bin", []byte("zz"))
	createDir(t, store, alice.ID, "/dir")
	createUpload(t, store, bob.ID, "/bob.bin", []byte("b"))

	all, err := store.ListInvalidFiles(ctx, metadata.InvalidFileFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := store.ListInvalidFiles(ctx, metadata.InvalidFileFilter{Owner: alice.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/fresh.bin", "/stale.bin"}, filenames(mine))

	old, err := store.ListInvalidFiles(ctx, metadata.InvalidFileFilter{
		Owner:       alice.ID,
		StaleBefore: epoch.Add(30 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, stale.ID, old[0].ID)
}
