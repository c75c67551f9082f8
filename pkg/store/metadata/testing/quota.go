package testing

import (
	"context"
	"sync"
	"testing"

	"github.com/marmos91/storagecloud/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunQuotaTests executes free/total space tests.
func (suite *StoreTestSuite) RunQuotaTests(t *testing.T) {
	t.Run("ChangeFreeSpace", suite.testChangeFreeSpace)
	t.Run("ConcurrentDebits", suite.testConcurrentDebits)
	t.Run("SetTotalSpace", suite.testSetTotalSpace)
}

func (suite *StoreTestSuite) testChangeFreeSpace(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	acct := createAccount(t, store, "alice", 100)

	free, err := store.ChangeFreeSpace(ctx, acct.ID, -40)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), free)

	_, err = store.ChangeFreeSpace(ctx, acct.ID, -61)
	assert.True(t, metadata.IsCode(err, metadata.ErrNoSpace))

	_, err = store.ChangeFreeSpace(ctx, acct.ID, 41)
	assert.True(t, metadata.IsCode(err, metadata.ErrInvalidArgument))

	free, err = store.ChangeFreeSpace(ctx, acct.ID, 40)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), free)

	free, err = store.ChangeFreeSpace(ctx, acct.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), free)

	_, err = store.ChangeFreeSpace(ctx, "missing", -1)
	assert.True(t, metadata.IsNotFound(err))
}

func (suite *StoreTestSuite) testConcurrentDebits(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	acct := createAccount(t, store, "alice", 50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ChangeFreeSpace(ctx, acct.ID, -5); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, err := store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, succeeded)
	assert.Equal(t, uint64(0), got.FreeSpace)
}

func (suite *StoreTestSuite) testSetTotalSpace(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	acct := createAccount(t, store, "alice", 100)

	_, err := store.ChangeFreeSpace(ctx, acct.ID, -70)
	require.NoError(t, err)

	updated, err := store.SetTotalSpace(ctx, acct.ID, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), updated.TotalSpace)
	assert.Equal(t, uint64(130), updated.FreeSpace)

	updated, err = store.SetTotalSpace(ctx, acct.ID, 70)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), updated.FreeSpace)

	_, err = store.SetTotalSpace(ctx, acct.ID, 69)
	assert.True(t, metadata.IsCode(err, metadata.ErrNoSpace))

	got, err := store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(70), got.TotalSpace)
	assert.Equal(t, uint64(0), got.FreeSpace)
}
