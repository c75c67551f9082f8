package testing

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/storagecloud/pkg/cryptoutil"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite is a conformance suite for metadata.Store implementations.
// It tests the interface contract, not implementation details, so the same
// suite runs against every backend.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &metadatatesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) metadata.Store {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test. Implementations
	// register cleanup on t.
	NewStore func(t *testing.T) metadata.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Accounts", suite.RunAccountTests)
	t.Run("Quota", suite.RunQuotaTests)
	t.Run("Files", suite.RunFileTests)
	t.Run("Uploads", suite.RunUploadTests)
	t.Run("Sharing", suite.RunSharingTests)
	t.Run("Healthcheck", func(t *testing.T) {
		store := suite.NewStore(t)
		require.NoError(t, store.Healthcheck(context.Background()))
	})
}

// ============================================================================
// Fixtures
// ============================================================================

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func createAccount(t *testing.T, store metadata.Store, username string, quota uint64) *metadata.Account {
	t.Helper()
	acct, err := store.CreateAccount(context.Background(), metadata.Account{
		Username:     username,
		Name:         "Name " + username,
		Surname:      "Surname " + username,
		Role:         metadata.RoleRegular,
		HomeDir:      "/" + username,
		TotalSpace:   quota,
		FreeSpace:    quota,
		PasswordHash: cryptoutil.HashPassword("pw-" + username),
		CreatedAt:    epoch,
	})
	require.NoError(t, err)
	require.NotEmpty(t, acct.ID)
	return acct
}

func createDir(t *testing.T, store metadata.Store, owner metadata.AccountID, filename string) *metadata.FileEntry {
	t.Helper()
	f, err := store.CreateFile(context.Background(), metadata.FileEntry{
		Owner:       owner,
		Filename:    filename,
		Kind:        metadata.KindDirectory,
		IsValid:     true,
		CreatedAt:   epoch,
		LastChunkAt: epoch,
	})
	require.NoError(t, err)
	return f
}

func createUpload(t *testing.T, store metadata.Store, owner metadata.AccountID, filename string, content []byte) *metadata.FileEntry {
	t.Helper()
	f, err := store.CreateFile(context.Background(), metadata.FileEntry{
		Owner:       owner,
		Filename:    filename,
		Kind:        metadata.KindRegular,
		Size:        uint64(len(content)),
		Hash:        cryptoutil.HashContent(content),
		CreatedAt:   epoch,
		LastChunkAt: epoch,
	})
	require.NoError(t, err)
	return f
}

// createValidFile creates a regular file and drives it to the validated state.
func createValidFile(t *testing.T, store metadata.Store, owner metadata.AccountID, filename string, content []byte) *metadata.FileEntry {
	t.Helper()
	ctx := context.Background()

	f := createUpload(t, store, owner, filename, content)
	if len(content) > 0 {
		_, err := store.AdvanceLastValid(ctx, f.ID, 0, uint64(len(content)), epoch)
		require.NoError(t, err)
	}
	require.NoError(t, store.MarkValid(ctx, f.ID))

	f, err := store.GetFile(ctx, f.ID)
	require.NoError(t, err)
	return f
}

func filenames(files []*metadata.FileEntry) []string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Filename)
	}
	return names
}
