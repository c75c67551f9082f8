package testing

import (
	"context"
	"testing"

	"github.com/marmos91/storagecloud/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunAccountTests executes account record tests.
func (suite *StoreTestSuite) RunAccountTests(t *testing.T) {
	t.Run("CreateAndGet", suite.testCreateAndGetAccount)
	t.Run("DuplicateUsername", suite.testDuplicateUsername)
	t.Run("List", suite.testListAccounts)
	t.Run("NameAndPassword", suite.testNameAndPassword)
	t.Run("Sessions", suite.testSessions)
	t.Run("Warnings", suite.testWarnings)
	t.Run("Delete", suite.testDeleteAccount)
}

func (suite *StoreTestSuite) testCreateAndGetAccount(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	acct := createAccount(t, store, "alice", 1000)

	byID, err := store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)
	assert.Equal(t, "/alice", byID.HomeDir)
	assert.Equal(t, uint64(1000), byID.TotalSpace)
	assert.Equal(t, uint64(1000), byID.FreeSpace)
	assert.Len(t, byID.PasswordHash, 64)

	byName, err := store.GetAccountByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, byName.ID)

	_, err = store.GetAccountByUsername(ctx, "nobody")
	assert.True(t, metadata.IsNotFound(err))

	_, err = store.GetAccount(ctx, "missing")
	assert.True(t, metadata.IsNotFound(err))
}

func (suite *StoreTestSuite) testDuplicateUsername(t *testing.T) {
	store := suite.NewStore(t)

	createAccount(t, store, "alice", 10)
	_, err := store.CreateAccount(context.Background(), metadata.Account{Username: "alice"})
	assert.True(t, metadata.IsCode(err, metadata.ErrAlreadyExists))
}

func (suite *StoreTestSuite) testListAccounts(t *testing.T) {
	store := suite.NewStore(t)

	createAccount(t, store, "carol", 1)
	createAccount(t, store, "alice", 1)
	createAccount(t, store, "bob", 1)

	accounts, err := store.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, "alice", accounts[0].Username)
	assert.Equal(t, "bob", accounts[1].Username)
	assert.Equal(t, "carol", accounts[2].Username)
}

func (suite *StoreTestSuite) testNameAndPassword(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	acct := createAccount(t, store, "alice", 1)

	require.NoError(t, store.SetAccountName(ctx, acct.ID, "Alice", "Liddell"))
	require.NoError(t, store.SetPasswordHash(ctx, acct.ID, []byte("digest")))

	got, err := store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, "Liddell", got.Surname)
	assert.Equal(t, []byte("digest"), got.PasswordHash)

	err = store.SetAccountName(ctx, "missing", "x", "y")
	assert.True(t, metadata.IsNotFound(err))
}

func (suite *StoreTestSuite) testSessions(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	acct := createAccount(t, store, "alice", 1)

	tokenA := []byte("token-a")
	tokenB := []byte("token-b")

	ok, err := store.HasSession(ctx, acct.ID, tokenA)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.AddSession(ctx, acct.ID, metadata.SessionToken{Token: tokenA, IssuedAt: epoch}))
	require.NoError(t, store.AddSession(ctx, acct.ID, metadata.SessionToken{Token: tokenB, IssuedAt: epoch}))

	ok, err = store.HasSession(ctx, acct.ID, tokenA)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.RemoveSession(ctx, acct.ID, tokenA))
	ok, err = store.HasSession(ctx, acct.ID, tokenA)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.HasSession(ctx, acct.ID, tokenB)
	require.NoError(t, err)
	assert.True(t, ok)

	// Removing an unknown token is a no-op
	require.NoError(t, store.RemoveSession(ctx, acct.ID, []byte("unknown")))
}

func (suite *StoreTestSuite) testWarnings(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	acct := createAccount(t, store, "alice", 1)

	warnings, err := store.TakeWarnings(ctx, acct.ID)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	require.NoError(t, store.AddWarning(ctx, acct.ID, metadata.Warning{Body: "first", CreatedAt: epoch}))
	require.NoError(t, store.AddWarning(ctx, acct.ID, metadata.Warning{Body: "second", CreatedAt: epoch}))

	warnings, err = store.TakeWarnings(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	assert.Equal(t, "first", warnings[0].Body)
	assert.Equal(t, "second", warnings[1].Body)

	warnings, err = store.TakeWarnings(ctx, acct.ID)
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func (suite *StoreTestSuite) testDeleteAccount(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	alice := createAccount(t, store, "alice", 100)
	bob := createAccount(t, store, "bob", 100)

	aliceFile := createValidFile(t, store, alice.ID, "/a.txt", []byte("alice"))
	bobFile := createValidFile(t, store, bob.ID, "/b.txt", []byte("bob"))
	require.NoError(t, store.AddGrant(ctx, bobFile.ID, alice.ID))
	require.NoError(t, store.AddGrant(ctx, aliceFile.ID, bob.ID))

	require.NoError(t, store.DeleteAccount(ctx, alice.ID))

	_, err := store.GetAccount(ctx, alice.ID)
	assert.True(t, metadata.IsNotFound(err))
	_, err = store.GetAccountByUsername(ctx, "alice")
	assert.True(t, metadata.IsNotFound(err))
	_, err = store.GetFile(ctx, aliceFile.ID)
	assert.True(t, metadata.IsNotFound(err))

	got, err := store.GetFile(ctx, bobFile.ID)
	require.NoError(t, err)
	assert.False(t, got.IsSharedWith(alice.ID))

	shared, err := store.ListSharedWith(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, shared)

	// The username can be registered again
	createAccount(t, store, "alice", 1)

	err = store.DeleteAccount(ctx, alice.ID)
	assert.True(t, metadata.IsNotFound(err))
}
