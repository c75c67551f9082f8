package session

import (
	"context"
	"testing"

	"github.com/marmos91/storagecloud/internal/ratelimiter"
	"github.com/marmos91/storagecloud/pkg/cryptoutil"
	"github.com/marmos91/storagecloud/pkg/directory"
	contentmemory "github.com/marmos91/storagecloud/pkg/store/content/memory"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
	"github.com/marmos91/storagecloud/pkg/store/metadata/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDirectory(t *testing.T) *directory.Directory {
	t.Helper()
	ctx := context.Background()

	dir := directory.New(memory.NewMemoryMetadataStore(), contentmemory.NewMemoryContentStore(),
		directory.Config{DefaultQuota: 1000, DownloadChunkSize: 4})

	for _, username := range []string{"alice", "bob"} {
		_, err := dir.RegisterUser(ctx, directory.NewAccount{
			Username: username,
			Name:     username + "-name",
			Surname:  username + "-surname",
			Password: username + "-pw",
		})
		require.NoError(t, err)
	}
	_, err := dir.RegisterUser(ctx, directory.NewAccount{
		Username: "root",
		Role:     metadata.RoleAdmin,
		Password: "root-pw",
	})
	require.NoError(t, err)

	return dir
}

// login returns an authorized identity for username.
func login(t *testing.T, dir *directory.Directory, username string) *Identity {
	t.Helper()
	ctx := context.Background()

	s, err := NewForUsername(ctx, dir, username)
	require.NoError(t, err)
	_, err = s.LoginWithPassword(ctx, username+"-pw")
	require.NoError(t, err)
	return s
}

func TestBindUsername(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)

	t.Run("Unbound", func(t *testing.T) {
		s := New(dir)
		assert.False(t, s.IsValid())
		assert.False(t, s.IsAuthorized())

		_, err := s.LoginWithPassword(ctx, "x")
		assert.ErrorIs(t, err, ErrInvalidIdentity)
		assert.ErrorIs(t, err, directory.ErrUnauthorized)

		_, err = s.Name(ctx)
		assert.ErrorIs(t, err, ErrInvalidIdentity)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		s := login(t, dir, "alice")

		err := s.BindUsername(ctx, "mallory")
		assert.ErrorIs(t, err, directory.ErrNotFound)
		assert.False(t, s.IsValid())
		assert.False(t, s.IsAuthorized())
		assert.Empty(t, s.AccountID())
	})

	t.Run("SwitchAccountClearsAuthorization", func(t *testing.T) {
		s := login(t, dir, "alice")
		require.True(t, s.IsAuthorized())

		require.NoError(t, s.BindUsername(ctx, "bob"))
		assert.True(t, s.IsValid())
		assert.False(t, s.IsAuthorized())
		assert.Equal(t, "bob", s.Username())
	})

	t.Run("RebindSameAccountKeepsAuthorization", func(t *testing.T) {
		s := login(t, dir, "alice")
		require.NoError(t, s.BindUsername(ctx, "alice"))
		assert.True(t, s.IsAuthorized())
	})

	t.Run("NewForUsernameUnknown", func(t *testing.T) {
		s, err := NewForUsername(ctx, dir, "mallory")
		assert.ErrorIs(t, err, directory.ErrNotFound)
		require.NotNil(t, s)
		assert.False(t, s.IsValid())
	})
}

func TestLoginWithPassword(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)

	s, err := NewForUsername(ctx, dir, "alice")
	require.NoError(t, err)

	_, err = s.LoginWithPassword(ctx, "wrong")
	assert.ErrorIs(t, err, directory.ErrUnauthorized)
	assert.False(t, s.IsAuthorized())

	token, err := s.LoginWithPassword(ctx, "alice-pw")
	require.NoError(t, err)
	assert.Len(t, token, cryptoutil.SessionTokenSize)
	assert.True(t, s.IsAuthorized())

	ok, err := dir.HasSession(ctx, s.AccountID(), token)
	require.NoError(t, err)
	assert.True(t, ok, "token registered on the account")

	// A failed attempt revokes the current authorization
	_, err = s.LoginWithPassword(ctx, "wrong")
	require.Error(t, err)
	assert.False(t, s.IsAuthorized())
}

func TestLoginThrottling(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)
	limiter := ratelimiter.NewKeyed(1, 2)

	s, err := NewForUsername(ctx, dir, "alice", WithLoginLimiter(limiter))
	require.NoError(t, err)

	for range 2 {
		_, err := s.LoginWithPassword(ctx, "wrong")
		require.ErrorIs(t, err, directory.ErrUnauthorized)
	}

	_, err = s.LoginWithPassword(ctx, "alice-pw")
	assert.ErrorIs(t, err, ErrRateLimited, "correct password is refused while throttled")
	assert.False(t, s.IsAuthorized())

	// Other usernames are not affected
	other, err := NewForUsername(ctx, dir, "bob", WithLoginLimiter(limiter))
	require.NoError(t, err)
	_, err = other.LoginWithPassword(ctx, "bob-pw")
	require.NoError(t, err)

	// Once the failures are forgotten the login goes through
	limiter.Reset("alice")
	_, err = s.LoginWithPassword(ctx, "alice-pw")
	require.NoError(t, err)
	assert.Zero(t, limiter.Len())
}

func TestLoginWithToken(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)

	first, err := NewForUsername(ctx, dir, "alice")
	require.NoError(t, err)
	token, err := first.LoginWithPassword(ctx, "alice-pw")
	require.NoError(t, err)

	second, err := NewForUsername(ctx, dir, "alice")
	require.NoError(t, err)

	ok, err := second.LoginWithToken(ctx, []byte("not a token"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, second.IsAuthorized())

	ok, err = second.LoginWithToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, second.IsAuthorized())

	// Tokens are per account
	bob, err := NewForUsername(ctx, dir, "bob")
	require.NoError(t, err)
	ok, err = bob.LoginWithToken(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)

	s, err := NewForUsername(ctx, dir, "alice")
	require.NoError(t, err)
	token, err := s.LoginWithPassword(ctx, "alice-pw")
	require.NoError(t, err)
	id := s.AccountID()

	require.NoError(t, s.Logout(ctx, token))
	assert.False(t, s.IsValid())
	assert.False(t, s.IsAuthorized())

	ok, err := dir.HasSession(ctx, id, token)
	require.NoError(t, err)
	assert.False(t, ok, "token removed from the account")

	// Logging out an unbound identity is harmless
	require.NoError(t, s.Logout(ctx, token))
}

func TestIsAdmin(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)

	admin, err := NewForUsername(ctx, dir, "root")
	require.NoError(t, err)
	assert.False(t, admin.IsAdmin(ctx), "not authorized yet")

	_, err = admin.LoginWithPassword(ctx, "root-pw")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin(ctx))

	assert.False(t, login(t, dir, "alice").IsAdmin(ctx))
	assert.False(t, New(dir).IsAdmin(ctx))
}

func TestAccountDelegation(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)
	s := login(t, dir, "alice")

	name, err := s.Name(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice-name", name)

	surname, err := s.Surname(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice-surname", surname)

	home, err := s.HomeDir(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/alice", home)

	require.NoError(t, s.SetName(ctx, "Alice", "Liddell"))
	details, err := s.Details(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alice", details.Name)
	assert.Equal(t, "Liddell", details.Surname)
	assert.Equal(t, uint64(1000), details.TotalSpace)

	free, err := s.FreeSpace(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), free)

	total, err := s.TotalSpace(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), total)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)
	s := login(t, dir, "alice")

	err := s.ChangePassword(ctx, "wrong", "new-pw")
	assert.ErrorIs(t, err, directory.ErrUnauthorized)

	require.NoError(t, s.ChangePassword(ctx, "alice-pw", "new-pw"))

	ok, err := s.CheckPassword(ctx, "new-pw")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.SetPassword(ctx, "third-pw"))
	ok, err = s.CheckPassword(ctx, "new-pw")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunAsUser(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)
	admin := login(t, dir, "root")
	alice := login(t, dir, "alice")
	bob := login(t, dir, "bob")

	data := []byte("shared data")
	_, err := alice.AddFile(ctx, directory.AddFileRequest{
		Filename: "/notes.txt",
		Kind:     metadata.KindRegular,
		Size:     uint64(len(data)),
		Hash:     cryptoutil.HashContent(data),
	})
	require.NoError(t, err)
	require.NoError(t, alice.AddFileChunk(ctx, data))
	require.NoError(t, alice.ShareWith(ctx, "/notes.txt", "bob"))

	t.Run("ListUserFiles", func(t *testing.T) {
		list, err := admin.ListUserFiles(ctx, "alice", "/")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "/notes.txt", list[0].Filename)
	})

	t.Run("ListUserShared", func(t *testing.T) {
		list, err := admin.ListUserShared(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "notes.txt", list[0].Filename)
	})

	t.Run("ShareInfoUser", func(t *testing.T) {
		users, err := admin.ShareInfoUser(ctx, "alice", "/notes.txt")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob"}, users)
	})

	t.Run("WarnUser", func(t *testing.T) {
		require.NoError(t, admin.WarnUser(ctx, "bob", "please clean up"))

		warnings, err := bob.Warnings(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"please clean up"}, warnings)

		warnings, err = bob.Warnings(ctx)
		require.NoError(t, err)
		assert.Empty(t, warnings)
	})

	t.Run("ChangeUserPassword", func(t *testing.T) {
		require.NoError(t, admin.ChangeUserPassword(ctx, "bob", "reset-pw"))

		ok, err := bob.CheckPassword(ctx, "reset-pw")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("ChangeUserTotalStorage", func(t *testing.T) {
		err := admin.ChangeUserTotalStorage(ctx, "alice", 5)
		assert.ErrorIs(t, err, directory.ErrQuotaExceeded)

		require.NoError(t, admin.ChangeUserTotalStorage(ctx, "alice", 500))
		total, err := alice.TotalSpace(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(500), total)
	})

	t.Run("DeleteUserFile", func(t *testing.T) {
		require.NoError(t, admin.DeleteUserFile(ctx, "alice", "/notes.txt"))

		list, err := alice.ListFiles(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := admin.ListUserFiles(ctx, "mallory", "/")
		assert.ErrorIs(t, err, directory.ErrNotFound)
		assert.ErrorIs(t, admin.DeleteUserFile(ctx, "mallory", "/x"), directory.ErrNotFound)
		assert.ErrorIs(t, admin.ChangeUserPassword(ctx, "mallory", "x"), directory.ErrNotFound)
		assert.ErrorIs(t, admin.WarnUser(ctx, "mallory", "x"), directory.ErrNotFound)
		assert.ErrorIs(t, admin.ChangeUserTotalStorage(ctx, "mallory", 1), directory.ErrNotFound)
		_, err = admin.ListUserShared(ctx, "mallory")
		assert.ErrorIs(t, err, directory.ErrNotFound)
		_, err = admin.ShareInfoUser(ctx, "mallory", "/x")
		assert.ErrorIs(t, err, directory.ErrNotFound)
	})
}
