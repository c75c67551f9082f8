package metadata

import (
	"context"
	"time"
)

// ============================================================================
// Store Interface
// ============================================================================

// Store persists accounts, file records and sharing grants.
//
// The store manages records only; file content lives in a content store and
// is addressed by the owner's home directory joined with the filename.
//
// Atomicity:
// Every method is a single atomic step against the backend. Fields that are
// contended across sessions (FreeSpace, LastValid, IsValid) are only changed
// through the conditional methods below, never by read-modify-write in the
// caller.
//
// Returned records are copies; mutating them has no effect on the store.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	// ========================================================================
	// Accounts
	// ========================================================================

	// CreateAccount inserts a new account and returns it with its ID assigned.
	//
	// The username uniqueness check and the insert happen atomically.
	//
	// Returns:
	//   - *Account: The stored record
	//   - error: ErrAlreadyExists if the username is taken
	CreateAccount(ctx context.Context, acct Account) (*Account, error)

	// GetAccount returns the account with the given id, or ErrNotFound.
	GetAccount(ctx context.Context, id AccountID) (*Account, error)

	// GetAccountByUsername returns the account with the given username, or ErrNotFound.
	GetAccountByUsername(ctx context.Context, username string) (*Account, error)

	// ListAccounts returns every account ordered by username.
	ListAccounts(ctx context.Context) ([]*Account, error)

	// SetAccountName replaces the display name and surname.
	SetAccountName(ctx context.Context, id AccountID, name, surname string) error

	// SetPasswordHash replaces the stored password digest.
	SetPasswordHash(ctx context.Context, id AccountID, hash []byte) error

	// SetTotalSpace changes the quota, shifting FreeSpace by the same delta.
	//
	// Returns ErrNoSpace (and changes nothing) when the space already used
	// exceeds total.
	SetTotalSpace(ctx context.Context, id AccountID, total uint64) (*Account, error)

	// ChangeFreeSpace atomically adds delta to FreeSpace and returns the result.
	//
	// Returns:
	//   - uint64: FreeSpace after the change
	//   - error: ErrNoSpace if the result would be negative, ErrInvalidArgument
	//     if it would exceed TotalSpace. Neither case modifies the record.
	ChangeFreeSpace(ctx context.Context, id AccountID, delta int64) (uint64, error)

	// AddSession registers a login token on the account.
	AddSession(ctx context.Context, id AccountID, token SessionToken) error

	// HasSession reports whether the token is registered on the account.
	HasSession(ctx context.Context, id AccountID, token []byte) (bool, error)

	// RemoveSession unregisters a token. Removing an unknown token is not an error.
	RemoveSession(ctx context.Context, id AccountID, token []byte) error

	// AddWarning appends a warning to the account's queue.
	AddWarning(ctx context.Context, id AccountID, warning Warning) error

	// TakeWarnings returns the queued warnings and clears the queue in one step.
	TakeWarnings(ctx context.Context, id AccountID) ([]Warning, error)

	// DeleteAccount removes the account, every file record it owns, and every
	// grant that names it as grantee.
	DeleteAccount(ctx context.Context, id AccountID) error

	// ========================================================================
	// Files
	// ========================================================================

	// CreateFile inserts a new file record and returns it with its ID assigned.
	//
	// Returns ErrAlreadyExists when (Owner, Filename) is taken.
	CreateFile(ctx context.Context, entry FileEntry) (*FileEntry, error)

	// GetFile returns the file with the given id, or ErrNotFound.
	GetFile(ctx context.Context, id FileID) (*FileEntry, error)

	// GetFileByPath returns the owner's file with the given filename, or ErrNotFound.
	GetFileByPath(ctx context.Context, owner AccountID, filename string) (*FileEntry, error)

	// FindFilesByLeafAndHash returns the regular files of owner whose last
	// path segment equals leaf and whose hash equals hash, ordered by
	// filename. No match is an empty result, not an error.
	FindFilesByLeafAndHash(ctx context.Context, owner AccountID, leaf string, hash []byte) ([]*FileEntry, error)

	// ListChildren returns the owner's entries exactly one level below dir
	// ("" is the root), ordered by filename. Entries are returned regardless
	// of their validity.
	ListChildren(ctx context.Context, owner AccountID, dir string) ([]*FileEntry, error)

	// AdjustChildCount adds delta to a directory's child counter. The counter
	// never goes below zero.
	AdjustChildCount(ctx context.Context, owner AccountID, dir string, delta int64) error

	// AdvanceLastValid commits n more bytes of an upload.
	//
	// The update only applies when the entry is still invalid, its LastValid
	// equals expected and expected+n does not exceed Size. LastChunkAt is set
	// to at in the same step.
	//
	// Returns:
	//   - *FileEntry: The entry after the update
	//   - error: ErrConflict if LastValid moved or the entry was validated,
	//     ErrInvalidArgument if the chunk overflows Size
	AdvanceLastValid(ctx context.Context, id FileID, expected, n uint64, at time.Time) (*FileEntry, error)

	// MarkValid flags a fully uploaded regular file as verified.
	// Returns ErrConflict when LastValid != Size.
	MarkValid(ctx context.Context, id FileID) error

	// DeleteFile removes a single file record and any grants on it.
	DeleteFile(ctx context.Context, id FileID) error

	// SumLastValidUnder returns the sum of LastValid over the owner's regular
	// files strictly below dir.
	SumLastValidUnder(ctx context.Context, owner AccountID, dir string) (uint64, error)

	// DeleteFilesUnder removes dir's own record and every record below it,
	// returning the number of records removed.
	DeleteFilesUnder(ctx context.Context, owner AccountID, dir string) (int, error)

	// ListInvalidFiles returns regular files that have not been validated,
	// narrowed by filter, ordered by owner then filename.
	ListInvalidFiles(ctx context.Context, filter InvalidFileFilter) ([]*FileEntry, error)

	// ========================================================================
	// Sharing
	// ========================================================================

	// AddGrant records that grantee may download the file. Adding an existing
	// grant is a no-op.
	AddGrant(ctx context.Context, id FileID, grantee AccountID) error

	// RemoveGrant drops grantee's grant on the file. Removing a missing grant
	// is a no-op.
	RemoveGrant(ctx context.Context, id FileID, grantee AccountID) error

	// ListSharedWith returns the valid regular files shared with grantee,
	// ordered by owner then filename.
	ListSharedWith(ctx context.Context, grantee AccountID) ([]*FileEntry, error)

	// ========================================================================
	// Lifecycle
	// ========================================================================

	// Healthcheck verifies the backend is reachable.
	Healthcheck(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
