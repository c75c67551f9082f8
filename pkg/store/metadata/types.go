package metadata

import (
	"bytes"
	"slices"
	"time"
)

// AccountID identifies an account record. It is opaque to callers; each
// backend chooses its own format.
type AccountID string

// FileID identifies a file record.
type FileID string

// Role distinguishes ordinary accounts from administrators.
type Role int

const (
	RoleRegular Role = iota
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleRegular:
		return "regular"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// SessionToken is a login token registered on an account.
type SessionToken struct {
	Token    []byte    `json:"token"`
	IssuedAt time.Time `json:"issued_at"`
}

// Warning is an administrator message queued for an account.
type Warning struct {
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Account is the persisted account record.
//
// Invariants: FreeSpace <= TotalSpace; admin accounts have zero quota and an
// empty HomeDir; Username is unique across the store.
type Account struct {
	ID           AccountID      `json:"id"`
	Username     string         `json:"username"`
	Name         string         `json:"name"`
	Surname      string         `json:"surname"`
	Role         Role           `json:"role"`
	HomeDir      string         `json:"home_dir"`
	TotalSpace   uint64         `json:"total_space"`
	FreeSpace    uint64         `json:"free_space"`
	PasswordHash []byte         `json:"password_hash"`
	Sessions     []SessionToken `json:"sessions,omitempty"`
	Warnings     []Warning      `json:"warnings,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// UsedSpace returns the bytes charged against the account's quota.
func (a *Account) UsedSpace() uint64 {
	return a.TotalSpace - a.FreeSpace
}

// FullName is the "name surname" display form shown next to shared files.
func (a *Account) FullName() string {
	return a.Name + " " + a.Surname
}

// HasSession reports whether token is registered on the account.
func (a *Account) HasSession(token []byte) bool {
	return slices.ContainsFunc(a.Sessions, func(s SessionToken) bool {
		return bytes.Equal(s.Token, token)
	})
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	c := *a
	c.PasswordHash = bytes.Clone(a.PasswordHash)
	c.Sessions = make([]SessionToken, len(a.Sessions))
	for i, s := range a.Sessions {
		c.Sessions[i] = SessionToken{Token: bytes.Clone(s.Token), IssuedAt: s.IssuedAt}
	}
	c.Warnings = slices.Clone(a.Warnings)
	return &c
}

// FileKind is the closed set of entry kinds a file record can have.
type FileKind int

const (
	KindRegular FileKind = iota
	KindDirectory
)

func (k FileKind) String() string {
	switch k {
	case KindRegular:
		return "regular"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the known kinds.
func (k FileKind) Valid() bool {
	return k == KindRegular || k == KindDirectory
}

// FileEntry is the persisted metadata of a file or directory.
//
// For regular files Size is the declared length, LastValid the number of bytes
// committed so far, and IsValid is set only after the content hash has been
// verified (which implies LastValid == Size). For directories Size counts the
// immediate children, IsValid is always true and Hash is empty.
type FileEntry struct {
	ID          FileID      `json:"id"`
	Owner       AccountID   `json:"owner"`
	Filename    string      `json:"filename"`
	Kind        FileKind    `json:"kind"`
	Size        uint64      `json:"size"`
	LastValid   uint64      `json:"last_valid"`
	IsValid     bool        `json:"is_valid"`
	Hash        []byte      `json:"hash,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	LastChunkAt time.Time   `json:"last_chunk_at"`
	SharedWith  []AccountID `json:"shared_with,omitempty"`
}

// Leaf returns the last path segment of the filename.
func (f *FileEntry) Leaf() string {
	_, leaf, _ := SplitPath(f.Filename)
	return leaf
}

// IsSharedWith reports whether id holds a grant on the file.
func (f *FileEntry) IsSharedWith(id AccountID) bool {
	return slices.Contains(f.SharedWith, id)
}

// Clone returns a deep copy of the entry.
func (f *FileEntry) Clone() *FileEntry {
	c := *f
	c.Hash = bytes.Clone(f.Hash)
	c.SharedWith = slices.Clone(f.SharedWith)
	return &c
}

// InvalidFileFilter narrows ListInvalidFiles.
type InvalidFileFilter struct {
	// Owner restricts results to one account. Empty means all accounts.
	Owner AccountID

	// StaleBefore keeps only entries whose LastChunkAt is strictly earlier.
	// Zero means no age filter.
	StaleBefore time.Time
}

// Matches reports whether f passes the filter. Only regular, not yet
// validated entries can match.
func (flt InvalidFileFilter) Matches(f *FileEntry) bool {
	if f.Kind != KindRegular || f.IsValid {
		return false
	}
	if flt.Owner != "" && f.Owner != flt.Owner {
		return false
	}
	if !flt.StaleBefore.IsZero() && !f.LastChunkAt.Before(flt.StaleBefore) {
		return false
	}
	return true
}
