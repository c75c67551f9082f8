// Package session implements the per-caller identity: which account a
// caller acts as, whether it has authenticated, and its in-flight transfers.
//
// An Identity is owned by one caller (one connection) and is not safe for
// concurrent use. Every durable effect goes through a shared
// directory.Directory, which is.
//
// Delegated operations do not check IsAuthorized themselves. Deciding which
// calls an unauthenticated or non-admin caller may make belongs to the
// command dispatcher in front of this package.
package session

import (
	"context"
	"fmt"

	"github.com/marmos91/storagecloud/internal/logger"
	"github.com/marmos91/storagecloud/internal/ratelimiter"
	"github.com/marmos91/storagecloud/pkg/cryptoutil"
	"github.com/marmos91/storagecloud/pkg/directory"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

// Identity binds a caller to an account.
//
// States:
//   - invalid: no account bound (initial state, after a failed bind, after logout)
//   - valid: bound to an account but not authenticated
//   - authorized: bound and authenticated by password or token
type Identity struct {
	dir     *directory.Directory
	limiter *ratelimiter.KeyedLimiter

	username   string
	id         metadata.AccountID
	valid      bool
	authorized bool

	upload   *directory.UploadCursor
	download *directory.DownloadCursor
}

// Option customizes an Identity.
type Option func(*Identity)

// WithLoginLimiter throttles failed password logins per username. The
// limiter is meant to be shared by all identities of a process.
func WithLoginLimiter(l *ratelimiter.KeyedLimiter) Option {
	return func(s *Identity) {
		if l != nil {
			s.limiter = l
		}
	}
}

// New returns an identity bound to no account.
func New(dir *directory.Directory, opts ...Option) *Identity {
	s := &Identity{
		dir:     dir,
		limiter: ratelimiter.NewKeyed(0, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewForUsername returns an identity bound to username. The identity is
// returned even when binding fails, in the invalid state.
func NewForUsername(ctx context.Context, dir *directory.Directory, username string, opts ...Option) (*Identity, error) {
	s := New(dir, opts...)
	return s, s.BindUsername(ctx, username)
}

// BindUsername resolves username and binds the identity to its account.
//
// A failed resolution leaves the identity invalid and unauthorized. Binding
// to a different account than the current one clears authorization (the
// caller has to log in again) but keeps the identity valid.
func (s *Identity) BindUsername(ctx context.Context, username string) error {
	id, err := s.dir.ResolveAccount(ctx, username)
	if err != nil {
		s.reset()
		return err
	}

	if s.id != id {
		s.authorized = false
		s.dropTransfers()
	}
	s.username = username
	s.id = id
	s.valid = true
	return nil
}

// LoginWithPassword authenticates with the account password and returns a
// new session token for later LoginWithToken calls.
//
// Any failure leaves the identity unauthorized. A username with too many
// recent failures is refused with ErrRateLimited before the password is
// checked.
func (s *Identity) LoginWithPassword(ctx context.Context, password string) ([]byte, error) {
	s.authorized = false
	if err := s.requireValid(); err != nil {
		return nil, err
	}

	if s.limiter.Blocked(s.username) {
		logger.Warn("Login for %s throttled", s.username)
		return nil, fmt.Errorf("login %s: %w", s.username, ErrRateLimited)
	}

	ok, err := s.dir.CheckPassword(ctx, s.id, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.limiter.Record(s.username)
		logger.Info("Wrong password for %s", s.username)
		return nil, fmt.Errorf("login %s: wrong password: %w", s.username, directory.ErrUnauthorized)
	}

	token, err := cryptoutil.NewSessionToken()
	if err != nil {
		return nil, fmt.Errorf("login %s: %w", s.username, err)
	}
	if err := s.dir.AddSession(ctx, s.id, token); err != nil {
		return nil, err
	}

	s.limiter.Reset(s.username)
	s.authorized = true
	logger.Debug("Password login for %s", s.username)
	return token, nil
}

// LoginWithToken authenticates with a token issued by LoginWithPassword.
// The identity is authorized iff the token is registered on the account.
func (s *Identity) LoginWithToken(ctx context.Context, token []byte) (bool, error) {
	s.authorized = false
	if err := s.requireValid(); err != nil {
		return false, err
	}

	ok, err := s.dir.HasSession(ctx, s.id, token)
	if err != nil {
		return false, err
	}
	s.authorized = ok
	return ok, nil
}

// Logout unbinds the identity and removes token from the account.
//
// The local state is reset even when removing the token fails; the error
// is still returned so the caller can report it.
func (s *Identity) Logout(ctx context.Context, token []byte) error {
	id, valid := s.id, s.valid
	s.reset()

	if !valid {
		return nil
	}
	if err := s.dir.RemoveSession(ctx, id, token); err != nil {
		logger.Warn("Failed to remove session token of account %s: %v", id, err)
		return err
	}
	return nil
}

// IsAdmin reports whether the identity is valid, authorized and bound to an
// admin account.
func (s *Identity) IsAdmin(ctx context.Context) bool {
	if !s.valid || !s.authorized {
		return false
	}
	role, err := s.dir.Role(ctx, s.id)
	if err != nil {
		return false
	}
	return role == metadata.RoleAdmin
}

func (s *Identity) IsValid() bool      { return s.valid }
func (s *Identity) IsAuthorized() bool { return s.authorized }

// AccountID returns the bound account, empty when invalid.
func (s *Identity) AccountID() metadata.AccountID { return s.id }

// Username returns the bound username, empty when invalid.
func (s *Identity) Username() string { return s.username }

func (s *Identity) requireValid() error {
	if !s.valid {
		return ErrInvalidIdentity
	}
	return nil
}

func (s *Identity) reset() {
	s.username = ""
	s.id = ""
	s.valid = false
	s.authorized = false
	s.dropTransfers()
}

func (s *Identity) dropTransfers() {
	s.upload = nil
	s.download = nil
}
