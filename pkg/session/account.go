package session

import (
	"context"
	"fmt"

	"github.com/marmos91/storagecloud/pkg/directory"
)

// ============================================================================
// Account
// ============================================================================

func (s *Identity) Name(ctx context.Context) (string, error) {
	if err := s.requireValid(); err != nil {
		return "", err
	}
	return s.dir.Name(ctx, s.id)
}

func (s *Identity) Surname(ctx context.Context) (string, error) {
	if err := s.requireValid(); err != nil {
		return "", err
	}
	return s.dir.Surname(ctx, s.id)
}

func (s *Identity) HomeDir(ctx context.Context) (string, error) {
	if err := s.requireValid(); err != nil {
		return "", err
	}
	return s.dir.HomeDir(ctx, s.id)
}

func (s *Identity) SetName(ctx context.Context, name, surname string) error {
	if err := s.requireValid(); err != nil {
		return err
	}
	return s.dir.SetName(ctx, s.id, name, surname)
}

func (s *Identity) CheckPassword(ctx context.Context, password string) (bool, error) {
	if err := s.requireValid(); err != nil {
		return false, err
	}
	return s.dir.CheckPassword(ctx, s.id, password)
}

func (s *Identity) SetPassword(ctx context.Context, password string) error {
	if err := s.requireValid(); err != nil {
		return err
	}
	return s.dir.SetPassword(ctx, s.id, password)
}

// ChangePassword replaces the password after checking the current one.
func (s *Identity) ChangePassword(ctx context.Context, current, replacement string) error {
	ok, err := s.CheckPassword(ctx, current)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("change password of %s: wrong password: %w", s.username, directory.ErrUnauthorized)
	}
	return s.dir.SetPassword(ctx, s.id, replacement)
}

// Details returns the bound account's summary.
func (s *Identity) Details(ctx context.Context) (*directory.AccountDetails, error) {
	if err := s.requireValid(); err != nil {
		return nil, err
	}
	return s.dir.Details(ctx, s.id)
}

// Warnings returns the queued administrator messages and clears them.
func (s *Identity) Warnings(ctx context.Context) ([]string, error) {
	if err := s.requireValid(); err != nil {
		return nil, err
	}
	return s.dir.TakeWarnings(ctx, s.id)
}

func (s *Identity) FreeSpace(ctx context.Context) (uint64, error) {
	if err := s.requireValid(); err != nil {
		return 0, err
	}
	return s.dir.FreeSpace(ctx, s.id)
}

func (s *Identity) TotalSpace(ctx context.Context) (uint64, error) {
	if err := s.requireValid(); err != nil {
		return 0, err
	}
	return s.dir.TotalSpace(ctx, s.id)
}

// ============================================================================
// Files and sharing
// ============================================================================

// ListFiles returns the valid entries directly below path.
func (s *Identity) ListFiles(ctx context.Context, path string) ([]directory.FileInfo, error) {
	if err := s.requireValid(); err != nil {
		return nil, err
	}
	return s.dir.ListFiles(ctx, s.id, path)
}

// DeleteFile removes a regular file or a whole directory tree.
func (s *Identity) DeleteFile(ctx context.Context, path string) error {
	if err := s.requireValid(); err != nil {
		return err
	}
	return s.dir.Delete(ctx, s.id, path)
}

func (s *Identity) ShareWith(ctx context.Context, path, granteeUsername string) error {
	if err := s.requireValid(); err != nil {
		return err
	}
	return s.dir.ShareWith(ctx, s.id, path, granteeUsername)
}

func (s *Identity) UnshareWith(ctx context.Context, path, granteeUsername string) error {
	if err := s.requireValid(); err != nil {
		return err
	}
	return s.dir.UnshareWith(ctx, s.id, path, granteeUsername)
}

// ListShared returns the files other accounts shared with this one.
func (s *Identity) ListShared(ctx context.Context) ([]directory.FileInfo, error) {
	if err := s.requireValid(); err != nil {
		return nil, err
	}
	return s.dir.ListShared(ctx, s.id)
}

// ShareInfo returns the usernames path is shared with.
func (s *Identity) ShareInfo(ctx context.Context, path string) ([]string, error) {
	if err := s.requireValid(); err != nil {
		return nil, err
	}
	return s.dir.ShareInfo(ctx, s.id, path)
}

// ClearCache deletes every unfinished upload of the account right away and
// returns how many were removed. The current upload, if any, ends with it.
func (s *Identity) ClearCache(ctx context.Context) (int, error) {
	if err := s.requireValid(); err != nil {
		return 0, err
	}
	s.upload = nil
	return s.dir.RemoveUnfinished(ctx, s.id)
}

// ============================================================================
// Run as another account
// ============================================================================

// Each of these resolves username first and passes the account id to the
// directory. An unknown username fails with directory.ErrNotFound.

func (s *Identity) ListUserFiles(ctx context.Context, username, path string) ([]directory.FileInfo, error) {
	id, err := s.dir.ResolveAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.dir.ListFiles(ctx, id, path)
}

func (s *Identity) DeleteUserFile(ctx context.Context, username, path string) error {
	id, err := s.dir.ResolveAccount(ctx, username)
	if err != nil {
		return err
	}
	return s.dir.Delete(ctx, id, path)
}

func (s *Identity) ChangeUserPassword(ctx context.Context, username, password string) error {
	id, err := s.dir.ResolveAccount(ctx, username)
	if err != nil {
		return err
	}
	return s.dir.SetPassword(ctx, id, password)
}

func (s *Identity) ListUserShared(ctx context.Context, username string) ([]directory.FileInfo, error) {
	id, err := s.dir.ResolveAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.dir.ListShared(ctx, id)
}

func (s *Identity) ShareInfoUser(ctx context.Context, username, path string) ([]string, error) {
	id, err := s.dir.ResolveAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.dir.ShareInfo(ctx, id, path)
}

// WarnUser queues a message that username sees on its next Warnings call.
func (s *Identity) WarnUser(ctx context.Context, username, body string) error {
	id, err := s.dir.ResolveAccount(ctx, username)
	if err != nil {
		return err
	}
	return s.dir.AddWarning(ctx, id, body)
}

func (s *Identity) ChangeUserTotalStorage(ctx context.Context, username string, total uint64) error {
	id, err := s.dir.ResolveAccount(ctx, username)
	if err != nil {
		return err
	}
	return s.dir.ChangeTotalStorage(ctx, id, total)
}
