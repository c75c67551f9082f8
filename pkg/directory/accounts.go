package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/storagecloud/internal/logger"
	"github.com/marmos91/storagecloud/pkg/cryptoutil"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

// NewAccount describes an account to register.
type NewAccount struct {
	Username string
	Name     string
	Surname  string
	Role     metadata.Role
	Password string
}

// AccountDetails is the summary shown in account listings.
type AccountDetails struct {
	Username   string
	Name       string
	Surname    string
	Role       metadata.Role
	TotalSpace uint64
	UsedSpace  uint64
}

func detailsOf(acct *metadata.Account) AccountDetails {
	return AccountDetails{
		Username:   acct.Username,
		Name:       acct.Name,
		Surname:    acct.Surname,
		Role:       acct.Role,
		TotalSpace: acct.TotalSpace,
		UsedSpace:  acct.UsedSpace(),
	}
}

// validUsername rejects usernames that cannot name a home directory.
func validUsername(username string) bool {
	return username != "" && username != "." && username != ".." &&
		!strings.ContainsAny(username, "/\x00")
}

// RegisterUser creates an account.
//
// Regular accounts receive the default quota and a home directory named
// after the username. The home directory is created before the record is
// inserted and removed again if the insert fails. Admin accounts get zero
// quota and no home directory.
//
// Returns:
//   - *metadata.Account: The stored account
//   - error: ErrAlreadyExists if the username is taken, ErrInvalidPath if it
//     cannot name a directory
func (d *Directory) RegisterUser(ctx context.Context, na NewAccount) (acct *metadata.Account, err error) {
	defer d.observe("RegisterUser", time.Now(), &err)

	if !validUsername(na.Username) {
		return nil, fmt.Errorf("register %q: %w", na.Username, ErrInvalidPath)
	}

	// Step 1: Reject taken usernames before touching the disk
	if _, err := d.meta.GetAccountByUsername(ctx, na.Username); err == nil {
		return nil, fmt.Errorf("register %q: %w", na.Username, ErrAlreadyExists)
	} else if !metadata.IsNotFound(err) {
		return nil, storeError("register", err)
	}

	record := metadata.Account{
		Username:     na.Username,
		Name:         na.Name,
		Surname:      na.Surname,
		Role:         na.Role,
		PasswordHash: cryptoutil.HashPassword(na.Password),
		CreatedAt:    d.now(),
	}

	// Step 2: Regular accounts get a quota and a home directory
	switch na.Role {
	case metadata.RoleAdmin:
	case metadata.RoleRegular:
		record.HomeDir = "/" + na.Username
		record.TotalSpace = d.config.DefaultQuota
		record.FreeSpace = d.config.DefaultQuota

		if err := d.files.Mkdir(ctx, record.HomeDir); err != nil {
			logger.Error("Failed to create home directory %s: %v", record.HomeDir, err)
			return nil, diskError("register", err)
		}
	default:
		return nil, fmt.Errorf("register %q: unknown role %d: %w", na.Username, na.Role, ErrInternalInconsistency)
	}

	// Step 3: Insert the record, undoing the home directory on failure
	acct, err = d.meta.CreateAccount(ctx, record)
	if err != nil {
		if record.HomeDir != "" {
			if rmErr := d.files.RemoveAll(ctx, record.HomeDir); rmErr != nil {
				logger.Warn("Failed to remove home directory %s after failed registration: %v", record.HomeDir, rmErr)
			}
		}
		return nil, storeError("register", err)
	}

	logger.Info("Registered %s account %s", acct.Role, acct.Username)
	return acct, nil
}

// ResolveAccount returns the id of the account with the given username.
func (d *Directory) ResolveAccount(ctx context.Context, username string) (metadata.AccountID, error) {
	acct, err := d.meta.GetAccountByUsername(ctx, username)
	if err != nil {
		return "", storeError("resolve "+username, err)
	}
	return acct.ID, nil
}

// Account returns the account record.
func (d *Directory) Account(ctx context.Context, id metadata.AccountID) (*metadata.Account, error) {
	return d.account(ctx, "account", id)
}

func (d *Directory) Name(ctx context.Context, id metadata.AccountID) (string, error) {
	acct, err := d.account(ctx, "name", id)
	if err != nil {
		return "", err
	}
	return acct.Name, nil
}

func (d *Directory) Surname(ctx context.Context, id metadata.AccountID) (string, error) {
	acct, err := d.account(ctx, "surname", id)
	if err != nil {
		return "", err
	}
	return acct.Surname, nil
}

// HomeDir returns the account's home directory, empty for admins.
func (d *Directory) HomeDir(ctx context.Context, id metadata.AccountID) (string, error) {
	acct, err := d.account(ctx, "home dir", id)
	if err != nil {
		return "", err
	}
	return acct.HomeDir, nil
}

func (d *Directory) Role(ctx context.Context, id metadata.AccountID) (metadata.Role, error) {
	acct, err := d.account(ctx, "role", id)
	if err != nil {
		return metadata.RoleRegular, err
	}
	return acct.Role, nil
}

// SetName replaces the display name and surname.
func (d *Directory) SetName(ctx context.Context, id metadata.AccountID, name, surname string) error {
	return storeError("set name", d.meta.SetAccountName(ctx, id, name, surname))
}

// CheckPassword reports whether password matches the stored digest. The
// comparison runs in constant time.
func (d *Directory) CheckPassword(ctx context.Context, id metadata.AccountID, password string) (bool, error) {
	acct, err := d.account(ctx, "check password", id)
	if err != nil {
		return false, err
	}
	return cryptoutil.VerifyPassword(password, acct.PasswordHash), nil
}

// SetPassword stores the digest of a new password.
func (d *Directory) SetPassword(ctx context.Context, id metadata.AccountID, password string) error {
	return storeError("set password", d.meta.SetPasswordHash(ctx, id, cryptoutil.HashPassword(password)))
}

// Details returns the account summary.
func (d *Directory) Details(ctx context.Context, id metadata.AccountID) (*AccountDetails, error) {
	acct, err := d.account(ctx, "details", id)
	if err != nil {
		return nil, err
	}
	details := detailsOf(acct)
	return &details, nil
}

// ListAllUsers returns every account ordered by username.
func (d *Directory) ListAllUsers(ctx context.Context) (list []AccountDetails, err error) {
	defer d.observe("ListAllUsers", time.Now(), &err)

	accounts, err := d.meta.ListAccounts(ctx)
	if err != nil {
		return nil, storeError("list users", err)
	}

	list = make([]AccountDetails, 0, len(accounts))
	for _, acct := range accounts {
		list = append(list, detailsOf(acct))
	}
	return list, nil
}

// DeleteUser removes an account and everything it owns.
//
// The home directory tree is removed first; the store then drops the
// account, its file records and every grant naming it.
func (d *Directory) DeleteUser(ctx context.Context, username string) (err error) {
	defer d.observe("DeleteUser", time.Now(), &err)

	acct, err := d.meta.GetAccountByUsername(ctx, username)
	if err != nil {
		return storeError("delete user "+username, err)
	}

	if acct.HomeDir != "" {
		if err := d.files.RemoveAll(ctx, acct.HomeDir); err != nil {
			return diskError("delete user "+username, err)
		}
	}

	if err := d.meta.DeleteAccount(ctx, acct.ID); err != nil {
		return storeError("delete user "+username, err)
	}

	logger.Info("Deleted account %s", username)
	return nil
}

// ============================================================================
// Sessions
// ============================================================================

// AddSession registers a login token issued now.
func (d *Directory) AddSession(ctx context.Context, id metadata.AccountID, token []byte) error {
	return storeError("add session", d.meta.AddSession(ctx, id, metadata.SessionToken{
		Token:    token,
		IssuedAt: d.now(),
	}))
}

// HasSession reports whether token is registered on the account.
func (d *Directory) HasSession(ctx context.Context, id metadata.AccountID, token []byte) (bool, error) {
	ok, err := d.meta.HasSession(ctx, id, token)
	if err != nil {
		return false, storeError("check session", err)
	}
	return ok, nil
}

// RemoveSession unregisters a token.
func (d *Directory) RemoveSession(ctx context.Context, id metadata.AccountID, token []byte) error {
	return storeError("remove session", d.meta.RemoveSession(ctx, id, token))
}

// ============================================================================
// Warnings
// ============================================================================

// AddWarning queues an administrator message for the account.
func (d *Directory) AddWarning(ctx context.Context, id metadata.AccountID, body string) error {
	return storeError("add warning", d.meta.AddWarning(ctx, id, metadata.Warning{
		Body:      body,
		CreatedAt: d.now(),
	}))
}

// TakeWarnings returns the queued messages and clears the queue.
func (d *Directory) TakeWarnings(ctx context.Context, id metadata.AccountID) ([]string, error) {
	warnings, err := d.meta.TakeWarnings(ctx, id)
	if err != nil {
		return nil, storeError("take warnings", err)
	}

	bodies := make([]string, 0, len(warnings))
	for _, w := range warnings {
		bodies = append(bodies, w.Body)
	}
	return bodies, nil
}

// isNotFound reports whether err carries the ErrNotFound kind.
func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
