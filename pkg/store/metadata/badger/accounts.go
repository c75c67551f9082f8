package badger

import (
	"bytes"
	"context"
	"slices"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

func (s *BadgerMetadataStore) CreateAccount(ctx context.Context, acct metadata.Account) (*metadata.Account, error) {
	stored := acct.Clone()
	stored.ID = metadata.AccountID(uuid.NewString())

	err := s.update(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(keyUsername(stored.Username))
		if err == nil {
			return &metadata.StoreError{
				Code:    metadata.ErrAlreadyExists,
				Message: "username already taken",
				Path:    stored.Username,
			}
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		if err := txn.Set(keyUsername(stored.Username), []byte(stored.ID)); err != nil {
			return err
		}
		return putAccount(txn, stored)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *BadgerMetadataStore) GetAccount(ctx context.Context, id metadata.AccountID) (*metadata.Account, error) {
	var acct *metadata.Account
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		acct, err = getAccount(txn, id)
		return err
	})
	return acct, err
}

func (s *BadgerMetadataStore) GetAccountByUsername(ctx context.Context, username string) (*metadata.Account, error) {
	var acct *metadata.Account
	err := s.view(ctx, func(txn *badger.Txn) error {
		id, err := getIndex(txn, keyUsername(username))
		if err == badger.ErrKeyNotFound {
			return metadata.NewNotFoundError("account", username)
		}
		if err != nil {
			return err
		}
		acct, err = getAccount(txn, metadata.AccountID(id))
		return err
	})
	return acct, err
}

func (s *BadgerMetadataStore) ListAccounts(ctx context.Context) ([]*metadata.Account, error) {
	var result []*metadata.Account
	err := s.view(ctx, func(txn *badger.Txn) error {
		result = nil
		for _, key := range scanKeys(txn, []byte(prefixAccount)) {
			acct, err := getAccount(txn, metadata.AccountID(key[len(prefixAccount):]))
			if err != nil {
				return err
			}
			result = append(result, acct)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(result, func(a, b *metadata.Account) int {
		return strings.Compare(a.Username, b.Username)
	})
	return result, nil
}

// mutateAccount loads, modifies and writes back an account in one transaction.
func (s *BadgerMetadataStore) mutateAccount(ctx context.Context, id metadata.AccountID, fn func(acct *metadata.Account) error) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		acct, err := getAccount(txn, id)
		if err != nil {
			return err
		}
		if err := fn(acct); err != nil {
			return err
		}
		return putAccount(txn, acct)
	})
}

func (s *BadgerMetadataStore) SetAccountName(ctx context.Context, id metadata.AccountID, name, surname string) error {
	return s.mutateAccount(ctx, id, func(acct *metadata.Account) error {
		acct.Name = name
		acct.Surname = surname
		return nil
	})
}

func (s *BadgerMetadataStore) SetPasswordHash(ctx context.Context, id metadata.AccountID, hash []byte) error {
	return s.mutateAccount(ctx, id, func(acct *metadata.Account) error {
		acct.PasswordHash = bytes.Clone(hash)
		return nil
	})
}

func (s *BadgerMetadataStore) SetTotalSpace(ctx context.Context, id metadata.AccountID, total uint64) (*metadata.Account, error) {
	var updated *metadata.Account
	err := s.mutateAccount(ctx, id, func(acct *metadata.Account) error {
		if err := metadata.ApplyTotalSpace(acct, total); err != nil {
			return err
		}
		updated = acct.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *BadgerMetadataStore) ChangeFreeSpace(ctx context.Context, id metadata.AccountID, delta int64) (uint64, error) {
	var free uint64
	err := s.mutateAccount(ctx, id, func(acct *metadata.Account) error {
		if err := metadata.ApplyFreeSpaceDelta(acct, delta); err != nil {
			return err
		}
		free = acct.FreeSpace
		return nil
	})
	return free, err
}

func (s *BadgerMetadataStore) AddSession(ctx context.Context, id metadata.AccountID, token metadata.SessionToken) error {
	return s.mutateAccount(ctx, id, func(acct *metadata.Account) error {
		acct.Sessions = append(acct.Sessions, metadata.SessionToken{
			Token:    bytes.Clone(token.Token),
			IssuedAt: token.IssuedAt,
		})
		return nil
	})
}

func (s *BadgerMetadataStore) HasSession(ctx context.Context, id metadata.AccountID, token []byte) (bool, error) {
	acct, err := s.GetAccount(ctx, id)
	if err != nil {
		return false, err
	}
	return acct.HasSession(token), nil
}

func (s *BadgerMetadataStore) RemoveSession(ctx context.Context, id metadata.AccountID, token []byte) error {
	return s.mutateAccount(ctx, id, func(acct *metadata.Account) error {
		acct.Sessions = slices.DeleteFunc(acct.Sessions, func(st metadata.SessionToken) bool {
			return bytes.Equal(st.Token, token)
		})
		return nil
	})
}

func (s *BadgerMetadataStore) AddWarning(ctx context.Context, id metadata.AccountID, warning metadata.Warning) error {
	return s.mutateAccount(ctx, id, func(acct *metadata.Account) error {
		acct.Warnings = append(acct.Warnings, warning)
		return nil
	})
}

func (s *BadgerMetadataStore) TakeWarnings(ctx context.Context, id metadata.AccountID) ([]metadata.Warning, error) {
	var taken []metadata.Warning
	err := s.mutateAccount(ctx, id, func(acct *metadata.Account) error {
		taken = acct.Warnings
		acct.Warnings = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return taken, nil
}

// DeleteAccount removes the account, its files and the grants naming it.
//
// Everything happens in one transaction; very large accounts may exceed
// BadgerDB's transaction size limit, in which case badger.ErrTxnTooBig is
// returned and nothing is removed.
func (s *BadgerMetadataStore) DeleteAccount(ctx context.Context, id metadata.AccountID) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		acct, err := getAccount(txn, id)
		if err != nil {
			return err
		}

		// Owned files
		ids, err := ownerFileIDs(txn, []byte(prefixPath+string(id)+":"))
		if err != nil {
			return err
		}
		for _, fid := range ids {
			f, err := getFile(txn, fid)
			if err != nil {
				return err
			}
			if err := removeFile(txn, f); err != nil {
				return err
			}
		}

		// Grants held on other accounts' files
		for _, key := range scanKeys(txn, keyGrantPrefix(id)) {
			f, err := getFile(txn, fileIDFromGrantKey(id, key))
			if err != nil && !metadata.IsNotFound(err) {
				return err
			}
			if f != nil {
				f.SharedWith = slices.DeleteFunc(f.SharedWith, func(g metadata.AccountID) bool { return g == id })
				if err := putFile(txn, f); err != nil {
					return err
				}
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		if err := txn.Delete(keyUsername(acct.Username)); err != nil {
			return err
		}
		return txn.Delete(keyAccount(id))
	})
}
