package memory

import (
	"bytes"
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

func (s *MemoryMetadataStore) CreateAccount(ctx context.Context, acct metadata.Account) (*metadata.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usernames[acct.Username]; exists {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrAlreadyExists,
			Message: "username already taken",
			Path:    acct.Username,
		}
	}

	stored := acct.Clone()
	stored.ID = metadata.AccountID(uuid.NewString())
	s.accounts[stored.ID] = stored
	s.usernames[stored.Username] = stored.ID

	return stored.Clone(), nil
}

func (s *MemoryMetadataStore) GetAccount(ctx context.Context, id metadata.AccountID) (*metadata.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil, metadata.NewNotFoundError("account", string(id))
	}
	return acct.Clone(), nil
}

func (s *MemoryMetadataStore) GetAccountByUsername(ctx context.Context, username string) (*metadata.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usernames[username]
	if !ok {
		return nil, metadata.NewNotFoundError("account", username)
	}
	return s.accounts[id].Clone(), nil
}

func (s *MemoryMetadataStore) ListAccounts(ctx context.Context) ([]*metadata.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*metadata.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		result = append(result, acct.Clone())
	}
	slices.SortFunc(result, func(a, b *metadata.Account) int {
		return strings.Compare(a.Username, b.Username)
	})
	return result, nil
}

// mutateAccount runs fn against the live record under the write lock.
func (s *MemoryMetadataStore) mutateAccount(ctx context.Context, id metadata.AccountID, fn func(acct *metadata.Account) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return metadata.NewNotFoundError("account", string(id))
	}
	return fn(acct)
}

func (s *MemoryMetadataStore) SetAccountName(ctx context.Context, id metadata.AccountID, name, surname string) error {
	return s.mutateAccount(ctx, id, func(acct *metadata.Account) error {
		acct.Name = name
		acct.Surname = surname
		return nil
	})
}

func (s *MemoryMetadataStore) SetPasswordHash(ctx context.Context, id metadata.AccountID, hash []byte) error {
	return s.mutateAccount(ctx, id, func(acct *metadata.Account) error {
		acct.PasswordHash = bytes.Clone(hash)
		return nil
	})
}

func (s *MemoryMetadataStore) SetTotalSpace(ctx context.Context, id metadata.AccountID, total uint64) (*metadata.Account, error) {
	var updated *metadata.Account
	err := s.mutateAccount(ctx, id, func(acct *metadata.Account) error {
		if err := metadata.ApplyTotalSpace(acct, total); err != nil {
			return err
		}
		updated = acct.Clone()
		return nil
	})
	return updated, err
}

func (s *MemoryMetadataStore) ChangeFreeSpace(ctx context.Context, id metadata.AccountID, delta int64) (uint64, error) {
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

func (s *MemoryMetadataStore) AddSession(ctx context.Context, id metadata.AccountID, token metadata.SessionToken) error {
	return s.mutateAccount(ctx, id, func(acct *metadata.Account) error {
		acct.Sessions = append(acct.Sessions, metadata.SessionToken{
			Token:    bytes.Clone(token.Token),
			IssuedAt: token.IssuedAt,
		})
		return nil
	})
}

func (s *MemoryMetadataStore) HasSession(ctx context.Context, id metadata.AccountID, token []byte) (bool, error) {
	acct, err := s.GetAccount(ctx, id)
	if err != nil {
		return false, err
	}
	return acct.HasSession(token), nil
}

func (s *MemoryMetadataStore) RemoveSession(ctx context.Context, id metadata.AccountID, token []byte) error {
	return s.mutateAccount(ctx, id, func(acct *metadata.Account) error {
		acct.Sessions = slices.DeleteFunc(acct.Sessions, func(st metadata.SessionToken) bool {
			return bytes.Equal(st.Token, token)
		})
		return nil
	})
}

func (s *MemoryMetadataStore) AddWarning(ctx context.Context, id metadata.AccountID, warning metadata.Warning) error {
	return s.mutateAccount(ctx, id, func(acct *metadata.Account) error {
		acct.Warnings = append(acct.Warnings, warning)
		return nil
	})
}

func (s *MemoryMetadataStore) TakeWarnings(ctx context.Context, id metadata.AccountID) ([]metadata.Warning, error) {
	var taken []metadata.Warning
	err := s.mutateAccount(ctx, id, func(acct *metadata.Account) error {
		taken = acct.Warnings
		acct.Warnings = nil
		return nil
	})
	return taken, err
}

func (s *MemoryMetadataStore) DeleteAccount(ctx context.Context, id metadata.AccountID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return metadata.NewNotFoundError("account", string(id))
	}

	for fid, f := range s.files {
		if f.Owner == id {
			delete(s.paths, pathKey{owner: f.Owner, filename: f.Filename})
			delete(s.files, fid)
			continue
		}
		f.SharedWith = slices.DeleteFunc(f.SharedWith, func(g metadata.AccountID) bool { return g == id })
	}

	delete(s.usernames, acct.Username)
	delete(s.accounts, id)
	return nil
}
