package badger

import (
	"context"
	"slices"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

func (s *BadgerMetadataStore) AddGrant(ctx context.Context, id metadata.FileID, grantee metadata.AccountID) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		f, err := getFile(txn, id)
		if err != nil {
			return err
		}
		if f.IsSharedWith(grantee) {
			return nil
		}
		f.SharedWith = append(f.SharedWith, grantee)
		if err := txn.Set(keyGrant(grantee, id), nil); err != nil {
			return err
		}
		return putFile(txn, f)
	})
}

func (s *BadgerMetadataStore) RemoveGrant(ctx context.Context, id metadata.FileID, grantee metadata.AccountID) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		f, err := getFile(txn, id)
		if err != nil {
			return err
		}
		if !f.IsSharedWith(grantee) {
			return nil
		}
		f.SharedWith = slices.DeleteFunc(f.SharedWith, func(g metadata.AccountID) bool { return g == grantee })
		if err := txn.Delete(keyGrant(grantee, id)); err != nil {
			return err
		}
		return putFile(txn, f)
	})
}

func (s *BadgerMetadataStore) ListSharedWith(ctx context.Context, grantee metadata.AccountID) ([]*metadata.FileEntry, error) {
	var result []*metadata.FileEntry
	err := s.view(ctx, func(txn *badger.Txn) error {
		result = nil
		for _, key := range scanKeys(txn, keyGrantPrefix(grantee)) {
			f, err := getFile(txn, fileIDFromGrantKey(grantee, key))
			if metadata.IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			if f.Kind == metadata.KindRegular && f.IsValid {
				result = append(result, f)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortFiles(result)
	return result, nil
}

// sortFiles orders entries by owner, then filename.
func sortFiles(files []*metadata.FileEntry) {
	slices.SortFunc(files, func(a, b *metadata.FileEntry) int {
		if c := strings.Compare(string(a.Owner), string(b.Owner)); c != 0 {
			return c
		}
		return strings.Compare(a.Filename, b.Filename)
	})
}
