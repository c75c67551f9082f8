package badger

import (
	"bytes"
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

func (s *BadgerMetadataStore) CreateFile(ctx context.Context, entry metadata.FileEntry) (*metadata.FileEntry, error) {
	stored := entry.Clone()
	stored.ID = metadata.FileID(uuid.NewString())

	err := s.update(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(keyPath(stored.Owner, stored.Filename))
		if err == nil {
			return &metadata.StoreError{
				Code:    metadata.ErrAlreadyExists,
				Message: "file already exists",
				Path:    stored.Filename,
			}
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		if err := txn.Set(keyPath(stored.Owner, stored.Filename), []byte(stored.ID)); err != nil {
			return err
		}
		for _, grantee := range stored.SharedWith {
			if err := txn.Set(keyGrant(grantee, stored.ID), nil); err != nil {
				return err
			}
		}
		return putFile(txn, stored)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *BadgerMetadataStore) GetFile(ctx context.Context, id metadata.FileID) (*metadata.FileEntry, error) {
	var f *metadata.FileEntry
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		f, err = getFile(txn, id)
		return err
	})
	return f, err
}

// getFileByPath resolves the path index inside txn.
func getFileByPath(txn *badger.Txn, owner metadata.AccountID, filename string) (*metadata.FileEntry, error) {
	id, err := getIndex(txn, keyPath(owner, filename))
	if err == badger.ErrKeyNotFound {
		return nil, metadata.NewNotFoundError("file", filename)
	}
	if err != nil {
		return nil, err
	}
	return getFile(txn, metadata.FileID(id))
}

func (s *BadgerMetadataStore) GetFileByPath(ctx context.Context, owner metadata.AccountID, filename string) (*metadata.FileEntry, error) {
	var f *metadata.FileEntry
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		f, err = getFileByPath(txn, owner, filename)
		return err
	})
	return f, err
}

func (s *BadgerMetadataStore) FindFilesByLeafAndHash(ctx context.Context, owner metadata.AccountID, leaf string, hash []byte) ([]*metadata.FileEntry, error) {
	var found []*metadata.FileEntry
	err := s.view(ctx, func(txn *badger.Txn) error {
		for _, key := range scanKeys(txn, keyPathPrefix(owner, "")) {
			if _, l, ok := metadata.SplitPath(filenameFromPathKey(owner, key)); !ok || l != leaf {
				continue
			}
			id, err := getIndex(txn, key)
			if err != nil {
				return err
			}
			f, err := getFile(txn, metadata.FileID(id))
			if err != nil {
				return err
			}
			if f.Kind == metadata.KindRegular && bytes.Equal(f.Hash, hash) {
				found = append(found, f)
			}
		}
		return nil
	})
	return found, err
}

// filesUnder loads the owner's files strictly below dir that pass keep.
func filesUnder(txn *badger.Txn, owner metadata.AccountID, dir string, keep func(filename string) bool) ([]*metadata.FileEntry, error) {
	var result []*metadata.FileEntry
	for _, key := range scanKeys(txn, keyPathPrefix(owner, dir)) {
		if keep != nil && !keep(filenameFromPathKey(owner, key)) {
			continue
		}
		id, err := getIndex(txn, key)
		if err != nil {
			return nil, err
		}
		f, err := getFile(txn, metadata.FileID(id))
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, nil
}

func (s *BadgerMetadataStore) ListChildren(ctx context.Context, owner metadata.AccountID, dir string) ([]*metadata.FileEntry, error) {
	var result []*metadata.FileEntry
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		result, err = filesUnder(txn, owner, dir, func(filename string) bool {
			return metadata.IsImmediateChild(dir, filename)
		})
		return err
	})
	return result, err
}

// mutateFile loads, modifies and writes back a file in one transaction.
func (s *BadgerMetadataStore) mutateFile(ctx context.Context, load func(txn *badger.Txn) (*metadata.FileEntry, error), fn func(f *metadata.FileEntry) error) (*metadata.FileEntry, error) {
	var updated *metadata.FileEntry
	err := s.update(ctx, func(txn *badger.Txn) error {
		f, err := load(txn)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
		updated = f
		return putFile(txn, f)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func byID(id metadata.FileID) func(txn *badger.Txn) (*metadata.FileEntry, error) {
	return func(txn *badger.Txn) (*metadata.FileEntry, error) {
		return getFile(txn, id)
	}
}

func (s *BadgerMetadataStore) AdjustChildCount(ctx context.Context, owner metadata.AccountID, dir string, delta int64) error {
	_, err := s.mutateFile(ctx,
		func(txn *badger.Txn) (*metadata.FileEntry, error) {
			f, err := getFileByPath(txn, owner, dir)
			if metadata.IsNotFound(err) {
				return nil, metadata.NewNotFoundError("directory", dir)
			}
			return f, err
		},
		func(f *metadata.FileEntry) error {
			return metadata.ApplyChildCountDelta(f, delta)
		})
	return err
}

func (s *BadgerMetadataStore) AdvanceLastValid(ctx context.Context, id metadata.FileID, expected, n uint64, at time.Time) (*metadata.FileEntry, error) {
	return s.mutateFile(ctx, byID(id), func(f *metadata.FileEntry) error {
		return metadata.ApplyAdvance(f, expected, n, at)
	})
}

func (s *BadgerMetadataStore) MarkValid(ctx context.Context, id metadata.FileID) error {
	_, err := s.mutateFile(ctx, byID(id), metadata.ApplyMarkValid)
	return err
}

func (s *BadgerMetadataStore) DeleteFile(ctx context.Context, id metadata.FileID) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		f, err := getFile(txn, id)
		if err != nil {
			return err
		}
		return removeFile(txn, f)
	})
}

func (s *BadgerMetadataStore) SumLastValidUnder(ctx context.Context, owner metadata.AccountID, dir string) (uint64, error) {
	var total uint64
	err := s.view(ctx, func(txn *badger.Txn) error {
		files, err := filesUnder(txn, owner, dir, nil)
		if err != nil {
			return err
		}
		total = 0
		for _, f := range files {
			if f.Kind == metadata.KindRegular {
				total += f.LastValid
			}
		}
		return nil
	})
	return total, err
}

func (s *BadgerMetadataStore) DeleteFilesUnder(ctx context.Context, owner metadata.AccountID, dir string) (int, error) {
	var removed int
	err := s.update(ctx, func(txn *badger.Txn) error {
		removed = 0

		files, err := filesUnder(txn, owner, dir, nil)
		if err != nil {
			return err
		}
		if self, err := getFileByPath(txn, owner, dir); err == nil {
			files = append(files, self)
		} else if !metadata.IsNotFound(err) {
			return err
		}

		for _, f := range files {
			if err := removeFile(txn, f); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func (s *BadgerMetadataStore) ListInvalidFiles(ctx context.Context, filter metadata.InvalidFileFilter) ([]*metadata.FileEntry, error) {
	var result []*metadata.FileEntry
	err := s.view(ctx, func(txn *badger.Txn) error {
		result = nil

		prefix := []byte(prefixFile)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var f *metadata.FileEntry
			err := it.Item().Value(func(val []byte) error {
				var err error
				f, err = decodeFile(val)
				return err
			})
			if err != nil {
				return err
			}
			if filter.Matches(f) {
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
