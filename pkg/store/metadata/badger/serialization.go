package badger

import (
	"encoding/json"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

// Records are stored as JSON; indexes store raw ID bytes.

func encodeAccount(acct *metadata.Account) ([]byte, error) {
	data, err := json.Marshal(acct)
	if err != nil {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrIOError,
			Message: "failed to encode account: " + err.Error(),
			Path:    acct.Username,
		}
	}
	return data, nil
}

func decodeAccount(data []byte) (*metadata.Account, error) {
	var acct metadata.Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrIOError,
			Message: "failed to decode account: " + err.Error(),
		}
	}
	return &acct, nil
}

func encodeFile(f *metadata.FileEntry) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrIOError,
			Message: "failed to encode file: " + err.Error(),
			Path:    f.Filename,
		}
	}
	return data, nil
}

func decodeFile(data []byte) (*metadata.FileEntry, error) {
	var f metadata.FileEntry
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrIOError,
			Message: "failed to decode file: " + err.Error(),
		}
	}
	return &f, nil
}

// ============================================================================
// Transaction helpers
// ============================================================================

func getAccount(txn *badger.Txn, id metadata.AccountID) (*metadata.Account, error) {
	item, err := txn.Get(keyAccount(id))
	if err == badger.ErrKeyNotFound {
		return nil, metadata.NewNotFoundError("account", string(id))
	}
	if err != nil {
		return nil, err
	}

	var acct *metadata.Account
	err = item.Value(func(val []byte) error {
		acct, err = decodeAccount(val)
		return err
	})
	return acct, err
}

func putAccount(txn *badger.Txn, acct *metadata.Account) error {
	data, err := encodeAccount(acct)
	if err != nil {
		return err
	}
	return txn.Set(keyAccount(acct.ID), data)
}

func getFile(txn *badger.Txn, id metadata.FileID) (*metadata.FileEntry, error) {
	item, err := txn.Get(keyFile(id))
	if err == badger.ErrKeyNotFound {
		return nil, metadata.NewNotFoundError("file", string(id))
	}
	if err != nil {
		return nil, err
	}

	var f *metadata.FileEntry
	err = item.Value(func(val []byte) error {
		f, err = decodeFile(val)
		return err
	})
	return f, err
}

func putFile(txn *badger.Txn, f *metadata.FileEntry) error {
	data, err := encodeFile(f)
	if err != nil {
		return err
	}
	return txn.Set(keyFile(f.ID), data)
}

// getIndex reads an index key whose value is an ID.
func getIndex(txn *badger.Txn, key []byte) (string, error) {
	item, err := txn.Get(key)
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

// scanKeys returns copies of every key under prefix, in key order.
func scanKeys(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

// ownerFileIDs returns the IDs of owner's files whose path key starts with prefix.
func ownerFileIDs(txn *badger.Txn, prefix []byte) ([]metadata.FileID, error) {
	var ids []metadata.FileID
	for _, key := range scanKeys(txn, prefix) {
		id, err := getIndex(txn, key)
		if err != nil {
			return nil, err
		}
		ids = append(ids, metadata.FileID(id))
	}
	return ids, nil
}

// removeFile deletes a file record with its path key and grant keys.
func removeFile(txn *badger.Txn, f *metadata.FileEntry) error {
	for _, grantee := range f.SharedWith {
		if err := txn.Delete(keyGrant(grantee, f.ID)); err != nil {
			return err
		}
	}
	if err := txn.Delete(keyPath(f.Owner, f.Filename)); err != nil {
		return err
	}
	return txn.Delete(keyFile(f.ID))
}
