package badger

import (
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

// Database Key Namespace Design
// ==============================
//
// BadgerDB is a key-value store, so records and secondary indexes live under
// prefixed keys:
//
// Data Type          Prefix   Key Format                       Value Type
// =========================================================================
// Account            "a:"     a:<accountID>                    Account (JSON)
// Username index     "u:"     u:<username>                     accountID (bytes)
// File               "f:"     f:<fileID>                       FileEntry (JSON)
// Path index         "p:"     p:<ownerID>:<filename>           fileID (bytes)
// Grant index        "g:"     g:<granteeID>:<fileID>           empty
//
// Account and file IDs are UUIDs and never contain ':'. Filenames always
// start with '/', so "p:<owner>:<dir>/" is a range prefix covering
// everything below dir, in filename order.

const (
	prefixAccount  = "a:"
	prefixUsername = "u:"
	prefixFile     = "f:"
	prefixPath     = "p:"
	prefixGrant    = "g:"
)

func keyAccount(id metadata.AccountID) []byte {
	return []byte(prefixAccount + string(id))
}

func keyUsername(username string) []byte {
	return []byte(prefixUsername + username)
}

func keyFile(id metadata.FileID) []byte {
	return []byte(prefixFile + string(id))
}

func keyPath(owner metadata.AccountID, filename string) []byte {
	return []byte(prefixPath + string(owner) + ":" + filename)
}

// keyPathPrefix covers every path key of owner strictly below dir.
func keyPathPrefix(owner metadata.AccountID, dir string) []byte {
	return []byte(prefixPath + string(owner) + ":" + dir + "/")
}

// filenameFromPathKey strips "p:<owner>:" from a path key.
func filenameFromPathKey(owner metadata.AccountID, key []byte) string {
	return string(key[len(prefixPath)+len(owner)+1:])
}

func keyGrant(grantee metadata.AccountID, id metadata.FileID) []byte {
	return []byte(prefixGrant + string(grantee) + ":" + string(id))
}

func keyGrantPrefix(grantee metadata.AccountID) []byte {
	return []byte(prefixGrant + string(grantee) + ":")
}

// fileIDFromGrantKey strips "g:<grantee>:" from a grant key.
func fileIDFromGrantKey(grantee metadata.AccountID, key []byte) metadata.FileID {
	return metadata.FileID(key[len(prefixGrant)+len(grantee)+1:])
}
