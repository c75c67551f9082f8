package directory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/storagecloud/internal/logger"
	"github.com/marmos91/storagecloud/pkg/store/content"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

// FileInfo is a file record enriched for presentation.
type FileInfo struct {
	metadata.FileEntry

	// IsShared is true when at least one account holds a grant on the file
	IsShared bool

	// OwnerName is the owner's "name surname"
	OwnerName string

	// OwnerUsername is the owner's username
	OwnerUsername string

	// RealPath is the content store path (home directory + filename).
	// Empty in listings of files shared with another account.
	RealPath string
}

func newFileInfo(owner *metadata.Account, entry *metadata.FileEntry) FileInfo {
	return FileInfo{
		FileEntry:     *entry,
		IsShared:      len(entry.SharedWith) > 0,
		OwnerName:     owner.FullName(),
		OwnerUsername: owner.Username,
		RealPath:      contentPath(owner.HomeDir, entry.Filename),
	}
}

// ListFiles returns the valid entries exactly one level below path. The
// root may be given as "" or "/".
func (d *Directory) ListFiles(ctx context.Context, owner metadata.AccountID, path string) (list []FileInfo, err error) {
	defer d.observe("ListFiles", time.Now(), &err)

	dir := metadata.NormalizeDir(path)
	if dir != "" && !strings.HasPrefix(dir, "/") {
		return nil, fmt.Errorf("list %q: %w", path, ErrInvalidPath)
	}

	acct, err := d.account(ctx, "list files", owner)
	if err != nil {
		return nil, err
	}

	children, err := d.meta.ListChildren(ctx, owner, dir)
	if err != nil {
		return nil, storeError("list files", err)
	}

	list = make([]FileInfo, 0, len(children))
	for _, entry := range children {
		if !entry.IsValid {
			continue
		}
		list = append(list, newFileInfo(acct, entry))
	}
	return list, nil
}

// FileMetadata returns the owner's entry at filename, which must be of the
// given kind.
func (d *Directory) FileMetadata(ctx context.Context, owner metadata.AccountID, filename string, kind metadata.FileKind) (*FileInfo, error) {
	acct, err := d.account(ctx, "file metadata", owner)
	if err != nil {
		return nil, err
	}

	entry, err := d.lookup(ctx, owner, filename, kind)
	if err != nil {
		return nil, err
	}

	info := newFileInfo(acct, entry)
	return &info, nil
}

// FindSharedFile locates a regular file of owner by its leaf name and
// content hash, the way a grantee addresses a shared file. A valid file is
// preferred over unfinished uploads with the same leaf and hash.
func (d *Directory) FindSharedFile(ctx context.Context, owner metadata.AccountID, leaf string, hash []byte) (*FileInfo, error) {
	acct, err := d.account(ctx, "find shared file", owner)
	if err != nil {
		return nil, err
	}

	candidates, err := d.meta.FindFilesByLeafAndHash(ctx, owner, leaf, hash)
	if err != nil {
		return nil, storeError("find shared file "+leaf, err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("find shared file %s: %w", leaf, ErrNotFound)
	}

	entry := candidates[0]
	for _, c := range candidates {
		if c.IsValid {
			entry = c
			break
		}
	}

	info := newFileInfo(acct, entry)
	return &info, nil
}

// lookup fetches the owner's entry at filename and checks its kind.
func (d *Directory) lookup(ctx context.Context, owner metadata.AccountID, filename string, kind metadata.FileKind) (*metadata.FileEntry, error) {
	entry, err := d.meta.GetFileByPath(ctx, owner, filename)
	if err != nil {
		return nil, storeError(filename, err)
	}
	if entry.Kind != kind {
		return nil, fmt.Errorf("%s is a %s, not a %s: %w", filename, entry.Kind, kind, ErrNotFound)
	}
	return entry, nil
}

// Delete removes the file or directory at path.
func (d *Directory) Delete(ctx context.Context, owner metadata.AccountID, path string) error {
	entry, err := d.meta.GetFileByPath(ctx, owner, path)
	if err != nil {
		return storeError("delete "+path, err)
	}

	switch entry.Kind {
	case metadata.KindRegular:
		return d.DeleteFile(ctx, owner, path)
	case metadata.KindDirectory:
		return d.DeletePath(ctx, owner, path)
	default:
		return fmt.Errorf("delete %s: unknown kind %d: %w", path, entry.Kind, ErrInternalInconsistency)
	}
}

// DeleteFile removes a regular file: its content, its record, and the
// quota it consumed (LastValid bytes, not the declared size).
func (d *Directory) DeleteFile(ctx context.Context, owner metadata.AccountID, filename string) (err error) {
	defer d.observe("DeleteFile", time.Now(), &err)

	acct, err := d.account(ctx, "delete file", owner)
	if err != nil {
		return err
	}

	entry, err := d.lookup(ctx, owner, filename, metadata.KindRegular)
	if err != nil {
		return err
	}

	unlock := d.locks.lock(entry.ID)
	defer unlock()

	_, err = d.deleteRegular(ctx, owner, acct.HomeDir, entry.ID)
	return err
}

// deleteRegular removes a regular file. The caller holds the file lock.
//
// The record is re-read under the lock so the credit matches the bytes
// committed at deletion time.
func (d *Directory) deleteRegular(ctx context.Context, owner metadata.AccountID, homeDir string, id metadata.FileID) (uint64, error) {
	entry, err := d.meta.GetFile(ctx, id)
	if err != nil {
		return 0, storeError("delete file", err)
	}

	// Step 1: Disk. A missing file only means nothing was written yet
	path := contentPath(homeDir, entry.Filename)
	if err := d.files.Remove(ctx, path); err != nil && !errors.Is(err, content.ErrNotFound) {
		return 0, diskError("delete "+entry.Filename, err)
	}

	// Step 2: Record
	if err := d.meta.DeleteFile(ctx, id); err != nil {
		return 0, storeError("delete "+entry.Filename, err)
	}

	// Step 3: Parent counter and quota
	d.adjustParent(ctx, owner, entry.Filename, -1)

	if err := d.credit(ctx, owner, entry.LastValid); err != nil {
		return 0, fmt.Errorf("delete %s: quota not credited: %w", entry.Filename, ErrInternalInconsistency)
	}

	logger.Debug("Deleted %s (credited %d bytes)", path, entry.LastValid)
	return entry.LastValid, nil
}

// DeletePath removes a directory and everything below it, crediting the
// sum of LastValid over the removed regular files in a single step.
func (d *Directory) DeletePath(ctx context.Context, owner metadata.AccountID, dir string) (err error) {
	defer d.observe("DeletePath", time.Now(), &err)

	acct, err := d.account(ctx, "delete path", owner)
	if err != nil {
		return err
	}

	entry, err := d.lookup(ctx, owner, dir, metadata.KindDirectory)
	if err != nil {
		return err
	}

	// Step 1: Sum what the tree consumed before anything is removed
	total, err := d.meta.SumLastValidUnder(ctx, owner, entry.Filename)
	if err != nil {
		return storeError("delete path "+dir, err)
	}

	// Step 2: Disk
	if err := d.files.RemoveAll(ctx, contentPath(acct.HomeDir, entry.Filename)); err != nil {
		return diskError("delete path "+dir, err)
	}

	// Step 3: Records, parent counter, quota
	removed, err := d.meta.DeleteFilesUnder(ctx, owner, entry.Filename)
	if err != nil {
		return storeError("delete path "+dir, err)
	}

	d.adjustParent(ctx, owner, entry.Filename, -1)

	if err := d.credit(ctx, owner, total); err != nil {
		return fmt.Errorf("delete path %s: quota not credited: %w", dir, ErrInternalInconsistency)
	}

	logger.Debug("Deleted %s%s: %d records, credited %d bytes", acct.HomeDir, entry.Filename, removed, total)
	return nil
}

// adjustParent updates the child counter of filename's parent directory.
// The counter is informational, so failures are logged only.
func (d *Directory) adjustParent(ctx context.Context, owner metadata.AccountID, filename string, delta int64) {
	parent, _, ok := metadata.SplitPath(filename)
	if !ok || parent == "" {
		return
	}
	if err := d.meta.AdjustChildCount(ctx, owner, parent, delta); err != nil && !metadata.IsNotFound(err) {
		logger.Warn("Failed to adjust child count of %s by %d: %v", parent, delta, err)
	}
}

// sameHash compares two content digests.
func sameHash(a, b []byte) bool {
	return bytes.Equal(a, b)
}
