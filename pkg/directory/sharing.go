package directory

import (
	"context"
	"slices"
	"time"

	"github.com/marmos91/storagecloud/internal/logger"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

// ShareWith grants the account named granteeUsername read access to the
// owner's regular file. Granting twice is a no-op.
func (d *Directory) ShareWith(ctx context.Context, owner metadata.AccountID, filename, granteeUsername string) (err error) {
	defer d.observe("ShareWith", time.Now(), &err)

	grantee, entry, err := d.resolveGrant(ctx, owner, filename, granteeUsername)
	if err != nil {
		return err
	}
	if err := d.meta.AddGrant(ctx, entry.ID, grantee); err != nil {
		return storeError("share "+filename, err)
	}

	logger.Debug("Shared %s of %s with %s", filename, owner, granteeUsername)
	return nil
}

// UnshareWith revokes a grant. Revoking a missing grant is a no-op.
func (d *Directory) UnshareWith(ctx context.Context, owner metadata.AccountID, filename, granteeUsername string) (err error) {
	defer d.observe("UnshareWith", time.Now(), &err)

	grantee, entry, err := d.resolveGrant(ctx, owner, filename, granteeUsername)
	if err != nil {
		return err
	}
	return storeError("unshare "+filename, d.meta.RemoveGrant(ctx, entry.ID, grantee))
}

func (d *Directory) resolveGrant(ctx context.Context, owner metadata.AccountID, filename, granteeUsername string) (metadata.AccountID, *metadata.FileEntry, error) {
	grantee, err := d.ResolveAccount(ctx, granteeUsername)
	if err != nil {
		return "", nil, err
	}
	entry, err := d.lookup(ctx, owner, filename, metadata.KindRegular)
	if err != nil {
		return "", nil, err
	}
	return grantee, entry, nil
}

// ListShared returns the valid regular files shared with grantee, ordered
// by owner then filename.
//
// Filename is reduced to the leaf name and RealPath is left empty: a
// grantee addresses a shared file by owner username, leaf and hash only.
func (d *Directory) ListShared(ctx context.Context, grantee metadata.AccountID) (list []FileInfo, err error) {
	defer d.observe("ListShared", time.Now(), &err)

	entries, err := d.meta.ListSharedWith(ctx, grantee)
	if err != nil {
		return nil, storeError("list shared", err)
	}

	owners := make(map[metadata.AccountID]*metadata.Account)
	list = make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		owner, ok := owners[entry.Owner]
		if !ok {
			owner, err = d.account(ctx, "list shared", entry.Owner)
			if err != nil {
				return nil, err
			}
			owners[entry.Owner] = owner
		}

		info := newFileInfo(owner, entry)
		info.Filename = entry.Leaf()
		info.RealPath = ""
		info.IsShared = true
		list = append(list, info)
	}
	return list, nil
}

// ShareInfo returns the usernames holding a grant on the owner's file,
// sorted. Grants naming accounts that no longer exist are skipped.
func (d *Directory) ShareInfo(ctx context.Context, owner metadata.AccountID, filename string) (usernames []string, err error) {
	defer d.observe("ShareInfo", time.Now(), &err)

	entry, err := d.lookup(ctx, owner, filename, metadata.KindRegular)
	if err != nil {
		return nil, err
	}

	usernames = make([]string, 0, len(entry.SharedWith))
	for _, id := range entry.SharedWith {
		acct, err := d.meta.GetAccount(ctx, id)
		if metadata.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, storeError("share info", err)
		}
		usernames = append(usernames, acct.Username)
	}
	slices.Sort(usernames)
	return usernames, nil
}
