package directory

import (
	"context"
	"time"

	"github.com/marmos91/storagecloud/internal/logger"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

// FreeSpace returns the bytes the account may still consume.
func (d *Directory) FreeSpace(ctx context.Context, id metadata.AccountID) (uint64, error) {
	acct, err := d.account(ctx, "free space", id)
	if err != nil {
		return 0, err
	}
	return acct.FreeSpace, nil
}

// TotalSpace returns the account's quota.
func (d *Directory) TotalSpace(ctx context.Context, id metadata.AccountID) (uint64, error) {
	acct, err := d.account(ctx, "total space", id)
	if err != nil {
		return 0, err
	}
	return acct.TotalSpace, nil
}

// ChangeTotalStorage sets a new quota, shifting free space by the same
// amount. A quota below the space already in use is refused with
// ErrQuotaExceeded and changes nothing.
func (d *Directory) ChangeTotalStorage(ctx context.Context, id metadata.AccountID, total uint64) (err error) {
	defer d.observe("ChangeTotalStorage", time.Now(), &err)

	acct, err := d.meta.SetTotalSpace(ctx, id, total)
	if err != nil {
		if metadata.IsCode(err, metadata.ErrNoSpace) {
			d.metrics.RecordQuotaRejection()
		}
		return storeError("change total storage", err)
	}

	logger.Info("Quota of %s set to %d bytes (%d free)", acct.Username, acct.TotalSpace, acct.FreeSpace)
	return nil
}

// ChangeFreeSpace adds delta to the account's free space in one atomic
// store step and returns the new value.
//
// A debit below zero fails with ErrQuotaExceeded, a credit above the quota
// with ErrInternalInconsistency. Neither changes the record.
func (d *Directory) ChangeFreeSpace(ctx context.Context, id metadata.AccountID, delta int64) (uint64, error) {
	free, err := d.meta.ChangeFreeSpace(ctx, id, delta)
	if err != nil {
		return 0, storeError("change free space", err)
	}
	return free, nil
}

// credit returns bytes to the account after a deletion. Failure leaves the
// quota short, which is reported as an inconsistency.
func (d *Directory) credit(ctx context.Context, id metadata.AccountID, bytes uint64) error {
	if bytes == 0 {
		return nil
	}
	if _, err := d.ChangeFreeSpace(ctx, id, int64(bytes)); err != nil {
		logger.Error("Failed to credit %d bytes to account %s: %v", bytes, id, err)
		return err
	}
	return nil
}
