package metadata

import (
	"math"
	"time"
)

// The Apply helpers implement the conditional updates of Store on a decoded
// record. Backends that hold a lock or a transaction around the record call
// them so every implementation enforces the same rules. On error the record
// is left untouched.

// ApplyTotalSpace sets a new quota and shifts FreeSpace by the same amount.
func ApplyTotalSpace(acct *Account, total uint64) error {
	used := acct.UsedSpace()
	if used > total {
		return &StoreError{
			Code:    ErrNoSpace,
			Message: "total space below used space",
			Path:    acct.Username,
		}
	}
	acct.TotalSpace = total
	acct.FreeSpace = total - used
	return nil
}

// ApplyFreeSpaceDelta adds delta to FreeSpace, keeping it within [0, TotalSpace].
func ApplyFreeSpaceDelta(acct *Account, delta int64) error {
	switch {
	case delta < 0:
		debit := uint64(-delta)
		if delta == math.MinInt64 || debit > acct.FreeSpace {
			return &StoreError{Code: ErrNoSpace, Message: "insufficient free space", Path: acct.Username}
		}
		acct.FreeSpace -= debit
	case delta > 0:
		credit := uint64(delta)
		if credit > acct.TotalSpace-acct.FreeSpace {
			return &StoreError{Code: ErrInvalidArgument, Message: "free space would exceed total space", Path: acct.Username}
		}
		acct.FreeSpace += credit
	}
	return nil
}

// ApplyChildCountDelta adjusts a directory's child counter, flooring at zero.
func ApplyChildCountDelta(f *FileEntry, delta int64) error {
	if f.Kind != KindDirectory {
		return &StoreError{Code: ErrInvalidArgument, Message: "not a directory", Path: f.Filename}
	}
	if delta < 0 && uint64(-delta) > f.Size {
		f.Size = 0
		return nil
	}
	f.Size = uint64(int64(f.Size) + delta)
	return nil
}

// ApplyAdvance commits n bytes on an upload whose LastValid equals expected.
func ApplyAdvance(f *FileEntry, expected, n uint64, at time.Time) error {
	if f.Kind != KindRegular {
		return &StoreError{Code: ErrInvalidArgument, Message: "not a regular file", Path: f.Filename}
	}
	if f.IsValid || f.LastValid != expected {
		return &StoreError{Code: ErrConflict, Message: "upload offset moved", Path: f.Filename}
	}
	if n > f.Size-f.LastValid {
		return &StoreError{Code: ErrInvalidArgument, Message: "chunk exceeds declared size", Path: f.Filename}
	}
	f.LastValid += n
	f.LastChunkAt = at
	return nil
}

// ApplyMarkValid flags a complete regular file as verified.
func ApplyMarkValid(f *FileEntry) error {
	if f.Kind != KindRegular || f.LastValid != f.Size {
		return &StoreError{Code: ErrConflict, Message: "upload incomplete", Path: f.Filename}
	}
	f.IsValid = true
	return nil
}
