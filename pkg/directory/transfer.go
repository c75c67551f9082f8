package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/storagecloud/internal/logger"
	"github.com/marmos91/storagecloud/pkg/cryptoutil"
	"github.com/marmos91/storagecloud/pkg/metrics"
	"github.com/marmos91/storagecloud/pkg/store/content"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

// AddFileStatus tells a caller whether BeginUpload started fresh or picked
// up an interrupted upload.
type AddFileStatus int

const (
	// StatusCreated means a new file or directory record was created
	StatusCreated AddFileStatus = iota

	// StatusResumed means an interrupted upload with the same size and hash
	// continues from its LastValid
	StatusResumed
)

func (s AddFileStatus) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusResumed:
		return "resumed"
	default:
		return "unknown"
	}
}

// AddFileRequest describes a file or directory to create.
type AddFileRequest struct {
	// Filename is absolute and must name a leaf ("/docs/report.pdf")
	Filename string

	Kind metadata.FileKind

	// Size is the declared length of a regular file
	Size uint64

	// Hash is the SHA-1 digest the completed content must match
	Hash []byte
}

// UploadCursor tracks one in-progress upload.
//
// A cursor is owned by a single caller and is not safe for concurrent use;
// chunks must be appended in order.
type UploadCursor struct {
	entry   metadata.FileEntry
	homeDir string
	active  bool
}

// Entry returns a snapshot of the file record as of the last append.
func (c *UploadCursor) Entry() metadata.FileEntry {
	return *c.entry.Clone()
}

// Active reports whether the cursor accepts chunks. It turns false once the
// upload completes or fails validation.
func (c *UploadCursor) Active() bool {
	return c != nil && c.active
}

// Completed reports whether the upload was validated.
func (c *UploadCursor) Completed() bool {
	return c != nil && c.entry.IsValid
}

// Remaining returns the bytes still expected.
func (c *UploadCursor) Remaining() uint64 {
	return c.entry.Size - c.entry.LastValid
}

func (c *UploadCursor) path() string {
	return contentPath(c.homeDir, c.entry.Filename)
}

// DownloadCursor tracks one in-progress download.
type DownloadCursor struct {
	entry  metadata.FileEntry
	path   string
	offset uint64
	active bool
}

// Entry returns a snapshot of the file record being downloaded.
func (c *DownloadCursor) Entry() metadata.FileEntry {
	return *c.entry.Clone()
}

// Offset returns the position of the next chunk.
func (c *DownloadCursor) Offset() uint64 {
	return c.offset
}

// Active reports whether more chunks remain. It turns false once the
// offset reaches the file size.
func (c *DownloadCursor) Active() bool {
	return c != nil && c.active
}

// ============================================================================
// Uploads
// ============================================================================

// BeginUpload creates a file or directory, or resumes an interrupted upload.
//
// Process:
//  1. Validate the filename and require the parent to be an existing directory
//  2. If the path is taken by an unfinished regular file with the same size
//     and hash, resume it provided the remaining bytes fit in the free space
//  3. Otherwise check free space for the whole declared size, insert the
//     record to claim the path and create the empty content (the record is
//     removed again if the disk step fails). A session that loses the race
//     for the path gets ErrAlreadyExists and never touches the content
//  4. Bump the parent's child counter
//
// Directories are valid immediately and yield a nil cursor. Nothing is
// reserved from the quota here; chunks are charged as they arrive.
//
// Returns:
//   - *UploadCursor: Cursor for AppendChunk (nil for directories)
//   - AddFileStatus: StatusCreated or StatusResumed
//   - error: ErrInvalidPath, ErrAlreadyExists, ErrQuotaExceeded, ErrUnauthorized
//     (account without home directory), or a store/disk failure
func (d *Directory) BeginUpload(ctx context.Context, owner metadata.AccountID, req AddFileRequest) (cursor *UploadCursor, status AddFileStatus, err error) {
	defer d.observe("BeginUpload", time.Now(), &err)

	acct, err := d.account(ctx, "add file", owner)
	if err != nil {
		return nil, StatusCreated, err
	}
	if acct.HomeDir == "" {
		return nil, StatusCreated, fmt.Errorf("add file: account %s has no home directory: %w", acct.Username, ErrUnauthorized)
	}

	// Step 1: Path checks
	parent, _, ok := metadata.SplitPath(req.Filename)
	if !ok {
		return nil, StatusCreated, fmt.Errorf("add file %q: %w", req.Filename, ErrInvalidPath)
	}
	if err := content.ValidatePath(req.Filename); err != nil {
		return nil, StatusCreated, fmt.Errorf("add file: %w: %v", ErrInvalidPath, err)
	}
	if parent != "" {
		if _, err := d.lookup(ctx, owner, parent, metadata.KindDirectory); err != nil {
			if isNotFound(err) {
				return nil, StatusCreated, fmt.Errorf("add file %s: parent %s is not a directory: %w", req.Filename, parent, ErrInvalidPath)
			}
			return nil, StatusCreated, err
		}
	}

	// Step 2: Existing entry
	existing, err := d.meta.GetFileByPath(ctx, owner, req.Filename)
	if err == nil {
		cursor, err := d.resumeUpload(acct, existing, req)
		if err != nil {
			return nil, StatusCreated, err
		}
		logger.Debug("Resuming upload of %s at %d/%d", cursor.path(), existing.LastValid, existing.Size)
		return cursor, StatusResumed, nil
	}
	if !metadata.IsNotFound(err) {
		return nil, StatusCreated, storeError("add file", err)
	}

	// Step 3: New entry
	switch req.Kind {
	case metadata.KindRegular:
		cursor, err = d.createUpload(ctx, acct, req)
	case metadata.KindDirectory:
		err = d.createDirectory(ctx, acct, req.Filename)
	default:
		err = fmt.Errorf("add file %s: unknown kind %d: %w", req.Filename, req.Kind, ErrInternalInconsistency)
	}
	if err != nil {
		return nil, StatusCreated, err
	}

	// Step 4: Parent counter
	d.adjustParent(ctx, owner, req.Filename, 1)

	// An empty file is complete as soon as it exists
	if cursor != nil && cursor.entry.Size == 0 {
		unlock := d.locks.lock(cursor.entry.ID)
		defer unlock()
		if err := d.validate(ctx, cursor); err != nil {
			return nil, StatusCreated, err
		}
	}

	return cursor, StatusCreated, nil
}

// resumeUpload accepts an existing entry as the continuation of req.
func (d *Directory) resumeUpload(acct *metadata.Account, existing *metadata.FileEntry, req AddFileRequest) (*UploadCursor, error) {
	resumable := req.Kind == metadata.KindRegular &&
		existing.Kind == metadata.KindRegular &&
		!existing.IsValid &&
		existing.Size == req.Size &&
		sameHash(existing.Hash, req.Hash)
	if !resumable {
		return nil, fmt.Errorf("add file %s: %w", req.Filename, ErrAlreadyExists)
	}

	needed := existing.Size - existing.LastValid
	if acct.FreeSpace < needed {
		d.metrics.RecordQuotaRejection()
		return nil, fmt.Errorf("resume %s: %d bytes needed, %d free: %w", req.Filename, needed, acct.FreeSpace, ErrQuotaExceeded)
	}

	return &UploadCursor{entry: *existing, homeDir: acct.HomeDir, active: true}, nil
}

func (d *Directory) createUpload(ctx context.Context, acct *metadata.Account, req AddFileRequest) (*UploadCursor, error) {
	if acct.FreeSpace < req.Size {
		d.metrics.RecordQuotaRejection()
		return nil, fmt.Errorf("add file %s: %d bytes declared, %d free: %w", req.Filename, req.Size, acct.FreeSpace, ErrQuotaExceeded)
	}

	now := d.now()
	entry, err := d.meta.CreateFile(ctx, metadata.FileEntry{
		Owner:       acct.ID,
		Filename:    req.Filename,
		Kind:        metadata.KindRegular,
		Size:        req.Size,
		Hash:        req.Hash,
		CreatedAt:   now,
		LastChunkAt: now,
	})
	if err != nil {
		return nil, storeError("add file", err)
	}

	unlock := d.locks.lock(entry.ID)
	defer unlock()

	// A resuming session may already have written the first chunk
	current, err := d.meta.GetFile(ctx, entry.ID)
	if err != nil {
		return nil, storeError("add file", err)
	}
	if current.LastValid > 0 {
		return &UploadCursor{entry: *current, homeDir: acct.HomeDir, active: true}, nil
	}

	path := contentPath(acct.HomeDir, req.Filename)
	if err := d.files.Create(ctx, path); err != nil {
		if delErr := d.meta.DeleteFile(context.WithoutCancel(ctx), entry.ID); delErr != nil {
			logger.Warn("Failed to remove record of %s after failed create: %v", path, delErr)
		}
		return nil, diskError("add file", err)
	}

	logger.Debug("Created upload %s (%d bytes)", path, req.Size)
	return &UploadCursor{entry: *current, homeDir: acct.HomeDir, active: true}, nil
}

func (d *Directory) createDirectory(ctx context.Context, acct *metadata.Account, filename string) error {
	now := d.now()
	entry, err := d.meta.CreateFile(ctx, metadata.FileEntry{
		Owner:       acct.ID,
		Filename:    filename,
		Kind:        metadata.KindDirectory,
		IsValid:     true,
		CreatedAt:   now,
		LastChunkAt: now,
	})
	if err != nil {
		return storeError("mkdir", err)
	}

	path := contentPath(acct.HomeDir, filename)
	if err := d.files.Mkdir(ctx, path); err != nil {
		if delErr := d.meta.DeleteFile(context.WithoutCancel(ctx), entry.ID); delErr != nil {
			logger.Warn("Failed to remove record of %s after failed mkdir: %v", path, delErr)
		}
		return diskError("mkdir", err)
	}

	logger.Debug("Created directory %s", path)
	return nil
}

// AppendChunk writes the next chunk of an upload.
//
// A chunk is refused without side effects when the cursor is inactive, the
// account has less free space than the chunk, or the chunk would pass the
// declared size. An accepted chunk is charged to the quota, written at
// LastValid and committed with a compare-and-advance of LastValid; if the
// write or the commit fails the charge is refunded and the content is cut
// back to the previous LastValid.
//
// The chunk that completes the upload triggers validation. A length or hash
// mismatch deletes the file, refunds its bytes and returns
// ErrIntegrityMismatch.
func (d *Directory) AppendChunk(ctx context.Context, cursor *UploadCursor, chunk []byte) (err error) {
	defer d.observe("AppendChunk", time.Now(), &err)

	if !cursor.Active() {
		return ErrNoTransfer
	}
	if len(chunk) == 0 {
		return nil
	}

	unlock := d.locks.lock(cursor.entry.ID)
	defer unlock()

	// Step 1: Re-read the record; another writer may have moved it
	entry, err := d.meta.GetFile(ctx, cursor.entry.ID)
	if err != nil {
		if metadata.IsNotFound(err) {
			cursor.active = false
			return fmt.Errorf("upload %s was deleted: %w", cursor.entry.Filename, ErrNoTransfer)
		}
		return storeError("append chunk", err)
	}
	if entry.IsValid || entry.LastValid != cursor.entry.LastValid {
		return fmt.Errorf("upload %s moved to %d, cursor at %d: %w",
			entry.Filename, entry.LastValid, cursor.entry.LastValid, ErrConcurrentTransfer)
	}

	n := uint64(len(chunk))
	if entry.LastValid+n > entry.Size {
		return fmt.Errorf("upload %s: %d+%d exceeds %d: %w", entry.Filename, entry.LastValid, n, entry.Size, ErrChunkOverflow)
	}

	// Step 2: Charge the quota
	if _, err := d.meta.ChangeFreeSpace(ctx, entry.Owner, -int64(n)); err != nil {
		if metadata.IsCode(err, metadata.ErrNoSpace) {
			d.metrics.RecordQuotaRejection()
		}
		return storeError("append chunk", err)
	}

	// Step 3: Disk
	path := cursor.path()
	if err := d.files.WriteAt(ctx, path, entry.LastValid, chunk); err != nil {
		d.rollbackChunk(ctx, entry, path, n)
		return diskError("append chunk", err)
	}

	// Step 4: Commit
	updated, err := d.meta.AdvanceLastValid(ctx, entry.ID, entry.LastValid, n, d.now())
	if err != nil {
		d.rollbackChunk(ctx, entry, path, n)
		return storeError("append chunk", err)
	}

	cursor.entry = *updated
	d.metrics.RecordBytesTransferred(metrics.DirectionUpload, int64(n))

	if updated.LastValid < updated.Size {
		return nil
	}

	// Step 5: Complete
	return d.validate(ctx, cursor)
}

// rollbackChunk cuts the content back to entry.LastValid and refunds n bytes.
func (d *Directory) rollbackChunk(ctx context.Context, entry *metadata.FileEntry, path string, n uint64) {
	ctx = context.WithoutCancel(ctx)

	if err := d.files.Truncate(ctx, path, entry.LastValid); err != nil && !errors.Is(err, content.ErrInvalidOffset) {
		logger.Warn("Failed to truncate %s back to %d: %v", path, entry.LastValid, err)
	}
	if err := d.credit(ctx, entry.Owner, n); err != nil {
		logger.Error("Chunk of %s rolled back without refund of %d bytes", path, n)
	}
}

// validate checks a fully written upload against its declared length and
// hash and marks it valid. Any mismatch deletes the file. The caller holds
// the file lock.
func (d *Directory) validate(ctx context.Context, cursor *UploadCursor) error {
	entry := &cursor.entry
	path := cursor.path()
	cursor.active = false

	reject := func(cause error) error {
		d.metrics.RecordIntegrityFailure()
		logger.Warn("Upload %s failed validation: %v", path, cause)
		if _, err := d.deleteRegular(context.WithoutCancel(ctx), entry.Owner, cursor.homeDir, entry.ID); err != nil {
			logger.Error("Failed to delete invalid upload %s: %v", path, err)
		}
		return fmt.Errorf("validate %s: %w: %v", entry.Filename, ErrIntegrityMismatch, cause)
	}

	size, err := d.files.Size(ctx, path)
	if err != nil {
		return reject(err)
	}
	if size != entry.Size {
		return reject(fmt.Errorf("length %d, declared %d", size, entry.Size))
	}

	rc, err := d.files.Open(ctx, path)
	if err != nil {
		return reject(err)
	}
	digest, read, err := cryptoutil.HashReader(rc)
	_ = rc.Close()
	if err != nil {
		return reject(err)
	}
	if uint64(read) != entry.Size {
		return reject(fmt.Errorf("read %d bytes, declared %d", read, entry.Size))
	}
	if !sameHash(digest, entry.Hash) {
		return reject(fmt.Errorf("hash %x, declared %x", digest, entry.Hash))
	}

	if err := d.meta.MarkValid(ctx, entry.ID); err != nil {
		logger.Error("Failed to mark %s valid: %v", path, err)
		if _, delErr := d.deleteRegular(context.WithoutCancel(ctx), entry.Owner, cursor.homeDir, entry.ID); delErr != nil {
			logger.Error("Failed to delete unverifiable upload %s: %v", path, delErr)
		}
		return fmt.Errorf("validate %s: %w: %v", entry.Filename, ErrInternalInconsistency, err)
	}

	entry.IsValid = true
	logger.Debug("Upload %s complete (%d bytes)", path, entry.Size)
	return nil
}

// ============================================================================
// Downloads
// ============================================================================

// BeginDownload opens one of the owner's valid regular files at pos.
// Returns ErrInvalidOffset when pos is at or past the end of the file.
func (d *Directory) BeginDownload(ctx context.Context, owner metadata.AccountID, filename string, pos uint64) (cursor *DownloadCursor, err error) {
	defer d.observe("BeginDownload", time.Now(), &err)

	acct, err := d.account(ctx, "download", owner)
	if err != nil {
		return nil, err
	}

	entry, err := d.lookup(ctx, owner, filename, metadata.KindRegular)
	if err != nil {
		return nil, err
	}

	return d.openDownload(acct, entry, pos)
}

// BeginSharedDownload opens a file of another account, addressed by the
// owner's username, the file's leaf name and its content hash.
//
// The requester must hold a grant on the file (or own it) and the file must
// be valid. When several files of the owner share the leaf and hash, the
// first valid one the requester may read is opened.
func (d *Directory) BeginSharedDownload(ctx context.Context, requester metadata.AccountID, ownerUsername, leaf string, hash []byte, pos uint64) (cursor *DownloadCursor, err error) {
	defer d.observe("BeginSharedDownload", time.Now(), &err)

	ownerID, err := d.ResolveAccount(ctx, ownerUsername)
	if err != nil {
		return nil, err
	}
	acct, err := d.account(ctx, "shared download", ownerID)
	if err != nil {
		return nil, err
	}

	candidates, err := d.meta.FindFilesByLeafAndHash(ctx, ownerID, leaf, hash)
	if err != nil {
		return nil, storeError("shared download "+leaf, err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("shared download %s of %s: %w", leaf, ownerUsername, ErrNotFound)
	}

	var readable *metadata.FileEntry
	for _, entry := range candidates {
		if ownerID != requester && !entry.IsSharedWith(requester) {
			continue
		}
		if entry.IsValid {
			return d.openDownload(acct, entry, pos)
		}
		if readable == nil {
			readable = entry
		}
	}
	if readable == nil {
		return nil, fmt.Errorf("shared download %s of %s: no grant: %w", leaf, ownerUsername, ErrUnauthorized)
	}

	// Only unfinished copies are granted
	return d.openDownload(acct, readable, pos)
}

func (d *Directory) openDownload(owner *metadata.Account, entry *metadata.FileEntry, pos uint64) (*DownloadCursor, error) {
	if !entry.IsValid {
		return nil, fmt.Errorf("download %s: upload not complete: %w", entry.Filename, ErrNotFound)
	}
	if pos >= entry.Size {
		return nil, fmt.Errorf("download %s: offset %d, size %d: %w", entry.Filename, pos, entry.Size, ErrInvalidOffset)
	}

	return &DownloadCursor{
		entry:  *entry,
		path:   contentPath(owner.HomeDir, entry.Filename),
		offset: pos,
		active: true,
	}, nil
}

// ReadChunk returns up to DownloadChunkSize bytes at the cursor's offset and
// advances it. The cursor becomes inactive once the whole file was read. A
// failed or short read leaves the cursor unchanged.
func (d *Directory) ReadChunk(ctx context.Context, cursor *DownloadCursor) (chunk []byte, err error) {
	defer d.observe("ReadChunk", time.Now(), &err)

	if !cursor.Active() {
		return nil, ErrNoTransfer
	}

	toRead := min(uint64(d.config.DownloadChunkSize), cursor.entry.Size-cursor.offset)
	buf := make([]byte, toRead)

	n, err := d.files.ReadAt(ctx, cursor.path, buf, cursor.offset)
	if uint64(n) < toRead {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read %s at %d: got %d of %d bytes: %w: %v",
			cursor.entry.Filename, cursor.offset, n, toRead, ErrDiskFailure, err)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, diskError("read chunk", err)
	}

	cursor.offset += toRead
	if cursor.offset == cursor.entry.Size {
		cursor.active = false
	}

	d.metrics.RecordBytesTransferred(metrics.DirectionDownload, int64(toRead))
	return buf, nil
}

// ============================================================================
// Abandoned uploads
// ============================================================================

// StaleUploads lists unfinished regular files whose last chunk (or creation,
// if no chunk arrived) is older than before.
func (d *Directory) StaleUploads(ctx context.Context, before time.Time) ([]*metadata.FileEntry, error) {
	entries, err := d.meta.ListInvalidFiles(ctx, metadata.InvalidFileFilter{StaleBefore: before})
	if err != nil {
		return nil, storeError("stale uploads", err)
	}
	return entries, nil
}

// ReclaimUpload deletes an abandoned upload through the regular deletion
// path. The record is checked again under the file lock, so an upload that
// received a chunk since it was listed is left alone (reclaimed is false).
//
// Returns:
//   - credited: Bytes returned to the owner's quota
//   - reclaimed: Whether the upload was deleted
//   - error: Store or disk failure
func (d *Directory) ReclaimUpload(ctx context.Context, id metadata.FileID, before time.Time) (credited uint64, reclaimed bool, err error) {
	defer d.observe("ReclaimUpload", time.Now(), &err)

	unlock := d.locks.lock(id)
	defer unlock()

	entry, err := d.meta.GetFile(ctx, id)
	if err != nil {
		if metadata.IsNotFound(err) {
			return 0, false, nil
		}
		return 0, false, storeError("reclaim upload", err)
	}
	if !(metadata.InvalidFileFilter{StaleBefore: before}).Matches(entry) {
		return 0, false, nil
	}

	acct, err := d.account(ctx, "reclaim upload", entry.Owner)
	if err != nil {
		return 0, false, err
	}

	credited, err = d.deleteRegular(ctx, entry.Owner, acct.HomeDir, id)
	if err != nil {
		return 0, false, err
	}

	logger.Debug("Reclaimed abandoned upload %s%s (%d bytes)", acct.HomeDir, entry.Filename, credited)
	return credited, true, nil
}

// RemoveUnfinished deletes every unfinished upload of owner immediately and
// returns how many were removed.
func (d *Directory) RemoveUnfinished(ctx context.Context, owner metadata.AccountID) (removed int, err error) {
	defer d.observe("RemoveUnfinished", time.Now(), &err)

	acct, err := d.account(ctx, "remove unfinished", owner)
	if err != nil {
		return 0, err
	}

	entries, err := d.meta.ListInvalidFiles(ctx, metadata.InvalidFileFilter{Owner: owner})
	if err != nil {
		return 0, storeError("remove unfinished", err)
	}

	logger.Info("Deleting %d unfinished uploads of %s", len(entries), acct.Username)

	for _, entry := range entries {
		unlock := d.locks.lock(entry.ID)
		_, err := d.deleteRegular(ctx, owner, acct.HomeDir, entry.ID)
		unlock()

		if err != nil && !isNotFound(err) {
			return removed, err
		}
		if err == nil {
			removed++
		}
	}
	return removed, nil
}
