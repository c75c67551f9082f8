package session

import (
	"context"

	"github.com/marmos91/storagecloud/pkg/directory"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

// AddFile starts (or resumes) an upload, or creates a directory. Any
// previous upload cursor of the identity is dropped first.
func (s *Identity) AddFile(ctx context.Context, req directory.AddFileRequest) (directory.AddFileStatus, error) {
	s.upload = nil
	if err := s.requireValid(); err != nil {
		return directory.StatusCreated, err
	}

	cursor, status, err := s.dir.BeginUpload(ctx, s.id, req)
	if err != nil {
		return status, err
	}
	s.upload = cursor
	return status, nil
}

// AddFileChunk appends the next chunk of the current upload.
func (s *Identity) AddFileChunk(ctx context.Context, chunk []byte) error {
	if s.upload == nil {
		return directory.ErrNoTransfer
	}
	return s.dir.AppendChunk(ctx, s.upload, chunk)
}

// CurrentInFile returns the record of the current upload as of its last
// chunk. ok is false when no upload was started.
func (s *Identity) CurrentInFile() (entry metadata.FileEntry, ok bool) {
	if s.upload == nil {
		return metadata.FileEntry{}, false
	}
	return s.upload.Entry(), true
}

// IsCurrentInFileValid reports whether the current upload completed and
// passed validation.
func (s *Identity) IsCurrentInFileValid() bool {
	return s.upload.Completed()
}

// InitFileDownload opens one of the account's files at pos and returns the
// first chunk. Any previous download cursor is dropped first.
func (s *Identity) InitFileDownload(ctx context.Context, filename string, pos uint64) ([]byte, error) {
	s.download = nil
	if err := s.requireValid(); err != nil {
		return nil, err
	}

	cursor, err := s.dir.BeginDownload(ctx, s.id, filename, pos)
	if err != nil {
		return nil, err
	}
	s.download = cursor
	return s.FileChunk(ctx)
}

// InitSharedFileDownload opens a file another account shared with this one,
// addressed by owner username, leaf name and content hash, and returns the
// first chunk.
func (s *Identity) InitSharedFileDownload(ctx context.Context, ownerUsername, leaf string, hash []byte, pos uint64) ([]byte, error) {
	s.download = nil
	if err := s.requireValid(); err != nil {
		return nil, err
	}

	cursor, err := s.dir.BeginSharedDownload(ctx, s.id, ownerUsername, leaf, hash, pos)
	if err != nil {
		return nil, err
	}
	s.download = cursor
	return s.FileChunk(ctx)
}

// FileChunk returns the next chunk of the current download.
func (s *Identity) FileChunk(ctx context.Context) ([]byte, error) {
	if s.download == nil {
		return nil, directory.ErrNoTransfer
	}
	return s.dir.ReadChunk(ctx, s.download)
}

// IsCurrentOutFileValid reports whether the current download has chunks left.
func (s *Identity) IsCurrentOutFileValid() bool {
	return s.download.Active()
}
