// Package s3 implements content storage on Amazon S3 or S3-compatible
// object stores.
package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/storagecloud/pkg/store/content"
)

// S3ContentStore implements content.Store using Amazon S3.
//
// Key Design:
//   - A file at "/alice/docs/a.txt" is stored under "<prefix>alice/docs/a.txt"
//   - A directory is a zero-length marker object whose key ends with "/"
//   - RemoveAll deletes everything under "<key>/" in batches of 1000
//
// S3 objects cannot be modified in place, so WriteAt and Truncate perform a
// read-modify-write of the whole object. Uploads arrive chunk by chunk, which
// makes this O(n^2) in transferred bytes for large files; the filesystem
// backend should be preferred for large quotas.
//
// Thread Safety:
// Safe for concurrent use. Concurrent writes to the same path are
// last-write-wins; the directory layer serializes writers per file.
type S3ContentStore struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// S3ContentStoreConfig contains configuration for S3 content store.
type S3ContentStoreConfig struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	// Example: "storagecloud/" results in keys like "storagecloud/alice/a.txt"
	KeyPrefix string
}

// NewS3ContentStore creates a new S3-based content store.
//
// The bucket must already exist; this function only verifies access.
func NewS3ContentStore(ctx context.Context, cfg S3ContentStoreConfig) (*S3ContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3ContentStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// objectKey maps a validated path to its object key.
func (s *S3ContentStore) objectKey(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := content.ValidatePath(path); err != nil {
		return "", err
	}
	return s.keyPrefix + strings.TrimPrefix(path, "/"), nil
}

// isNotFound reports whether err is S3's "no such key" (GetObject) or
// "not found" (HeadObject).
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// exists reports whether an object is stored under key.
func (s *S3ContentStore) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}

// Close is a no-op; the S3 client holds no long-lived resources.
func (s *S3ContentStore) Close() error {
	return nil
}

var _ content.Store = (*S3ContentStore)(nil)
