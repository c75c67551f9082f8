package s3

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/storagecloud/pkg/store/content"
)

// ReadAt issues a ranged GET for [offset, offset+len(p)).
func (s *S3ContentStore) ReadAt(ctx context.Context, path string, p []byte, offset uint64) (int, error) {
	key, err := s.objectKey(ctx, path)
	if err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	// S3 range is inclusive
	end := offset + uint64(len(p)) - 1
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, end)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("%s: %w", path, content.ErrNotFound)
		}
		// Offset at or beyond the end of the object
		if strings.Contains(err.Error(), "InvalidRange") {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("failed to read from S3: %w", err)
	}
	defer func() { _ = result.Body.Close() }()

	n, err := io.ReadFull(result.Body, p)
	if err == io.ErrUnexpectedEOF {
		return n, io.EOF
	}
	return n, err
}

// Open streams the whole object.
func (s *S3ContentStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	key, err := s.objectKey(ctx, path)
	if err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", path, content.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	return result.Body, nil
}

func (s *S3ContentStore) Size(ctx context.Context, path string) (uint64, error) {
	key, err := s.objectKey(ctx, path)
	if err != nil {
		return 0, err
	}

	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("%s: %w", path, content.ErrNotFound)
		}
		return 0, fmt.Errorf("failed to head object: %w", err)
	}
	return uint64(aws.ToInt64(result.ContentLength)), nil
}

// readAll loads the whole object into memory.
func (s *S3ContentStore) readAll(ctx context.Context, path string) ([]byte, error) {
	rc, err := s.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read existing content: %w", err)
	}
	return data, nil
}
