package s3

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/storagecloud/internal/logger"
	"github.com/marmos91/storagecloud/pkg/store/content"
)

// deleteBatchSize is the S3 DeleteObjects limit.
const deleteBatchSize = 1000

func (s *S3ContentStore) put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to write object to S3: %w", err)
	}
	return nil
}

func (s *S3ContentStore) Create(ctx context.Context, path string) error {
	key, err := s.objectKey(ctx, path)
	if err != nil {
		return err
	}
	return s.put(ctx, key, nil)
}

// WriteAt replaces the object with existing[:offset] + data + any tail
// beyond the written range.
func (s *S3ContentStore) WriteAt(ctx context.Context, path string, offset uint64, data []byte) error {
	key, err := s.objectKey(ctx, path)
	if err != nil {
		return err
	}

	if offset == 0 {
		return s.put(ctx, key, data)
	}

	existing, err := s.readAll(ctx, path)
	if err != nil {
		return err
	}
	if offset > uint64(len(existing)) {
		return fmt.Errorf("%s: offset %d beyond size %d: %w", path, offset, len(existing), content.ErrInvalidOffset)
	}

	end := offset + uint64(len(data))
	merged := existing
	if end > uint64(len(merged)) {
		merged = make([]byte, end)
		copy(merged, existing)
	}
	copy(merged[offset:], data)

	return s.put(ctx, key, merged)
}

func (s *S3ContentStore) Truncate(ctx context.Context, path string, size uint64) error {
	key, err := s.objectKey(ctx, path)
	if err != nil {
		return err
	}

	existing, err := s.readAll(ctx, path)
	if err != nil {
		return err
	}
	if size > uint64(len(existing)) {
		return fmt.Errorf("%s: truncate to %d beyond size %d: %w", path, size, len(existing), content.ErrInvalidOffset)
	}
	return s.put(ctx, key, existing[:size])
}

func (s *S3ContentStore) Remove(ctx context.Context, path string) error {
	key, err := s.objectKey(ctx, path)
	if err != nil {
		return err
	}

	found, err := s.exists(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: %w", path, content.ErrNotFound)
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Mkdir writes the directory marker "<key>/".
func (s *S3ContentStore) Mkdir(ctx context.Context, path string) error {
	key, err := s.objectKey(ctx, path)
	if err != nil {
		return err
	}

	for _, candidate := range []string{key, key + "/"} {
		found, err := s.exists(ctx, candidate)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%s: %w", path, content.ErrExists)
		}
	}
	return s.put(ctx, key+"/", nil)
}

// RemoveAll deletes the object at key, the marker "<key>/" and everything
// listed under it.
func (s *S3ContentStore) RemoveAll(ctx context.Context, path string) error {
	key, err := s.objectKey(ctx, path)
	if err != nil {
		return err
	}

	keys := []string{key}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(key + "/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
		}

		result, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects: %w", err)
		}
		for _, e := range result.Errors {
			logger.Warn("S3 delete failed: key=%s code=%s message=%s",
				aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message))
		}
		if len(result.Errors) > 0 {
			return fmt.Errorf("failed to delete %d objects under %s", len(result.Errors), path)
		}
	}
	return nil
}
