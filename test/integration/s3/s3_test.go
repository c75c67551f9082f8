//go:build integration

package s3_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/storagecloud/pkg/cryptoutil"
	"github.com/marmos91/storagecloud/pkg/directory"
	"github.com/marmos91/storagecloud/pkg/store/content"
	s3store "github.com/marmos91/storagecloud/pkg/store/content/s3"
	contenttesting "github.com/marmos91/storagecloud/pkg/store/content/testing"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
	"github.com/marmos91/storagecloud/pkg/store/metadata/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestS3 creates an S3 client and test bucket for integration tests.
//
// It connects to Localstack (or other S3-compatible endpoint) and creates a
// test bucket that is emptied and removed when the test ends.
func setupTestS3(t *testing.T, bucketName string) *s3.Client {
	t.Helper()
	ctx := context.Background()

	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err)

	// Path-style URLs are required for Localstack
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucketName),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				break
			}
			for _, obj := range page.Contents {
				_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{
					Bucket: aws.String(bucketName),
					Key:    obj.Key,
				})
			}
		}

		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{
			Bucket: aws.String(bucketName),
		})
	})

	return client
}

// TestS3ContentStore_Integration runs the content store conformance suite
// against a real S3-compatible service (Localstack).
//
// Prerequisites:
//   - Localstack running on localhost:4566
//   - Run with: go test -tags=integration ./test/integration/s3/...
//
// To start Localstack:
//
//	docker run --rm -p 4566:4566 localstack/localstack
func TestS3ContentStore_Integration(t *testing.T) {
	ctx := context.Background()
	bucketName := "storagecloud-test-bucket"
	client := setupTestS3(t, bucketName)

	// Each test gets a fresh key prefix for isolation
	var counter atomic.Int64
	suite := &contenttesting.StoreTestSuite{
		NewStore: func(t *testing.T) content.Store {
			store, err := s3store.NewS3ContentStore(ctx, s3store.S3ContentStoreConfig{
				Client:    client,
				Bucket:    bucketName,
				KeyPrefix: fmt.Sprintf("test-%d/", counter.Add(1)),
			})
			require.NoError(t, err)
			return store
		},
	}

	suite.Run(t)
}

// TestS3Directory_UploadAndShare drives a chunked upload, a shared download
// and an account deletion with file content held in S3.
func TestS3Directory_UploadAndShare(t *testing.T) {
	ctx := context.Background()
	bucketName := "storagecloud-directory-test"
	client := setupTestS3(t, bucketName)

	files, err := s3store.NewS3ContentStore(ctx, s3store.S3ContentStoreConfig{
		Client:    client,
		Bucket:    bucketName,
		KeyPrefix: "homes/",
	})
	require.NoError(t, err)

	dir := directory.New(memory.NewMemoryMetadataStore(), files, directory.Config{
		DefaultQuota:      1 << 20,
		DownloadChunkSize: 100,
	})

	alice, err := dir.RegisterUser(ctx, directory.NewAccount{Username: "alice", Role: metadata.RoleRegular, Password: "a"})
	require.NoError(t, err)
	bob, err := dir.RegisterUser(ctx, directory.NewAccount{Username: "bob", Role: metadata.RoleRegular, Password: "b"})
	require.NoError(t, err)

	data := bytes.Repeat([]byte("s3"), 250)
	hash := cryptoutil.HashContent(data)

	cursor, _, err := dir.BeginUpload(ctx, alice.ID, directory.AddFileRequest{
		Filename: "/notes.txt",
		Kind:     metadata.KindRegular,
		Size:     uint64(len(data)),
		Hash:     hash,
	})
	require.NoError(t, err)

	for off := 0; off < len(data); off += 128 {
		end := min(off+128, len(data))
		require.NoError(t, dir.AppendChunk(ctx, cursor, data[off:end]))
	}
	require.True(t, cursor.Completed())

	require.NoError(t, dir.ShareWith(ctx, alice.ID, "/notes.txt", "bob"))

	dl, err := dir.BeginSharedDownload(ctx, bob.ID, "alice", "notes.txt", hash, 0)
	require.NoError(t, err)

	var got []byte
	for dl.Active() {
		chunk, err := dir.ReadChunk(ctx, dl)
		require.NoError(t, err)
		got = append(got, chunk...)
	}
	assert.Equal(t, data, got)

	require.NoError(t, dir.DeleteUser(ctx, "alice"))

	_, err = files.Size(ctx, "/alice/notes.txt")
	assert.ErrorIs(t, err, content.ErrNotFound)
}
