package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/storagecloud/pkg/config"
)

// MetadataStoreType represents the type of metadata store
type MetadataStoreType string

const (
	MetadataMemory MetadataStoreType = "memory"
	MetadataBadger MetadataStoreType = "badger"
	MetadataMongo  MetadataStoreType = "mongo"
)

// ContentStoreType represents the type of content store
type ContentStoreType string

const (
	ContentMemory     ContentStoreType = "memory"
	ContentFilesystem ContentStoreType = "filesystem"
	ContentS3         ContentStoreType = "s3"
)

// TestConfig selects the store combination for a test run.
type TestConfig struct {
	Name          string
	MetadataStore MetadataStoreType
	ContentStore  ContentStoreType
}

// String returns a string representation of the configuration
func (tc *TestConfig) String() string {
	return fmt.Sprintf("%s/%s", tc.MetadataStore, tc.ContentStore)
}

// Build produces a full service configuration for this store combination,
// placing on-disk stores under the test's temporary directory.
//
// Small quota and chunk sizes keep the scenarios fast and make quota edges
// easy to hit.
func (tc *TestConfig) Build(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{}
	cfg.Directory.DefaultQuota = 4096
	cfg.Directory.DownloadChunkSize = 64
	cfg.Auth.LoginAttemptsPerMinute = 60
	cfg.Auth.LoginBurst = 3
	cfg.GC.Enabled = false
	cfg.Metadata.Type = string(tc.MetadataStore)
	cfg.Content.Type = string(tc.ContentStore)

	switch tc.MetadataStore {
	case MetadataBadger:
		cfg.Metadata.Badger = map[string]any{
			"db_path": filepath.Join(t.TempDir(), "metadata"),
		}
	case MetadataMongo:
		cfg.Metadata.Mongo = map[string]any{
			"uri":      os.Getenv("STORAGECLOUD_TEST_MONGO_URI"),
			"database": fmt.Sprintf("storagecloud_e2e_%d", time.Now().UnixNano()),
		}
	}

	switch tc.ContentStore {
	case ContentFilesystem:
		cfg.Content.Filesystem = map[string]any{
			"path": filepath.Join(t.TempDir(), "content"),
		}
	case ContentS3:
		cfg.Content.S3 = map[string]any{
			"bucket":            os.Getenv("STORAGECLOUD_TEST_S3_BUCKET"),
			"endpoint":          localstackEndpoint(),
			"region":            "us-east-1",
			"access_key_id":     "test",
			"secret_access_key": "test",
			"key_prefix":        fmt.Sprintf("e2e-%s/", t.Name()),
		}
	}

	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("invalid test configuration %s: %v", tc, err)
	}
	return cfg
}

// available reports whether the external services this combination needs
// are configured.
func (tc *TestConfig) available() (bool, string) {
	if tc.MetadataStore == MetadataMongo && os.Getenv("STORAGECLOUD_TEST_MONGO_URI") == "" {
		return false, "STORAGECLOUD_TEST_MONGO_URI not set"
	}
	if tc.ContentStore == ContentS3 && os.Getenv("STORAGECLOUD_TEST_S3_BUCKET") == "" {
		return false, "STORAGECLOUD_TEST_S3_BUCKET not set"
	}
	return true, ""
}

func localstackEndpoint() string {
	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	return "http://localhost:4566"
}

// AllConfigurations returns all test configurations to run. Combinations
// that need an external service are skipped unless it is configured.
func AllConfigurations() []*TestConfig {
	return []*TestConfig{
		{Name: "memory-memory", MetadataStore: MetadataMemory, ContentStore: ContentMemory},
		{Name: "memory-filesystem", MetadataStore: MetadataMemory, ContentStore: ContentFilesystem},
		{Name: "badger-filesystem", MetadataStore: MetadataBadger, ContentStore: ContentFilesystem},
		{Name: "badger-s3", MetadataStore: MetadataBadger, ContentStore: ContentS3},
		{Name: "mongo-filesystem", MetadataStore: MetadataMongo, ContentStore: ContentFilesystem},
	}
}
