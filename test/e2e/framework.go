package e2e

import (
	"context"
	"testing"

	"github.com/marmos91/storagecloud/internal/ratelimiter"
	"github.com/marmos91/storagecloud/pkg/config"
	"github.com/marmos91/storagecloud/pkg/directory"
	"github.com/marmos91/storagecloud/pkg/gc"
	"github.com/marmos91/storagecloud/pkg/session"
	"github.com/marmos91/storagecloud/pkg/store/content"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

// TestContext provides a complete service assembled from configuration:
//   - Metadata and content stores built by the config factories
//   - The account directory over them
//   - A shared login limiter
//   - A garbage collector (not started; scenarios call RunNow)
type TestContext struct {
	T         *testing.T
	Config    *TestConfig
	Service   *config.Config
	Meta      metadata.Store
	Files     content.Store
	Directory *directory.Directory
	Collector *gc.Collector
	Limiter   *ratelimiter.KeyedLimiter
}

// NewTestContext builds the service for tc and registers cleanup on t.
func NewTestContext(t *testing.T, tc *TestConfig) *TestContext {
	t.Helper()

	if ok, reason := tc.available(); !ok {
		t.Skipf("skipping %s: %s", tc, reason)
	}

	ctx := context.Background()
	cfg := tc.Build(t)

	meta, err := config.CreateMetadataStore(ctx, &cfg.Metadata)
	if err != nil {
		t.Fatalf("failed to create metadata store: %v", err)
	}

	files, err := config.CreateContentStore(ctx, &cfg.Content)
	if err != nil {
		_ = meta.Close()
		t.Fatalf("failed to create content store: %v", err)
	}

	dir := directory.New(meta, files, cfg.Directory)

	collector, err := gc.NewCollector(dir, cfg.GC, nil)
	if err != nil {
		config.CloseStores(meta, files)
		t.Fatalf("failed to create collector: %v", err)
	}

	testCtx := &TestContext{
		T:         t,
		Config:    tc,
		Service:   cfg,
		Meta:      meta,
		Files:     files,
		Directory: dir,
		Collector: collector,
		Limiter:   ratelimiter.NewKeyed(cfg.Auth.LoginAttemptsPerMinute, cfg.Auth.LoginBurst),
	}

	t.Cleanup(testCtx.Cleanup)
	return testCtx
}

// Cleanup stops the collector and closes both stores.
func (tc *TestContext) Cleanup() {
	_ = tc.Collector.Stop(context.Background())
	config.CloseStores(tc.Meta, tc.Files)
}

// Register creates a regular account with password "<username>-pw".
func (tc *TestContext) Register(username string) *metadata.Account {
	tc.T.Helper()

	acct, err := tc.Directory.RegisterUser(context.Background(), directory.NewAccount{
		Username: username,
		Name:     username,
		Surname:  "Tester",
		Role:     metadata.RoleRegular,
		Password: username + "-pw",
	})
	if err != nil {
		tc.T.Fatalf("failed to register %s: %v", username, err)
	}
	return acct
}

// Login returns an authorized identity for username.
func (tc *TestContext) Login(username string) *session.Identity {
	tc.T.Helper()
	ctx := context.Background()

	id, err := session.NewForUsername(ctx, tc.Directory, username, session.WithLoginLimiter(tc.Limiter))
	if err != nil {
		tc.T.Fatalf("failed to bind %s: %v", username, err)
	}
	if _, err := id.LoginWithPassword(ctx, username+"-pw"); err != nil {
		tc.T.Fatalf("failed to log in as %s: %v", username, err)
	}
	return id
}

// RunForAllConfigurations runs fn once per available store combination.
func RunForAllConfigurations(t *testing.T, fn func(t *testing.T, tc *TestContext)) {
	for _, cfg := range AllConfigurations() {
		t.Run(cfg.Name, func(t *testing.T) {
			fn(t, NewTestContext(t, cfg))
		})
	}
}
