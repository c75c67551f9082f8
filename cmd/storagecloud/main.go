package main

import (
	"context"
	"fmt"
	"os"

	"github.com/marmos91/storagecloud/internal/logger"
	"github.com/marmos91/storagecloud/internal/ratelimiter"
	"github.com/marmos91/storagecloud/pkg/config"
	"github.com/marmos91/storagecloud/pkg/directory"
	"github.com/marmos91/storagecloud/pkg/store/content"
	"github.com/marmos91/storagecloud/pkg/store/metadata"
)

const usage = `StorageCloud - multi-tenant file storage

Usage:
  storagecloud <command> [flags]

Commands:
  init                       Write a default configuration file
  start                      Run the background services until interrupted
  user add <username>        Register an account
  user list                  List all accounts
  user delete <username>     Delete an account and everything it owns
  user verify <username>     Check a password against an account

Every command except init accepts --config <path>.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "start":
		err = runStart(os.Args[2:])
	case "user":
		err = runUser(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Error("%v", err)
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// runtime holds the components every command builds from configuration.
type runtime struct {
	cfg     *config.Config
	meta    metadata.Store
	files   content.Store
	dir     *directory.Directory
	metrics *config.MetricsResult
}

// bootstrap loads configuration, sets up logging and opens both stores.
func bootstrap(ctx context.Context, configPath string, withMetrics bool) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if !withMetrics {
		cfg.Server.Metrics.Enabled = false
	}
	metricsResult := config.InitializeMetrics(cfg)

	meta, err := config.CreateMetadataStore(ctx, &cfg.Metadata)
	if err != nil {
		return nil, err
	}

	files, err := config.CreateContentStore(ctx, &cfg.Content)
	if err != nil {
		_ = meta.Close()
		return nil, err
	}

	dir := directory.New(meta, files, cfg.Directory, directory.WithMetrics(metricsResult.DirectoryMetrics))

	if err := dir.Healthcheck(ctx); err != nil {
		config.CloseStores(meta, files)
		return nil, fmt.Errorf("metadata store unreachable: %w", err)
	}

	logger.Debug("Stores ready: metadata=%s content=%s", cfg.Metadata.Type, cfg.Content.Type)

	return &runtime{
		cfg:     cfg,
		meta:    meta,
		files:   files,
		dir:     dir,
		metrics: metricsResult,
	}, nil
}

func (r *runtime) close() {
	config.CloseStores(r.meta, r.files)
}

// loginLimiter builds the per-username throttle described by cfg.
func loginLimiter(cfg config.AuthConfig) *ratelimiter.KeyedLimiter {
	if cfg.DisableThrottling {
		return ratelimiter.NewKeyed(0, 0)
	}
	return ratelimiter.NewKeyed(cfg.LoginAttemptsPerMinute, cfg.LoginBurst)
}
