package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/storagecloud/internal/logger"
	"github.com/marmos91/storagecloud/pkg/gc"
)

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to the configuration file")
	_ = fs.Parse(args)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap(ctx, *configPath, true)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.cfg
	logger.Info("StorageCloud starting")
	logger.Info("  Metadata store: %s", cfg.Metadata.Type)
	logger.Info("  Content store: %s", cfg.Content.Type)
	logger.Info("  Default quota: %d bytes", cfg.Directory.DefaultQuota)
	logger.Info("  Download chunk size: %d bytes", cfg.Directory.DownloadChunkSize)
	logger.Info("  Shutdown timeout: %v", cfg.Server.ShutdownTimeout)

	collector, err := gc.NewCollector(rt.dir, cfg.GC, rt.metrics.GCMetrics)
	if err != nil {
		return fmt.Errorf("failed to create garbage collector: %w", err)
	}
	collector.Start()

	metricsDone := make(chan error, 1)
	if rt.metrics.Server != nil {
		rt.metrics.Server.SetHealthcheck(rt.dir.Healthcheck)
		go func() {
			metricsDone <- rt.metrics.Server.Start(ctx)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("StorageCloud is running. Press Ctrl+C to stop.")

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("Received %s, initiating graceful shutdown...", sig)
	case err := <-metricsDone:
		if err != nil {
			runErr = err
			logger.Error("Metrics server error: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := collector.Stop(shutdownCtx); err != nil {
		logger.Warn("Garbage collector did not stop cleanly: %v", err)
	}
	if rt.metrics.Server != nil {
		if err := rt.metrics.Server.Stop(shutdownCtx); err != nil {
			logger.Warn("Metrics server did not stop cleanly: %v", err)
		}
	}

	logger.Info("StorageCloud stopped")
	return runErr
}
