package config

import (
	"github.com/marmos91/storagecloud/pkg/metrics"
	promMetrics "github.com/marmos91/storagecloud/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// DirectoryMetrics instruments the account directory (never nil, uses noop if disabled)
	DirectoryMetrics metrics.DirectoryMetrics

	// GCMetrics instruments the stale upload collector (never nil, uses noop if disabled)
	GCMetrics metrics.GCMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
//
// Prometheus collectors are registered once per process; call this at most
// once with metrics enabled.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			Server:           nil,
			DirectoryMetrics: metrics.NewNoopDirectoryMetrics(),
			GCMetrics:        metrics.NewNoopGCMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Server.Metrics.Port,
	})

	return &MetricsResult{
		Server:           server,
		DirectoryMetrics: promMetrics.NewDirectoryMetrics(),
		GCMetrics:        promMetrics.NewGCMetrics(),
	}
}
