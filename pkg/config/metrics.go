package config

import (
	"github.com/marmos91/fragments/pkg/metrics"
	promMetrics "github.com/marmos91/fragments/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// FragmentMetrics is the collector for service operations (never nil, uses noop if disabled)
	FragmentMetrics metrics.FragmentMetrics

	// StoreMetrics is the collector for backend calls (nil if disabled, which
	// leaves stores uninstrumented)
	StoreMetrics metrics.StoreMetrics
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
// Parameters:
//   - cfg: The complete configuration
//   - health: Backs the server's /healthz endpoint (nil reports healthy)
//
// Returns:
//   - MetricsResult containing all metrics components
func InitializeMetrics(cfg *Config, health metrics.HealthFunc) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			Server:          nil,
			FragmentMetrics: metrics.NewNoopFragmentMetrics(),
			StoreMetrics:    nil,
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port:   cfg.Server.Metrics.Port,
		Health: health,
	})

	return &MetricsResult{
		Server:          server,
		FragmentMetrics: promMetrics.NewFragmentMetrics(),
		StoreMetrics:    promMetrics.NewStoreMetrics(),
	}
}
