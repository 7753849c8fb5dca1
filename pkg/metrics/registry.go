// Package metrics defines the observability interfaces of the fragment service
// and the global Prometheus registry they report to.
//
// Metrics are optional. Until InitRegistry is called, GetRegistry returns nil
// and callers fall back to the no-op implementations in this package, so the
// service runs the same with or without collection enabled.
//
// Usage:
//
//	metrics.InitRegistry()
//	svcMetrics := prometheus.NewFragmentMetrics()
//	storeMetrics := prometheus.NewStoreMetrics()
//
//	svc := service.New(repo, service.Options{Metrics: svcMetrics})
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the global registry with Go runtime and process
// collectors attached. Later calls are no-ops.
func InitRegistry() {
	registryOnce.Do(func() {
		r := prometheus.NewRegistry()
		r.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: "fragments"}),
		)
		registry = r
	})
}

// GetRegistry returns the global registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
