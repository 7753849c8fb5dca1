package prometheus

import (
	"time"

	"github.com/marmos91/fragments/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// fragmentMetrics is the Prometheus implementation of metrics.FragmentMetrics.
type fragmentMetrics struct {
	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	operationsInFlight *prometheus.GaugeVec
	bytesTransferred   *prometheus.CounterVec
	rateLimitedTotal   *prometheus.CounterVec
}

// NewFragmentMetrics creates a new Prometheus-backed FragmentMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewFragmentMetrics() metrics.FragmentMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopFragmentMetrics()
	}

	return newFragmentMetrics(metrics.GetRegistry())
}

func newFragmentMetrics(reg prometheus.Registerer) *fragmentMetrics {
	return &fragmentMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fragments_operations_total",
				Help: "Total number of fragment operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "fragments_operation_duration_seconds",
				Help: "Duration of fragment operations in seconds",
				Buckets: []float64{
					0.001, // 1ms
					0.005, // 5ms
					0.01,  // 10ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.5,   // 500ms
					1.0,   // 1s
					5.0,   // 5s
				},
			},
			[]string{"operation"},
		),
		operationsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fragments_operations_in_flight",
				Help: "Current number of fragment operations being processed",
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fragments_bytes_transferred_total",
				Help: "Total fragment payload bytes read or written",
			},
			[]string{"direction"}, // read or write
		),
		rateLimitedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fragments_rate_limited_total",
				Help: "Total number of operations rejected by the rate limiter",
			},
			[]string{"operation"},
		),
	}
}

func (m *fragmentMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *fragmentMetrics) RecordOperationStart(operation string) {
	m.operationsInFlight.WithLabelValues(operation).Inc()
}

func (m *fragmentMetrics) RecordOperationEnd(operation string) {
	m.operationsInFlight.WithLabelValues(operation).Dec()
}

func (m *fragmentMetrics) RecordBytesTransferred(direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *fragmentMetrics) RecordRateLimited(operation string) {
	m.rateLimitedTotal.WithLabelValues(operation).Inc()
}
