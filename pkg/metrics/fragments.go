package metrics

import "time"

// FragmentMetrics provides observability for fragment service operations.
//
// Implementations collect metrics about operation counts, latency, payload
// throughput and rate limiting. This interface is optional - if not provided
// to the service, a no-op implementation is used with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewFragmentMetrics()
//	svc := service.New(repo, service.Options{Metrics: m})
//
//	// Without metrics (no-op)
//	svc := service.New(repo, service.Options{})
type FragmentMetrics interface {
	// RecordOperation records a completed service operation with its
	// duration and outcome.
	//
	// Parameters:
	//   - operation: Operation name (e.g., "create", "read", "delete")
	//   - duration: Time taken to process the operation
	//   - err: Error if the operation failed, nil if successful
	RecordOperation(operation string, duration time.Duration, err error)

	// RecordOperationStart increments the in-flight operation gauge.
	RecordOperationStart(operation string)

	// RecordOperationEnd decrements the in-flight operation gauge.
	RecordOperationEnd(operation string)

	// RecordBytesTransferred records payload bytes read or written.
	//
	// Parameters:
	//   - direction: "read" or "write"
	//   - bytes: Number of bytes transferred
	RecordBytesTransferred(direction string, bytes int64)

	// RecordRateLimited increments the rejected-by-rate-limit counter.
	RecordRateLimited(operation string)
}

// NewNoopFragmentMetrics returns a FragmentMetrics that discards everything.
func NewNoopFragmentMetrics() FragmentMetrics {
	return noopFragmentMetrics{}
}

// noopFragmentMetrics is a no-op implementation of FragmentMetrics with zero overhead.
type noopFragmentMetrics struct{}

func (noopFragmentMetrics) RecordOperation(operation string, duration time.Duration, err error) {}
func (noopFragmentMetrics) RecordOperationStart(operation string)                               {}
func (noopFragmentMetrics) RecordOperationEnd(operation string)                                 {}
func (noopFragmentMetrics) RecordBytesTransferred(direction string, bytes int64)                {}
func (noopFragmentMetrics) RecordRateLimited(operation string)                                  {}
