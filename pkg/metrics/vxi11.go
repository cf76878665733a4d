package metrics

import (
	"time"
)

// VXI11Metrics provides observability for device-link sessions.
// Pass nil to disable.
type VXI11Metrics interface {
	// ObserveOperation records a session operation ("create_link",
	// "device_write", "device_read", "destroy_link", ...) with its total
	// duration across all chunks and its outcome ("ok" or an error kind).
	ObserveOperation(operation string, duration time.Duration, status string)

	// RecordBytes counts instrument payload bytes ("write" or "read").
	RecordBytes(direction string, bytes int)

	// RecordChunks observes how many device calls one write or read needed.
	RecordChunks(operation string, chunks int)

	// RecordRemoteError counts nonzero Device_ErrorCode values by operation.
	RecordRemoteError(operation string, code uint32)

	// AddActiveLinks adjusts the number of open links by delta.
	AddActiveLinks(delta int)
}

// NewVXI11Metrics returns the Prometheus VXI11Metrics implementation, or nil
// when metrics are disabled.
func NewVXI11Metrics() VXI11Metrics {
	if !IsEnabled() || newPrometheusVXI11Metrics == nil {
		return nil
	}
	return newPrometheusVXI11Metrics()
}

var newPrometheusVXI11Metrics func() VXI11Metrics

// RegisterVXI11MetricsConstructor registers the Prometheus VXI-11 metrics constructor.
func RegisterVXI11MetricsConstructor(constructor func() VXI11Metrics) {
	newPrometheusVXI11Metrics = constructor
}

// ObserveOperation is a nil-safe wrapper around VXI11Metrics.ObserveOperation.
func ObserveOperation(m VXI11Metrics, operation string, duration time.Duration, status string) {
	if m != nil {
		m.ObserveOperation(operation, duration, status)
	}
}

// RecordBytes is a nil-safe wrapper around VXI11Metrics.RecordBytes.
func RecordBytes(m VXI11Metrics, direction string, bytes int) {
	if m != nil {
		m.RecordBytes(direction, bytes)
	}
}

// RecordChunks is a nil-safe wrapper around VXI11Metrics.RecordChunks.
func RecordChunks(m VXI11Metrics, operation string, chunks int) {
	if m != nil {
		m.RecordChunks(operation, chunks)
	}
}

// RecordRemoteError is a nil-safe wrapper around VXI11Metrics.RecordRemoteError.
func RecordRemoteError(m VXI11Metrics, operation string, code uint32) {
	if m != nil {
		m.RecordRemoteError(operation, code)
	}
}

// AddActiveLinks is a nil-safe wrapper around VXI11Metrics.AddActiveLinks.
func AddActiveLinks(m VXI11Metrics, delta int) {
	if m != nil {
		m.AddActiveLinks(delta)
	}
}
