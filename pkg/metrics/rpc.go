package metrics

import (
	"time"
)

// RPCMetrics provides observability for the RPC call engine.
//
// This interface is optional - pass nil to disable metrics collection with
// zero overhead.
//
// Example usage:
//
//	metrics.InitRegistry()
//	client, err := rpc.Dial(ctx, addr, rpc.DialOptions{Metrics: metrics.NewRPCMetrics()})
type RPCMetrics interface {
	// ObserveCall records a completed call.
	//
	// Parameters:
	//   - program: RPC program number (e.g., 100000, 0x0607AF)
	//   - procedure: procedure number within the program
	//   - duration: time from send to matching reply (or failure)
	//   - status: "ok" or the error kind (e.g., "transport", "xid_mismatch")
	ObserveCall(program, procedure uint32, duration time.Duration, status string)

	// RecordStaleReply counts a reply discarded because its xid belonged to
	// an earlier call.
	RecordStaleReply(program uint32)

	// RecordRecordBytes counts record payload bytes ("sent" or "received").
	RecordRecordBytes(direction string, bytes int)
}

// NewRPCMetrics returns the Prometheus RPCMetrics implementation, or nil when
// metrics are disabled or no implementation has been registered (import
// pkg/metrics/prometheus for its side effect).
func NewRPCMetrics() RPCMetrics {
	if !IsEnabled() || newPrometheusRPCMetrics == nil {
		return nil
	}
	return newPrometheusRPCMetrics()
}

// newPrometheusRPCMetrics is set by pkg/metrics/prometheus during package
// initialization. The indirection keeps this package free of import cycles.
var newPrometheusRPCMetrics func() RPCMetrics

// RegisterRPCMetricsConstructor registers the Prometheus RPC metrics constructor.
func RegisterRPCMetricsConstructor(constructor func() RPCMetrics) {
	newPrometheusRPCMetrics = constructor
}

// ObserveCall is a nil-safe wrapper around RPCMetrics.ObserveCall.
func ObserveCall(m RPCMetrics, program, procedure uint32, duration time.Duration, status string) {
	if m != nil {
		m.ObserveCall(program, procedure, duration, status)
	}
}

// RecordStaleReply is a nil-safe wrapper around RPCMetrics.RecordStaleReply.
func RecordStaleReply(m RPCMetrics, program uint32) {
	if m != nil {
		m.RecordStaleReply(program)
	}
}

// RecordRecordBytes is a nil-safe wrapper around RPCMetrics.RecordRecordBytes.
func RecordRecordBytes(m RPCMetrics, direction string, bytes int) {
	if m != nil {
		m.RecordRecordBytes(direction, bytes)
	}
}
