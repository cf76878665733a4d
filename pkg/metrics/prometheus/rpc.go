package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/vxi11/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterRPCMetricsConstructor(NewRPCMetrics)
}

// rpcMetrics is the Prometheus implementation of metrics.RPCMetrics.
type rpcMetrics struct {
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	staleReplies *prometheus.CounterVec
	recordBytes  *prometheus.CounterVec
}

// NewRPCMetrics creates a new Prometheus-backed RPCMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewRPCMetrics() metrics.RPCMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &rpcMetrics{
		callsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "vxi11_rpc_calls_total",
				Help: "Total number of ONC-RPC calls by program, procedure and status",
			},
			[]string{"program", "procedure", "status"},
		),
		callDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "vxi11_rpc_call_duration_milliseconds",
				Help: "Round-trip time of ONC-RPC calls in milliseconds",
				Buckets: []float64{
					0.5,   // loopback
					1,     // 1ms - LAN instrument
					5,     // 5ms
					10,    // 10ms
					50,    // 50ms
					100,   // 100ms
					500,   // 500ms - slow measurement
					1000,  // 1s - default io timeout
					5000,  // 5s
					30000, // 30s - long acquisitions
				},
			},
			[]string{"program", "procedure"},
		),
		staleReplies: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "vxi11_rpc_stale_replies_total",
				Help: "Replies discarded because their xid belonged to an earlier call",
			},
			[]string{"program"},
		),
		recordBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "vxi11_rpc_record_bytes_total",
				Help: "Record payload bytes sent and received",
			},
			[]string{"direction"},
		),
	}
}

func programLabel(prog uint32) string {
	switch prog {
	case 100000:
		return "portmap"
	case 0x0607AF:
		return "vxi11_core"
	default:
		return strconv.FormatUint(uint64(prog), 10)
	}
}

func (m *rpcMetrics) ObserveCall(program, procedure uint32, duration time.Duration, status string) {
	if m == nil {
		return
	}

	prog := programLabel(program)
	proc := strconv.FormatUint(uint64(procedure), 10)

	m.callsTotal.WithLabelValues(prog, proc, status).Inc()
	m.callDuration.WithLabelValues(prog, proc).Observe(duration.Seconds() * 1000)
}

func (m *rpcMetrics) RecordStaleReply(program uint32) {
	if m == nil {
		return
	}
	m.staleReplies.WithLabelValues(programLabel(program)).Inc()
}

func (m *rpcMetrics) RecordRecordBytes(direction string, bytes int) {
	if m == nil || bytes <= 0 {
		return
	}
	m.recordBytes.WithLabelValues(direction).Add(float64(bytes))
}
