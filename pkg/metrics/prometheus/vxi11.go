package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/vxi11/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterVXI11MetricsConstructor(NewVXI11Metrics)
}

// vxi11Metrics is the Prometheus implementation of metrics.VXI11Metrics.
type vxi11Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	chunks            *prometheus.HistogramVec
	remoteErrors      *prometheus.CounterVec
	activeLinks       prometheus.Gauge
}

// NewVXI11Metrics creates a new Prometheus-backed VXI11Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewVXI11Metrics() metrics.VXI11Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &vxi11Metrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "vxi11_device_operations_total",
				Help: "Total number of device-link operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "vxi11_device_operation_duration_milliseconds",
				Help: "Duration of device-link operations in milliseconds, all chunks included",
				Buckets: []float64{
					1,     // 1ms
					5,     // 5ms
					10,    // 10ms
					50,    // 50ms
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s
					5000,  // 5s
					30000, // 30s - waveform transfers
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "vxi11_device_bytes_total",
				Help: "Instrument payload bytes written and read",
			},
			[]string{"direction"},
		),
		chunks: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vxi11_device_chunks",
				Help:    "Number of device calls needed by one write or read",
				Buckets: []float64{1, 2, 4, 8, 16, 64, 256},
			},
			[]string{"operation"},
		),
		remoteErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "vxi11_device_remote_errors_total",
				Help: "Nonzero device error codes returned by the instrument",
			},
			[]string{"operation", "code"},
		),
		activeLinks: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "vxi11_device_active_links",
				Help: "Number of currently open device links",
			},
		),
	}
}

func (m *vxi11Metrics) ObserveOperation(operation string, duration time.Duration, status string) {
	if m == nil {
		return
	}

	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds() * 1000)
}

func (m *vxi11Metrics) RecordBytes(direction string, bytes int) {
	if m == nil || bytes <= 0 {
		return
	}
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *vxi11Metrics) RecordChunks(operation string, chunks int) {
	if m == nil {
		return
	}
	m.chunks.WithLabelValues(operation).Observe(float64(chunks))
}

func (m *vxi11Metrics) RecordRemoteError(operation string, code uint32) {
	if m == nil {
		return
	}
	m.remoteErrors.WithLabelValues(operation, strconv.FormatUint(uint64(code), 10)).Inc()
}

func (m *vxi11Metrics) AddActiveLinks(delta int) {
	if m == nil {
		return
	}
	m.activeLinks.Add(float64(delta))
}
