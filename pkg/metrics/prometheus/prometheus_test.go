package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/marmos91/vxi11/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsDisabled(t *testing.T) {
	metrics.ResetRegistry()

	assert.Nil(t, NewRPCMetrics())
	assert.Nil(t, NewVXI11Metrics())
	assert.Nil(t, metrics.NewRPCMetrics())
	assert.Nil(t, metrics.NewVXI11Metrics())
}

func TestRPCMetrics(t *testing.T) {
	metrics.ResetRegistry()
	reg := metrics.InitRegistry()
	t.Cleanup(metrics.ResetRegistry)

	m := metrics.NewRPCMetrics()
	require.NotNil(t, m)

	m.ObserveCall(0x0607AF, 11, 3*time.Millisecond, "ok")
	m.ObserveCall(0x0607AF, 11, 2*time.Millisecond, "ok")
	m.ObserveCall(100000, 3, time.Millisecond, "transport")
	m.RecordStaleReply(0x0607AF)
	m.RecordRecordBytes("sent", 128)
	m.RecordRecordBytes("sent", 0)

	impl := m.(*rpcMetrics)
	assert.Equal(t, 2.0, testutil.ToFloat64(impl.callsTotal.WithLabelValues("vxi11_core", "11", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.callsTotal.WithLabelValues("portmap", "3", "transport")))
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.staleReplies.WithLabelValues("vxi11_core")))
	assert.Equal(t, 128.0, testutil.ToFloat64(impl.recordBytes.WithLabelValues("sent")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "vxi11_rpc_call_duration_milliseconds")
}

func TestVXI11Metrics(t *testing.T) {
	metrics.ResetRegistry()
	metrics.InitRegistry()
	t.Cleanup(metrics.ResetRegistry)

	m := metrics.NewVXI11Metrics()
	require.NotNil(t, m)

	m.ObserveOperation("device_write", 5*time.Millisecond, "ok")
	m.RecordBytes("write", 10)
	m.RecordChunks("device_write", 3)
	m.RecordRemoteError("device_read", 15)
	m.AddActiveLinks(1)
	m.AddActiveLinks(1)
	m.AddActiveLinks(-1)

	impl := m.(*vxi11Metrics)
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.operationsTotal.WithLabelValues("device_write", "ok")))
	assert.Equal(t, 10.0, testutil.ToFloat64(impl.bytesTransferred.WithLabelValues("write")))
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.remoteErrors.WithLabelValues("device_read", "15")))
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.activeLinks))
}

func TestNilSafeHelpers(t *testing.T) {
	require.NotPanics(t, func() {
		metrics.ObserveCall(nil, 1, 2, time.Second, errors.New("x").Error())
		metrics.RecordStaleReply(nil, 1)
		metrics.RecordRecordBytes(nil, "sent", 1)
	})

	var m *rpcMetrics
	require.NotPanics(t, func() {
		m.ObserveCall(1, 2, time.Second, "ok")
	})
}
