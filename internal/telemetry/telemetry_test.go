package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "vxi11ctl", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	tracer = nil
	enabled = false

	tr := Tracer()
	require.NotNil(t, tr)
}

func TestSpanHelpersWithoutInit(t *testing.T) {
	ctx := context.Background()

	t.Run("StartSpan", func(t *testing.T) {
		newCtx, span := StartSpan(ctx, "test.operation")
		require.NotNil(t, newCtx)
		require.NotNil(t, span)
		span.End()
	})

	t.Run("RecordError", func(t *testing.T) {
		require.NotPanics(t, func() {
			RecordError(ctx, nil)
			RecordError(ctx, errors.New("test error"))
		})
	})

	t.Run("AttributesAndEvents", func(t *testing.T) {
		require.NotPanics(t, func() {
			SetAttributes(ctx, ServerAddr("192.168.1.10"))
			AddEvent(ctx, "rpc.stale_reply", RPCXID(1))
		})
	})

	t.Run("IDsEmpty", func(t *testing.T) {
		assert.Equal(t, "", TraceID(ctx))
		assert.Equal(t, "", SpanID(ctx))
	})
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(1.0).Description(), "AlwaysOnSampler")
	assert.Equal(t, "AlwaysOffSampler", samplerFor(0).Description())
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased")
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("RPCXID", func(t *testing.T) {
		attr := RPCXID(0x12345678)
		assert.Equal(t, AttrRPCXID, string(attr.Key))
		assert.Equal(t, int64(0x12345678), attr.Value.AsInt64())
	})

	t.Run("RPCProgram", func(t *testing.T) {
		attr := RPCProgram(0x0607AF)
		assert.Equal(t, AttrRPCProgram, string(attr.Key))
		assert.Equal(t, int64(0x0607AF), attr.Value.AsInt64())
	})

	t.Run("ServerAddr", func(t *testing.T) {
		attr := ServerAddr("10.0.0.5")
		assert.Equal(t, AttrServerAddr, string(attr.Key))
		assert.Equal(t, "10.0.0.5", attr.Value.AsString())
	})

	t.Run("VXI11LinkID", func(t *testing.T) {
		attr := VXI11LinkID(-3)
		assert.Equal(t, AttrVXI11LinkID, string(attr.Key))
		assert.Equal(t, int64(-3), attr.Value.AsInt64())
	})

	t.Run("VXI11Reason", func(t *testing.T) {
		attr := VXI11Reason(0x04)
		assert.Equal(t, AttrVXI11Reason, string(attr.Key))
		assert.Equal(t, int64(4), attr.Value.AsInt64())
	})

	t.Run("PortmapProtocol", func(t *testing.T) {
		attr := PortmapProtocol(6)
		assert.Equal(t, AttrPortmapProtocol, string(attr.Key))
		assert.Equal(t, int64(6), attr.Value.AsInt64())
	})
}

func TestStartRPCSpan(t *testing.T) {
	newCtx, span := StartRPCSpan(context.Background(), 1, 100000, 2, 3, RPCRequestSize(16))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	assert.Equal(t, span, trace.SpanFromContext(newCtx))
	span.End()
}

func TestStartVXI11Span(t *testing.T) {
	newCtx, span := StartVXI11Span(context.Background(), "device_write", VXI11Bytes(10), VXI11Chunks(3))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	newCtx, span = StartPortmapSpan(context.Background(), "GETPORT")
	require.NotNil(t, newCtx)
	span.End()
}

func TestProfiling(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		stop, err := InitProfiling(ProfilingConfig{})
		require.NoError(t, err)
		assert.NoError(t, stop())
		assert.False(t, IsProfilingEnabled())
	})

	t.Run("UnknownProfileType", func(t *testing.T) {
		_, err := InitProfiling(ProfilingConfig{Enabled: true, ProfileTypes: []string{"heap"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown profile type "heap"`)
	})

	t.Run("Names", func(t *testing.T) {
		names := ProfileTypeNames()
		assert.Len(t, names, 10)
		assert.Equal(t, "alloc_objects", names[0])
		for _, n := range DefaultProfileTypes {
			assert.Contains(t, names, n)
		}
	})
}
