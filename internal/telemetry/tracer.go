package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for RPC calls and device-link operations.
// Keys follow OpenTelemetry semantic conventions where one exists
// (server.*, rpc.*); VXI-11 specific keys use the "vxi11." prefix.
const (
	// ========================================================================
	// Peer attributes
	// ========================================================================
	AttrServerAddr = "server.address"
	AttrServerPort = "server.port"
	AttrTransport  = "network.transport.variant"

	// ========================================================================
	// RPC attributes
	// ========================================================================
	AttrRPCSystem    = "rpc.system"
	AttrRPCXID       = "rpc.xid"
	AttrRPCProgram   = "rpc.program"
	AttrRPCVersion   = "rpc.version"
	AttrRPCProcedure = "rpc.procedure"
	AttrRPCAuthType  = "rpc.auth_type"
	AttrRPCReqSize   = "rpc.request.size"
	AttrRPCRespSize  = "rpc.response.size"
	AttrRPCStale     = "rpc.stale_replies"

	// ========================================================================
	// Port mapper attributes
	// ========================================================================
	AttrPortmapProtocol = "portmap.protocol"
	AttrPortmapPort     = "portmap.port"

	// ========================================================================
	// VXI-11 attributes
	// ========================================================================
	AttrVXI11Device    = "vxi11.device"
	AttrVXI11LinkID    = "vxi11.link_id"
	AttrVXI11ClientID  = "vxi11.client_id"
	AttrVXI11Bytes     = "vxi11.bytes"
	AttrVXI11Chunks    = "vxi11.chunks"
	AttrVXI11Reason    = "vxi11.reason"
	AttrVXI11ErrorCode = "vxi11.error_code"
	AttrVXI11MaxRecv   = "vxi11.max_recv_size"
)

// Span names.
// Format: <component>.<operation>
const (
	SpanRPCCall = "rpc.call"

	SpanPortmapResolve = "portmap.resolve"
	SpanPortmapGetport = "portmap.GETPORT"
	SpanPortmapDump    = "portmap.DUMP"
	SpanPortmapNull    = "portmap.NULL"

	SpanVXI11Connect    = "vxi11.connect"
	SpanVXI11CreateLink = "vxi11.create_link"
	SpanVXI11Write      = "vxi11.device_write"
	SpanVXI11Read       = "vxi11.device_read"
	SpanVXI11Destroy    = "vxi11.destroy_link"
)

// ServerAddr returns an attribute for the remote host.
func ServerAddr(host string) attribute.KeyValue {
	return attribute.String(AttrServerAddr, host)
}

// ServerPort returns an attribute for the remote port.
func ServerPort(port int) attribute.KeyValue {
	return attribute.Int(AttrServerPort, port)
}

// Transport returns an attribute for the record transport variant name.
func Transport(name string) attribute.KeyValue {
	return attribute.String(AttrTransport, name)
}

// RPCXID returns an attribute for RPC transaction ID
func RPCXID(xid uint32) attribute.KeyValue {
	return attribute.Int64(AttrRPCXID, int64(xid))
}

// RPCProgram returns an attribute for the RPC program number
func RPCProgram(prog uint32) attribute.KeyValue {
	return attribute.Int64(AttrRPCProgram, int64(prog))
}

// RPCVersion returns an attribute for the RPC program version
func RPCVersion(vers uint32) attribute.KeyValue {
	return attribute.Int64(AttrRPCVersion, int64(vers))
}

// RPCProcedure returns an attribute for the RPC procedure number
func RPCProcedure(proc uint32) attribute.KeyValue {
	return attribute.Int64(AttrRPCProcedure, int64(proc))
}

// RPCRequestSize returns an attribute for the encoded argument size.
func RPCRequestSize(n int) attribute.KeyValue {
	return attribute.Int(AttrRPCReqSize, n)
}

// RPCResponseSize returns an attribute for the result payload size.
func RPCResponseSize(n int) attribute.KeyValue {
	return attribute.Int(AttrRPCRespSize, n)
}

// RPCStaleReplies returns an attribute counting replies discarded while
// waiting for the matching xid.
func RPCStaleReplies(n int) attribute.KeyValue {
	return attribute.Int(AttrRPCStale, n)
}

// PortmapProtocol returns an attribute for the transport protocol id
// (6 = TCP, 17 = UDP).
func PortmapProtocol(proto uint32) attribute.KeyValue {
	return attribute.Int64(AttrPortmapProtocol, int64(proto))
}

// PortmapPort returns an attribute for a resolved port.
func PortmapPort(port uint32) attribute.KeyValue {
	return attribute.Int64(AttrPortmapPort, int64(port))
}

// VXI11Device returns an attribute for the device name.
func VXI11Device(name string) attribute.KeyValue {
	return attribute.String(AttrVXI11Device, name)
}

// VXI11LinkID returns an attribute for a link id.
func VXI11LinkID(id int32) attribute.KeyValue {
	return attribute.Int64(AttrVXI11LinkID, int64(id))
}

// VXI11ClientID returns an attribute for the locally chosen client id.
func VXI11ClientID(id int32) attribute.KeyValue {
	return attribute.Int64(AttrVXI11ClientID, int64(id))
}

// VXI11Bytes returns an attribute for bytes moved by an operation.
func VXI11Bytes(n int) attribute.KeyValue {
	return attribute.Int(AttrVXI11Bytes, n)
}

// VXI11Chunks returns an attribute for the number of device calls issued.
func VXI11Chunks(n int) attribute.KeyValue {
	return attribute.Int(AttrVXI11Chunks, n)
}

// VXI11Reason returns an attribute for a device_read reason mask.
func VXI11Reason(reason uint32) attribute.KeyValue {
	return attribute.Int64(AttrVXI11Reason, int64(reason))
}

// VXI11ErrorCode returns an attribute for a Device_ErrorCode.
func VXI11ErrorCode(code uint32) attribute.KeyValue {
	return attribute.Int64(AttrVXI11ErrorCode, int64(code))
}

// VXI11MaxRecvSize returns an attribute for the negotiated chunk size.
func VXI11MaxRecvSize(n uint32) attribute.KeyValue {
	return attribute.Int64(AttrVXI11MaxRecv, int64(n))
}

// StartRPCSpan starts a client span for one RPC call.
func StartRPCSpan(ctx context.Context, xid, prog, vers, proc uint32, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		attribute.String(AttrRPCSystem, "onc_rpc"),
		attribute.String(AttrRPCAuthType, "AUTH_NONE"),
		RPCXID(xid),
		RPCProgram(prog),
		RPCVersion(vers),
		RPCProcedure(proc),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanRPCCall, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(allAttrs...))
}

// StartVXI11Span starts a span for a device-link operation.
func StartVXI11Span(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "vxi11."+operation, trace.WithAttributes(attrs...))
}

// StartPortmapSpan starts a span for a port mapper operation.
func StartPortmapSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "portmap."+operation, trace.WithAttributes(attrs...))
}
