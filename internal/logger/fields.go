package logger

import (
	"fmt"
	"log/slog"
	"time"
)

// Standard field keys for structured logging.
// Use these keys consistently so log lines from the RPC engine, the port
// mapper and the session can be joined on xid, host and link_id.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ========================================================================
	// Peer
	// ========================================================================
	KeyHost      = "host"
	KeyPort      = "port"
	KeyAddr      = "addr"
	KeyTransport = "transport" // record transport variant: tcp, tcp-buffered

	// ========================================================================
	// RPC
	// ========================================================================
	KeyXID       = "xid"
	KeyExpected  = "expected_xid"
	KeyProgram   = "program"
	KeyVersion   = "version"
	KeyProcedure = "procedure"
	KeyProtocol  = "protocol" // portmap protocol id: 6 (tcp), 17 (udp)
	KeyRecord    = "record"   // hex dump of a record (debug only)

	// ========================================================================
	// Device link
	// ========================================================================
	KeyDevice    = "device"
	KeyLinkID    = "link_id"
	KeyClientID  = "client_id"
	KeyMaxRecv   = "max_recv_size"
	KeyAbortPort = "abort_port"
	KeyChunk     = "chunk"
	KeyReason    = "reason"
	KeyFlags     = "flags"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyOperation  = "operation"
	KeyBytes      = "bytes"
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
	KeyAttempt    = "attempt"
)

// ----------------------------------------------------------------------------
// Field constructors
// ----------------------------------------------------------------------------

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Host returns a slog.Attr for the remote host
func Host(h string) slog.Attr {
	return slog.String(KeyHost, h)
}

// Port returns a slog.Attr for a TCP port
func Port(p int) slog.Attr {
	return slog.Int(KeyPort, p)
}

// Addr returns a slog.Attr for a host:port address
func Addr(a string) slog.Attr {
	return slog.String(KeyAddr, a)
}

// Transport returns a slog.Attr for the record transport variant
func Transport(name string) slog.Attr {
	return slog.String(KeyTransport, name)
}

// XID returns a slog.Attr for an RPC transaction id
func XID(xid uint32) slog.Attr {
	return slog.Uint64(KeyXID, uint64(xid))
}

// ExpectedXID returns a slog.Attr for the xid a reply was expected to carry
func ExpectedXID(xid uint32) slog.Attr {
	return slog.Uint64(KeyExpected, uint64(xid))
}

// Program returns a slog.Attr for an RPC program number, in hex
func Program(prog uint32) slog.Attr {
	return slog.String(KeyProgram, fmt.Sprintf("0x%06x", prog))
}

// Version returns a slog.Attr for an RPC program version
func Version(vers uint32) slog.Attr {
	return slog.Uint64(KeyVersion, uint64(vers))
}

// Procedure returns a slog.Attr for an RPC procedure number
func Procedure(proc uint32) slog.Attr {
	return slog.Uint64(KeyProcedure, uint64(proc))
}

// Protocol returns a slog.Attr for a portmap protocol id
func Protocol(proto uint32) slog.Attr {
	return slog.Uint64(KeyProtocol, uint64(proto))
}

// Record returns a slog.Attr with a hex dump of raw record bytes
func Record(b []byte) slog.Attr {
	return slog.String(KeyRecord, fmt.Sprintf("%x", b))
}

// Device returns a slog.Attr for the device name
func Device(name string) slog.Attr {
	return slog.String(KeyDevice, name)
}

// LinkID returns a slog.Attr for a link id
func LinkID(id int32) slog.Attr {
	return slog.Int64(KeyLinkID, int64(id))
}

// ClientID returns a slog.Attr for a client id
func ClientID(id int32) slog.Attr {
	return slog.Int64(KeyClientID, int64(id))
}

// MaxRecvSize returns a slog.Attr for the negotiated chunk size
func MaxRecvSize(n uint32) slog.Attr {
	return slog.Uint64(KeyMaxRecv, uint64(n))
}

// AbortPort returns a slog.Attr for the abort channel port
func AbortPort(p uint32) slog.Attr {
	return slog.Uint64(KeyAbortPort, uint64(p))
}

// Chunk returns a slog.Attr for a chunk index
func Chunk(i int) slog.Attr {
	return slog.Int(KeyChunk, i)
}

// Reason returns a slog.Attr for a device_read reason mask, in hex
func Reason(r uint32) slog.Attr {
	return slog.String(KeyReason, fmt.Sprintf("0x%02x", r))
}

// Flags returns a slog.Attr for device operation flags, in hex
func Flags(f uint32) slog.Attr {
	return slog.String(KeyFlags, fmt.Sprintf("0x%02x", f))
}

// Operation returns a slog.Attr for an operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Bytes returns a slog.Attr for a byte count
func Bytes(n int) slog.Attr {
	return slog.Int(KeyBytes, n)
}

// DurationMs returns a slog.Attr with the elapsed time since start in ms
func DurationMs(start time.Time) slog.Attr {
	return slog.Float64(KeyDurationMs, Duration(start))
}

// Err returns a slog.Attr for an error (empty attr when err is nil)
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric error code
func ErrorCode(code uint32) slog.Attr {
	return slog.Uint64(KeyErrorCode, uint64(code))
}

// Attempt returns a slog.Attr for an attempt counter
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}
