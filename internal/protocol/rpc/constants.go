// Package rpc implements the ONC-RPC version 2 message envelope (RFC 5531)
// and the record-marking wire format used to carry RPC messages over a
// byte stream (RFC 5531 Section 11).
//
// This package only deals with bytes: it builds and parses call/reply
// envelopes and frames them into records. Connection handling and
// transaction matching live in pkg/rpc.
package rpc

// RPCVersion is the only ONC-RPC protocol version in use (RFC 5531).
const RPCVersion = 2

// RPC Message Types
//
// Reference: RFC 5531 Section 9 (RPC Message Protocol)
const (
	// RPCCall indicates an RPC call message (client → server).
	RPCCall uint32 = 0

	// RPCReply indicates an RPC reply message (server → client).
	RPCReply uint32 = 1
)

// RPC Reply States
//
// A reply is either accepted (the server attempted to run the procedure) or
// denied (RPC version mismatch or authentication failure).
const (
	RPCMsgAccepted uint32 = 0
	RPCMsgDenied   uint32 = 1
)

// RPC Accept Status
//
// Carried by accepted replies. Only RPCSuccess is followed by procedure
// results.
const (
	// RPCSuccess indicates the procedure executed successfully.
	RPCSuccess uint32 = 0

	// RPCProgUnavail indicates the remote does not export the program.
	RPCProgUnavail uint32 = 1

	// RPCProgMismatch indicates the program version is not supported.
	// The reply includes the supported version range (low, high).
	RPCProgMismatch uint32 = 2

	// RPCProcUnavail indicates the procedure number is unknown.
	RPCProcUnavail uint32 = 3

	// RPCGarbageArgs indicates the server could not decode the arguments.
	RPCGarbageArgs uint32 = 4

	// RPCSystemErr indicates a server-side system error.
	RPCSystemErr uint32 = 5
)

// RPC Reject Status (denied replies).
const (
	// RPCMismatch indicates the RPC version is not 2.
	RPCMismatch uint32 = 0

	// RPCAuthError indicates the credentials were rejected.
	RPCAuthError uint32 = 1
)

// AuthNone is the AUTH_NONE flavor. It is the only flavor this client sends.
const AuthNone uint32 = 0

// maxAuthBodyLength is the largest opaque_auth body allowed by RFC 5531.
const maxAuthBodyLength = 400

// Record marking (RFC 5531 Section 11).
//
// Each fragment is preceded by a 4-byte big-endian header. The high bit marks
// the last fragment of a record; the lower 31 bits hold the fragment length.
const (
	LastFragmentFlag   uint32 = 0x80000000
	FragmentLengthMask uint32 = 0x7FFFFFFF
)

// AcceptStatName returns a human-readable name for an accept_stat value.
func AcceptStatName(stat uint32) string {
	switch stat {
	case RPCSuccess:
		return "SUCCESS"
	case RPCProgUnavail:
		return "PROG_UNAVAIL"
	case RPCProgMismatch:
		return "PROG_MISMATCH"
	case RPCProcUnavail:
		return "PROC_UNAVAIL"
	case RPCGarbageArgs:
		return "GARBAGE_ARGS"
	case RPCSystemErr:
		return "SYSTEM_ERR"
	default:
		return "UNKNOWN"
	}
}
