// Package portmap defines the wire format of the port mapper protocol
// (portmap version 2).
//
// The port mapper maps (program, version, protocol) tuples to the port the
// program listens on. It always listens on port 111.
//
// References:
//   - RFC 1057 Section A (Port Mapper Program Protocol)
//   - RFC 1833 (Binding Protocols for ONC RPC Version 2)
package portmap

import "strconv"

// ============================================================================
// Program, Version and Port
// ============================================================================

const (
	// Program is the port mapper RPC program number.
	Program uint32 = 100000

	// Version is the port mapper protocol version.
	Version uint32 = 2

	// Port is the well-known port of the port mapper.
	Port = 111
)

// ============================================================================
// Procedure Numbers (RFC 1057 Section A)
// ============================================================================

const (
	// ProcNull does nothing. Used to check the port mapper is alive.
	ProcNull uint32 = 0

	// ProcSet registers a mapping.
	ProcSet uint32 = 1

	// ProcUnset removes a mapping.
	ProcUnset uint32 = 2

	// ProcGetport returns the port for (prog, vers, prot), or 0 if the
	// tuple is not registered.
	ProcGetport uint32 = 3

	// ProcDump returns every registered mapping as an XDR optional-data list.
	ProcDump uint32 = 4
)

// ============================================================================
// Protocol Identifiers
// ============================================================================

const (
	// ProtoTCP is IPPROTO_TCP.
	ProtoTCP uint32 = 6

	// ProtoUDP is IPPROTO_UDP.
	ProtoUDP uint32 = 17
)

// ProcedureName returns a human-readable name for a port mapper procedure.
func ProcedureName(proc uint32) string {
	switch proc {
	case ProcNull:
		return "NULL"
	case ProcSet:
		return "SET"
	case ProcUnset:
		return "UNSET"
	case ProcGetport:
		return "GETPORT"
	case ProcDump:
		return "DUMP"
	default:
		return "UNKNOWN"
	}
}

// ProtocolName returns "tcp", "udp", or the number for other protocols.
func ProtocolName(prot uint32) string {
	switch prot {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	default:
		return "proto-" + strconv.FormatUint(uint64(prot), 10)
	}
}
