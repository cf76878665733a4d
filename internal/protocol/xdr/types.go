// Package xdr provides the XDR (External Data Representation) encoding and
// decoding helpers used by the ONC-RPC envelope and the portmap protocol.
//
// XDR is the serialization format used by Sun RPC protocols, including the
// portmapper and VXI-11. Key characteristics:
//   - Big-endian byte order for all multi-byte integers
//   - 4-byte alignment for all data types
//   - Variable-length data is preceded by a 4-byte length
//   - Strings and opaque data are padded to 4-byte boundaries
//
// This package contains only generic utilities with no dependencies on
// other packages of this module (no logger, no protocol types).
//
// Reference: RFC 4506 - XDR: External Data Representation Standard
// https://tools.ietf.org/html/rfc4506
package xdr

import (
	"bytes"
	"fmt"
)

// Encoder is implemented by types that can encode themselves to XDR format.
type Encoder interface {
	Encode(buf *bytes.Buffer) error
}

// DecodeError reports a decoding failure together with the byte offset
// (relative to the start of the decoded buffer) at which it happened.
type DecodeError struct {
	// Offset is the position of the first byte of the item being decoded.
	Offset int

	// Field names the item being decoded (e.g. "uint32", "opaque length").
	Field string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("xdr: decode %s at offset %d: %v", e.Field, e.Offset, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Padding returns the number of zero bytes needed after n bytes of
// variable-length data to reach the next 4-byte boundary.
//
// Example: n=5 → 3, n=8 → 0
func Padding(n uint32) uint32 {
	return (4 - (n % 4)) % 4
}
