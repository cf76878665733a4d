package xdr

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ============================================================================
// XDR Encoding Helpers - Go Types → Wire Format
// ============================================================================

// WriteUint32 encodes a 32-bit unsigned integer in XDR format.
//
// Per RFC 4506 Section 4.2 (Unsigned Integer):
// Unsigned 32-bit integers are encoded in big-endian byte order.
func WriteUint32(buf *bytes.Buffer, v uint32) error {
	if err := binary.Write(buf, binary.BigEndian, v); err != nil {
		return fmt.Errorf("write uint32: %w", err)
	}
	return nil
}

// WriteInt32 encodes a 32-bit signed integer in XDR format (two's complement,
// big-endian).
func WriteInt32(buf *bytes.Buffer, v int32) error {
	if err := binary.Write(buf, binary.BigEndian, v); err != nil {
		return fmt.Errorf("write int32: %w", err)
	}
	return nil
}

// WriteBool encodes a boolean value in XDR format.
//
// Per RFC 4506 Section 4.4 (Boolean):
// Booleans are encoded as uint32 where 0 = false, 1 = true.
func WriteBool(buf *bytes.Buffer, v bool) error {
	var val uint32
	if v {
		val = 1
	}
	return WriteUint32(buf, val)
}

// WriteOpaque encodes variable-length opaque data: length + data + padding.
//
// Per RFC 4506 Section 4.10 (Variable-Length Opaque Data):
//
//	[length:uint32][data:length bytes][padding:0-3 bytes]
//
// Example:
//
//	[]byte{0x01, 0x02, 0x03} → [00 00 00 03][01 02 03][00] (8 bytes total)
func WriteOpaque(buf *bytes.Buffer, data []byte) error {
	length := uint32(len(data))
	if err := binary.Write(buf, binary.BigEndian, length); err != nil {
		return fmt.Errorf("write opaque length: %w", err)
	}

	if _, err := buf.Write(data); err != nil {
		return fmt.Errorf("write opaque data: %w", err)
	}

	return WritePadding(buf, length)
}

// WriteString encodes a string in XDR format. Strings share the opaque
// encoding (RFC 4506 Section 4.11).
//
// Example:
//
//	"instr" (5 bytes) → [00 00 00 05][69 6e 73 74 72][00 00 00] (12 bytes total)
func WriteString(buf *bytes.Buffer, s string) error {
	length := uint32(len(s))
	if err := binary.Write(buf, binary.BigEndian, length); err != nil {
		return fmt.Errorf("write string length: %w", err)
	}

	if _, err := buf.WriteString(s); err != nil {
		return fmt.Errorf("write string data: %w", err)
	}

	return WritePadding(buf, length)
}

// WritePadding writes the zero bytes that align dataLen bytes of
// variable-length data to a 4-byte boundary.
func WritePadding(buf *bytes.Buffer, dataLen uint32) error {
	if padding := Padding(dataLen); padding > 0 {
		var pad [3]byte
		if _, err := buf.Write(pad[:padding]); err != nil {
			return fmt.Errorf("write padding: %w", err)
		}
	}
	return nil
}

// EncodeUnionDiscriminant writes the uint32 discriminant of an XDR union.
// Used for msg_type, reply_stat and accept_stat in RPC envelopes.
func EncodeUnionDiscriminant(buf *bytes.Buffer, disc uint32) error {
	return WriteUint32(buf, disc)
}

// Marshal encodes v into a fresh byte slice.
func Marshal(v Encoder) ([]byte, error) {
	var buf bytes.Buffer
	if err := v.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
