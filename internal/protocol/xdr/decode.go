package xdr

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ============================================================================
// XDR Decoding Helpers - Wire Format → Go Types
// ============================================================================

// DefaultMaxOpaqueLength bounds variable-length items decoded by a Decoder
// unless overridden with SetMaxOpaqueLength. A malicious length field must
// not trigger an unbounded allocation.
const DefaultMaxOpaqueLength = 16 * 1024 * 1024 // 16 MiB

// Decoder reads XDR items sequentially from an in-memory buffer and tracks
// the current offset so that failures can be reported precisely.
//
// All decode failures are returned as *DecodeError.
type Decoder struct {
	data      []byte
	off       int
	maxOpaque uint32
}

// NewDecoder returns a Decoder positioned at the start of data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data, maxOpaque: DefaultMaxOpaqueLength}
}

// SetMaxOpaqueLength overrides the maximum accepted opaque/string length.
func (d *Decoder) SetMaxOpaqueLength(n uint32) {
	d.maxOpaque = n
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.off
}

// Remaining returns the unread tail of the buffer without consuming it.
func (d *Decoder) Remaining() []byte {
	return d.data[d.off:]
}

// Len returns the number of unread bytes.
func (d *Decoder) Len() int {
	return len(d.data) - d.off
}

func (d *Decoder) fail(field string, err error) error {
	return &DecodeError{Offset: d.off, Field: field, Err: err}
}

func (d *Decoder) take(field string, n int) ([]byte, error) {
	if d.Len() < n {
		return nil, d.fail(field, fmt.Errorf("need %d bytes, have %d: %w", n, d.Len(), io.ErrUnexpectedEOF))
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b, nil
}

// Uint32 decodes a 32-bit unsigned integer (RFC 4506 Section 4.2).
func (d *Decoder) Uint32() (uint32, error) {
	b, err := d.take("uint32", 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Int32 decodes a 32-bit signed integer (RFC 4506 Section 4.1).
func (d *Decoder) Int32() (int32, error) {
	b, err := d.take("int32", 4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// Bool decodes an XDR boolean. Any non-zero value is true.
func (d *Decoder) Bool() (bool, error) {
	b, err := d.take("bool", 4)
	if err != nil {
		return false, err
	}
	return binary.BigEndian.Uint32(b) != 0, nil
}

// Opaque decodes variable-length opaque data and skips its padding.
//
// Per RFC 4506 Section 4.10:
// Format: [length:uint32][data:length bytes][padding:0-3 bytes]
//
// The returned slice aliases the decoder's buffer.
func (d *Decoder) Opaque() ([]byte, error) {
	start := d.off
	lb, err := d.take("opaque length", 4)
	if err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lb)
	if length > d.maxOpaque {
		d.off = start
		return nil, d.fail("opaque length", fmt.Errorf("length %d exceeds maximum %d", length, d.maxOpaque))
	}

	data, err := d.take("opaque data", int(length))
	if err != nil {
		return nil, err
	}
	if _, err := d.take("opaque padding", int(Padding(length))); err != nil {
		return nil, err
	}
	return data, nil
}

// String decodes an XDR string (same encoding as opaque data).
func (d *Decoder) String() (string, error) {
	data, err := d.Opaque()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeUint32 decodes a single uint32 from the start of data.
// It is a shorthand for procedures whose whole result is one integer, such
// as portmap GETPORT.
func DecodeUint32(data []byte) (uint32, error) {
	return NewDecoder(data).Uint32()
}
