package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

// ErrRecordTooLarge is returned by ReadRecord when the fragments of a record
// add up to more than the configured maximum.
var ErrRecordTooLarge = errors.New("record exceeds maximum size")

// ErrFragmentTooLarge is returned by WriteRecord when the payload cannot be
// described by a 31-bit fragment length.
var ErrFragmentTooLarge = errors.New("fragment exceeds 31-bit length")

// FragmentHeader builds the 4-byte record-marking header for a fragment.
func FragmentHeader(length uint32, last bool) [4]byte {
	var hdr [4]byte
	v := length & FragmentLengthMask
	if last {
		v |= LastFragmentFlag
	}
	binary.BigEndian.PutUint32(hdr[:], v)
	return hdr
}

// EncodeFragment returns header + body for a single fragment.
func EncodeFragment(body []byte, last bool) []byte {
	hdr := FragmentHeader(uint32(len(body)), last)
	out := make([]byte, 4+len(body))
	copy(out, hdr[:])
	copy(out[4:], body)
	return out
}

// WriteRecord writes data as one record made of a single fragment with the
// last-fragment bit set. Header and body are handed to the writer together
// (writev on a TCP connection).
func WriteRecord(w io.Writer, data []byte) error {
	if uint64(len(data)) > uint64(FragmentLengthMask) {
		return fmt.Errorf("%w: %d bytes", ErrFragmentTooLarge, len(data))
	}

	hdr := FragmentHeader(uint32(len(data)), true)
	bufs := net.Buffers{hdr[:], data}
	if _, err := bufs.WriteTo(w); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// ReadRecord reads one complete record from r: it reads fragment headers and
// exactly the declared number of body bytes for each, until a fragment with
// the last-fragment bit set has been consumed. Bytes following that fragment
// are left unread.
//
// maxRecordSize bounds the total record size (0 disables the check). A stream
// that ends cleanly before the first header yields io.EOF; a stream that ends
// anywhere else yields io.ErrUnexpectedEOF.
func ReadRecord(r io.Reader, maxRecordSize uint32) ([]byte, error) {
	var record []byte
	var hdr [4]byte

	for first := true; ; first = false {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) && !first {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("read fragment header: %w", err)
		}

		v := binary.BigEndian.Uint32(hdr[:])
		length := v & FragmentLengthMask

		if maxRecordSize > 0 && uint64(len(record))+uint64(length) > uint64(maxRecordSize) {
			return nil, fmt.Errorf("%w: fragment of %d bytes after %d bytes, limit %d",
				ErrRecordTooLarge, length, len(record), maxRecordSize)
		}

		start := len(record)
		record = append(record, make([]byte, length)...)
		if _, err := io.ReadFull(r, record[start:]); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("read fragment body (%d bytes): %w", length, err)
		}

		if v&LastFragmentFlag != 0 {
			break
		}
	}

	if record == nil {
		record = []byte{}
	}
	return record, nil
}
