package vxi11

import (
	"bytes"
	"fmt"

	"github.com/marmos91/vxi11/internal/protocol/xdr"
	xdr2 "github.com/rasky/go-xdr/xdr2"
)

// Encode marshals a request or response structure to XDR.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr2.Marshal(&buf, v); err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// Decode unmarshals XDR data into v, which must be a pointer to one of the
// structures of this package.
func Decode(data []byte, v any) error {
	if _, err := xdr2.Unmarshal(bytes.NewReader(data), v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return nil
}

// DecodeReadResp decodes a device_read result. The declared data length is
// checked against the payload before anything is allocated.
func DecodeReadResp(data []byte) (*DeviceReadResp, error) {
	if err := checkOpaqueLength(data, 8, "data"); err != nil {
		return nil, err
	}
	resp := &DeviceReadResp{}
	if err := Decode(data, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// DecodeWriteParms decodes a device_write argument, with the same length
// check as DecodeReadResp.
func DecodeWriteParms(data []byte) (*DeviceWriteParms, error) {
	if err := checkOpaqueLength(data, 16, "data"); err != nil {
		return nil, err
	}
	parms := &DeviceWriteParms{}
	if err := Decode(data, parms); err != nil {
		return nil, err
	}
	return parms, nil
}

// checkOpaqueLength verifies that the variable-length field whose length
// word sits at offset fits in data.
func checkOpaqueLength(data []byte, offset int, field string) error {
	if len(data) < offset+4 {
		return &xdr.DecodeError{Offset: len(data), Field: field, Err: fmt.Errorf("need %d bytes, have %d", offset+4, len(data))}
	}
	n, err := xdr.DecodeUint32(data[offset:])
	if err != nil {
		return err
	}
	if avail := len(data) - offset - 4; uint64(n) > uint64(avail) {
		return &xdr.DecodeError{Offset: offset, Field: field, Err: fmt.Errorf("declared length %d exceeds remaining %d bytes", n, avail)}
	}
	return nil
}
