package portmap

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/marmos91/vxi11/internal/protocol/xdr"
)

// Mapping is a port mapper registration.
//
// Wire format (RFC 1057):
//
//	prog: uint32 - RPC program number
//	vers: uint32 - RPC program version
//	prot: uint32 - Protocol (6=TCP, 17=UDP)
//	port: uint32 - Port number
type Mapping struct {
	Prog uint32
	Vers uint32
	Prot uint32
	Port uint32
}

// MappingSize is the XDR-encoded size of a mapping (4 x uint32 = 16 bytes).
const MappingSize = 16

// maxDumpEntries bounds the length of a decoded DUMP list.
const maxDumpEntries = 4096

// EncodeMapping encodes a mapping to 16 bytes of XDR. It is the argument of
// SET, UNSET and GETPORT.
//
// Wire format: [prog:uint32][vers:uint32][prot:uint32][port:uint32]
func EncodeMapping(m *Mapping) []byte {
	buf := make([]byte, MappingSize)
	binary.BigEndian.PutUint32(buf[0:4], m.Prog)
	binary.BigEndian.PutUint32(buf[4:8], m.Vers)
	binary.BigEndian.PutUint32(buf[8:12], m.Prot)
	binary.BigEndian.PutUint32(buf[12:16], m.Port)
	return buf
}

// DecodeMapping decodes a mapping. Trailing bytes are ignored.
func DecodeMapping(data []byte) (*Mapping, error) {
	if len(data) < MappingSize {
		return nil, fmt.Errorf("portmap mapping too short: got %d bytes, need %d", len(data), MappingSize)
	}

	return &Mapping{
		Prog: binary.BigEndian.Uint32(data[0:4]),
		Vers: binary.BigEndian.Uint32(data[4:8]),
		Prot: binary.BigEndian.Uint32(data[8:12]),
		Port: binary.BigEndian.Uint32(data[12:16]),
	}, nil
}

// EncodeGetportResponse encodes a GETPORT result: a single uint32 port,
// 0 when the tuple is not registered.
func EncodeGetportResponse(port uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, port)
	return buf
}

// DecodeGetportResponse decodes a GETPORT result. The value is returned as
// sent; range checking is the caller's job.
func DecodeGetportResponse(data []byte) (uint32, error) {
	return xdr.DecodeUint32(data)
}

// EncodeDumpResponse encodes a DUMP result as an XDR optional-data list:
// each entry is preceded by uint32(1) and the list ends with uint32(0).
func EncodeDumpResponse(mappings []*Mapping) []byte {
	var buf bytes.Buffer
	buf.Grow(len(mappings)*(4+MappingSize) + 4)

	for _, m := range mappings {
		_ = xdr.WriteBool(&buf, true)
		buf.Write(EncodeMapping(m))
	}
	_ = xdr.WriteBool(&buf, false)

	return buf.Bytes()
}

// DecodeDumpResponse decodes a DUMP result.
func DecodeDumpResponse(data []byte) ([]*Mapping, error) {
	d := xdr.NewDecoder(data)

	var mappings []*Mapping
	for {
		follows, err := d.Bool()
		if err != nil {
			return nil, fmt.Errorf("read value_follows: %w", err)
		}
		if !follows {
			break
		}
		if len(mappings) == maxDumpEntries {
			return nil, fmt.Errorf("portmap dump exceeds %d entries", maxDumpEntries)
		}

		m := &Mapping{}
		for _, dst := range []*uint32{&m.Prog, &m.Vers, &m.Prot, &m.Port} {
			if *dst, err = d.Uint32(); err != nil {
				return nil, fmt.Errorf("read mapping %d: %w", len(mappings), err)
			}
		}
		mappings = append(mappings, m)
	}

	return mappings, nil
}
