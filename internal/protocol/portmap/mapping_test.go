package portmap

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapping(t *testing.T) {
	t.Run("encode layout", func(t *testing.T) {
		data := EncodeMapping(&Mapping{Prog: 0x0607AF, Vers: 1, Prot: ProtoTCP, Port: 0})
		require.Len(t, data, MappingSize)
		assert.Equal(t, uint32(0x0607AF), binary.BigEndian.Uint32(data[0:4]))
		assert.Equal(t, uint32(1), binary.BigEndian.Uint32(data[4:8]))
		assert.Equal(t, uint32(6), binary.BigEndian.Uint32(data[8:12]))
		assert.Equal(t, uint32(0), binary.BigEndian.Uint32(data[12:16]))
	})

	t.Run("decode", func(t *testing.T) {
		m, err := DecodeMapping(EncodeMapping(&Mapping{Prog: 100000, Vers: 2, Prot: ProtoUDP, Port: 111}))
		require.NoError(t, err)
		assert.Equal(t, &Mapping{Prog: 100000, Vers: 2, Prot: ProtoUDP, Port: 111}, m)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := DecodeMapping(make([]byte, 12))
		assert.Error(t, err)
		_, err = DecodeMapping(nil)
		assert.Error(t, err)
	})
}

func TestGetportResponse(t *testing.T) {
	port, err := DecodeGetportResponse(EncodeGetportResponse(1024))
	require.NoError(t, err)
	assert.Equal(t, uint32(1024), port)

	_, err = DecodeGetportResponse([]byte{0, 0})
	assert.Error(t, err)
}

func TestDumpResponse(t *testing.T) {
	t.Run("empty list is a single terminator", func(t *testing.T) {
		data := EncodeDumpResponse(nil)
		assert.Equal(t, []byte{0, 0, 0, 0}, data)

		mappings, err := DecodeDumpResponse(data)
		require.NoError(t, err)
		assert.Empty(t, mappings)
	})

	t.Run("entries keep their order", func(t *testing.T) {
		in := []*Mapping{
			{Prog: 100000, Vers: 2, Prot: ProtoTCP, Port: 111},
			{Prog: 100000, Vers: 2, Prot: ProtoUDP, Port: 111},
			{Prog: 0x0607AF, Vers: 1, Prot: ProtoTCP, Port: 1024},
		}
		data := EncodeDumpResponse(in)
		assert.Len(t, data, len(in)*(4+MappingSize)+4)

		out, err := DecodeDumpResponse(data)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("missing terminator", func(t *testing.T) {
		data := EncodeDumpResponse([]*Mapping{{Prog: 1, Vers: 1, Prot: ProtoTCP, Port: 1}})
		_, err := DecodeDumpResponse(data[:len(data)-4])
		assert.Error(t, err)
	})

	t.Run("truncated entry", func(t *testing.T) {
		data := EncodeDumpResponse([]*Mapping{{Prog: 1, Vers: 1, Prot: ProtoTCP, Port: 1}})
		_, err := DecodeDumpResponse(data[:10])
		assert.Error(t, err)
	})
}

func TestNames(t *testing.T) {
	assert.Equal(t, "GETPORT", ProcedureName(ProcGetport))
	assert.Equal(t, "UNKNOWN", ProcedureName(99))
	assert.Equal(t, "tcp", ProtocolName(ProtoTCP))
	assert.Equal(t, "udp", ProtocolName(ProtoUDP))
	assert.Equal(t, "proto-132", ProtocolName(132))
}
