package rpc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/marmos91/vxi11/internal/protocol/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Record Marking
// ============================================================================

func TestRecordRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x01},
		[]byte("*IDN?\n"),
		bytes.Repeat([]byte{0xAB}, 70000),
	}

	for _, p := range payloads {
		var stream bytes.Buffer
		require.NoError(t, WriteRecord(&stream, p))

		hdr := binary.BigEndian.Uint32(stream.Bytes()[:4])
		assert.NotZero(t, hdr&LastFragmentFlag, "single fragment must carry last bit")
		assert.Equal(t, uint32(len(p)), hdr&FragmentLengthMask)

		got, err := ReadRecord(&stream, 0)
		require.NoError(t, err)
		assert.Equal(t, p, got)
		assert.Zero(t, stream.Len())
	}
}

func TestReadRecordMultiFragment(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(EncodeFragment([]byte("abc"), false))
	stream.Write(EncodeFragment([]byte("defg"), false))
	stream.Write(EncodeFragment([]byte("hi"), true))
	// Next record must stay untouched.
	stream.Write(EncodeFragment([]byte("next"), true))

	got, err := ReadRecord(&stream, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdefghi"), got)

	rest := stream.Bytes()
	assert.Equal(t, EncodeFragment([]byte("next"), true), rest)

	got, err = ReadRecord(&stream, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("next"), got)
}

func TestReadRecordErrors(t *testing.T) {
	t.Run("CleanEOF", func(t *testing.T) {
		_, err := ReadRecord(bytes.NewReader(nil), 0)
		require.Error(t, err)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("ShortBody", func(t *testing.T) {
		hdr := FragmentHeader(10, true)
		stream := append(hdr[:], []byte("short")...)

		_, err := ReadRecord(bytes.NewReader(stream), 0)
		require.Error(t, err)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("StreamEndsBeforeLastFragment", func(t *testing.T) {
		stream := EncodeFragment([]byte("part"), false)

		_, err := ReadRecord(bytes.NewReader(stream), 0)
		require.Error(t, err)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("TruncatedHeader", func(t *testing.T) {
		_, err := ReadRecord(bytes.NewReader([]byte{0x80, 0x00}), 0)
		require.Error(t, err)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("RecordTooLarge", func(t *testing.T) {
		hdr := FragmentHeader(FragmentLengthMask, true)

		_, err := ReadRecord(bytes.NewReader(hdr[:]), 1024)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRecordTooLarge)
	})

	t.Run("RecordTooLargeAcrossFragments", func(t *testing.T) {
		var stream bytes.Buffer
		stream.Write(EncodeFragment(make([]byte, 8), false))
		stream.Write(EncodeFragment(make([]byte, 8), true))

		_, err := ReadRecord(&stream, 12)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRecordTooLarge)
	})
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestWriteRecordPropagatesWriteError(t *testing.T) {
	err := WriteRecord(failingWriter{}, []byte("data"))
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

// ============================================================================
// Envelope
// ============================================================================

func TestEncodeCallParse(t *testing.T) {
	args := []byte{0, 0, 0, 7}
	data, err := EncodeCall(3, 0x0607AF, 1, 11, args)
	require.NoError(t, err)
	assert.Len(t, data, 44)

	msg, err := ParseMessage(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), msg.XID)
	assert.Equal(t, RPCCall, msg.Type)
	require.NotNil(t, msg.Call)
	assert.Nil(t, msg.Reply)
	assert.Equal(t, uint32(RPCVersion), msg.Call.RPCVersion)
	assert.Equal(t, uint32(0x0607AF), msg.Call.Program)
	assert.Equal(t, uint32(1), msg.Call.Version)
	assert.Equal(t, uint32(11), msg.Call.Procedure)
	assert.Equal(t, AuthNone, msg.Call.Cred.Flavor)
	assert.Empty(t, msg.Call.Cred.Body)
	assert.Equal(t, AuthNone, msg.Call.Verf.Flavor)
	assert.Equal(t, args, msg.Call.Args)
}

func TestParseReply(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		data, err := EncodeAcceptedReply(9, RPCSuccess, []byte{0, 0, 0x04, 0x01})
		require.NoError(t, err)

		msg, err := ParseMessage(data)
		require.NoError(t, err)
		require.NotNil(t, msg.Reply)
		assert.Equal(t, uint32(9), msg.XID)
		assert.True(t, msg.Reply.Succeeded())
		assert.Equal(t, []byte{0, 0, 0x04, 0x01}, msg.Reply.Results)
	})

	t.Run("ProcUnavail", func(t *testing.T) {
		data, err := EncodeAcceptedReply(1, RPCProcUnavail, nil)
		require.NoError(t, err)

		msg, err := ParseMessage(data)
		require.NoError(t, err)
		assert.True(t, msg.Reply.Accepted())
		assert.False(t, msg.Reply.Succeeded())
		assert.Equal(t, RPCProcUnavail, msg.Reply.AcceptStat)
	})

	t.Run("ProgMismatch", func(t *testing.T) {
		var buf bytes.Buffer
		data, err := EncodeAcceptedReply(1, RPCProgMismatch, nil)
		require.NoError(t, err)
		buf.Write(data)
		require.NoError(t, xdr.WriteUint32(&buf, 1))
		require.NoError(t, xdr.WriteUint32(&buf, 2))

		msg, err := ParseMessage(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, uint32(1), msg.Reply.MismatchLow)
		assert.Equal(t, uint32(2), msg.Reply.MismatchHigh)
	})

	t.Run("DeniedAuth", func(t *testing.T) {
		data, err := EncodeDeniedReply(4, RPCAuthError, 1)
		require.NoError(t, err)

		msg, err := ParseMessage(data)
		require.NoError(t, err)
		assert.False(t, msg.Reply.Accepted())
		assert.Equal(t, RPCAuthError, msg.Reply.RejectStat)
		assert.Equal(t, uint32(1), msg.Reply.AuthStat)
	})

	t.Run("DeniedMismatch", func(t *testing.T) {
		data, err := EncodeDeniedReply(4, RPCMismatch, 2)
		require.NoError(t, err)

		msg, err := ParseMessage(data)
		require.NoError(t, err)
		assert.Equal(t, RPCMismatch, msg.Reply.RejectStat)
		assert.Equal(t, uint32(2), msg.Reply.MismatchLow)
		assert.Equal(t, uint32(2), msg.Reply.MismatchHigh)
	})
}

func TestParseMessageErrors(t *testing.T) {
	t.Run("Truncated", func(t *testing.T) {
		_, err := ParseMessage([]byte{0, 0, 0, 1, 0, 0})
		require.Error(t, err)

		var decErr *xdr.DecodeError
		require.True(t, errors.As(err, &decErr))
		assert.Equal(t, 4, decErr.Offset)
	})

	t.Run("InvalidMessageType", func(t *testing.T) {
		_, err := ParseMessage([]byte{0, 0, 0, 1, 0, 0, 0, 7})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid msg_type 7")
	})

	t.Run("InvalidReplyStat", func(t *testing.T) {
		_, err := ParseMessage([]byte{0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 9})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid reply_stat 9")
	})

	t.Run("OversizedVerifier", func(t *testing.T) {
		var buf bytes.Buffer
		for _, v := range []uint32{1, RPCReply, RPCMsgAccepted, AuthNone, 401} {
			require.NoError(t, xdr.WriteUint32(&buf, v))
		}

		_, err := ParseMessage(buf.Bytes())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds maximum")
	})
}
