package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	oncrpc "github.com/marmos91/vxi11/internal/protocol/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{NewTransportError("recv", io.ErrUnexpectedEOF), "recv: transport: unexpected EOF"},
		{NewXIDMismatchError(5, 6), "call: xid_mismatch: expected xid 5, got 6"},
		{NewRPCRejectedError(oncrpc.RPCProcUnavail, "PROC_UNAVAIL"), "call: rpc_rejected: PROC_UNAVAIL"},
		{NewInvalidPortError("getport", 70000), "getport: invalid_port: port 70000 out of range"},
		{NewRemoteError("device_write", 11, "device locked by another link"), "device_write: remote: device locked by another link"},
		{&Error{Kind: KindCodec}, "codec"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewRemoteError("device_read", 15, "timeout"))

	assert.ErrorIs(t, err, ErrRemote)
	assert.ErrorIs(t, err, &Error{Kind: KindRemote, Code: 15})
	assert.NotErrorIs(t, err, &Error{Kind: KindRemote, Code: 11})
	assert.NotErrorIs(t, err, ErrTransport)

	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, uint32(15), rpcErr.Code)
	assert.Equal(t, "device_read", rpcErr.Op)

	cause := errors.New("boom")
	assert.ErrorIs(t, NewCodecError("decode", cause), cause)
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "transport", KindTransport.String())
	assert.Equal(t, "read_limit_exceeded", KindReadLimitExceeded.String())
	assert.Equal(t, "unknown(99)", ErrorKind(99).String())
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "ok", StatusLabel(nil))
	assert.Equal(t, "xid_mismatch", StatusLabel(NewXIDMismatchError(1, 2)))
	assert.Equal(t, "error", StatusLabel(errors.New("plain")))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(NewTransportError("send", io.EOF)))
	assert.True(t, IsFatal(NewFramingError("recv", oncrpc.ErrRecordTooLarge)))
	assert.True(t, IsFatal(NewXIDMismatchError(1, 2)))
	assert.False(t, IsFatal(NewRemoteError("device_read", 4, "")))
	assert.False(t, IsFatal(NewRPCRejectedError(oncrpc.RPCProcUnavail, "")))
	assert.False(t, IsFatal(nil))
}

func TestTransportRegistry(t *testing.T) {
	assert.Equal(t, []string{TransportTCP, TransportTCPBuffered}, AvailableTransports())
	assert.True(t, HasTransport(TransportTCP))
	assert.False(t, HasTransport("udp"))

	RegisterTransport("test-loopback", newStreamTransport)
	t.Cleanup(func() {
		transportsMu.Lock()
		delete(transports, "test-loopback")
		transportsMu.Unlock()
	})
	assert.True(t, HasTransport("test-loopback"))

	a, b := net.Pipe()
	defer func() { _ = a.Close(); _ = b.Close() }()

	tr, err := NewTransport("", a, 0)
	require.NoError(t, err)
	assert.IsType(t, &streamTransport{}, tr)

	_, err = NewTransport("udp", a, 0)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	err := classify(ctx, "recv", fmt.Errorf("read: %w", oncrpc.ErrRecordTooLarge))
	assert.ErrorIs(t, err, ErrFraming)

	err = classify(ctx, "recv", io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = classify(cancelled, "send", io.ErrClosedPipe)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
}
