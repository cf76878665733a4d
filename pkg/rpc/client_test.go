package rpc

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	oncrpc "github.com/marmos91/vxi11/internal/protocol/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// responder returns the raw records to send back for one decoded call.
type responder func(call *oncrpc.Message) [][]byte

// servePeer plays the server side of conn: for every call it reads it writes
// the records produced by respond. The returned channel yields the first
// error other than EOF, then closes.
func servePeer(conn net.Conn, respond responder) <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for {
			record, err := oncrpc.ReadRecord(conn, 0)
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
					errc <- err
				}
				return
			}
			call, err := oncrpc.ParseMessage(record)
			if err != nil {
				errc <- err
				return
			}
			for _, out := range respond(call) {
				if _, err := conn.Write(out); err != nil {
					return
				}
			}
		}
	}()
	return errc
}

func newPipeClient(t *testing.T, transport string) (*Client, net.Conn) {
	t.Helper()

	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
	})

	tr, err := NewTransport(transport, clientConn, DefaultMaxRecordSize)
	require.NoError(t, err)
	return NewClient(tr, nil), serverConn
}

func acceptedRecord(t *testing.T, xid uint32, results []byte) []byte {
	t.Helper()
	msg, err := oncrpc.EncodeAcceptedReply(xid, oncrpc.RPCSuccess, results)
	require.NoError(t, err)
	return oncrpc.EncodeFragment(msg, true)
}

func echoResponder(t *testing.T) responder {
	return func(call *oncrpc.Message) [][]byte {
		return [][]byte{acceptedRecord(t, call.XID, call.Call.Args)}
	}
}

func TestClientCall(t *testing.T) {
	for _, name := range []string{TransportTCP, TransportTCPBuffered} {
		t.Run(name, func(t *testing.T) {
			client, server := newPipeClient(t, name)
			servePeer(server, echoResponder(t))

			assert.Equal(t, uint32(0), client.XID())

			results, err := client.Call(context.Background(), 100000, 2, 3, []byte{0, 0, 0, 7})
			require.NoError(t, err)
			assert.Equal(t, []byte{0, 0, 0, 7}, results)
			assert.Equal(t, uint32(1), client.XID())

			results, err = client.Call(context.Background(), 100000, 2, 0, nil)
			require.NoError(t, err)
			assert.Empty(t, results)
			assert.Equal(t, uint32(2), client.XID())
		})
	}
}

func TestClientCallEnvelope(t *testing.T) {
	client, server := newPipeClient(t, TransportTCP)

	calls := make(chan *oncrpc.Message, 1)
	servePeer(server, func(call *oncrpc.Message) [][]byte {
		calls <- call
		return [][]byte{acceptedRecord(t, call.XID, nil)}
	})

	_, err := client.Call(context.Background(), 0x0607AF, 1, 10, []byte{1, 2, 3, 4})
	require.NoError(t, err)

	call := <-calls
	assert.Equal(t, uint32(1), call.XID)
	assert.Equal(t, oncrpc.RPCCall, call.Type)
	assert.Equal(t, uint32(2), call.Call.RPCVersion)
	assert.Equal(t, uint32(0x0607AF), call.Call.Program)
	assert.Equal(t, uint32(1), call.Call.Version)
	assert.Equal(t, uint32(10), call.Call.Procedure)
	assert.Equal(t, uint32(oncrpc.AuthNone), call.Call.Cred.Flavor)
	assert.Empty(t, call.Call.Cred.Body)
	assert.Equal(t, uint32(oncrpc.AuthNone), call.Call.Verf.Flavor)
	assert.Equal(t, []byte{1, 2, 3, 4}, call.Call.Args)
}

func TestClientDiscardsStaleReplies(t *testing.T) {
	client, server := newPipeClient(t, TransportTCP)

	// The second call is answered by a duplicate of the first reply followed
	// by its own.
	servePeer(server, func(call *oncrpc.Message) [][]byte {
		if call.XID == 2 {
			return [][]byte{
				acceptedRecord(t, 1, []byte{0, 0, 0, 1}),
				acceptedRecord(t, 2, []byte{0, 0, 0, 2}),
			}
		}
		return [][]byte{acceptedRecord(t, call.XID, []byte{0, 0, 0, byte(call.XID)})}
	})

	for want := uint32(1); want <= 3; want++ {
		results, err := client.Call(context.Background(), 100000, 2, 0, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 0, 0, byte(want)}, results)
		assert.Equal(t, want, client.XID())
	}
}

func TestClientFutureXIDIsFatal(t *testing.T) {
	client, server := newPipeClient(t, TransportTCP)
	client.xid = 4

	servePeer(server, func(call *oncrpc.Message) [][]byte {
		return [][]byte{acceptedRecord(t, call.XID+1, nil)}
	})

	_, err := client.Call(context.Background(), 100000, 2, 0, nil)
	require.Error(t, err)
	assert.True(t, IsXIDMismatchError(err))
	assert.True(t, IsFatal(err))

	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, uint32(5), rpcErr.Expected)
	assert.Equal(t, uint32(6), rpcErr.Actual)
}

func TestClientCallMessageInsteadOfReply(t *testing.T) {
	client, server := newPipeClient(t, TransportTCP)

	servePeer(server, func(call *oncrpc.Message) [][]byte {
		msg, err := oncrpc.EncodeCall(call.XID, 1, 1, 1, nil)
		require.NoError(t, err)
		return [][]byte{oncrpc.EncodeFragment(msg, true)}
	})

	_, err := client.Call(context.Background(), 100000, 2, 0, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrongMessageType)
}

func TestClientReplyErrors(t *testing.T) {
	tests := []struct {
		name     string
		reply    func(xid uint32) ([]byte, error)
		sentinel error
		code     uint32
	}{
		{
			name: "auth error is denied",
			reply: func(xid uint32) ([]byte, error) {
				return oncrpc.EncodeDeniedReply(xid, oncrpc.RPCAuthError, 1)
			},
			sentinel: ErrRPCDenied,
			code:     oncrpc.RPCAuthError,
		},
		{
			name: "rpc version mismatch is denied",
			reply: func(xid uint32) ([]byte, error) {
				return oncrpc.EncodeDeniedReply(xid, oncrpc.RPCMismatch, 2)
			},
			sentinel: ErrRPCDenied,
			code:     oncrpc.RPCMismatch,
		},
		{
			name: "procedure unavailable is rejected",
			reply: func(xid uint32) ([]byte, error) {
				return oncrpc.EncodeAcceptedReply(xid, oncrpc.RPCProcUnavail, nil)
			},
			sentinel: ErrRPCRejected,
			code:     oncrpc.RPCProcUnavail,
		},
		{
			name: "program unavailable is rejected",
			reply: func(xid uint32) ([]byte, error) {
				return oncrpc.EncodeAcceptedReply(xid, oncrpc.RPCProgUnavail, nil)
			},
			sentinel: ErrRPCRejected,
			code:     oncrpc.RPCProgUnavail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := newPipeClient(t, TransportTCP)

			servePeer(server, func(call *oncrpc.Message) [][]byte {
				if call.XID == 2 {
					return [][]byte{acceptedRecord(t, call.XID, []byte{0, 0, 0, 9})}
				}
				msg, err := tt.reply(call.XID)
				require.NoError(t, err)
				return [][]byte{oncrpc.EncodeFragment(msg, true)}
			})

			_, err := client.Call(context.Background(), 100000, 2, 3, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.ErrorIs(t, err, &Error{Kind: KindOf(tt.sentinel), Code: tt.code})
			assert.False(t, IsFatal(err))
			assert.Equal(t, uint32(1), client.XID())

			// The failed call consumed xid 1; the connection is still usable.
			results, err := client.Call(context.Background(), 100000, 2, 3, nil)
			require.NoError(t, err)
			assert.Equal(t, []byte{0, 0, 0, 9}, results)
			assert.Equal(t, uint32(2), client.XID())
		})
	}
}

func TestClientFragmentedReply(t *testing.T) {
	client, server := newPipeClient(t, TransportTCPBuffered)

	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i)
	}

	servePeer(server, func(call *oncrpc.Message) [][]byte {
		msg, err := oncrpc.EncodeAcceptedReply(call.XID, oncrpc.RPCSuccess, payload)
		require.NoError(t, err)
		return [][]byte{
			oncrpc.EncodeFragment(msg[:10], false),
			oncrpc.EncodeFragment(msg[10:500], false),
			oncrpc.EncodeFragment(msg[500:], true),
		}
	})

	results, err := client.Call(context.Background(), 100000, 2, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, results)
}

func TestClientTransportErrors(t *testing.T) {
	t.Run("peer closes before replying", func(t *testing.T) {
		client, server := newPipeClient(t, TransportTCP)

		go func() {
			_, _ = oncrpc.ReadRecord(server, 0)
			_ = server.Close()
		}()

		_, err := client.Call(context.Background(), 100000, 2, 0, nil)
		require.Error(t, err)
		assert.True(t, IsTransportError(err))
		assert.True(t, IsFatal(err))
		assert.Equal(t, uint32(1), client.XID())
	})

	t.Run("malformed reply is a codec error", func(t *testing.T) {
		client, server := newPipeClient(t, TransportTCP)

		servePeer(server, func(call *oncrpc.Message) [][]byte {
			return [][]byte{oncrpc.EncodeFragment([]byte{0, 0, 0, 1}, true)}
		})

		_, err := client.Call(context.Background(), 100000, 2, 0, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCodec)
	})

	t.Run("oversized reply is a framing error", func(t *testing.T) {
		clientConn, server := net.Pipe()
		t.Cleanup(func() {
			_ = clientConn.Close()
			_ = server.Close()
		})
		tr, err := NewTransport(TransportTCP, clientConn, 64)
		require.NoError(t, err)
		client := NewClient(tr, nil)

		servePeer(server, func(call *oncrpc.Message) [][]byte {
			return [][]byte{acceptedRecord(t, call.XID, make([]byte, 128))}
		})

		_, err = client.Call(context.Background(), 100000, 2, 0, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrFraming)
	})
}

func TestClientContextCancellation(t *testing.T) {
	client, server := newPipeClient(t, TransportTCP)

	// Read the call and never answer.
	go func() {
		_, _ = oncrpc.ReadRecord(server, 0)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := client.Call(ctx, 100000, 2, 0, nil)
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClientContextDeadline(t *testing.T) {
	client, server := newPipeClient(t, TransportTCP)

	go func() {
		_, _ = oncrpc.ReadRecord(server, 0)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Call(ctx, 100000, 2, 0, nil)
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientClose(t *testing.T) {
	client, _ := newPipeClient(t, TransportTCP)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err := client.Call(context.Background(), 100000, 2, 0, nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, uint32(0), client.XID())
}

func TestDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			servePeer(conn, echoResponder(t))
		}
	}()

	t.Run("buffered transport", func(t *testing.T) {
		client, err := Dial(context.Background(), ln.Addr().String(), DialOptions{Transport: TransportTCPBuffered})
		require.NoError(t, err)
		defer func() { _ = client.Close() }()

		assert.Equal(t, ln.Addr().String(), client.RemoteAddr().String())

		results, err := client.Call(context.Background(), 100000, 2, 3, []byte{0, 0, 0, 42})
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 0, 0, 42}, results)
	})

	t.Run("custom dialer", func(t *testing.T) {
		var dialed string
		opts := DialOptions{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				dialed = addr
				var d net.Dialer
				return d.DialContext(ctx, network, ln.Addr().String())
			},
		}
		client, err := Dial(context.Background(), "instrument.invalid:111", opts)
		require.NoError(t, err)
		defer func() { _ = client.Close() }()
		assert.Equal(t, "instrument.invalid:111", dialed)
	})

	t.Run("unknown transport", func(t *testing.T) {
		_, err := Dial(context.Background(), ln.Addr().String(), DialOptions{Transport: "carrier-pigeon"})
		require.Error(t, err)
		assert.True(t, IsTransportError(err))
	})

	t.Run("connection refused", func(t *testing.T) {
		closed, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := closed.Addr().String()
		require.NoError(t, closed.Close())

		_, err = Dial(context.Background(), addr, DialOptions{})
		require.Error(t, err)
		assert.True(t, IsTransportError(err))
	})
}
