package rpc

import (
	"bufio"
	"context"
	"net"

	oncrpc "github.com/marmos91/vxi11/internal/protocol/rpc"
)

// streamTransport reads and writes records directly on the connection.
// Each record costs one writev on send and two reads per fragment on receive.
type streamTransport struct {
	conn          net.Conn
	maxRecordSize uint32
}

func newStreamTransport(conn net.Conn, maxRecordSize uint32) Transport {
	return &streamTransport{conn: conn, maxRecordSize: maxRecordSize}
}

func (t *streamTransport) SendRecord(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return NewTransportError("send", err)
	}
	release := bindContext(ctx, t.conn)
	defer release()

	if err := oncrpc.WriteRecord(t.conn, data); err != nil {
		return classify(ctx, "send", err)
	}
	return nil
}

func (t *streamTransport) RecvRecord(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewTransportError("recv", err)
	}
	release := bindContext(ctx, t.conn)
	defer release()

	record, err := oncrpc.ReadRecord(t.conn, t.maxRecordSize)
	if err != nil {
		return nil, classify(ctx, "recv", err)
	}
	return record, nil
}

func (t *streamTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

func (t *streamTransport) Close() error {
	return t.conn.Close()
}

// bufferedTransport buffers both directions. Replies split into many small
// fragments are read from the bufio.Reader without a syscall per header.
type bufferedTransport struct {
	conn          net.Conn
	r             *bufio.Reader
	w             *bufio.Writer
	maxRecordSize uint32
}

// bufferSize matches the largest fragment most VXI-11 servers emit.
const bufferSize = 64 * 1024

func newBufferedTransport(conn net.Conn, maxRecordSize uint32) Transport {
	return &bufferedTransport{
		conn:          conn,
		r:             bufio.NewReaderSize(conn, bufferSize),
		w:             bufio.NewWriterSize(conn, bufferSize),
		maxRecordSize: maxRecordSize,
	}
}

func (t *bufferedTransport) SendRecord(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return NewTransportError("send", err)
	}
	release := bindContext(ctx, t.conn)
	defer release()

	if err := oncrpc.WriteRecord(t.w, data); err != nil {
		return classify(ctx, "send", err)
	}
	if err := t.w.Flush(); err != nil {
		return classify(ctx, "send", err)
	}
	return nil
}

func (t *bufferedTransport) RecvRecord(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewTransportError("recv", err)
	}
	release := bindContext(ctx, t.conn)
	defer release()

	record, err := oncrpc.ReadRecord(t.r, t.maxRecordSize)
	if err != nil {
		return nil, classify(ctx, "recv", err)
	}
	return record, nil
}

func (t *bufferedTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

func (t *bufferedTransport) Close() error {
	return t.conn.Close()
}
