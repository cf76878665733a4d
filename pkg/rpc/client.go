// Package rpc implements a synchronous ONC-RPC version 2 client over a
// record-marked byte stream.
//
// A Client owns one connection and issues one call at a time. Replies are
// matched by transaction id: replies to earlier calls are discarded, a reply
// from the future is fatal. Protocol failures returned by this package and by
// the packages built on it (pkg/portmap, pkg/vxi11) are *Error values.
package rpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/marmos91/vxi11/internal/logger"
	oncrpc "github.com/marmos91/vxi11/internal/protocol/rpc"
	"github.com/marmos91/vxi11/internal/telemetry"
	"github.com/marmos91/vxi11/pkg/metrics"
)

// DialFunc opens a stream connection. It has the signature of
// net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// DialOptions configures Dial.
type DialOptions struct {
	// Transport selects a registered transport variant. Empty means
	// DefaultTransport.
	Transport string

	// DialContext opens the connection. Nil means a zero net.Dialer.
	DialContext DialFunc

	// MaxRecordSize bounds a reassembled reply record. Zero means
	// DefaultMaxRecordSize.
	MaxRecordSize uint32

	// Metrics is optional; nil disables collection.
	Metrics metrics.RPCMetrics
}

// Client issues RPC calls over a single Transport.
//
// Client is not safe for concurrent use: the protocol it drives has exactly
// one outstanding call per connection.
type Client struct {
	transport Transport
	metrics   metrics.RPCMetrics

	// xid is the transaction id of the most recent call. It is incremented
	// before each call, so the first call carries xid 1.
	xid uint32

	closed bool
}

// Dial connects to addr ("host:port") over TCP and returns a Client with
// its transaction counter at zero.
func Dial(ctx context.Context, addr string, opts DialOptions) (*Client, error) {
	dial := opts.DialContext
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}

	maxRecordSize := opts.MaxRecordSize
	if maxRecordSize == 0 {
		maxRecordSize = DefaultMaxRecordSize
	}

	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		logger.DebugCtx(ctx, "RPC dial failed", logger.Addr(addr), logger.Err(err))
		return nil, NewTransportError("dial", err)
	}

	t, err := NewTransport(opts.Transport, conn, maxRecordSize)
	if err != nil {
		_ = conn.Close()
		return nil, NewTransportError("dial", err)
	}

	logger.DebugCtx(ctx, "RPC connection established",
		logger.Addr(conn.RemoteAddr().String()),
		logger.Transport(transportName(opts.Transport)))

	return NewClient(t, opts.Metrics), nil
}

// NewClient wraps an existing transport. The transaction counter starts at
// zero.
func NewClient(t Transport, m metrics.RPCMetrics) *Client {
	return &Client{transport: t, metrics: m}
}

// XID returns the transaction id of the most recent call, or 0 before the
// first call.
func (c *Client) XID() uint32 {
	return c.xid
}

// RemoteAddr returns the address of the server.
func (c *Client) RemoteAddr() net.Addr {
	return c.transport.RemoteAddr()
}

// Close closes the underlying connection. Further calls fail with
// KindSessionClosed.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.transport.Close(); err != nil {
		return NewTransportError("close", err)
	}
	return nil
}

// Call performs one remote procedure call and returns the undecoded result
// bytes of a successful reply.
//
// The call's transaction id is consumed whether or not the call succeeds.
// After an error for which IsFatal returns true the client must be closed.
func (c *Client) Call(ctx context.Context, prog, vers, proc uint32, args []byte) ([]byte, error) {
	if c.closed {
		return nil, NewSessionClosedError("call")
	}

	c.xid++
	xid := c.xid

	ctx, span := telemetry.StartRPCSpan(ctx, xid, prog, vers, proc, telemetry.RPCRequestSize(len(args)))
	defer span.End()

	start := time.Now()
	results, stale, err := c.roundTrip(ctx, xid, prog, vers, proc, args)
	metrics.ObserveCall(c.metrics, prog, proc, time.Since(start), StatusLabel(err))

	if stale > 0 {
		span.SetAttributes(telemetry.RPCStaleReplies(stale))
	}

	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.DebugCtx(ctx, "RPC call failed",
			logger.XID(xid),
			logger.Program(prog),
			logger.Version(vers),
			logger.Procedure(proc),
			logger.DurationMs(start),
			logger.Err(err))
		return nil, err
	}

	span.SetAttributes(telemetry.RPCResponseSize(len(results)))
	logger.DebugCtx(ctx, "RPC call completed",
		logger.XID(xid),
		logger.Program(prog),
		logger.Procedure(proc),
		logger.Bytes(len(results)),
		logger.DurationMs(start))

	return results, nil
}

// roundTrip sends one call and waits for its reply, returning the number of
// stale replies skipped along the way.
func (c *Client) roundTrip(ctx context.Context, xid, prog, vers, proc uint32, args []byte) ([]byte, int, error) {
	msg, err := oncrpc.EncodeCall(xid, prog, vers, proc, args)
	if err != nil {
		return nil, 0, NewCodecError("encode", err)
	}

	if err := c.transport.SendRecord(ctx, msg); err != nil {
		return nil, 0, err
	}
	metrics.RecordRecordBytes(c.metrics, "sent", len(msg))

	stale := 0
	for {
		record, err := c.transport.RecvRecord(ctx)
		if err != nil {
			return nil, stale, err
		}
		metrics.RecordRecordBytes(c.metrics, "received", len(record))

		reply, err := oncrpc.ParseMessage(record)
		if err != nil {
			return nil, stale, NewCodecError("decode", err)
		}

		switch {
		case reply.XID < xid:
			stale++
			metrics.RecordStaleReply(c.metrics, prog)
			telemetry.AddEvent(ctx, "rpc.stale_reply", telemetry.RPCXID(reply.XID))
			logger.DebugCtx(ctx, "Discarding stale RPC reply",
				logger.XID(reply.XID), logger.ExpectedXID(xid))
			continue
		case reply.XID > xid:
			logger.WarnCtx(ctx, "RPC reply from a later transaction",
				logger.XID(reply.XID), logger.ExpectedXID(xid))
			return nil, stale, NewXIDMismatchError(xid, reply.XID)
		}

		if reply.Type != oncrpc.RPCReply {
			return nil, stale, NewWrongMessageTypeError(reply.XID, reply.Type)
		}

		results, err := replyResults(reply.Reply)
		return results, stale, err
	}
}

// replyResults maps the reply status to an error or returns the results.
func replyResults(r *oncrpc.ReplyBody) ([]byte, error) {
	if !r.Accepted() {
		switch r.RejectStat {
		case oncrpc.RPCMismatch:
			return nil, NewRPCDeniedError(r.RejectStat,
				fmt.Sprintf("rpc version mismatch (supported %d-%d)", r.MismatchLow, r.MismatchHigh))
		default:
			return nil, NewRPCDeniedError(r.RejectStat,
				fmt.Sprintf("authentication error (auth_stat %d)", r.AuthStat))
		}
	}

	if r.AcceptStat != oncrpc.RPCSuccess {
		detail := oncrpc.AcceptStatName(r.AcceptStat)
		if r.AcceptStat == oncrpc.RPCProgMismatch {
			detail = fmt.Sprintf("%s (supported %d-%d)", detail, r.MismatchLow, r.MismatchHigh)
		}
		return nil, NewRPCRejectedError(r.AcceptStat, detail)
	}

	return r.Results, nil
}

func transportName(name string) string {
	if name == "" {
		return DefaultTransport
	}
	return name
}
