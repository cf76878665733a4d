// Package vxi11 implements the client side of the VXI-11 core channel: a
// device-link session that is created, used for chunked writes and reads,
// and destroyed.
//
// Connect resolves the core channel port through the port mapper, opens a
// dedicated connection to it and creates a link. A Session is not safe for
// concurrent use; it owns its connection and issues one call at a time.
//
//	s, err := vxi11.Connect(ctx, "192.168.1.50", vxi11.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	defer s.Close(ctx)
//	idn, err := s.Query(ctx, []byte("*IDN?\n"))
package vxi11

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/vxi11/internal/logger"
	core "github.com/marmos91/vxi11/internal/protocol/vxi11"
	"github.com/marmos91/vxi11/internal/telemetry"
	"github.com/marmos91/vxi11/pkg/metrics"
	"github.com/marmos91/vxi11/pkg/portmap"
	"github.com/marmos91/vxi11/pkg/rpc"
)

// State is the lifecycle state of a Session.
type State int

const (
	// StateUnlinked is a session without a link. Only CreateLink and Close
	// are allowed.
	StateUnlinked State = iota

	// StateLinked is a session holding a link.
	StateLinked

	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnlinked:
		return "unlinked"
	case StateLinked:
		return "linked"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrNotLinked is returned by device operations on a session that has
	// no link.
	ErrNotLinked = errors.New("vxi11: session has no link")

	// ErrAlreadyLinked is returned by CreateLink on a linked session.
	ErrAlreadyLinked = errors.New("vxi11: session already has a link")
)

// Link is the server-side state of a created link.
type Link struct {
	// ID identifies the link in every device call.
	ID int32

	// ClientID is chosen locally before create_link.
	ClientID int32

	// AbortPort is the abort channel port announced by the server. It is
	// validated but not used.
	AbortPort uint16

	// MaxRecvSize is the chunk size for writes and reads: the server's
	// max_recv_size clamped to Options.MaxRecvSize.
	MaxRecvSize uint32
}

// Session is a device-link session on the core channel.
type Session struct {
	rpc   *rpc.Client
	host  string
	opts  Options
	state State
	link  Link
	lc    *logger.LogContext
}

// Connect resolves the core channel of host through its port mapper,
// connects to it and creates a link. Any failure closes the connection.
func Connect(ctx context.Context, host string, opts Options) (*Session, error) {
	opts = opts.withDefaults()

	port, err := portmap.Resolve(ctx, host, core.Program, core.Version, portmap.TCP, opts.dialOptions())
	if err != nil {
		return nil, err
	}

	c, err := rpc.Dial(ctx, net.JoinHostPort(host, strconv.Itoa(int(port))), opts.dialOptions())
	if err != nil {
		return nil, err
	}

	s := NewSession(c, host, opts)
	if err := s.CreateLink(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return s, nil
}

// NewSession returns an unlinked session over a client connected to the
// core channel of host.
func NewSession(c *rpc.Client, host string, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		rpc:  c,
		host: host,
		opts: opts,
		lc:   logger.NewLogContext(host, opts.Device),
	}
}

// State returns the lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Link returns the link fields. After a create_link that failed with a
// remote error they hold what the server returned.
func (s *Session) Link() Link {
	return s.link
}

// Host returns the instrument host.
func (s *Session) Host() string {
	return s.host
}

// Options returns the session options with defaults applied.
func (s *Session) Options() Options {
	return s.opts
}

// CreateLink issues create_link with a fresh client id.
//
// A nonzero error code in the reply fails with KindRemote; the session
// then stays unlinked but Link reports the fields the server sent. An abort
// port outside the 16-bit range fails with KindInvalidPort.
func (s *Session) CreateLink(ctx context.Context) (err error) {
	const op = "create_link"

	switch s.state {
	case StateClosed:
		return rpc.NewSessionClosedError(op)
	case StateLinked:
		return ErrAlreadyLinked
	}

	clientID := newClientID()
	ctx, span := s.startOp(ctx, op,
		telemetry.VXI11Device(s.opts.Device),
		telemetry.VXI11ClientID(clientID))
	defer span.End()

	start := time.Now()
	defer func() { s.finishOp(ctx, op, start, err) }()

	parms := &core.CreateLinkParms{
		ClientID:    clientID,
		LockDevice:  s.opts.LockDevice,
		LockTimeout: millis(s.opts.LockTimeout),
		Device:      s.opts.Device,
	}
	var resp core.CreateLinkResp
	if err := s.call(ctx, op, core.ProcCreateLink, parms, &resp); err != nil {
		return err
	}

	s.link = Link{
		ID:          resp.LinkID,
		ClientID:    clientID,
		MaxRecvSize: s.opts.clampRecvSize(resp.MaxRecvSize),
	}
	span.SetAttributes(
		telemetry.VXI11LinkID(resp.LinkID),
		telemetry.VXI11MaxRecvSize(s.link.MaxRecvSize))

	abortPort, err := portmap.ValidatePort(op, resp.AbortPort)
	if err != nil {
		return err
	}
	s.link.AbortPort = abortPort

	if resp.Error != core.ErrNone {
		return s.remoteError(ctx, op, resp.Error)
	}

	s.state = StateLinked
	s.lc = s.lc.WithLink(resp.LinkID, clientID)
	metrics.AddActiveLinks(s.opts.Metrics, 1)

	logger.DebugCtx(ctx, "Link created",
		logger.LinkID(resp.LinkID),
		logger.ClientID(clientID),
		logger.AbortPort(resp.AbortPort),
		logger.MaxRecvSize(resp.MaxRecvSize))

	return nil
}

// Write sends data as one message, split into chunks of at most
// Link().MaxRecvSize bytes. Only the last chunk carries the END flag. It
// returns the sum of the sizes acknowledged by the server.
//
// A remote error on any chunk stops the write; the bytes acknowledged so
// far are returned with it. Writing empty data issues no call.
func (s *Session) Write(ctx context.Context, data []byte) (n int, err error) {
	const op = "device_write"

	if err := s.requireLink(op); err != nil {
		return 0, err
	}

	ctx, span := s.startOp(ctx, op, telemetry.VXI11Bytes(len(data)))
	defer span.End()

	start := time.Now()
	chunks := 0
	defer func() {
		span.SetAttributes(telemetry.VXI11Chunks(chunks))
		metrics.RecordChunks(s.opts.Metrics, op, chunks)
		metrics.RecordBytes(s.opts.Metrics, "write", n)
		s.finishOp(ctx, op, start, err)
	}()

	chunkSize := int(s.link.MaxRecvSize)
	for offset := 0; offset < len(data); offset += chunkSize {
		end := min(offset+chunkSize, len(data))

		flags := s.opts.waitFlags()
		if end == len(data) {
			flags |= core.FlagEnd
		}

		parms := &core.DeviceWriteParms{
			LinkID:      s.link.ID,
			IOTimeout:   millis(s.opts.IOTimeout),
			LockTimeout: millis(s.opts.LockTimeout),
			Flags:       flags,
			Data:        data[offset:end],
		}
		var resp core.DeviceWriteResp
		if err := s.call(ctx, op, core.ProcDeviceWrite, parms, &resp); err != nil {
			return n, err
		}
		chunks++

		if resp.Error != core.ErrNone {
			return n, s.remoteError(ctx, op, resp.Error)
		}
		n += int(resp.Size)

		logger.DebugCtx(ctx, "Chunk written",
			logger.Chunk(chunks),
			logger.Bytes(end-offset),
			logger.Flags(flags))
	}

	return n, nil
}

// Read reads one message. It issues device_read calls requesting up to
// Link().MaxRecvSize bytes each and accumulates their data until a reply
// reason carries END or, when Options.UseTermChar is set, the termination
// character.
//
// With Options.MaxReadSize set, accumulating more bytes than that fails
// with KindReadLimitExceeded.
func (s *Session) Read(ctx context.Context) (data []byte, err error) {
	const op = "device_read"

	if err := s.requireLink(op); err != nil {
		return nil, err
	}

	ctx, span := s.startOp(ctx, op)
	defer span.End()

	start := time.Now()
	chunks := 0
	defer func() {
		span.SetAttributes(telemetry.VXI11Chunks(chunks), telemetry.VXI11Bytes(len(data)))
		metrics.RecordChunks(s.opts.Metrics, op, chunks)
		metrics.RecordBytes(s.opts.Metrics, "read", len(data))
		s.finishOp(ctx, op, start, err)
	}()

	flags := s.opts.waitFlags()
	if s.opts.UseTermChar {
		flags |= core.FlagTermChrSet
	}

	parms := &core.DeviceReadParms{
		LinkID:      s.link.ID,
		RequestSize: s.link.MaxRecvSize,
		IOTimeout:   millis(s.opts.IOTimeout),
		LockTimeout: millis(s.opts.LockTimeout),
		Flags:       flags,
		TermChar:    uint32(s.opts.TermChar),
	}

	for {
		results, err := s.invoke(ctx, op, core.ProcDeviceRead, parms)
		if err != nil {
			return data, err
		}
		resp, err := core.DecodeReadResp(results)
		if err != nil {
			return data, rpc.NewCodecError(op, err)
		}
		chunks++

		if resp.Error != core.ErrNone {
			return data, s.remoteError(ctx, op, resp.Error)
		}

		data = append(data, resp.Data...)
		if s.opts.MaxReadSize > 0 && len(data) > s.opts.MaxReadSize {
			return data, rpc.NewReadLimitExceededError(op, s.opts.MaxReadSize)
		}

		logger.DebugCtx(ctx, "Chunk read",
			logger.Chunk(chunks),
			logger.Bytes(len(resp.Data)),
			logger.Reason(resp.Reason))

		if resp.Reason&core.ReasonDone != 0 {
			span.SetAttributes(telemetry.VXI11Reason(resp.Reason))
			return data, nil
		}
	}
}

// Query writes cmd and reads the answer.
func (s *Session) Query(ctx context.Context, cmd []byte) ([]byte, error) {
	if _, err := s.Write(ctx, cmd); err != nil {
		return nil, err
	}
	return s.Read(ctx)
}

// ReadSTB returns the device status byte.
func (s *Session) ReadSTB(ctx context.Context) (stb byte, err error) {
	const op = "device_readstb"

	if err := s.requireLink(op); err != nil {
		return 0, err
	}

	ctx, span := s.startOp(ctx, op)
	defer span.End()

	start := time.Now()
	defer func() { s.finishOp(ctx, op, start, err) }()

	var resp core.DeviceReadStbResp
	if err := s.call(ctx, op, core.ProcDeviceReadSTB, s.genericParms(), &resp); err != nil {
		return 0, err
	}
	if resp.Error != core.ErrNone {
		return 0, s.remoteError(ctx, op, resp.Error)
	}
	return byte(resp.STB), nil
}

// Trigger sends a group execute trigger to the device.
func (s *Session) Trigger(ctx context.Context) error {
	return s.generic(ctx, "device_trigger", core.ProcDeviceTrigger)
}

// Clear sends a device clear.
func (s *Session) Clear(ctx context.Context) error {
	return s.generic(ctx, "device_clear", core.ProcDeviceClear)
}

// Remote places the device in remote state.
func (s *Session) Remote(ctx context.Context) error {
	return s.generic(ctx, "device_remote", core.ProcDeviceRemote)
}

// Local places the device in local state.
func (s *Session) Local(ctx context.Context) error {
	return s.generic(ctx, "device_local", core.ProcDeviceLocal)
}

// Lock acquires the device lock, waiting up to Options.LockTimeout when it
// is held by another link.
func (s *Session) Lock(ctx context.Context) error {
	parms := &core.DeviceLockParms{
		LinkID:      s.link.ID,
		Flags:       s.opts.waitFlags(),
		LockTimeout: millis(s.opts.LockTimeout),
	}
	return s.simple(ctx, "device_lock", core.ProcDeviceLock, parms)
}

// Unlock releases the device lock.
func (s *Session) Unlock(ctx context.Context) error {
	return s.simple(ctx, "device_unlock", core.ProcDeviceUnlock, &core.DeviceLink{LinkID: s.link.ID})
}

// Close destroys the link, if any, and closes the connection.
//
// The session is consumed whether or not destroy_link succeeds: every
// later operation fails with KindSessionClosed and a second Close returns
// nil.
func (s *Session) Close(ctx context.Context) (err error) {
	const op = "destroy_link"

	switch s.state {
	case StateClosed:
		return nil
	case StateUnlinked:
		s.state = StateClosed
		return s.rpc.Close()
	}

	ctx, span := s.startOp(ctx, op)
	defer span.End()

	start := time.Now()
	defer func() { s.finishOp(ctx, op, start, err) }()

	var resp core.DeviceError
	err = s.call(ctx, op, core.ProcDestroyLink, &core.DeviceLink{LinkID: s.link.ID}, &resp)
	if err == nil && resp.Error != core.ErrNone {
		err = s.remoteError(ctx, op, resp.Error)
	}

	s.release()
	if closeErr := s.rpc.Close(); err == nil {
		err = closeErr
	}

	if err == nil {
		logger.DebugCtx(ctx, "Link destroyed", logger.LinkID(s.link.ID))
	}
	return err
}

// ============================================================================
// Helpers
// ============================================================================

func (s *Session) genericParms() *core.DeviceGenericParms {
	return &core.DeviceGenericParms{
		LinkID:      s.link.ID,
		Flags:       s.opts.waitFlags(),
		LockTimeout: millis(s.opts.LockTimeout),
		IOTimeout:   millis(s.opts.IOTimeout),
	}
}

// generic runs a procedure taking Device_GenericParms.
func (s *Session) generic(ctx context.Context, op string, proc uint32) error {
	return s.simple(ctx, op, proc, s.genericParms())
}

// simple runs a procedure whose result is a bare Device_Error.
func (s *Session) simple(ctx context.Context, op string, proc uint32, parms any) (err error) {
	if err := s.requireLink(op); err != nil {
		return err
	}

	ctx, span := s.startOp(ctx, op)
	defer span.End()

	start := time.Now()
	defer func() { s.finishOp(ctx, op, start, err) }()

	var resp core.DeviceError
	if err := s.call(ctx, op, proc, parms, &resp); err != nil {
		return err
	}
	if resp.Error != core.ErrNone {
		return s.remoteError(ctx, op, resp.Error)
	}
	return nil
}

func (s *Session) requireLink(op string) error {
	switch s.state {
	case StateClosed:
		return rpc.NewSessionClosedError(op)
	case StateUnlinked:
		return ErrNotLinked
	}
	return nil
}

// startOp opens the span of a session operation and attaches the session's
// log context to ctx.
func (s *Session) startOp(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx = logger.WithContext(ctx, s.lc.WithOperation(op))
	attrs = append(attrs, telemetry.ServerAddr(s.host))
	if s.state == StateLinked {
		attrs = append(attrs, telemetry.VXI11LinkID(s.link.ID))
	}
	ctx, span := telemetry.StartVXI11Span(ctx, op, attrs...)
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).WithTrace(traceID, telemetry.SpanID(ctx)))
	}
	return ctx, span
}

func (s *Session) finishOp(ctx context.Context, op string, start time.Time, err error) {
	metrics.ObserveOperation(s.opts.Metrics, op, time.Since(start), rpc.StatusLabel(err))
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
}

// invoke encodes parms and performs the call. A fatal error closes the
// session.
func (s *Session) invoke(ctx context.Context, op string, proc uint32, parms any) ([]byte, error) {
	args, err := core.Encode(parms)
	if err != nil {
		return nil, rpc.NewCodecError(op, err)
	}

	results, err := s.rpc.Call(ctx, core.Program, core.Version, proc, args)
	if err != nil {
		if rpc.IsFatal(err) {
			logger.WarnCtx(ctx, "Connection lost, closing session", logger.Err(err))
			s.release()
			_ = s.rpc.Close()
		}
		return nil, err
	}
	return results, nil
}

// call is invoke followed by decoding the results into resp.
func (s *Session) call(ctx context.Context, op string, proc uint32, parms, resp any) error {
	results, err := s.invoke(ctx, op, proc, parms)
	if err != nil {
		return err
	}
	if err := core.Decode(results, resp); err != nil {
		return rpc.NewCodecError(op, err)
	}
	return nil
}

func (s *Session) remoteError(ctx context.Context, op string, code uint32) error {
	err := rpc.NewRemoteError(op, code, core.ErrorName(code))
	metrics.RecordRemoteError(s.opts.Metrics, op, code)
	telemetry.SetAttributes(ctx, telemetry.VXI11ErrorCode(code))
	logger.WarnCtx(ctx, "Device returned an error", logger.ErrorCode(code), logger.Err(err))
	return err
}

// release moves the session to StateClosed.
func (s *Session) release() {
	if s.state == StateLinked {
		metrics.AddActiveLinks(s.opts.Metrics, -1)
	}
	s.state = StateClosed
}

// newClientID returns a random positive client id.
func newClientID() int32 {
	id := uuid.New()
	v := int32(binary.BigEndian.Uint32(id[:4]) & 0x7fffffff)
	if v == 0 {
		return 1
	}
	return v
}
