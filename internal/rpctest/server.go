// Package rpctest provides an in-process ONC-RPC server for tests, together
// with a fake port mapper and a fake VXI-11 instrument that run on it.
//
// A Server listens on a TCP port, reads record-marked calls, dispatches them
// to registered programs and records every call it receives, so tests can
// assert on exactly what went over the wire.
package rpctest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/marmos91/vxi11/internal/logger"
	oncrpc "github.com/marmos91/vxi11/internal/protocol/rpc"
	"github.com/marmos91/vxi11/internal/protocol/xdr"
)

// maxRecordSize bounds the calls the server accepts.
const maxRecordSize = 1 << 20

// Handler processes the XDR-encoded arguments of one procedure and returns
// the XDR-encoded results.
//
// Returning an *AcceptError answers with its accept_stat instead of SUCCESS;
// any other error answers SYSTEM_ERR.
type Handler func(args []byte) ([]byte, error)

// Procedure contains metadata about a procedure for dispatch.
type Procedure struct {
	// Name is the procedure name for logging.
	Name string

	Handler Handler
}

// Program is one RPC program/version served by a Server.
type Program struct {
	Number     uint32
	Version    uint32
	Procedures map[uint32]*Procedure
}

// AcceptError makes a handler answer with a non-SUCCESS accept_stat.
type AcceptError struct {
	Stat uint32
}

func (e *AcceptError) Error() string {
	return "accept_stat " + oncrpc.AcceptStatName(e.Stat)
}

// Call is a call received by a Server.
type Call struct {
	XID       uint32
	Program   uint32
	Version   uint32
	Procedure uint32
	Args      []byte
}

// Server is an ONC-RPC server over TCP.
type Server struct {
	programs map[uint32]*Program

	listener     net.Listener
	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup

	mu    sync.Mutex
	calls []Call
	conns map[net.Conn]struct{}
}

// NewServer creates a server for the given programs.
func NewServer(programs ...*Program) *Server {
	s := &Server{
		programs: make(map[uint32]*Program, len(programs)),
		shutdown: make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}
	for _, p := range programs {
		s.programs[p.Number] = p
	}
	return s
}

// Start creates a server on a random loopback port and serves it until the
// test completes.
func Start(tb testing.TB, programs ...*Program) *Server {
	tb.Helper()

	s := NewServer(programs...)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("listen: %v", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.serve(context.Background())

	tb.Cleanup(s.Stop)
	return s
}

// Serve listens on addr and blocks until ctx is cancelled or Stop is called.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen TCP %s: %w", addr, err)
	}
	s.listener = ln

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.shutdown:
		}
	}()

	s.wg.Add(1)
	s.serve(ctx)
	s.wg.Wait()
	return nil
}

func (s *Server) serve(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
			default:
				logger.Debug("rpctest: accept error", logger.Err(err))
			}
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConn(ctx, c)
		}(conn)
	}
}

// handleConn answers calls on one connection until EOF or shutdown.
func (s *Server) handleConn(_ context.Context, conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	client := conn.RemoteAddr().String()

	for {
		record, err := oncrpc.ReadRecord(conn, maxRecordSize)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("rpctest: read record error", logger.Addr(client), logger.Err(err))
			}
			return
		}

		reply := s.process(record, client)
		if reply == nil {
			continue
		}

		if err := oncrpc.WriteRecord(conn, reply); err != nil {
			logger.Debug("rpctest: write reply error", logger.Addr(client), logger.Err(err))
			return
		}
	}
}

// process dispatches one call and returns the reply message, or nil when
// the record is not a call.
func (s *Server) process(record []byte, client string) []byte {
	msg, err := oncrpc.ParseMessage(record)
	if err != nil || msg.Call == nil {
		logger.Debug("rpctest: not a call", logger.Addr(client), logger.Err(err))
		return nil
	}
	call := msg.Call

	s.mu.Lock()
	s.calls = append(s.calls, Call{
		XID:       msg.XID,
		Program:   call.Program,
		Version:   call.Version,
		Procedure: call.Procedure,
		Args:      append([]byte(nil), call.Args...),
	})
	s.mu.Unlock()

	prog, ok := s.programs[call.Program]
	if !ok {
		return acceptedReply(msg.XID, oncrpc.RPCProgUnavail, nil)
	}
	if call.Version != prog.Version {
		return acceptedReply(msg.XID, oncrpc.RPCProgMismatch, versionRange(prog.Version))
	}
	proc, ok := prog.Procedures[call.Procedure]
	if !ok {
		return acceptedReply(msg.XID, oncrpc.RPCProcUnavail, nil)
	}

	logger.Debug("rpctest: call", logger.XID(msg.XID), logger.Program(call.Program), logger.Operation(proc.Name))

	results, err := proc.Handler(call.Args)
	if err != nil {
		var acceptErr *AcceptError
		if errors.As(err, &acceptErr) {
			return acceptedReply(msg.XID, acceptErr.Stat, nil)
		}
		logger.Debug("rpctest: handler error", logger.Operation(proc.Name), logger.Err(err))
		return acceptedReply(msg.XID, oncrpc.RPCSystemErr, nil)
	}

	return acceptedReply(msg.XID, oncrpc.RPCSuccess, results)
}

func acceptedReply(xid, stat uint32, results []byte) []byte {
	reply, err := oncrpc.EncodeAcceptedReply(xid, stat, results)
	if err != nil {
		return nil
	}
	return reply
}

func versionRange(v uint32) []byte {
	var buf bytes.Buffer
	_ = xdr.WriteUint32(&buf, v)
	_ = xdr.WriteUint32(&buf, v)
	return buf.Bytes()
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Port returns the listener port.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Calls returns a copy of every call received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the calls received for one procedure of one program.
func (s *Server) CallsTo(prog, proc uint32) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Program == prog && c.Procedure == proc {
			out = append(out, c)
		}
	}
	return out
}

// ConnectionCount returns the number of open connections.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Stop closes the listener and every open connection, then waits for all
// goroutines to finish.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.mu.Lock()
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()
	})
	s.wg.Wait()
}

// Dialer returns a dial function that connects to the server registered for
// the port of the requested address, whatever its host. Ports without a
// server are refused.
func Dialer(routes map[int]*Server) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		_, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, err
		}
		srv, ok := routes[port]
		if !ok {
			return nil, &net.OpError{Op: "dial", Net: network, Err: fmt.Errorf("connection refused (no test server on port %d)", port)}
		}
		var d net.Dialer
		return d.DialContext(ctx, network, srv.Addr())
	}
}
