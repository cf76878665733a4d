// Package portmap is a port mapper (portmap v2) client.
//
// VXI-11 instruments do not listen on a fixed port: a client first asks the
// port mapper on port 111 which port serves the DEVICE_CORE program, then
// connects there. Resolve does exactly that over a short-lived connection.
package portmap

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/marmos91/vxi11/internal/logger"
	pmap "github.com/marmos91/vxi11/internal/protocol/portmap"
	"github.com/marmos91/vxi11/internal/telemetry"
	"github.com/marmos91/vxi11/pkg/rpc"
)

// DefaultPort is the well-known port of the port mapper.
const DefaultPort = pmap.Port

// MaxPort is the first port value rejected by ValidatePort.
const MaxPort = 65535

// Protocol is a transport protocol identifier as used by the port mapper.
type Protocol uint32

const (
	TCP Protocol = Protocol(pmap.ProtoTCP)
	UDP Protocol = Protocol(pmap.ProtoUDP)
)

// String returns "tcp", "udp" or "proto-N".
func (p Protocol) String() string {
	return pmap.ProtocolName(uint32(p))
}

// Mapping is a registration returned by Dump.
type Mapping struct {
	Program  uint32
	Version  uint32
	Protocol Protocol
	Port     uint32
}

// Client talks to one port mapper over a dedicated connection.
type Client struct {
	rpc  *rpc.Client
	host string
}

// Dial connects to the port mapper of host. opts.DialContext, when set, is
// used for the connection; the address is always host:111.
func Dial(ctx context.Context, host string, opts rpc.DialOptions) (*Client, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(DefaultPort))

	c, err := rpc.Dial(ctx, addr, opts)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: c, host: host}, nil
}

// NewClient wraps an RPC client already connected to a port mapper.
func NewClient(c *rpc.Client) *Client {
	return &Client{rpc: c}
}

// Close closes the connection to the port mapper.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// Null calls the NULL procedure. A nil error means the port mapper is alive.
func (c *Client) Null(ctx context.Context) error {
	ctx, span := telemetry.StartPortmapSpan(ctx, "null", telemetry.ServerAddr(c.host))
	defer span.End()

	if _, err := c.rpc.Call(ctx, pmap.Program, pmap.Version, pmap.ProcNull, nil); err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	return nil
}

// GetPort asks for the port serving (prog, vers, proto).
//
// The port mapper answers 0 for a tuple it does not know; GetPort returns
// that 0 unchanged. Values of MaxPort and above fail with KindInvalidPort.
func (c *Client) GetPort(ctx context.Context, prog, vers uint32, proto Protocol) (uint16, error) {
	ctx, span := telemetry.StartPortmapSpan(ctx, "getport",
		telemetry.ServerAddr(c.host),
		telemetry.RPCProgram(prog),
		telemetry.RPCVersion(vers),
		telemetry.PortmapProtocol(uint32(proto)))
	defer span.End()

	args := pmap.EncodeMapping(&pmap.Mapping{Prog: prog, Vers: vers, Prot: uint32(proto)})
	results, err := c.rpc.Call(ctx, pmap.Program, pmap.Version, pmap.ProcGetport, args)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return 0, err
	}

	raw, err := pmap.DecodeGetportResponse(results)
	if err != nil {
		err = rpc.NewCodecError("getport", err)
		telemetry.RecordError(ctx, err)
		return 0, err
	}
	span.SetAttributes(telemetry.PortmapPort(raw))

	port, err := ValidatePort("getport", raw)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return 0, err
	}

	logger.DebugCtx(ctx, "Port mapper lookup",
		logger.Host(c.host),
		logger.Program(prog),
		logger.Version(vers),
		logger.Protocol(uint32(proto)),
		logger.Port(int(port)))

	return port, nil
}

// Dump lists every registration of the port mapper.
func (c *Client) Dump(ctx context.Context) ([]Mapping, error) {
	ctx, span := telemetry.StartPortmapSpan(ctx, "dump", telemetry.ServerAddr(c.host))
	defer span.End()

	results, err := c.rpc.Call(ctx, pmap.Program, pmap.Version, pmap.ProcDump, nil)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	entries, err := pmap.DecodeDumpResponse(results)
	if err != nil {
		err = rpc.NewCodecError("dump", err)
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	mappings := make([]Mapping, len(entries))
	for i, e := range entries {
		mappings[i] = Mapping{Program: e.Prog, Version: e.Vers, Protocol: Protocol(e.Prot), Port: e.Port}
	}
	return mappings, nil
}

// ValidatePort converts a port received on the wire to uint16. Values of
// MaxPort and above fail with an *rpc.Error of KindInvalidPort. Zero is
// accepted here; Resolve is what treats a zero GETPORT answer as an
// unregistered program.
func ValidatePort(op string, port uint32) (uint16, error) {
	if port >= MaxPort {
		return 0, rpc.NewInvalidPortError(op, port)
	}
	return uint16(port), nil
}

// Resolve returns the port serving (prog, vers, proto) on host.
//
// It opens a fresh connection to the port mapper on host:111, issues one
// GETPORT call and closes the connection before returning. The port
// mapper's "not registered" answer (0) is reported as KindInvalidPort, like
// an out-of-range value.
func Resolve(ctx context.Context, host string, prog, vers uint32, proto Protocol, opts rpc.DialOptions) (uint16, error) {
	c, err := Dial(ctx, host, opts)
	if err != nil {
		return 0, err
	}
	defer func() { _ = c.Close() }()

	port, err := c.GetPort(ctx, prog, vers, proto)
	if err != nil {
		return 0, err
	}
	if port == 0 {
		logger.DebugCtx(ctx, "Program not registered with port mapper",
			logger.Host(host), logger.Program(prog), logger.Version(vers))
		return 0, &rpc.Error{
			Kind:    rpc.KindInvalidPort,
			Op:      "resolve",
			Message: fmt.Sprintf("program 0x%x version %d is not registered for %s", prog, vers, proto),
		}
	}
	return port, nil
}
