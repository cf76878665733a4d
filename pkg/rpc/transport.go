package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	oncrpc "github.com/marmos91/vxi11/internal/protocol/rpc"
)

// Transport moves whole ONC-RPC records over a byte stream.
//
// A Transport is owned by exactly one Client and is not safe for concurrent
// use. Every error it returns is an *Error of kind KindTransport or
// KindFraming; either leaves the stream in an unknown position, so the
// transport must be closed.
type Transport interface {
	// SendRecord writes data as one record.
	SendRecord(ctx context.Context, data []byte) error

	// RecvRecord reads one complete record, reassembling fragments.
	RecvRecord(ctx context.Context) ([]byte, error)

	// RemoteAddr returns the peer address.
	RemoteAddr() net.Addr

	// Close closes the underlying connection.
	Close() error
}

// Transport variant names.
const (
	// TransportTCP writes and reads directly on the connection.
	TransportTCP = "tcp"

	// TransportTCPBuffered wraps the connection in bufio reader/writer,
	// which saves syscalls when fragments are small.
	TransportTCPBuffered = "tcp-buffered"
)

// DefaultTransport is the variant used when DialOptions.Transport is empty.
const DefaultTransport = TransportTCP

// DefaultMaxRecordSize bounds a reassembled record when
// DialOptions.MaxRecordSize is zero.
const DefaultMaxRecordSize = 64 * 1024 * 1024 // 64 MiB

// TransportFactory builds a Transport over an established connection.
type TransportFactory func(conn net.Conn, maxRecordSize uint32) Transport

var (
	transportsMu sync.RWMutex
	transports   = map[string]TransportFactory{
		TransportTCP:         newStreamTransport,
		TransportTCPBuffered: newBufferedTransport,
	}
)

// RegisterTransport makes a transport variant available by name. Registering
// an existing name replaces it.
func RegisterTransport(name string, factory TransportFactory) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	transports[name] = factory
}

// AvailableTransports returns the registered variant names, sorted.
func AvailableTransports() []string {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	names := make([]string, 0, len(transports))
	for name := range transports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasTransport checks if a transport variant is registered.
func HasTransport(name string) bool {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	_, ok := transports[name]
	return ok
}

// NewTransport builds the named transport variant over conn.
func NewTransport(name string, conn net.Conn, maxRecordSize uint32) (Transport, error) {
	if name == "" {
		name = DefaultTransport
	}

	transportsMu.RLock()
	factory, ok := transports[name]
	transportsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown transport %q (available: %v)", name, AvailableTransports())
	}
	return factory(conn, maxRecordSize), nil
}

// ============================================================================
// Deadline handling
// ============================================================================

// bindContext applies ctx's deadline to conn and arranges for cancellation
// of ctx to interrupt a blocked read or write. The returned function must be
// called once the I/O is done; it clears the deadline.
func bindContext(ctx context.Context, conn net.Conn) (release func()) {
	deadline, _ := ctx.Deadline()
	_ = conn.SetDeadline(deadline)

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		// A deadline in the past unblocks pending I/O immediately.
		_ = conn.SetDeadline(time.Unix(1, 0))
		close(fired)
	})

	return func() {
		if !stop() {
			<-fired
		}
		_ = conn.SetDeadline(time.Time{})
	}
}

// classify converts an I/O error into an *Error, preferring the context's
// error when the failure was caused by cancellation or a deadline.
func classify(ctx context.Context, op string, err error) error {
	if errors.Is(err, oncrpc.ErrRecordTooLarge) || errors.Is(err, oncrpc.ErrFragmentTooLarge) {
		return NewFramingError(op, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return NewTransportError(op, fmt.Errorf("%w (%v)", ctxErr, err))
	}
	return NewTransportError(op, err)
}
