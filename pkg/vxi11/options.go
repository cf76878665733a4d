package vxi11

import (
	"math"
	"time"

	core "github.com/marmos91/vxi11/internal/protocol/vxi11"
	"github.com/marmos91/vxi11/pkg/metrics"
	"github.com/marmos91/vxi11/pkg/rpc"
)

const (
	// DefaultDevice is the logical device name sent in create_link.
	DefaultDevice = "instr"

	// DefaultIOTimeout is the io_timeout carried by device calls.
	DefaultIOTimeout = time.Second

	// DefaultTermChar is the termination character used when UseTermChar
	// is set.
	DefaultTermChar = '\n'

	// MaxRecvSizeLimit caps the server-advertised max_recv_size.
	MaxRecvSizeLimit = 1 << 20

	// fallbackRecvSize is used when the server advertises a max_recv_size
	// of zero. 1024 is the minimum a conforming server must accept.
	fallbackRecvSize = 1024
)

// Options configures a Session. Fields are read by every call and never
// modified by the session.
type Options struct {
	// Device is the logical device name ("instr0", "gpib0,5"). Empty means
	// DefaultDevice.
	Device string

	// LockDevice requests an exclusive lock in create_link.
	LockDevice bool

	// LockTimeout is how long the server waits for a lock. A nonzero value
	// also sets the wait-lock flag on device calls.
	LockTimeout time.Duration

	// IOTimeout is how long the server waits for the device on write and
	// read.
	IOTimeout time.Duration

	// TermChar ends a read when UseTermChar is set.
	TermChar    byte
	UseTermChar bool

	// MaxRecvSize caps the chunk size advertised by the server. Zero means
	// MaxRecvSizeLimit.
	MaxRecvSize uint32

	// MaxReadSize bounds the bytes accumulated by one Read. Zero means
	// unbounded.
	MaxReadSize int

	// Transport, DialContext and MaxRecordSize are passed to rpc.Dial for
	// both the port mapper and the core channel connections.
	Transport     string
	DialContext   rpc.DialFunc
	MaxRecordSize uint32

	// Metrics and RPCMetrics are optional; nil disables collection.
	Metrics    metrics.VXI11Metrics
	RPCMetrics metrics.RPCMetrics
}

// DefaultOptions returns the options used by Connect when none are given:
// device "instr", a one second I/O timeout, no lock and '\n' as the
// (disabled) termination character.
func DefaultOptions() Options {
	return Options{
		Device:      DefaultDevice,
		IOTimeout:   DefaultIOTimeout,
		TermChar:    DefaultTermChar,
		MaxRecvSize: MaxRecvSizeLimit,
	}
}

func (o Options) withDefaults() Options {
	if o.Device == "" {
		o.Device = DefaultDevice
	}
	if o.MaxRecvSize == 0 || o.MaxRecvSize > MaxRecvSizeLimit {
		o.MaxRecvSize = MaxRecvSizeLimit
	}
	return o
}

func (o Options) dialOptions() rpc.DialOptions {
	return rpc.DialOptions{
		Transport:     o.Transport,
		DialContext:   o.DialContext,
		MaxRecordSize: o.MaxRecordSize,
		Metrics:       o.RPCMetrics,
	}
}

// clampRecvSize applies the client ceiling to a server-advertised size.
func (o Options) clampRecvSize(advertised uint32) uint32 {
	switch {
	case advertised == 0:
		return min(fallbackRecvSize, o.MaxRecvSize)
	case advertised > o.MaxRecvSize:
		return o.MaxRecvSize
	default:
		return advertised
	}
}

// waitFlags returns the flags common to every device call.
func (o Options) waitFlags() uint32 {
	if o.LockTimeout > 0 {
		return core.FlagWaitLock
	}
	return 0
}

// millis converts d to the unsigned millisecond count of the wire format.
func millis(d time.Duration) uint32 {
	ms := d.Milliseconds()
	switch {
	case ms <= 0:
		return 0
	case ms > math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(ms)
	}
}
