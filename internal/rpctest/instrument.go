package rpctest

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"

	pmap "github.com/marmos91/vxi11/internal/protocol/portmap"
	oncrpc "github.com/marmos91/vxi11/internal/protocol/rpc"
	"github.com/marmos91/vxi11/internal/protocol/vxi11"
)

// Identification is the answer of a fake instrument to "*IDN?".
const Identification = "RPCTEST,FAKE-INSTRUMENT,0,1.0\n"

// Instrument is a fake VXI-11 instrument serving the core channel.
//
// Messages written with the END flag are passed to a responder whose output
// is queued for device_read. Reads can also be scripted to return exact
// (error, reason, data) triples. Every argument received is recorded.
type Instrument struct {
	mu sync.Mutex

	maxRecvSize     uint32
	abortPort       uint32
	createLinkError uint32
	errors          map[uint32]uint32
	responder       func(msg []byte) []byte
	stb             uint32

	nextLink int32
	links    map[int32]vxi11.CreateLinkParms
	lockedBy int32
	input    []byte
	output   []byte
	script   []vxi11.DeviceReadResp

	creates  []vxi11.CreateLinkParms
	writes   []vxi11.DeviceWriteParms
	reads    []vxi11.DeviceReadParms
	messages [][]byte
}

// NewInstrument creates an instrument advertising a 1024-byte
// max_recv_size that answers "*IDN?" and echoes any other query.
func NewInstrument() *Instrument {
	return &Instrument{
		maxRecvSize: 1024,
		abortPort:   4321,
		errors:      make(map[uint32]uint32),
		responder:   DefaultResponder,
		links:       make(map[int32]vxi11.CreateLinkParms),
	}
}

// DefaultResponder answers "*IDN?" with Identification and any other
// message ending in '?' with the message itself. Commands get no answer.
func DefaultResponder(msg []byte) []byte {
	cmd := bytes.TrimSpace(msg)
	switch {
	case bytes.EqualFold(cmd, []byte("*IDN?")):
		return []byte(Identification)
	case bytes.HasSuffix(cmd, []byte("?")):
		return append(append([]byte(nil), cmd...), '\n')
	default:
		return nil
	}
}

// SetMaxRecvSize sets the max_recv_size returned by create_link.
func (in *Instrument) SetMaxRecvSize(n uint32) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.maxRecvSize = n
}

// SetAbortPort sets the abort port returned by create_link.
func (in *Instrument) SetAbortPort(port uint32) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.abortPort = port
}

// SetCreateLinkError makes create_link return code while still assigning
// a link.
func (in *Instrument) SetCreateLinkError(code uint32) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.createLinkError = code
}

// SetError makes every call to proc fail with code. Zero clears it.
func (in *Instrument) SetError(proc, code uint32) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if code == 0 {
		delete(in.errors, proc)
		return
	}
	in.errors[proc] = code
}

// SetResponder replaces the function answering complete messages.
func (in *Instrument) SetResponder(fn func(msg []byte) []byte) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.responder = fn
}

// SetSTB sets the status byte returned by device_readstb.
func (in *Instrument) SetSTB(stb byte) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.stb = uint32(stb)
}

// ScriptReads queues exact device_read results. While the queue is not
// empty, reads pop from it instead of the responder output.
func (in *Instrument) ScriptReads(replies ...vxi11.DeviceReadResp) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.script = append(in.script, replies...)
}

// CreateLinks returns the create_link arguments received.
func (in *Instrument) CreateLinks() []vxi11.CreateLinkParms {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]vxi11.CreateLinkParms(nil), in.creates...)
}

// Writes returns the device_write arguments received.
func (in *Instrument) Writes() []vxi11.DeviceWriteParms {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]vxi11.DeviceWriteParms(nil), in.writes...)
}

// Reads returns the device_read arguments received.
func (in *Instrument) Reads() []vxi11.DeviceReadParms {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]vxi11.DeviceReadParms(nil), in.reads...)
}

// Messages returns the complete messages (ended by FlagEnd) received.
func (in *Instrument) Messages() [][]byte {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([][]byte(nil), in.messages...)
}

// OpenLinks returns the number of links not yet destroyed.
func (in *Instrument) OpenLinks() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.links)
}

// Program returns the DEVICE_CORE program served by this instrument.
func (in *Instrument) Program() *Program {
	return &Program{
		Number:  vxi11.Program,
		Version: vxi11.Version,
		Procedures: map[uint32]*Procedure{
			vxi11.ProcCreateLink:    {Name: "create_link", Handler: in.createLink},
			vxi11.ProcDeviceWrite:   {Name: "device_write", Handler: in.deviceWrite},
			vxi11.ProcDeviceRead:    {Name: "device_read", Handler: in.deviceRead},
			vxi11.ProcDeviceReadSTB: {Name: "device_readstb", Handler: in.deviceReadSTB},
			vxi11.ProcDeviceTrigger: {Name: "device_trigger", Handler: in.generic(vxi11.ProcDeviceTrigger, nil)},
			vxi11.ProcDeviceClear:   {Name: "device_clear", Handler: in.generic(vxi11.ProcDeviceClear, in.clearBuffers)},
			vxi11.ProcDeviceRemote:  {Name: "device_remote", Handler: in.generic(vxi11.ProcDeviceRemote, nil)},
			vxi11.ProcDeviceLocal:   {Name: "device_local", Handler: in.generic(vxi11.ProcDeviceLocal, nil)},
			vxi11.ProcDeviceLock:    {Name: "device_lock", Handler: in.deviceLock},
			vxi11.ProcDeviceUnlock:  {Name: "device_unlock", Handler: in.deviceUnlock},
			vxi11.ProcDestroyLink:   {Name: "destroy_link", Handler: in.destroyLink},
		},
	}
}

func decodeArgs(args []byte, v any) error {
	if err := vxi11.Decode(args, v); err != nil {
		return &AcceptError{Stat: oncrpc.RPCGarbageArgs}
	}
	return nil
}

func (in *Instrument) createLink(args []byte) ([]byte, error) {
	var parms vxi11.CreateLinkParms
	if err := decodeArgs(args, &parms); err != nil {
		return nil, err
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	in.creates = append(in.creates, parms)
	in.nextLink++
	in.links[in.nextLink] = parms

	return vxi11.Encode(&vxi11.CreateLinkResp{
		Error:       in.createLinkError,
		LinkID:      in.nextLink,
		AbortPort:   in.abortPort,
		MaxRecvSize: in.maxRecvSize,
	})
}

// checkLink returns the error code for a call on lid, or 0.
func (in *Instrument) checkLink(proc uint32, lid int32) uint32 {
	if _, ok := in.links[lid]; !ok {
		return vxi11.ErrInvalidLinkIdentifier
	}
	return in.errors[proc]
}

func (in *Instrument) deviceWrite(args []byte) ([]byte, error) {
	parms, err := vxi11.DecodeWriteParms(args)
	if err != nil {
		return nil, &AcceptError{Stat: oncrpc.RPCGarbageArgs}
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	in.writes = append(in.writes, *parms)
	if code := in.checkLink(vxi11.ProcDeviceWrite, parms.LinkID); code != 0 {
		return vxi11.Encode(&vxi11.DeviceWriteResp{Error: code})
	}

	in.input = append(in.input, parms.Data...)
	if parms.Flags&vxi11.FlagEnd != 0 {
		msg := in.input
		in.input = nil
		in.messages = append(in.messages, msg)
		if in.responder != nil {
			in.output = append(in.output, in.responder(msg)...)
		}
	}

	return vxi11.Encode(&vxi11.DeviceWriteResp{Size: uint32(len(parms.Data))})
}

func (in *Instrument) deviceRead(args []byte) ([]byte, error) {
	var parms vxi11.DeviceReadParms
	if err := decodeArgs(args, &parms); err != nil {
		return nil, err
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	in.reads = append(in.reads, parms)
	if code := in.checkLink(vxi11.ProcDeviceRead, parms.LinkID); code != 0 {
		return vxi11.Encode(&vxi11.DeviceReadResp{Error: code})
	}

	if len(in.script) > 0 {
		resp := in.script[0]
		in.script = in.script[1:]
		return vxi11.Encode(&resp)
	}

	if len(in.output) == 0 {
		return vxi11.Encode(&vxi11.DeviceReadResp{Error: vxi11.ErrIOTimeout})
	}

	n := min(int(parms.RequestSize), len(in.output))
	var reason uint32
	if parms.Flags&vxi11.FlagTermChrSet != 0 {
		if i := bytes.IndexByte(in.output[:n], byte(parms.TermChar)); i >= 0 {
			n = i + 1
			reason |= vxi11.ReasonTermChar
		}
	}

	data := append([]byte(nil), in.output[:n]...)
	in.output = in.output[n:]

	switch {
	case len(in.output) == 0:
		reason |= vxi11.ReasonEnd
	case reason == 0:
		reason = vxi11.ReasonRequestCount
	}

	return vxi11.Encode(&vxi11.DeviceReadResp{Reason: reason, Data: data})
}

func (in *Instrument) deviceReadSTB(args []byte) ([]byte, error) {
	var parms vxi11.DeviceGenericParms
	if err := decodeArgs(args, &parms); err != nil {
		return nil, err
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if code := in.checkLink(vxi11.ProcDeviceReadSTB, parms.LinkID); code != 0 {
		return vxi11.Encode(&vxi11.DeviceReadStbResp{Error: code})
	}
	return vxi11.Encode(&vxi11.DeviceReadStbResp{STB: in.stb})
}

// generic serves a procedure taking Device_GenericParms and returning
// Device_Error. effect runs with the lock held on success.
func (in *Instrument) generic(proc uint32, effect func()) Handler {
	return func(args []byte) ([]byte, error) {
		var parms vxi11.DeviceGenericParms
		if err := decodeArgs(args, &parms); err != nil {
			return nil, err
		}

		in.mu.Lock()
		defer in.mu.Unlock()

		if code := in.checkLink(proc, parms.LinkID); code != 0 {
			return vxi11.Encode(&vxi11.DeviceError{Error: code})
		}
		if effect != nil {
			effect()
		}
		return vxi11.Encode(&vxi11.DeviceError{})
	}
}

func (in *Instrument) clearBuffers() {
	in.input = nil
	in.output = nil
}

func (in *Instrument) deviceLock(args []byte) ([]byte, error) {
	var parms vxi11.DeviceLockParms
	if err := decodeArgs(args, &parms); err != nil {
		return nil, err
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	code := in.checkLink(vxi11.ProcDeviceLock, parms.LinkID)
	if code == 0 && in.lockedBy != 0 && in.lockedBy != parms.LinkID {
		code = vxi11.ErrDeviceLocked
	}
	if code == 0 {
		in.lockedBy = parms.LinkID
	}
	return vxi11.Encode(&vxi11.DeviceError{Error: code})
}

func (in *Instrument) deviceUnlock(args []byte) ([]byte, error) {
	var parms vxi11.DeviceLink
	if err := decodeArgs(args, &parms); err != nil {
		return nil, err
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	code := in.checkLink(vxi11.ProcDeviceUnlock, parms.LinkID)
	if code == 0 && in.lockedBy != parms.LinkID {
		code = vxi11.ErrNoLockHeld
	}
	if code == 0 {
		in.lockedBy = 0
	}
	return vxi11.Encode(&vxi11.DeviceError{Error: code})
}

func (in *Instrument) destroyLink(args []byte) ([]byte, error) {
	var parms vxi11.DeviceLink
	if err := decodeArgs(args, &parms); err != nil {
		return nil, err
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	code := in.checkLink(vxi11.ProcDestroyLink, parms.LinkID)
	if _, ok := in.links[parms.LinkID]; ok {
		delete(in.links, parms.LinkID)
		if in.lockedBy == parms.LinkID {
			in.lockedBy = 0
		}
	}
	return vxi11.Encode(&vxi11.DeviceError{Error: code})
}

// ============================================================================
// Lab: port mapper + instrument
// ============================================================================

// Lab is a port mapper and an instrument registered with it, reachable
// through DialContext as if the port mapper listened on port 111.
type Lab struct {
	Portmapper *Server
	Registry   *Registry
	Core       *Server
	Instrument *Instrument
}

// StartLab starts a port mapper and an instrument for the duration of the
// test and registers the instrument's core channel for TCP.
func StartLab(tb testing.TB) *Lab {
	tb.Helper()

	pm, reg := StartPortmapper(tb)
	inst := NewInstrument()
	core := Start(tb, inst.Program())
	reg.Set(vxi11.Program, vxi11.Version, pmap.ProtoTCP, uint32(core.Port()))

	return &Lab{Portmapper: pm, Registry: reg, Core: core, Instrument: inst}
}

// DialContext routes port 111 to the port mapper and the instrument's port
// to the instrument.
func (l *Lab) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return Dialer(map[int]*Server{
		pmap.Port:     l.Portmapper,
		l.Core.Port(): l.Core,
	})(ctx, network, addr)
}
