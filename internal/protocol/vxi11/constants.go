// Package vxi11 defines the wire format of the VXI-11 core channel
// (DEVICE_CORE, program 0x0607AF version 1).
//
// Request and response structures are plain Go structs encoded with
// github.com/rasky/go-xdr. Field order is wire order.
//
// References:
//   - VXIbus Consortium, VXI-11 TCP/IP Instrument Protocol Specification, rev 1.0
package vxi11

import "fmt"

// ============================================================================
// Program and Version
// ============================================================================

const (
	// Program is the DEVICE_CORE program number.
	Program uint32 = 0x0607AF

	// Version is the DEVICE_CORE program version.
	Version uint32 = 1

	// AbortProgram and InterruptProgram are the DEVICE_ASYNC and DEVICE_INTR
	// channels. This package only names them.
	AbortProgram     uint32 = 0x0607B0
	InterruptProgram uint32 = 0x0607B1
)

// ============================================================================
// Procedure Numbers
// ============================================================================

const (
	ProcCreateLink    uint32 = 10
	ProcDeviceWrite   uint32 = 11
	ProcDeviceRead    uint32 = 12
	ProcDeviceReadSTB uint32 = 13
	ProcDeviceTrigger uint32 = 14
	ProcDeviceClear   uint32 = 15
	ProcDeviceRemote  uint32 = 16
	ProcDeviceLocal   uint32 = 17
	ProcDeviceLock    uint32 = 18
	ProcDeviceUnlock  uint32 = 19
	ProcDestroyLink   uint32 = 23
)

// ProcedureName returns the VXI-11 name of a core procedure.
func ProcedureName(proc uint32) string {
	switch proc {
	case ProcCreateLink:
		return "create_link"
	case ProcDeviceWrite:
		return "device_write"
	case ProcDeviceRead:
		return "device_read"
	case ProcDeviceReadSTB:
		return "device_readstb"
	case ProcDeviceTrigger:
		return "device_trigger"
	case ProcDeviceClear:
		return "device_clear"
	case ProcDeviceRemote:
		return "device_remote"
	case ProcDeviceLocal:
		return "device_local"
	case ProcDeviceLock:
		return "device_lock"
	case ProcDeviceUnlock:
		return "device_unlock"
	case ProcDestroyLink:
		return "destroy_link"
	default:
		return fmt.Sprintf("proc_%d", proc)
	}
}

// ============================================================================
// Device_Flags
// ============================================================================

const (
	// FlagWaitLock makes the server wait up to lock_timeout for a lock held
	// by another link instead of failing immediately.
	FlagWaitLock uint32 = 0x01

	// FlagEnd marks the last chunk of a message in device_write.
	FlagEnd uint32 = 0x08

	// FlagTermChrSet tells device_read that term_char is valid.
	FlagTermChrSet uint32 = 0x80
)

// ============================================================================
// device_read Termination Reasons
// ============================================================================

const (
	// ReasonRequestCount is set when request_size bytes were returned.
	ReasonRequestCount uint32 = 0x01

	// ReasonTermChar is set when the termination character was seen.
	ReasonTermChar uint32 = 0x02

	// ReasonEnd is set when the device signalled end of message.
	ReasonEnd uint32 = 0x04

	// ReasonDone is the mask of reasons that complete a read.
	ReasonDone = ReasonTermChar | ReasonEnd
)

// ============================================================================
// Device_ErrorCode
// ============================================================================

const (
	ErrNone                      uint32 = 0
	ErrSyntax                    uint32 = 1
	ErrDeviceNotAccessible       uint32 = 3
	ErrInvalidLinkIdentifier     uint32 = 4
	ErrParameter                 uint32 = 5
	ErrChannelNotEstablished     uint32 = 6
	ErrOperationNotSupported     uint32 = 8
	ErrOutOfResources            uint32 = 9
	ErrDeviceLocked              uint32 = 11
	ErrNoLockHeld                uint32 = 12
	ErrIOTimeout                 uint32 = 15
	ErrIO                        uint32 = 17
	ErrInvalidAddress            uint32 = 21
	ErrAbort                     uint32 = 23
	ErrChannelAlreadyEstablished uint32 = 29
)

// ErrorName returns the description of a Device_ErrorCode.
func ErrorName(code uint32) string {
	switch code {
	case ErrNone:
		return "no error"
	case ErrSyntax:
		return "syntax error"
	case ErrDeviceNotAccessible:
		return "device not accessible"
	case ErrInvalidLinkIdentifier:
		return "invalid link identifier"
	case ErrParameter:
		return "parameter error"
	case ErrChannelNotEstablished:
		return "channel not established"
	case ErrOperationNotSupported:
		return "operation not supported"
	case ErrOutOfResources:
		return "out of resources"
	case ErrDeviceLocked:
		return "device locked by another link"
	case ErrNoLockHeld:
		return "no lock held by this link"
	case ErrIOTimeout:
		return "I/O timeout"
	case ErrIO:
		return "I/O error"
	case ErrInvalidAddress:
		return "invalid address"
	case ErrAbort:
		return "abort"
	case ErrChannelAlreadyEstablished:
		return "channel already established"
	default:
		return fmt.Sprintf("error %d", code)
	}
}
