package rpc

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure of the RPC stack. Callers use it to decide
// whether a connection is still usable: after Transport, Framing or
// XIDMismatch the connection must be discarded; after Remote the link is
// still valid.
type ErrorKind int

const (
	// KindTransport indicates an I/O failure or a connection closed
	// mid-read/write.
	KindTransport ErrorKind = iota + 1

	// KindFraming indicates a malformed or oversized record.
	KindFraming

	// KindXIDMismatch indicates a reply carrying a transaction id greater
	// than the one being awaited.
	KindXIDMismatch

	// KindWrongMessageType indicates a CALL message where a REPLY was expected.
	KindWrongMessageType

	// KindRPCDenied indicates the server denied the call (RPC version
	// mismatch or authentication error).
	KindRPCDenied

	// KindRPCRejected indicates an accepted reply whose status is not
	// SUCCESS (program, version or procedure unavailable, garbage args).
	KindRPCRejected

	// KindCodec indicates a reply or result payload that could not be decoded.
	KindCodec

	// KindInvalidPort indicates a resolved or link-provided port outside the
	// 16-bit range, or the port mapper's "unmapped" answer.
	KindInvalidPort

	// KindRemote indicates a nonzero application-level error code inside an
	// otherwise well-formed reply.
	KindRemote

	// KindSessionClosed indicates use of a client or session after Close.
	KindSessionClosed

	// KindReadLimitExceeded indicates a device read that accumulated more
	// data than the configured limit without a termination condition.
	KindReadLimitExceeded
)

// String returns a human-readable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindFraming:
		return "framing"
	case KindXIDMismatch:
		return "xid_mismatch"
	case KindWrongMessageType:
		return "wrong_message_type"
	case KindRPCDenied:
		return "rpc_denied"
	case KindRPCRejected:
		return "rpc_rejected"
	case KindCodec:
		return "codec"
	case KindInvalidPort:
		return "invalid_port"
	case KindRemote:
		return "remote"
	case KindSessionClosed:
		return "session_closed"
	case KindReadLimitExceeded:
		return "read_limit_exceeded"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error is the error type returned by every package of the client stack.
type Error struct {
	Kind ErrorKind

	// Op names the failing operation ("call", "send", "create_link", ...).
	Op string

	Message string

	// Code carries the numeric status of the failure: the accept_stat of a
	// rejected call, the reject_stat of a denied call, the device error
	// code of a remote error, or the offending port value.
	Code uint32

	// Expected and Actual are the awaited and received transaction ids of
	// an XIDMismatch error.
	Expected uint32
	Actual   uint32

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind. A target with a nonzero Code
// also requires the codes to match, so
//
//	errors.Is(err, &rpc.Error{Kind: rpc.KindRemote, Code: 11})
//
// selects one specific remote error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == 0 || t.Code == e.Code)
}

// Sentinels for errors.Is, matched by kind.
var (
	ErrTransport         = &Error{Kind: KindTransport}
	ErrFraming           = &Error{Kind: KindFraming}
	ErrXIDMismatch       = &Error{Kind: KindXIDMismatch}
	ErrWrongMessageType  = &Error{Kind: KindWrongMessageType}
	ErrRPCDenied         = &Error{Kind: KindRPCDenied}
	ErrRPCRejected       = &Error{Kind: KindRPCRejected}
	ErrCodec             = &Error{Kind: KindCodec}
	ErrInvalidPort       = &Error{Kind: KindInvalidPort}
	ErrRemote            = &Error{Kind: KindRemote}
	ErrSessionClosed     = &Error{Kind: KindSessionClosed}
	ErrReadLimitExceeded = &Error{Kind: KindReadLimitExceeded}
)

// ============================================================================
// Factory Functions
// ============================================================================

// NewTransportError wraps an I/O failure.
func NewTransportError(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// NewFramingError reports a malformed or oversized record.
func NewFramingError(op string, err error) *Error {
	return &Error{Kind: KindFraming, Op: op, Err: err}
}

// NewXIDMismatchError reports a reply from the future.
func NewXIDMismatchError(expected, actual uint32) *Error {
	return &Error{
		Kind:     KindXIDMismatch,
		Op:       "call",
		Message:  fmt.Sprintf("expected xid %d, got %d", expected, actual),
		Expected: expected,
		Actual:   actual,
	}
}

// NewWrongMessageTypeError reports a non-reply message received by a client.
func NewWrongMessageTypeError(xid, msgType uint32) *Error {
	return &Error{
		Kind:    KindWrongMessageType,
		Op:      "call",
		Message: fmt.Sprintf("message type %d for xid %d is not a reply", msgType, xid),
		Code:    msgType,
		Actual:  xid,
	}
}

// NewRPCDeniedError reports a MSG_DENIED reply.
func NewRPCDeniedError(rejectStat uint32, detail string) *Error {
	return &Error{Kind: KindRPCDenied, Op: "call", Message: detail, Code: rejectStat}
}

// NewRPCRejectedError reports an accepted reply with a non-SUCCESS status.
func NewRPCRejectedError(acceptStat uint32, detail string) *Error {
	return &Error{Kind: KindRPCRejected, Op: "call", Message: detail, Code: acceptStat}
}

// NewCodecError wraps a decode failure of a reply or of result bytes.
func NewCodecError(op string, err error) *Error {
	return &Error{Kind: KindCodec, Op: op, Err: err}
}

// NewInvalidPortError reports a port outside the accepted range.
func NewInvalidPortError(op string, port uint32) *Error {
	return &Error{
		Kind:    KindInvalidPort,
		Op:      op,
		Message: fmt.Sprintf("port %d out of range", port),
		Code:    port,
	}
}

// NewRemoteError reports a nonzero application error code.
func NewRemoteError(op string, code uint32, message string) *Error {
	return &Error{Kind: KindRemote, Op: op, Message: message, Code: code}
}

// NewSessionClosedError reports use after Close.
func NewSessionClosedError(op string) *Error {
	return &Error{Kind: KindSessionClosed, Op: op, Message: "use of closed session"}
}

// NewReadLimitExceededError reports a read that exceeded its size limit.
func NewReadLimitExceededError(op string, limit int) *Error {
	return &Error{
		Kind:    KindReadLimitExceeded,
		Op:      op,
		Message: fmt.Sprintf("accumulated more than %d bytes without END or termination character", limit),
	}
}

// ============================================================================
// Error Type Checking Helpers
// ============================================================================

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// StatusLabel returns "ok" for a nil error and the error kind otherwise.
// Used as a low-cardinality metrics label.
func StatusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if k := KindOf(err); k != 0 {
		return k.String()
	}
	return "error"
}

// IsTransportError returns true if err is a transport failure.
func IsTransportError(err error) bool {
	return KindOf(err) == KindTransport
}

// IsXIDMismatchError returns true if err is a transaction id mismatch.
func IsXIDMismatchError(err error) bool {
	return KindOf(err) == KindXIDMismatch
}

// IsRemoteError returns true if err carries a remote application error code.
func IsRemoteError(err error) bool {
	return KindOf(err) == KindRemote
}

// IsInvalidPortError returns true if err is an invalid port.
func IsInvalidPortError(err error) bool {
	return KindOf(err) == KindInvalidPort
}

// IsFatal reports whether err leaves the underlying connection unusable.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindFraming, KindXIDMismatch, KindWrongMessageType, KindSessionClosed:
		return true
	default:
		return false
	}
}
