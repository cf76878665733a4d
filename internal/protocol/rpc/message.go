package rpc

import (
	"bytes"
	"fmt"

	"github.com/marmos91/vxi11/internal/protocol/xdr"
)

// OpaqueAuth is an authentication entry (flavor + opaque body).
type OpaqueAuth struct {
	Flavor uint32
	Body   []byte
}

// CallBody is the body of an RPC call message.
//
// Wire format:
//
//	rpcvers(4) + prog(4) + vers(4) + proc(4) + cred(opaque_auth) + verf(opaque_auth) + [args]
type CallBody struct {
	RPCVersion uint32
	Program    uint32
	Version    uint32
	Procedure  uint32
	Cred       OpaqueAuth
	Verf       OpaqueAuth

	// Args holds the procedure arguments, still XDR-encoded.
	Args []byte
}

// ReplyBody is the body of an RPC reply message.
//
// Only the fields relevant to ReplyStat (and AcceptStat/RejectStat) are set.
type ReplyBody struct {
	ReplyStat uint32

	// Accepted replies
	Verf       OpaqueAuth
	AcceptStat uint32

	// Results holds the procedure results (AcceptStat == RPCSuccess only).
	Results []byte

	// Version range for PROG_MISMATCH (accepted) and RPC_MISMATCH (denied).
	MismatchLow  uint32
	MismatchHigh uint32

	// Denied replies
	RejectStat uint32
	AuthStat   uint32
}

// Accepted reports whether the server accepted the call.
func (r *ReplyBody) Accepted() bool {
	return r.ReplyStat == RPCMsgAccepted
}

// Succeeded reports whether the call was accepted and executed successfully.
func (r *ReplyBody) Succeeded() bool {
	return r.Accepted() && r.AcceptStat == RPCSuccess
}

// Message is a parsed RPC message: exactly one of Call or Reply is set,
// according to Type.
type Message struct {
	XID   uint32
	Type  uint32
	Call  *CallBody
	Reply *ReplyBody
}

// EncodeCall builds an RPC call message with AUTH_NONE credentials and
// verifier.
//
// Wire format:
//
//	xid(4) + msg_type=0(4) + rpc_vers=2(4) + prog(4) + vers(4) + proc(4)
//	+ cred_flavor=0(4) + cred_len=0(4) + verf_flavor=0(4) + verf_len=0(4)
//	+ [procedure args]
func EncodeCall(xid, prog, vers, proc uint32, args []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(40 + len(args))

	for _, v := range []uint32{xid, RPCCall, RPCVersion, prog, vers, proc} {
		if err := xdr.WriteUint32(&buf, v); err != nil {
			return nil, err
		}
	}
	for range 2 {
		if err := writeAuth(&buf, OpaqueAuth{Flavor: AuthNone}); err != nil {
			return nil, err
		}
	}
	buf.Write(args)

	return buf.Bytes(), nil
}

// EncodeAcceptedReply builds an accepted reply with an AUTH_NONE verifier.
// results is appended verbatim after accept_stat.
//
// Wire format:
//
//	xid(4) + msg_type=1(4) + reply_stat=0(4) + verf_flavor=0(4) + verf_len=0(4) + accept_stat(4) + results
func EncodeAcceptedReply(xid, acceptStat uint32, results []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(24 + len(results))

	if err := xdr.WriteUint32(&buf, xid); err != nil {
		return nil, err
	}
	if err := xdr.EncodeUnionDiscriminant(&buf, RPCReply); err != nil {
		return nil, err
	}
	if err := xdr.EncodeUnionDiscriminant(&buf, RPCMsgAccepted); err != nil {
		return nil, err
	}
	if err := writeAuth(&buf, OpaqueAuth{Flavor: AuthNone}); err != nil {
		return nil, err
	}
	if err := xdr.EncodeUnionDiscriminant(&buf, acceptStat); err != nil {
		return nil, err
	}
	buf.Write(results)

	return buf.Bytes(), nil
}

// EncodeDeniedReply builds a denied reply. For RPCMismatch, detail is the
// supported version (used as both low and high); for RPCAuthError it is the
// auth_stat.
func EncodeDeniedReply(xid, rejectStat, detail uint32) ([]byte, error) {
	var buf bytes.Buffer

	fields := []uint32{xid, RPCReply, RPCMsgDenied, rejectStat}
	if rejectStat == RPCMismatch {
		fields = append(fields, detail, detail)
	} else {
		fields = append(fields, detail)
	}
	for _, v := range fields {
		if err := xdr.WriteUint32(&buf, v); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// ParseMessage parses a complete RPC message (one record, without the
// record-marking header) into either a call or a reply.
//
// Decoding failures are returned as *xdr.DecodeError; an unknown discriminant
// is reported with its value.
func ParseMessage(data []byte) (*Message, error) {
	d := xdr.NewDecoder(data)
	d.SetMaxOpaqueLength(maxAuthBodyLength)

	xid, err := d.Uint32()
	if err != nil {
		return nil, fmt.Errorf("read xid: %w", err)
	}
	msgType, err := d.Uint32()
	if err != nil {
		return nil, fmt.Errorf("read msg_type: %w", err)
	}

	msg := &Message{XID: xid, Type: msgType}

	switch msgType {
	case RPCCall:
		msg.Call, err = parseCallBody(d)
	case RPCReply:
		msg.Reply, err = parseReplyBody(d)
	default:
		return nil, fmt.Errorf("invalid msg_type %d at offset 4", msgType)
	}
	if err != nil {
		return nil, err
	}

	return msg, nil
}

func parseCallBody(d *xdr.Decoder) (*CallBody, error) {
	call := &CallBody{}

	for _, dst := range []*uint32{&call.RPCVersion, &call.Program, &call.Version, &call.Procedure} {
		v, err := d.Uint32()
		if err != nil {
			return nil, fmt.Errorf("read call header: %w", err)
		}
		*dst = v
	}

	var err error
	if call.Cred, err = readAuth(d); err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	if call.Verf, err = readAuth(d); err != nil {
		return nil, fmt.Errorf("read verifier: %w", err)
	}

	call.Args = d.Remaining()
	return call, nil
}

func parseReplyBody(d *xdr.Decoder) (*ReplyBody, error) {
	reply := &ReplyBody{}

	stat, err := d.Uint32()
	if err != nil {
		return nil, fmt.Errorf("read reply_stat: %w", err)
	}
	reply.ReplyStat = stat

	switch stat {
	case RPCMsgAccepted:
		if reply.Verf, err = readAuth(d); err != nil {
			return nil, fmt.Errorf("read verifier: %w", err)
		}
		if reply.AcceptStat, err = d.Uint32(); err != nil {
			return nil, fmt.Errorf("read accept_stat: %w", err)
		}
		switch reply.AcceptStat {
		case RPCSuccess:
			reply.Results = d.Remaining()
		case RPCProgMismatch:
			if reply.MismatchLow, reply.MismatchHigh, err = readRange(d); err != nil {
				return nil, fmt.Errorf("read prog_mismatch range: %w", err)
			}
		}

	case RPCMsgDenied:
		if reply.RejectStat, err = d.Uint32(); err != nil {
			return nil, fmt.Errorf("read reject_stat: %w", err)
		}
		switch reply.RejectStat {
		case RPCMismatch:
			if reply.MismatchLow, reply.MismatchHigh, err = readRange(d); err != nil {
				return nil, fmt.Errorf("read rpc_mismatch range: %w", err)
			}
		case RPCAuthError:
			if reply.AuthStat, err = d.Uint32(); err != nil {
				return nil, fmt.Errorf("read auth_stat: %w", err)
			}
		default:
			return nil, fmt.Errorf("invalid reject_stat %d", reply.RejectStat)
		}

	default:
		return nil, fmt.Errorf("invalid reply_stat %d", stat)
	}

	return reply, nil
}

func readRange(d *xdr.Decoder) (uint32, uint32, error) {
	low, err := d.Uint32()
	if err != nil {
		return 0, 0, err
	}
	high, err := d.Uint32()
	if err != nil {
		return 0, 0, err
	}
	return low, high, nil
}

func readAuth(d *xdr.Decoder) (OpaqueAuth, error) {
	flavor, err := d.Uint32()
	if err != nil {
		return OpaqueAuth{}, err
	}
	body, err := d.Opaque()
	if err != nil {
		return OpaqueAuth{}, err
	}
	return OpaqueAuth{Flavor: flavor, Body: body}, nil
}

func writeAuth(buf *bytes.Buffer, auth OpaqueAuth) error {
	if err := xdr.WriteUint32(buf, auth.Flavor); err != nil {
		return err
	}
	return xdr.WriteOpaque(buf, auth.Body)
}
