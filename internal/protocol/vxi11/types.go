package vxi11

// CreateLinkParms is the argument of create_link.
//
//	struct Create_LinkParms {
//	    long clientId;
//	    bool lockDevice;
//	    unsigned long lock_timeout;
//	    string device<>;
//	};
type CreateLinkParms struct {
	ClientID    int32
	LockDevice  bool
	LockTimeout uint32
	Device      string
}

// CreateLinkResp is the result of create_link. AbortPort is an unsigned
// short on the wire, carried in a full 4-byte word.
type CreateLinkResp struct {
	Error       uint32
	LinkID      int32
	AbortPort   uint32
	MaxRecvSize uint32
}

// DeviceWriteParms is the argument of device_write.
type DeviceWriteParms struct {
	LinkID      int32
	IOTimeout   uint32
	LockTimeout uint32
	Flags       uint32
	Data        []byte
}

// DeviceWriteResp is the result of device_write. Size is the number of
// bytes the device accepted.
type DeviceWriteResp struct {
	Error uint32
	Size  uint32
}

// DeviceReadParms is the argument of device_read. TermChar is a char on
// the wire and is only honoured when FlagTermChrSet is set.
type DeviceReadParms struct {
	LinkID      int32
	RequestSize uint32
	IOTimeout   uint32
	LockTimeout uint32
	Flags       uint32
	TermChar    uint32
}

// DeviceReadResp is the result of device_read.
type DeviceReadResp struct {
	Error  uint32
	Reason uint32
	Data   []byte
}

// DeviceReadStbResp is the result of device_readstb.
type DeviceReadStbResp struct {
	Error uint32
	STB   uint32
}

// DeviceGenericParms is the argument of device_readstb, device_trigger,
// device_clear, device_remote and device_local.
type DeviceGenericParms struct {
	LinkID      int32
	Flags       uint32
	LockTimeout uint32
	IOTimeout   uint32
}

// DeviceLockParms is the argument of device_lock.
type DeviceLockParms struct {
	LinkID      int32
	Flags       uint32
	LockTimeout uint32
}

// DeviceLink is the argument of destroy_link and device_unlock.
type DeviceLink struct {
	LinkID int32
}

// DeviceError is the result of every procedure that returns only an error
// code.
type DeviceError struct {
	Error uint32
}
