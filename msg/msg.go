// Package msg defines the message protocol spoken over the shared queues
// and the framed channel that carries it.
//
// All structs in this file are wire types: their memory layout is the ABI
// shared with the host driver, native little-endian with no padding between
// fields; the only padding is the 4 tail bytes that round CapabilitiesRsp
// up to its 8 byte alignment. Targets are little-endian only.
package msg

// Magic tags every frame header. A header with a different magic means the
// inbound stream is desynchronised.
const Magic uint32 = 0x41457631

// Protocol version reported in the version response.
const (
	VersionMajor uint8 = 0
	VersionMinor uint8 = 2
	VersionPatch uint8 = 0
)

// BufferMax bounds the IFM and OFM descriptor arrays in an inference
// request.
const BufferMax = 16

// PMUMax is the number of PMU event counters carried per inference.
const PMUMax = 4

// Type enumerates the message kinds. Values are fixed by the protocol.
type Type uint32

const (
	TypeErr Type = iota + 1
	TypePing
	TypePong
	TypeInferenceReq
	TypeInferenceRsp
	TypeVersionReq
	TypeVersionRsp
	TypeCapabilitiesReq
	TypeCapabilitiesRsp
)

// ErrType categorises an Err message.
type ErrType uint32

const (
	ErrGeneric ErrType = iota
	ErrUnsupportedType
	ErrInvalidMagic
	ErrInvalidSize
	ErrInvalidPayload
)

// Inference status reported in an InferenceRsp.
const (
	StatusOK    uint32 = 0
	StatusError uint32 = 1
)

// Header precedes every payload on a queue.
type Header struct {
	Magic  uint32
	Type   Type
	Length uint32
}

// Buffer describes one host-shared memory region by bus address.
type Buffer struct {
	Ptr  uint32
	Size uint32
}

// Err carries an error category and a short NUL-padded explanation. Sent in
// both directions; never answered.
type Err struct {
	Type ErrType
	Msg  [128]byte
}

// NewErr builds an Err, truncating text to the message field.
func NewErr(t ErrType, text string) Err {
	e := Err{Type: t}
	copy(e.Msg[:len(e.Msg)-1], text)
	return e
}

// Version is the payload of a TypeVersionRsp.
type Version struct {
	Major    uint8
	Minor    uint8
	Patch    uint8
	Reserved uint8
}

// CapabilitiesReq is the payload of a TypeCapabilitiesReq.
type CapabilitiesReq struct {
	UserArg uint64
}

// CapabilitiesRsp echoes UserArg and reports hardware, driver and
// configuration versions. All fields after UserArg are zero on platforms
// without an accelerator.
type CapabilitiesRsp struct {
	UserArg          uint64
	VersionStatus    uint32
	VersionMinor     uint32
	VersionMajor     uint32
	ProductMajor     uint32
	ArchPatchRev     uint32
	ArchMinorRev     uint32
	ArchMajorRev     uint32
	DriverPatchRev   uint32
	DriverMinorRev   uint32
	DriverMajorRev   uint32
	MacsPerCC        uint32
	CmdStreamVersion uint32
	CustomDMA        uint32
}

// InferenceReq asks for one forward pass. Network, Ifm and Ofm reference
// host-shared buffers that stay owned by the host for the duration of the
// request.
type InferenceReq struct {
	UserArg               uint64
	Network               Buffer
	IfmCount              uint32
	Ifm                   [BufferMax]Buffer
	OfmCount              uint32
	Ofm                   [BufferMax]Buffer
	PmuEventConfig        [PMUMax]uint8
	PmuCycleCounterEnable uint32
}

// InferenceRsp reports the outcome of one forward pass.
type InferenceRsp struct {
	UserArg               uint64
	OfmCount              uint32
	OfmSize               [BufferMax]uint32
	Status                uint32
	PmuEventConfig        [PMUMax]uint8
	PmuCycleCounterEnable uint32
	PmuEventCount         [PMUMax]uint32
	PmuCycleCounterCount  uint64
}
