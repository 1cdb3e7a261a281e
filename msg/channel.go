package msg

import (
	"errors"
	"unsafe"

	"github.com/sigurn/crc8"

	"github.com/renesas/ethos-u-core-software/debug"
	"github.com/renesas/ethos-u-core-software/elog"
	"github.com/renesas/ethos-u-core-software/queue"
)

// HeaderBytes is the encoded size of a frame header.
const HeaderBytes = uint32(unsafe.Sizeof(Header{}))

// ErrPayloadSize is reported when a frame declares a payload length that
// does not match the expected struct.
var ErrPayloadSize = errors.New("msg: payload length mismatch")

// crcTable is only used for debug frame tracing; the wire format carries no
// checksum.
var crcTable = crc8.MakeTable(crc8.CRC8)

// Channel speaks magic-tagged frames over one shared queue. It adds no
// buffering of its own; a frame either fits the queue in one transaction or
// is not written at all.
type Channel struct {
	q *queue.Queue
}

// NewChannel wraps q.
func NewChannel(q *queue.Queue) *Channel {
	return &Channel{q: q}
}

// Empty reports whether the queue holds no bytes.
func (c *Channel) Empty() bool { return c.q.Empty() }

// Skip advances past length payload bytes, realigning the stream to the
// next frame header.
func (c *Channel) Skip(length uint32) bool { return c.q.Skip(length) }

// Reset discards everything unread. The only way to resynchronise after a
// magic mismatch; the protocol does not scan for magic in-stream.
func (c *Channel) Reset() { c.q.Reset() }

// ReadHeader consumes one frame header. It returns false without consuming
// anything if fewer than HeaderBytes are available; the caller decides
// whether that means "drained" or "truncated frame".
func (c *Channel) ReadHeader() (Header, bool) {
	var hdr Header
	ok := c.q.Read(wireBytes(&hdr))
	return hdr, ok
}

// WriteFrame writes a header and payload as a single queue transaction and
// reports whether it fit.
func (c *Channel) WriteFrame(t Type, payload []byte) bool {
	hdr := Header{Magic: Magic, Type: t, Length: uint32(len(payload))}
	if !c.q.Write(wireBytes(&hdr), payload) {
		return false
	}
	if debug.Enabled {
		elog.Debug("msg: frame out", "type", uint32(t), "length", len(payload),
			"crc", crc8.Checksum(payload, crcTable))
	}
	return true
}

// Write frames v with its in-memory size as payload length.
func Write[T any](c *Channel, t Type, v *T) bool {
	return c.WriteFrame(t, wireBytes(v))
}

// Read consumes exactly the encoded size of T from the channel.
func Read[T any](c *Channel, v *T) bool {
	if !c.q.Read(wireBytes(v)) {
		return false
	}
	if debug.Enabled {
		elog.Debug("msg: payload in", "length", int(unsafe.Sizeof(*v)),
			"crc", crc8.Checksum(wireBytes(v), crcTable))
	}
	return true
}

// ReadOrSkip consumes the payload of a frame whose header declared length
// bytes. When length matches the encoded size of T the payload is read into
// v; otherwise the declared bytes are skipped to realign the stream and
// ErrPayloadSize is returned. A partially available payload for a
// well-formed header is also a payload error.
func ReadOrSkip[T any](c *Channel, v *T, length uint32) error {
	if length != uint32(unsafe.Sizeof(*v)) {
		c.q.Skip(length)
		return ErrPayloadSize
	}
	if !c.q.Read(wireBytes(v)) {
		return ErrPayloadSize
	}
	return nil
}

// wireBytes reinterprets v as its wire encoding. Valid because all wire
// structs are fixed-size, pointer-free and laid out without padding between
// fields on the little-endian targets this firmware supports.
func wireBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}
