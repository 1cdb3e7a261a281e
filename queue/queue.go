// Package queue implements the byte ring buffers shared with the host.
//
// Each queue lives in one contiguous region of shared memory: a header with
// {size, read, write} followed by size bytes of data. The layout is an ABI
// with the host's kernel driver and must not change. Each queue has a single
// producer and a single consumer; one agent only ever advances read, the
// other only ever advances write. No lock is needed as long as the producer
// publishes payload bytes before the header update and both agents maintain
// the data cache around every access.
package queue

import (
	"errors"
	"sync/atomic"
	"unsafe"

	"github.com/renesas/ethos-u-core-software/cpu"
)

// HeaderBytes is the size of the queue header preceding the data region.
const HeaderBytes = 12

// header mirrors the shared memory layout: size at offset 0, read at 4,
// write at 8. All fields are little-endian on every supported target.
type header struct {
	size  uint32
	read  uint32
	write uint32
}

// Queue is one shared ring buffer. The zero value is not usable; construct
// with New or Attach.
type Queue struct {
	hdr  *header
	data []byte
}

var (
	errRegionSize  = errors.New("queue: region too small")
	errRegionAlign = errors.New("queue: region not 4 byte aligned")
	errHeaderSize  = errors.New("queue: header size field does not match region")
)

func overlay(region []byte) (*Queue, error) {
	if len(region) <= HeaderBytes {
		return nil, errRegionSize
	}
	p := unsafe.Pointer(unsafe.SliceData(region))
	if uintptr(p)%4 != 0 {
		return nil, errRegionAlign
	}
	return &Queue{
		hdr:  (*header)(p),
		data: region[HeaderBytes:],
	}, nil
}

// New initialises a queue in region and returns it empty. The header is
// written back so the peer observes the initial state.
func New(region []byte) (*Queue, error) {
	q, err := overlay(region)
	if err != nil {
		return nil, err
	}
	q.hdr.size = uint32(len(q.data))
	atomic.StoreUint32(&q.hdr.read, 0)
	atomic.StoreUint32(&q.hdr.write, 0)
	q.flushHeader()
	return q, nil
}

// Attach adopts a queue that the peer has already initialised in region.
func Attach(region []byte) (*Queue, error) {
	q, err := overlay(region)
	if err != nil {
		return nil, err
	}
	q.invalidateHeader()
	if q.hdr.size != uint32(len(q.data)) {
		return nil, errHeaderSize
	}
	return q, nil
}

// Size returns the size of the data region in bytes.
func (q *Queue) Size() uint32 { return q.hdr.size }

// Empty reports whether no bytes are available for reading.
func (q *Queue) Empty() bool {
	q.invalidateHeader()
	return atomic.LoadUint32(&q.hdr.read) == atomic.LoadUint32(&q.hdr.write)
}

// Available returns the number of bytes ready to be read.
func (q *Queue) Available() uint32 {
	q.invalidateHeader()
	return q.available()
}

func (q *Queue) available() uint32 {
	read := atomic.LoadUint32(&q.hdr.read)
	write := atomic.LoadUint32(&q.hdr.write)
	avail := write - read
	if read > write {
		avail += q.hdr.size
	}
	return avail
}

// Capacity returns the number of free bytes in the data region.
// Available() + Capacity() always equals Size(). Write keeps one byte
// free, so it accepts at most Capacity()-1 bytes.
func (q *Queue) Capacity() uint32 {
	q.invalidateHeader()
	return q.hdr.size - q.available()
}

// Read copies len(dst) bytes out of the queue and advances the read
// position. It fails without consuming anything if fewer bytes are
// available.
func (q *Queue) Read(dst []byte) bool {
	q.invalidateHeaderData()

	if uint32(len(dst)) > q.available() {
		return false
	}

	rpos := atomic.LoadUint32(&q.hdr.read)
	n := uint32(copy(dst, q.data[rpos:]))
	copy(dst[n:], q.data[:])
	rpos = (rpos + uint32(len(dst))) % q.hdr.size

	atomic.StoreUint32(&q.hdr.read, rpos)
	q.flushHeader()

	return true
}

// Skip advances the read position by length bytes without copying them out.
func (q *Queue) Skip(length uint32) bool {
	q.invalidateHeader()

	if length > q.available() {
		return false
	}

	rpos := (atomic.LoadUint32(&q.hdr.read) + length) % q.hdr.size

	atomic.StoreUint32(&q.hdr.read, rpos)
	q.flushHeader()

	return true
}

// Write copies the concatenation of vecs into the queue as one transaction.
// It fails without modifying the queue if the bytes don't fit. The write
// position is updated only after all payload bytes are in place, and one
// byte is always left free so a full queue is distinguishable from an empty
// one.
func (q *Queue) Write(vecs ...[]byte) bool {
	var total uint32
	for _, v := range vecs {
		total += uint32(len(v))
	}

	q.invalidateHeader()

	if total >= q.hdr.size-q.available() {
		return false
	}

	wpos := atomic.LoadUint32(&q.hdr.write)
	for _, v := range vecs {
		n := uint32(copy(q.data[wpos:], v))
		copy(q.data, v[n:])
		wpos = (wpos + uint32(len(v))) % q.hdr.size
	}

	// Publish payload before the header update.
	atomic.StoreUint32(&q.hdr.write, wpos)
	q.flushHeaderData()

	return true
}

// Reset discards all unread bytes. Used to resynchronise after a corrupt
// inbound stream.
func (q *Queue) Reset() {
	q.invalidateHeader()
	atomic.StoreUint32(&q.hdr.read, atomic.LoadUint32(&q.hdr.write))
	q.flushHeader()
}

// The header and the data region are maintained separately. Invalidating the
// data lines while the local agent has in-flight stores to the header (or
// vice versa) would drop them, so the four combinations below are kept
// distinct.

func (q *Queue) invalidateHeader() {
	cpu.Invalidate(uintptr(unsafe.Pointer(q.hdr)), HeaderBytes)
}

func (q *Queue) invalidateHeaderData() {
	cpu.Invalidate(uintptr(unsafe.Pointer(q.hdr)), HeaderBytes)
	cpu.InvalidateSlice(q.data)
}

func (q *Queue) flushHeader() {
	cpu.Writeback(uintptr(unsafe.Pointer(q.hdr)), HeaderBytes)
}

func (q *Queue) flushHeaderData() {
	cpu.Writeback(uintptr(unsafe.Pointer(q.hdr)), HeaderBytes)
	cpu.WritebackSlice(q.data)
}
