package tflite

import (
	"encoding/binary"
	"fmt"
)

// Minimal flatbuffer accessors, bounds-checked on every load. The model is
// host-shared memory, so nothing read from it can be trusted; any
// out-of-range access surfaces as ErrInvalidModel instead of a fault.

type reader struct {
	b []byte
}

func (r reader) u8(pos int) (uint8, error) {
	if pos < 0 || pos+1 > len(r.b) {
		return 0, fmt.Errorf("%w: truncated at %d", ErrInvalidModel, pos)
	}
	return r.b[pos], nil
}

func (r reader) u16(pos int) (uint16, error) {
	if pos < 0 || pos+2 > len(r.b) {
		return 0, fmt.Errorf("%w: truncated at %d", ErrInvalidModel, pos)
	}
	return binary.LittleEndian.Uint16(r.b[pos:]), nil
}

func (r reader) u32(pos int) (uint32, error) {
	if pos < 0 || pos+4 > len(r.b) {
		return 0, fmt.Errorf("%w: truncated at %d", ErrInvalidModel, pos)
	}
	return binary.LittleEndian.Uint32(r.b[pos:]), nil
}

func (r reader) i32(pos int) (int32, error) {
	v, err := r.u32(pos)
	return int32(v), err
}

// root returns the position of the root table.
func (r reader) root() (int, error) {
	off, err := r.u32(0)
	if err != nil {
		return 0, err
	}
	pos := int(off)
	if pos <= 0 || pos+4 > len(r.b) {
		return 0, fmt.Errorf("%w: bad root offset %d", ErrInvalidModel, pos)
	}
	return pos, nil
}

// field resolves a table field slot to its absolute position, or -1 if the
// field is absent from the table's vtable.
func (r reader) field(tpos, slot int) (int, error) {
	soff, err := r.i32(tpos)
	if err != nil {
		return 0, err
	}
	vt := tpos - int(soff)
	vtsize, err := r.u16(vt)
	if err != nil {
		return 0, err
	}
	entry := 4 + 2*slot
	if entry+2 > int(vtsize) {
		return -1, nil
	}
	off, err := r.u16(vt + entry)
	if err != nil {
		return 0, err
	}
	if off == 0 {
		return -1, nil
	}
	return tpos + int(off), nil
}

// indirect follows the forward offset stored at pos.
func (r reader) indirect(pos int) (int, error) {
	off, err := r.u32(pos)
	if err != nil {
		return 0, err
	}
	target := pos + int(off)
	if target <= pos || target+4 > len(r.b) {
		return 0, fmt.Errorf("%w: bad offset at %d", ErrInvalidModel, pos)
	}
	return target, nil
}

// vector resolves the offset field at pos to element base and count.
func (r reader) vector(pos int) (base int, count int, err error) {
	vpos, err := r.indirect(pos)
	if err != nil {
		return 0, 0, err
	}
	n, err := r.u32(vpos)
	if err != nil {
		return 0, 0, err
	}
	return vpos + 4, int(n), nil
}

// str resolves the offset field at pos to a string.
func (r reader) str(pos int) (string, error) {
	base, n, err := r.vector(pos)
	if err != nil {
		return "", err
	}
	if base+n > len(r.b) {
		return "", fmt.Errorf("%w: truncated string at %d", ErrInvalidModel, base)
	}
	return string(r.b[base : base+n]), nil
}
