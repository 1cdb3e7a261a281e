package cpu

import (
	"errors"
	"fmt"
	"sort"
)

// Addr is an address as seen on the shared bus. The host passes tensor and
// model buffers by bus address; they must be translated to a local mapping
// before use.
type Addr uint32

// ErrUnmapped is returned when a bus address range has no local mapping.
var ErrUnmapped = errors.New("cpu: address not mapped")

type window struct {
	base Addr
	mem  []byte
}

// MemMap translates bus address ranges to local memory. The platform
// registers its shared SRAM and DRAM windows once at boot; lookups are
// read-only afterwards.
type MemMap struct {
	windows []window
}

// Map registers mem at bus address base. Overlapping windows are rejected.
func (m *MemMap) Map(base Addr, mem []byte) error {
	lo, hi := uint64(base), uint64(base)+uint64(len(mem))
	if hi > 1<<32 {
		return fmt.Errorf("cpu: window %#x+%#x exceeds bus address space", base, len(mem))
	}
	for _, w := range m.windows {
		wlo, whi := uint64(w.base), uint64(w.base)+uint64(len(w.mem))
		if lo < whi && wlo < hi {
			return fmt.Errorf("cpu: window %#x+%#x overlaps %#x+%#x", base, len(mem), w.base, len(w.mem))
		}
	}
	m.windows = append(m.windows, window{base, mem})
	sort.Slice(m.windows, func(i, j int) bool { return m.windows[i].base < m.windows[j].base })
	return nil
}

// Slice returns the local bytes backing [addr, addr+size). The range must
// lie within a single registered window.
func (m *MemMap) Slice(addr Addr, size uint32) ([]byte, error) {
	for _, w := range m.windows {
		if addr >= w.base && uint64(addr)+uint64(size) <= uint64(w.base)+uint64(len(w.mem)) {
			off := int(addr - w.base)
			return w.mem[off : off+int(size) : off+int(size)], nil
		}
	}
	return nil, fmt.Errorf("%w: %#x+%#x", ErrUnmapped, addr, size)
}
