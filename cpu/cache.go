// The CPU accesses RAM through a cache and in general assumes that there are
// no other readers or writers. Since the stored value in the cache can divert
// from the stored value in RAM for a limited amount of time, we need to sync
// both before the host or the NPU are involved.
//
// All operations in this package refer to the data cache. Instruction cache
// won't be affected.
package cpu

import "unsafe"

// CacheLineSize is the data cache line size of the target core.
const CacheLineSize = 32

// Cache operations always affect a whole cache line. To avoid invalidating
// unrelated data in a cache line, pad shared buffers with CacheLinePad at the
// beginning and end.
type CacheLinePad struct{ _ [CacheLineSize]byte }

// CacheOps are the target's cache maintenance primitives. Both operate on a
// byte range and may round outwards to cache line boundaries.
type CacheOps struct {
	// Writeback cleans dirty lines in [addr, addr+length) to RAM.
	Writeback func(addr uintptr, length int)
	// Invalidate drops cached lines in [addr, addr+length) so the next
	// load reads RAM.
	Invalidate func(addr uintptr, length int)
}

var ops CacheOps

// SetCacheOps installs the target's cache maintenance primitives. Cores
// without a data cache leave them unset, which makes Writeback and
// Invalidate no-ops.
func SetCacheOps(o CacheOps) {
	ops = o
}

// Writeback causes the cache to be written back to RAM. Call this before
// requesting another component to read from this address range. If the
// specified address is currently not cached, this is a no-op.
func Writeback(addr uintptr, length int) {
	if ops.Writeback != nil {
		ops.Writeback(addr, length)
	}
}

// Invalidate causes the cache to be read from RAM before next access. Call
// this after the address range was written by another component. If the
// specified address is currently not cached, this is a no-op.
func Invalidate(addr uintptr, length int) {
	if ops.Invalidate != nil {
		ops.Invalidate(addr, length)
	}
}

// MakePaddedSlice returns a slice that is safe for cache ops. Its start is
// aligned to CacheLineSize and the end is padded to fill the cache line.
// Note that using append() might corrupt the padding.
func MakePaddedSlice[T any](size int) []T {
	var t T
	cls := CacheLineSize / int(unsafe.Sizeof(t))
	buf := make([]T, 0, cls+size+cls)
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	shift := (CacheLineSize - int(addr)%CacheLineSize) / int(unsafe.Sizeof(t))
	return buf[shift : shift+size]
}

// PaddedSlice ensures a slice is padded. Might copy the slice if necessary.
func PaddedSlice[T any](slice []T) []T {
	if IsPadded(slice) == false {
		buf := MakePaddedSlice[T](len(slice))
		copy(buf, slice)
		return buf
	}
	return slice
}

// IsPadded returns true if p is safe for cache ops, i.e. padded and aligned
// to cache.
func IsPadded[T any](p []T) bool {
	var t T
	cls := CacheLineSize / int(unsafe.Sizeof(t))

	addr := uintptr(unsafe.Pointer(unsafe.SliceData(p)))
	return addr%CacheLineSize == 0 && cap(p)-len(p) >= cls-len(p)%cls
}

// WritebackSlice writes back the cache lines holding buf.
func WritebackSlice[T any](buf []T) {
	if len(buf) == 0 {
		return
	}
	var t T
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	Writeback(addr, len(buf)*int(unsafe.Sizeof(t)))
}

// InvalidateSlice invalidates the cache lines holding buf.
func InvalidateSlice[T any](buf []T) {
	if len(buf) == 0 {
		return
	}
	var t T
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	Invalidate(addr, len(buf)*int(unsafe.Sizeof(t)))
}
