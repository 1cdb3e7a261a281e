package cpu

import "sync/atomic"

// U32 is a 32-bit memory mapped register. Accesses are single aligned loads
// and stores, which the bus requires for device memory.
type U32 struct {
	r uint32
}

// Load reads the register.
func (u *U32) Load() uint32 {
	return atomic.LoadUint32(&u.r)
}

// Store writes the register.
func (u *U32) Store(v uint32) {
	atomic.StoreUint32(&u.r, v)
}
