package mailbox

import (
	"fmt"

	"github.com/renesas/ethos-u-core-software/cpu"
)

// MHURegs is the register block of one message handling unit channel pair.
// IntrSet raises the interrupt on the peer, IntrStat and IntrClear handle
// the local one. PID identifies the peripheral.
type MHURegs struct {
	IntrSet   cpu.U32
	IntrStat  cpu.U32
	IntrClear cpu.U32
	PID       cpu.U32
}

// MHUPID is the expected value of the PID register.
const MHUPID uint32 = 0x45521910

// MHU drives a message handling unit doorbell. Construct with NewMHU, then
// route the platform's MHU interrupt to HandleIRQ.
type MHU struct {
	regs *MHURegs
	cb   Callback
}

// NewMHU returns a driver for the channel pair at regs.
func NewMHU(regs *MHURegs) *MHU {
	return &MHU{regs: regs}
}

// Send rings the peer. Any store to the set register raises the remote
// interrupt.
func (m *MHU) Send() {
	m.regs.IntrSet.Store(1)
}

// RegisterCallback installs cb to run from HandleIRQ.
func (m *MHU) RegisterCallback(cb Callback) {
	m.cb = cb
}

// HandleIRQ acknowledges the inbound doorbell and runs the callback. Must
// be called from the platform's interrupt handler for this channel.
func (m *MHU) HandleIRQ() {
	m.regs.IntrClear.Store(m.regs.IntrStat.Load())
	if cb := m.cb; cb != nil {
		cb()
	}
}

// VerifyHardware probes the peripheral id register.
func (m *MHU) VerifyHardware() error {
	if pid := m.regs.PID.Load(); pid != MHUPID {
		return fmt.Errorf("mailbox: unexpected MHU PID %#x", pid)
	}
	return nil
}
