package mailbox_test

import (
	"testing"

	"github.com/renesas/ethos-u-core-software/mailbox"
)

func TestLoopbackPair(t *testing.T) {
	a, b := mailbox.NewLoopbackPair()

	var gotA, gotB int
	a.RegisterCallback(func() { gotA++ })
	b.RegisterCallback(func() { gotB++ })

	a.Send()
	a.Send()
	b.Send()

	if gotB != 2 || gotA != 1 {
		t.Errorf("callbacks a=%d b=%d, want a=1 b=2", gotA, gotB)
	}
	if a.Sent() != 2 || b.Sent() != 1 {
		t.Errorf("sent a=%d b=%d", a.Sent(), b.Sent())
	}
}

func TestLoopbackWithoutCallback(t *testing.T) {
	a, _ := mailbox.NewLoopbackPair()
	a.Send() // must not panic
}

func TestMHU(t *testing.T) {
	regs := &mailbox.MHURegs{}
	m := mailbox.NewMHU(regs)

	if err := m.VerifyHardware(); err == nil {
		t.Error("verify passed on blank registers")
	}
	regs.PID.Store(mailbox.MHUPID)
	if err := m.VerifyHardware(); err != nil {
		t.Error(err)
	}

	m.Send()
	if regs.IntrSet.Load() == 0 {
		t.Error("send did not touch the set register")
	}

	fired := 0
	m.RegisterCallback(func() { fired++ })
	regs.IntrStat.Store(1)
	m.HandleIRQ()
	if fired != 1 {
		t.Error("callback not invoked")
	}
	if regs.IntrClear.Load() != 1 {
		t.Error("interrupt not acknowledged")
	}
}
