package dispatch_test

import (
	"encoding/binary"
	"testing"

	"github.com/renesas/ethos-u-core-software/cpu"
	"github.com/renesas/ethos-u-core-software/dispatch"
	"github.com/renesas/ethos-u-core-software/mailbox"
	"github.com/renesas/ethos-u-core-software/msg"
	"github.com/renesas/ethos-u-core-software/queue"
)

// rig is one dispatcher with both queue ends visible to the test, which
// plays the host.
type rig struct {
	d        *dispatch.Dispatcher
	in, out  *msg.Channel
	inQ      *queue.Queue
	hostBell *mailbox.Loopback
	coreBell *mailbox.Loopback
	mem      *cpu.MemMap
	invoker  *echoInvoker
	hw       dispatch.HardwareInfo
}

func newRig(t *testing.T, opts ...func(*rig)) *rig {
	t.Helper()

	inRegion := cpu.MakePaddedSlice[byte](queue.HeaderBytes + 4096)
	outRegion := cpu.MakePaddedSlice[byte](queue.HeaderBytes + 4096)

	inQ, err := queue.New(inRegion)
	if err != nil {
		t.Fatal(err)
	}
	outQ, err := queue.New(outRegion)
	if err != nil {
		t.Fatal(err)
	}

	r := &rig{
		in:      msg.NewChannel(inQ),
		out:     msg.NewChannel(outQ),
		inQ:     inQ,
		mem:     &cpu.MemMap{},
		invoker: &echoInvoker{},
	}
	r.hostBell, r.coreBell = mailbox.NewLoopbackPair()
	for _, o := range opts {
		o(r)
	}

	r.d = dispatch.New(dispatch.Config{
		In:       msg.NewChannel(inQ),
		Out:      msg.NewChannel(outQ),
		Mailbox:  r.coreBell,
		Invoker:  r.invoker,
		Mem:      r.mem,
		Hardware: r.hw,
	})
	return r
}

// readRsp consumes one outbound frame and decodes its payload into v.
func readRsp[T any](t *testing.T, r *rig, want msg.Type) *T {
	t.Helper()
	hdr, ok := r.out.ReadHeader()
	if !ok {
		t.Fatal("no response frame")
	}
	if hdr.Magic != msg.Magic {
		t.Fatalf("response magic = %#x", hdr.Magic)
	}
	if hdr.Type != want {
		t.Fatalf("response type = %d, want %d", hdr.Type, want)
	}
	v := new(T)
	if err := msg.ReadOrSkip(r.out, v, hdr.Length); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestPingPong(t *testing.T) {
	r := newRig(t)

	if !r.in.WriteFrame(msg.TypePing, nil) {
		t.Fatal("ping did not fit")
	}
	if !r.d.HandleMessage() {
		t.Fatal("ping not handled")
	}

	hdr, ok := r.out.ReadHeader()
	if !ok || hdr.Magic != msg.Magic || hdr.Type != msg.TypePong || hdr.Length != 0 {
		t.Fatalf("pong header = %+v, ok = %v", hdr, ok)
	}
	if got := r.coreBell.Sent(); got != 1 {
		t.Errorf("mailbox signalled %d times, want 1", got)
	}
	if !r.in.Empty() {
		t.Error("inbound queue not drained")
	}
	if r.d.HandleMessage() {
		t.Error("handled a message on an empty queue")
	}
}

func TestVersion(t *testing.T) {
	r := newRig(t)

	r.in.WriteFrame(msg.TypeVersionReq, nil)
	r.d.HandleMessage()

	hdr, ok := r.out.ReadHeader()
	if !ok || hdr.Type != msg.TypeVersionRsp || hdr.Length != 4 {
		t.Fatalf("header = %+v, ok = %v", hdr, ok)
	}
	var ver msg.Version
	if err := msg.ReadOrSkip(r.out, &ver, hdr.Length); err != nil {
		t.Fatal(err)
	}
	want := msg.Version{Major: msg.VersionMajor, Minor: msg.VersionMinor, Patch: msg.VersionPatch}
	if ver != want {
		t.Errorf("version = %+v, want %+v", ver, want)
	}
}

func TestCorruptMagicRecovery(t *testing.T) {
	r := newRig(t)

	raw := make([]byte, 12)
	binary.LittleEndian.PutUint32(raw[0:], 0xdeadbeef)
	binary.LittleEndian.PutUint32(raw[4:], uint32(msg.TypePing))
	binary.LittleEndian.PutUint32(raw[8:], 0)
	r.inQ.Write(raw)

	if r.d.HandleMessage() {
		t.Error("corrupt frame handled as a message")
	}

	e := readRsp[msg.Err](t, r, msg.TypeErr)
	if e.Type != msg.ErrInvalidMagic {
		t.Errorf("err type = %d, want invalid magic", e.Type)
	}
	if got := r.inQ.Available(); got != 0 {
		t.Errorf("inbound read not advanced to write, %d bytes left", got)
	}
	if got := r.coreBell.Sent(); got != 1 {
		t.Errorf("mailbox signalled %d times, want 1", got)
	}
}

func TestTruncatedHeader(t *testing.T) {
	r := newRig(t)

	r.inQ.Write([]byte{1, 2, 3, 4, 5})
	if r.d.HandleMessage() {
		t.Error("truncated header handled as a message")
	}

	e := readRsp[msg.Err](t, r, msg.TypeErr)
	if e.Type != msg.ErrInvalidSize {
		t.Errorf("err type = %d, want invalid size", e.Type)
	}
	if got := r.inQ.Available(); got != 0 {
		t.Errorf("inbound queue not reset, %d bytes left", got)
	}
}

func TestUnknownType(t *testing.T) {
	r := newRig(t)

	r.in.WriteFrame(msg.Type(0x7777), []byte{1, 2, 3})
	if r.d.HandleMessage() {
		t.Error("unknown type handled as a message")
	}

	e := readRsp[msg.Err](t, r, msg.TypeErr)
	if e.Type != msg.ErrUnsupportedType {
		t.Errorf("err type = %d, want unsupported type", e.Type)
	}
	if e.Msg[0] == 0 {
		t.Error("error carries no explanation")
	}
	if got := r.inQ.Available(); got != 0 {
		t.Errorf("inbound queue not reset, %d bytes left", got)
	}
}

func TestErrInbound(t *testing.T) {
	r := newRig(t)

	e := msg.NewErr(msg.ErrGeneric, "host side trouble")
	msg.Write(r.in, msg.TypeErr, &e)
	r.in.WriteFrame(msg.TypePing, nil) // trailing bytes are discarded too

	if r.d.HandleMessage() {
		t.Error("inbound error treated as a handled message")
	}
	if !r.out.Empty() {
		t.Error("inbound error produced a reply")
	}
	if got := r.inQ.Available(); got != 0 {
		t.Errorf("inbound queue not reset, %d bytes left", got)
	}
	if got := r.coreBell.Sent(); got != 0 {
		t.Errorf("mailbox signalled %d times, want 0", got)
	}
}

func TestCapabilities(t *testing.T) {
	hw := msg.CapabilitiesRsp{
		VersionMajor:   2,
		DriverMajorRev: 21,
		DriverMinorRev: 5,
		MacsPerCC:      256,
	}
	r := newRig(t, func(r *rig) { r.hw = capsSource{hw} })

	req := msg.CapabilitiesReq{UserArg: 0xfeed_f00d}
	msg.Write(r.in, msg.TypeCapabilitiesReq, &req)
	r.d.HandleMessage()

	rsp := readRsp[msg.CapabilitiesRsp](t, r, msg.TypeCapabilitiesRsp)
	if rsp.UserArg != req.UserArg {
		t.Errorf("user_arg = %#x", rsp.UserArg)
	}
	if rsp.DriverMajorRev != 21 || rsp.MacsPerCC != 256 {
		t.Errorf("capabilities not filled from hardware: %+v", rsp)
	}
}

func TestCapabilitiesWithoutAccelerator(t *testing.T) {
	r := newRig(t)

	req := msg.CapabilitiesReq{UserArg: 7}
	msg.Write(r.in, msg.TypeCapabilitiesReq, &req)
	r.d.HandleMessage()

	rsp := readRsp[msg.CapabilitiesRsp](t, r, msg.TypeCapabilitiesRsp)
	if rsp.UserArg != 7 {
		t.Errorf("user_arg = %d", rsp.UserArg)
	}
	zero := *rsp
	zero.UserArg = 0
	if zero != (msg.CapabilitiesRsp{}) {
		t.Errorf("fields not zeroed: %+v", rsp)
	}
}

func TestInvalidPayloadLength(t *testing.T) {
	r := newRig(t)

	r.in.WriteFrame(msg.TypeInferenceReq, []byte{1, 2, 3, 4})
	if r.d.HandleMessage() {
		t.Error("bad payload handled as a message")
	}

	e := readRsp[msg.Err](t, r, msg.TypeErr)
	if e.Type != msg.ErrInvalidPayload {
		t.Errorf("err type = %d, want invalid payload", e.Type)
	}
	if got := r.inQ.Available(); got != 0 {
		t.Errorf("inbound queue not reset, %d bytes left", got)
	}
}

func TestResponsePerRequestOrdering(t *testing.T) {
	r := newRig(t)

	r.in.WriteFrame(msg.TypePing, nil)
	r.in.WriteFrame(msg.TypeVersionReq, nil)

	// Each handled request emits its response before the next request is
	// consumed.
	r.d.HandleMessage()
	if hdr, ok := r.out.ReadHeader(); !ok || hdr.Type != msg.TypePong {
		t.Fatalf("first response = %+v, ok = %v", hdr, ok)
	}
	if !r.out.Empty() {
		t.Fatal("second response emitted before second request was consumed")
	}
	r.d.HandleMessage()
	if hdr, ok := r.out.ReadHeader(); !ok || hdr.Type != msg.TypeVersionRsp {
		t.Fatalf("second response = %+v, ok = %v", hdr, ok)
	}
}

type capsSource struct{ caps msg.CapabilitiesRsp }

func (c capsSource) Capabilities() msg.CapabilitiesRsp { return c.caps }
