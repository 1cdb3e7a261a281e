package msg

import (
	"testing"
	"unsafe"
)

// The structs in msg.go are shared with the host driver byte for byte, so
// pin every size and field offset. CapabilitiesRsp is 60 bytes of fields
// plus 4 bytes of tail padding.
func TestWireLayout(t *testing.T) {
	var (
		hdr  Header
		e    Err
		ver  Version
		capq CapabilitiesReq
		capr CapabilitiesRsp
		req  InferenceReq
		rsp  InferenceRsp
	)

	sizes := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"Header", unsafe.Sizeof(hdr), 12},
		{"Err", unsafe.Sizeof(e), 132},
		{"Version", unsafe.Sizeof(ver), 4},
		{"CapabilitiesReq", unsafe.Sizeof(capq), 8},
		{"CapabilitiesRsp", unsafe.Sizeof(capr), 64},
		{"InferenceReq", unsafe.Sizeof(req), 288},
		{"InferenceRsp", unsafe.Sizeof(rsp), 112},
	}
	for _, s := range sizes {
		if s.got != s.want {
			t.Errorf("sizeof(%s) = %d, want %d", s.name, s.got, s.want)
		}
	}

	offsets := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"Header.Type", unsafe.Offsetof(hdr.Type), 4},
		{"Header.Length", unsafe.Offsetof(hdr.Length), 8},
		{"Err.Msg", unsafe.Offsetof(e.Msg), 4},
		{"InferenceReq.Network", unsafe.Offsetof(req.Network), 8},
		{"InferenceReq.IfmCount", unsafe.Offsetof(req.IfmCount), 16},
		{"InferenceReq.Ifm", unsafe.Offsetof(req.Ifm), 20},
		{"InferenceReq.OfmCount", unsafe.Offsetof(req.OfmCount), 148},
		{"InferenceReq.Ofm", unsafe.Offsetof(req.Ofm), 152},
		{"InferenceReq.PmuEventConfig", unsafe.Offsetof(req.PmuEventConfig), 280},
		{"InferenceReq.PmuCycleCounterEnable", unsafe.Offsetof(req.PmuCycleCounterEnable), 284},
		{"InferenceRsp.OfmCount", unsafe.Offsetof(rsp.OfmCount), 8},
		{"InferenceRsp.OfmSize", unsafe.Offsetof(rsp.OfmSize), 12},
		{"InferenceRsp.Status", unsafe.Offsetof(rsp.Status), 76},
		{"InferenceRsp.PmuEventConfig", unsafe.Offsetof(rsp.PmuEventConfig), 80},
		{"InferenceRsp.PmuEventCount", unsafe.Offsetof(rsp.PmuEventCount), 88},
		{"InferenceRsp.PmuCycleCounterCount", unsafe.Offsetof(rsp.PmuCycleCounterCount), 104},
		{"CapabilitiesRsp.DriverMajorRev", unsafe.Offsetof(capr.DriverMajorRev), 44},
	}
	for _, o := range offsets {
		if o.got != o.want {
			t.Errorf("offsetof(%s) = %d, want %d", o.name, o.got, o.want)
		}
	}
}

func TestNewErrTruncates(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	e := NewErr(ErrGeneric, string(long))
	if e.Msg[len(e.Msg)-1] != 0 {
		t.Error("message not NUL terminated")
	}
}
