// Package dispatch drains inference and control messages from the inbound
// queue and serialises responses into the outbound queue, in request order.
// It is the firmware's single foreground loop: the mailbox IRQ only sets a
// pending flag and wakes it.
package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/renesas/ethos-u-core-software/cpu"
	"github.com/renesas/ethos-u-core-software/elog"
	"github.com/renesas/ethos-u-core-software/inference"
	"github.com/renesas/ethos-u-core-software/mailbox"
	"github.com/renesas/ethos-u-core-software/msg"
	"github.com/renesas/ethos-u-core-software/profiler"
)

// HardwareInfo reports accelerator and driver versions for the
// capabilities response. Platforms without an accelerator leave it nil and
// report zeroes.
type HardwareInfo interface {
	Capabilities() msg.CapabilitiesRsp
}

// Config wires a Dispatcher.
type Config struct {
	In       *msg.Channel
	Out      *msg.Channel
	Mailbox  mailbox.Mailbox
	Invoker  inference.Invoker
	Mem      *cpu.MemMap
	Hardware HardwareInfo
}

// Dispatcher owns both queue ends and the job lifecycle. All methods must
// be called from the same goroutine; only the mailbox callback runs
// elsewhere.
type Dispatcher struct {
	in     *msg.Channel
	out    *msg.Channel
	mbox   mailbox.Mailbox
	runner *inference.Runner
	mem    *cpu.MemMap
	hw     HardwareInfo

	pending atomic.Bool
	wake    chan struct{}
	jobs    uint64
}

// New returns a dispatcher and installs its doorbell callback.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		in:     cfg.In,
		out:    cfg.Out,
		mbox:   cfg.Mailbox,
		runner: inference.NewRunner(cfg.Invoker),
		mem:    cfg.Mem,
		hw:     cfg.Hardware,
		wake:   make(chan struct{}, 1),
	}
	d.mbox.RegisterCallback(d.handleIRQ)
	return d
}

// handleIRQ runs in interrupt context.
func (d *Dispatcher) handleIRQ() {
	d.pending.Store(true)
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run drains the inbound queue and suspends until the doorbell rings,
// until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		d.pending.Store(false)

		for d.HandleMessage() {
		}

		if d.pending.Load() {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.wake:
		}
	}
}

// HandleMessage consumes at most one inbound frame and reports whether the
// loop should look for another. Handling runs to completion; a partially
// available payload is a protocol error, never a reason to wait.
func (d *Dispatcher) HandleMessage() bool {
	if d.in.Empty() {
		return false
	}

	hdr, ok := d.in.ReadHeader()
	if !ok {
		d.errorRspAndReset(msg.ErrInvalidSize, "Failed to read a complete header")
		return false
	}

	elog.Info("msg: header", "magic", hdr.Magic, "type", uint32(hdr.Type), "length", hdr.Length)

	if hdr.Magic != msg.Magic {
		d.errorRspAndReset(msg.ErrInvalidMagic, "Invalid magic")
		return false
	}

	switch hdr.Type {
	case msg.TypePing:
		elog.Info("msg: ping")
		d.sendPong()

	case msg.TypeErr:
		var e msg.Err
		if !msg.Read(d.in, &e) {
			elog.Err("msg: failed to receive error message")
		} else {
			elog.Info("msg: received an error response",
				"type", uint32(e.Type), "msg", cstr(e.Msg[:]))
		}
		d.in.Reset()
		return false

	case msg.TypeVersionReq:
		elog.Info("msg: version request")
		d.sendVersionRsp()

	case msg.TypeCapabilitiesReq:
		var req msg.CapabilitiesReq
		if err := msg.ReadOrSkip(d.in, &req, hdr.Length); err != nil {
			d.errorRspAndReset(msg.ErrInvalidPayload, "CapabilitiesReq. Failed to read payload")
			return false
		}
		elog.Info("msg: capabilities request", "user_arg", req.UserArg)
		d.sendCapabilitiesRsp(req.UserArg)

	case msg.TypeInferenceReq:
		var req msg.InferenceReq
		if err := msg.ReadOrSkip(d.in, &req, hdr.Length); err != nil {
			d.errorRspAndReset(msg.ErrInvalidPayload, "InferenceReq. Failed to read payload")
			return false
		}
		d.handleInferenceReq(&req)

	default:
		d.errorRspAndReset(msg.ErrUnsupportedType,
			fmt.Sprintf("Unknown message type: %d with payload length %d bytes", hdr.Type, hdr.Length))
		return false
	}

	return true
}

// handleInferenceReq builds and runs one job and always answers with an
// inference response; resolution and run failures surface as status only.
func (d *Dispatcher) handleInferenceReq(req *msg.InferenceReq) {
	d.jobs++
	name := fmt.Sprintf("job %d", d.jobs)

	elog.Info("msg: inference request", "user_arg", req.UserArg,
		"network", req.Network, "ifm_count", req.IfmCount, "ofm_count", req.OfmCount)

	job, err := d.buildJob(name, req)
	if err != nil {
		elog.Err("msg: dropping inference request", "name", name, "err", err)
		d.sendInferenceRsp(req.UserArg, &inference.Job{PMU: pmuConfig(req)}, true)
		return
	}

	failed := d.runner.Run(job)
	d.sendInferenceRsp(req.UserArg, job, failed)
}

// buildJob resolves the request's buffer descriptors against the platform
// memory map.
func (d *Dispatcher) buildJob(name string, req *msg.InferenceReq) (*inference.Job, error) {
	if req.IfmCount > msg.BufferMax || req.OfmCount > msg.BufferMax {
		return nil, fmt.Errorf("dispatch: buffer count out of range: ifm=%d ofm=%d",
			req.IfmCount, req.OfmCount)
	}

	job := &inference.Job{
		Name: name,
		PMU:  pmuConfig(req),
	}

	var err error
	if job.Network, err = inference.ResolveRef(d.mem, cpu.Addr(req.Network.Ptr), req.Network.Size); err != nil {
		return nil, err
	}
	for i := uint32(0); i < req.IfmCount; i++ {
		ref, err := inference.ResolveRef(d.mem, cpu.Addr(req.Ifm[i].Ptr), req.Ifm[i].Size)
		if err != nil {
			return nil, err
		}
		job.Input = append(job.Input, ref)
	}
	for i := uint32(0); i < req.OfmCount; i++ {
		ref, err := inference.ResolveRef(d.mem, cpu.Addr(req.Ofm[i].Ptr), req.Ofm[i].Size)
		if err != nil {
			return nil, err
		}
		job.Output = append(job.Output, ref)
	}
	return job, nil
}

func pmuConfig(req *msg.InferenceReq) (cfg profiler.Config) {
	cfg.Events = req.PmuEventConfig
	cfg.CycleCounter = req.PmuCycleCounterEnable != 0
	return cfg
}

func (d *Dispatcher) sendPong() {
	if !d.out.WriteFrame(msg.TypePong, nil) {
		elog.Err("msg: failed to write pong response, no mailbox message sent")
		return
	}
	d.mbox.Send()
}

func (d *Dispatcher) sendVersionRsp() {
	ver := msg.Version{
		Major: msg.VersionMajor,
		Minor: msg.VersionMinor,
		Patch: msg.VersionPatch,
	}
	if !msg.Write(d.out, msg.TypeVersionRsp, &ver) {
		elog.Err("msg: failed to write version response, no mailbox message sent")
		return
	}
	d.mbox.Send()
}

func (d *Dispatcher) sendCapabilitiesRsp(userArg uint64) {
	var rsp msg.CapabilitiesRsp
	if d.hw != nil {
		rsp = d.hw.Capabilities()
	}
	rsp.UserArg = userArg

	if !msg.Write(d.out, msg.TypeCapabilitiesRsp, &rsp) {
		elog.Err("msg: failed to write capabilities response, no mailbox message sent")
		return
	}
	d.mbox.Send()
}

func (d *Dispatcher) sendInferenceRsp(userArg uint64, job *inference.Job, failed bool) {
	rsp := msg.InferenceRsp{
		UserArg:  userArg,
		OfmCount: uint32(len(job.Output)),
		Status:   msg.StatusOK,
	}
	if failed {
		rsp.Status = msg.StatusError
	}
	for i := range job.Output {
		rsp.OfmSize[i] = job.Output[i].Size
	}
	rsp.PmuEventConfig = job.PMU.Events
	if job.PMU.CycleCounter {
		rsp.PmuCycleCounterEnable = 1
	}
	rsp.PmuEventCount = job.PMUResult.EventCount
	rsp.PmuCycleCounterCount = job.PMUResult.CycleCount

	elog.Info("msg: sending inference response",
		"user_arg", rsp.UserArg, "ofm_count", rsp.OfmCount, "status", rsp.Status)

	if !msg.Write(d.out, msg.TypeInferenceRsp, &rsp) {
		elog.Err("msg: failed to write inference response, no mailbox message sent")
		return
	}
	d.mbox.Send()
}

// errorRspAndReset reports a protocol error to the host and discards
// whatever is left in the inbound queue. If the response doesn't fit, the
// queue is left alone and no doorbell rings; the peer has nothing coherent
// to read.
func (d *Dispatcher) errorRspAndReset(t msg.ErrType, text string) {
	elog.Err("msg: protocol error", "type", uint32(t), "msg", text)

	e := msg.NewErr(t, text)
	if !msg.Write(d.out, msg.TypeErr, &e) {
		elog.Err("msg: failed to write error response, no mailbox message sent")
		return
	}
	d.in.Reset()
	d.mbox.Send()
}

// cstr cuts b at its first NUL.
func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
