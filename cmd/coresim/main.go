// Coresim runs the firmware control plane against an in-process host: both
// shared queues live in ordinary memory, the doorbells are loopback
// mailboxes and the NPU is a software invoker that echoes its input. Useful
// for exercising the full message path without a target.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/renesas/ethos-u-core-software/cpu"
	"github.com/renesas/ethos-u-core-software/dispatch"
	"github.com/renesas/ethos-u-core-software/elog"
	"github.com/renesas/ethos-u-core-software/inference"
	"github.com/renesas/ethos-u-core-software/mailbox"
	"github.com/renesas/ethos-u-core-software/msg"
	"github.com/renesas/ethos-u-core-software/queue"
	"github.com/renesas/ethos-u-core-software/tflite"
)

const arenaBase cpu.Addr = 0x6000_0000

func main() {
	queueSize := flag.Int("queue-size", 4096, "data bytes per shared queue")
	requests := flag.Int("requests", 4, "number of inference requests to run")
	verbose := flag.Bool("v", false, "log at debug level")
	flag.Parse()

	if *verbose {
		elog.SetLogger(slog.New(slog.NewTextHandler(os.Stderr,
			&slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	if err := run(*queueSize, *requests); err != nil {
		fmt.Fprintln(os.Stderr, "coresim:", err)
		os.Exit(1)
	}
}

func run(queueSize, requests int) error {
	// Shared memory as the host driver would set it up: two queue
	// regions and an arena holding model and tensor buffers.
	inRegion := cpu.MakePaddedSlice[byte](queue.HeaderBytes + queueSize)
	outRegion := cpu.MakePaddedSlice[byte](queue.HeaderBytes + queueSize)
	arena := cpu.MakePaddedSlice[byte](1 << 20)

	mem := &cpu.MemMap{}
	if err := mem.Map(arenaBase, arena); err != nil {
		return err
	}

	inQ, err := queue.New(inRegion)
	if err != nil {
		return err
	}
	outQ, err := queue.New(outRegion)
	if err != nil {
		return err
	}

	hostBell, coreBell := mailbox.NewLoopbackPair()

	d := dispatch.New(dispatch.Config{
		In:      msg.NewChannel(inQ),
		Out:     msg.NewChannel(outQ),
		Mailbox: coreBell,
		Invoker: &echoInvoker{},
		Mem:     mem,
	})

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := d.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer cancel()
		h := &host{
			in:   msg.NewChannel(inQ),
			out:  msg.NewChannel(outQ),
			bell: hostBell,
			rsp:  make(chan struct{}, 1),
		}
		h.bell.RegisterCallback(func() {
			select {
			case h.rsp <- struct{}{}:
			default:
			}
		})
		return h.drive(ctx, arena, requests)
	})

	return g.Wait()
}

// host plays the CPU side of the protocol.
type host struct {
	in   *msg.Channel
	out  *msg.Channel
	bell *mailbox.Loopback
	rsp  chan struct{}
}

func (h *host) drive(ctx context.Context, arena []byte, requests int) error {
	if !h.in.WriteFrame(msg.TypePing, nil) {
		return errors.New("ping did not fit")
	}
	h.bell.Send()
	if _, err := awaitRsp[struct{}](ctx, h, msg.TypePong); err != nil {
		return err
	}
	fmt.Println("ping: pong")

	if !h.in.WriteFrame(msg.TypeVersionReq, nil) {
		return errors.New("version request did not fit")
	}
	h.bell.Send()
	ver, err := awaitRsp[msg.Version](ctx, h, msg.TypeVersionRsp)
	if err != nil {
		return err
	}
	fmt.Printf("version: %d.%d.%d\n", ver.Major, ver.Minor, ver.Patch)

	capReq := msg.CapabilitiesReq{UserArg: 0xcafe}
	if !msg.Write(h.in, msg.TypeCapabilitiesReq, &capReq) {
		return errors.New("capabilities request did not fit")
	}
	h.bell.Send()
	caps, err := awaitRsp[msg.CapabilitiesRsp](ctx, h, msg.TypeCapabilitiesRsp)
	if err != nil {
		return err
	}
	fmt.Printf("capabilities: driver %d.%d.%d\n",
		caps.DriverMajorRev, caps.DriverMinorRev, caps.DriverPatchRev)

	// Lay out model, IFM and OFM in the arena the way the host driver
	// would, then run the requested number of inferences.
	model := tflite.ModelSpec{
		Description: "coresim echo",
		Inputs:      []tflite.TensorSpec{{Shape: []int32{1, 16}, Type: tflite.Int8}},
		Outputs:     []tflite.TensorSpec{{Shape: []int32{1, 16}, Type: tflite.Int8}},
	}.Build()

	modelAddr := arenaBase
	ifmAddr := modelAddr + cpu.Addr(len(model)+63)&^63
	ofmAddr := ifmAddr + 64
	copy(arena, model)

	for n := 0; n < requests; n++ {
		ifm := arena[ifmAddr-arenaBase:][:16]
		for i := range ifm {
			ifm[i] = byte(n + i)
		}

		req := msg.InferenceReq{
			UserArg:  uint64(n),
			Network:  msg.Buffer{Ptr: uint32(modelAddr), Size: uint32(len(model))},
			IfmCount: 1,
			OfmCount: 1,
		}
		req.Ifm[0] = msg.Buffer{Ptr: uint32(ifmAddr), Size: 16}
		req.Ofm[0] = msg.Buffer{Ptr: uint32(ofmAddr), Size: 16}

		if !msg.Write(h.in, msg.TypeInferenceReq, &req) {
			return errors.New("inference request did not fit")
		}
		h.bell.Send()

		rsp, err := awaitRsp[msg.InferenceRsp](ctx, h, msg.TypeInferenceRsp)
		if err != nil {
			return err
		}
		if rsp.Status != msg.StatusOK {
			return fmt.Errorf("inference %d failed", n)
		}
		ofm := arena[ofmAddr-arenaBase:][:16]
		fmt.Printf("inference %d: ofm_size=%d data=% x\n", n, rsp.OfmSize[0], ofm)
	}

	return nil
}

// awaitRsp blocks until one frame arrives on the outbound queue and decodes
// it; a frame of any type other than want is an error.
func awaitRsp[T any](ctx context.Context, h *host, want msg.Type) (*T, error) {
	for {
		if h.out.Empty() {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-h.rsp:
			}
			continue
		}

		hdr, ok := h.out.ReadHeader()
		if !ok {
			return nil, errors.New("short response header")
		}
		if hdr.Magic != msg.Magic {
			return nil, fmt.Errorf("bad response magic %#x", hdr.Magic)
		}
		if hdr.Type != want {
			return nil, fmt.Errorf("unexpected response type %d, want %d", hdr.Type, want)
		}
		v := new(T)
		if err := msg.ReadOrSkip(h.out, v, hdr.Length); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// echoInvoker is a stand-in NPU runtime: it validates the model with the
// parser, allocates tensors per the parsed sizes and "computes" by copying
// each input to the matching output.
type echoInvoker struct{}

type echoHandle struct {
	inputs  []inference.Tensor
	outputs []inference.Tensor
	arena   int
	cycles  uint64
}

func (e *echoInvoker) Load(model []byte) (inference.Handle, error) {
	info, err := tflite.ParseModel(model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", inference.ErrModelInvalid, err)
	}

	h := &echoHandle{}
	for _, n := range info.IfmSizes {
		h.inputs = append(h.inputs, inference.Tensor{Data: make([]byte, n)})
		h.arena += int(n)
	}
	for _, n := range info.OfmSizes {
		h.outputs = append(h.outputs, inference.Tensor{Data: make([]byte, n)})
		h.arena += int(n)
	}
	return h, nil
}

func (e *echoInvoker) Invoke(handle inference.Handle) error {
	h := handle.(*echoHandle)
	for i := range h.outputs {
		if i < len(h.inputs) {
			copy(h.outputs[i].Data, h.inputs[i].Data)
		}
		h.cycles += uint64(len(h.outputs[i].Data))
	}
	return nil
}

func (h *echoHandle) Inputs() []inference.Tensor  { return h.inputs }
func (h *echoHandle) Outputs() []inference.Tensor { return h.outputs }
func (h *echoHandle) ArenaUsedBytes() int         { return h.arena }
func (h *echoHandle) TotalCycles() uint64         { return h.cycles }
