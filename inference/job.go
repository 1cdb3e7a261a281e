// Package inference runs one forward pass per request against the NPU
// runtime. The runtime itself (model parsing, tensor allocation, kernel
// execution) is behind the Invoker interface; this package owns the job
// lifecycle around it: cache maintenance, tensor copy-in/copy-out and
// result checking.
package inference

import (
	"github.com/renesas/ethos-u-core-software/cpu"
	"github.com/renesas/ethos-u-core-software/profiler"
)

// DataRef borrows one host-shared memory region for the duration of a
// request. Ownership stays with the host; the firmware reads and writes in
// place with explicit cache maintenance around every use.
type DataRef struct {
	// Addr is the region's bus address, zero for locally owned buffers.
	Addr cpu.Addr
	// Size is the number of valid bytes. Updated to the tensor's byte
	// count when the region receives an output.
	Size uint32

	bytes []byte
}

// ResolveRef translates a host-provided {ptr, size} pair through the
// platform memory map.
func ResolveRef(mem *cpu.MemMap, addr cpu.Addr, size uint32) (DataRef, error) {
	b, err := mem.Slice(addr, size)
	if err != nil {
		return DataRef{}, err
	}
	return DataRef{Addr: addr, Size: size, bytes: b}, nil
}

// RefOf borrows a locally owned buffer.
func RefOf(b []byte) DataRef {
	return DataRef{Size: uint32(len(b)), bytes: b}
}

// Bytes returns the full backing region, independent of Size.
func (d *DataRef) Bytes() []byte { return d.bytes }

// Invalidate drops cached lines of the region before reading data the host
// produced.
func (d *DataRef) Invalidate() { cpu.InvalidateSlice(d.bytes) }

// Flush writes back cached lines of the region after producing data for the
// host.
func (d *DataRef) Flush() { cpu.WritebackSlice(d.bytes) }

// Job is one decoded inference request. It is mutated only by the runner
// during its single run and discarded once the response is out.
type Job struct {
	Name           string
	Network        DataRef
	Input          []DataRef
	Output         []DataRef
	ExpectedOutput []DataRef

	// PrintBudget caps how many bytes of each output tensor are printed
	// once the outputs are copied out, before the expected-output
	// comparison. Any non-positive value prints nothing.
	PrintBudget int

	PMU       profiler.Config
	PMUResult profiler.Result

	// ExternalContext is handed through to the invoker untouched.
	ExternalContext any
}

// Invalidate drops cached lines of every region the job will read: the
// model, the inputs and the expected outputs. Output regions are only
// written, their lines need no invalidate.
func (j *Job) Invalidate() {
	j.Network.Invalidate()
	for i := range j.Input {
		j.Input[i].Invalidate()
	}
	for i := range j.ExpectedOutput {
		j.ExpectedOutput[i].Invalidate()
	}
}

// Flush writes back every region the job produced for the host.
func (j *Job) Flush() {
	for i := range j.Output {
		j.Output[i].Flush()
	}
}
