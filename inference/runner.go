package inference

import (
	"bytes"
	"fmt"

	"github.com/renesas/ethos-u-core-software/elog"
)

// Runner executes inference jobs against one Invoker. It is single-threaded
// and non-reentrant; the dispatcher calls it once per decoded request.
type Runner struct {
	invoker Invoker
}

// NewRunner returns a runner backed by inv.
func NewRunner(inv Invoker) *Runner {
	return &Runner{invoker: inv}
}

// Run executes job to completion and reports whether it failed. Any failing
// step aborts the job; details go to the log, the caller only sees the
// boolean, which becomes the response status.
func (r *Runner) Run(job *Job) (failed bool) {
	elog.Info("inference: running job", "name", job.Name)

	job.Invalidate()
	defer job.Flush()

	handle, err := r.invoker.Load(job.Network.Bytes())
	if err != nil {
		elog.Err("inference: load failed", "name", job.Name, "err", err)
		return true
	}
	if cs, ok := handle.(ContextSetter); ok && job.ExternalContext != nil {
		cs.SetExternalContext(job.ExternalContext)
	}

	if failed = r.copyIn(job, handle); failed {
		return true
	}

	if err := r.invoker.Invoke(handle); err != nil {
		elog.Err("inference: invoke failed", "name", job.Name, "err", err)
		return true
	}

	elog.Info("inference: invoke done", "name", job.Name,
		"arena_used_bytes", handle.ArenaUsedBytes(), "cycles", handle.TotalCycles())

	if job.PMU.CycleCounter {
		job.PMUResult.CycleCount = handle.TotalCycles()
	}
	job.PMUResult.EventCount = pmuCounts(handle)

	if failed = r.copyOut(job, handle); failed {
		return true
	}

	if job.PrintBudget > 0 {
		printOutputs(handle, job.PrintBudget)
	}

	if failed = r.compare(job, handle); failed {
		return true
	}

	elog.Info("inference: finished job", "name", job.Name)
	return false
}

// copyIn feeds the job's input buffers into the model's non-empty input
// tensors.
func (r *Runner) copyIn(job *Job, handle Handle) bool {
	var tensors []Tensor
	for _, t := range handle.Inputs() {
		if t.Bytes() > 0 {
			tensors = append(tensors, t)
		}
	}

	if len(job.Input) != len(tensors) {
		elog.Err("inference: input count does not match non-empty network tensors",
			"name", job.Name, "input", len(job.Input), "network", len(tensors))
		return true
	}

	for i, t := range tensors {
		in := &job.Input[i]
		if int(in.Size) != t.Bytes() {
			elog.Err("inference: input size does not match network tensor",
				"name", job.Name, "index", i, "input", in.Size, "network", t.Bytes())
			return true
		}
		copy(t.Data, in.Bytes()[:in.Size])
	}
	return false
}

// copyOut stores the model's output tensors into the job's output buffers
// and records each tensor's byte count.
func (r *Runner) copyOut(job *Job, handle Handle) bool {
	if len(job.Output) == 0 {
		return false
	}

	tensors := handle.Outputs()
	if len(job.Output) != len(tensors) {
		elog.Err("inference: output count mismatch",
			"name", job.Name, "job", len(job.Output), "network", len(tensors))
		return true
	}

	for i, t := range tensors {
		out := &job.Output[i]
		if t.Bytes() > len(out.Bytes()) {
			elog.Err("inference: output tensor exceeds buffer",
				"name", job.Name, "index", i, "tensor", t.Bytes(), "buffer", len(out.Bytes()))
			return true
		}
		copy(out.Bytes(), t.Data)
		out.Size = uint32(t.Bytes())
	}
	return false
}

// compare checks the outputs byte-for-byte against the expected data, if
// the job carries any.
func (r *Runner) compare(job *Job, handle Handle) bool {
	if len(job.ExpectedOutput) == 0 {
		return false
	}

	tensors := handle.Outputs()
	if len(job.ExpectedOutput) != len(tensors) {
		elog.Err("inference: expected output count mismatch",
			"name", job.Name, "expected", len(job.ExpectedOutput), "network", len(tensors))
		return true
	}

	for i, t := range tensors {
		expected := job.ExpectedOutput[i].Bytes()
		if len(expected) != t.Bytes() {
			elog.Err("inference: expected output size mismatch",
				"name", job.Name, "index", i, "expected", len(expected), "network", t.Bytes())
			return true
		}
		for j := range t.Data {
			if t.Data[j] != expected[j] {
				elog.Err("inference: expected output data mismatch",
					"name", job.Name, "index", i, "offset", j,
					"expected", expected[j], "network", t.Data[j])
				return true
			}
		}
	}
	return false
}

// printOutputs dumps up to budget bytes of each output tensor.
func printOutputs(handle Handle, budget int) {
	tensors := handle.Outputs()
	fmt.Printf("num_of_outputs: %d\noutput_begin\n", len(tensors))
	for _, t := range tensors {
		n := min(budget, t.Bytes())
		var buf bytes.Buffer
		for i := 0; i < n; i++ {
			if i > 0 && i%16 == 0 {
				buf.WriteByte('\n')
			}
			fmt.Fprintf(&buf, "0x%02x,", t.Data[i])
		}
		fmt.Printf("%s\n", buf.String())
	}
	fmt.Printf("output_end\n")
}
