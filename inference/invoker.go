package inference

import (
	"errors"

	"github.com/renesas/ethos-u-core-software/profiler"
)

// Errors an Invoker reports, distinguished so the runner can log the
// failing stage.
var (
	// ErrModelInvalid means the model buffer failed verification or its
	// schema version is unsupported.
	ErrModelInvalid = errors.New("inference: model invalid")
	// ErrAllocFailed means tensor allocation did not fit the arena.
	ErrAllocFailed = errors.New("inference: tensor allocation failed")
	// ErrInvokeFailed means the forward pass itself reported an error.
	ErrInvokeFailed = errors.New("inference: invoke failed")
)

// Tensor is one input or output of a loaded model, backed by arena memory.
type Tensor struct {
	Data []byte
}

// Bytes returns the tensor's byte count.
func (t Tensor) Bytes() int { return len(t.Data) }

// Invoker is the opaque neural network runtime. Load verifies the model and
// allocates its tensors; Invoke runs one synchronous forward pass. The
// runner holds the runtime's arena exclusively between Load and the end of
// the job.
type Invoker interface {
	Load(model []byte) (Handle, error)
	Invoke(Handle) error
}

// Handle is one loaded model instance. Valid for a single job.
type Handle interface {
	Inputs() []Tensor
	Outputs() []Tensor

	// ArenaUsedBytes and TotalCycles are diagnostics, logged per job.
	ArenaUsedBytes() int
	TotalCycles() uint64
}

// ContextSetter is implemented by handles that accept an opaque external
// context, e.g. a flash read callback for weight streaming.
type ContextSetter interface {
	SetExternalContext(ctx any)
}

// pmuCounts reads event counters from handles that expose them.
func pmuCounts(h Handle) [profiler.NumCounters]uint32 {
	if src, ok := h.(profiler.Source); ok {
		return src.EventCounts()
	}
	return [profiler.NumCounters]uint32{}
}
