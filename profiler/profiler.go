// Package profiler carries per-job PMU measurements between the wire
// protocol and the invoker. The counters themselves are owned by the NPU
// driver; this package only plumbs configuration in and results out.
package profiler

// NumCounters is the number of configurable PMU event counters.
const NumCounters = 4

// Config selects what to measure during one inference.
type Config struct {
	// Events holds one PMU event type per counter; zero leaves the
	// counter unused.
	Events [NumCounters]uint8
	// CycleCounter enables the free-running cycle counter.
	CycleCounter bool
}

// Result holds the measurements of one inference.
type Result struct {
	EventCount [NumCounters]uint32
	CycleCount uint64
}

// Source is implemented by invoker handles that expose PMU event counters.
// Handles without one report zero event counts.
type Source interface {
	// EventCounts returns the counter values accumulated by the last
	// invoke, in the order the events were configured.
	EventCounts() [NumCounters]uint32
}
