package tflite

import "encoding/binary"

// TensorSpec declares one tensor of a built model.
type TensorSpec struct {
	Shape []int32
	Type  TensorType
}

// ModelSpec builds a minimal valid model flatbuffer with a single subgraph.
// Used by the hosted simulator and by tests; real models come from the
// compiler toolchain.
type ModelSpec struct {
	Description string
	Inputs      []TensorSpec
	Outputs     []TensorSpec
}

// builder appends flatbuffer pieces front to back. All references point
// forward, so each one is recorded as a patch and resolved once the target
// position is known.
type builder struct {
	b       []byte
	patches []patch
}

type patch struct {
	at     int
	target *int
}

func (w *builder) u8(v uint8)   { w.b = append(w.b, v) }
func (w *builder) u16(v uint16) { w.b = binary.LittleEndian.AppendUint16(w.b, v) }
func (w *builder) u32(v uint32) { w.b = binary.LittleEndian.AppendUint32(w.b, v) }
func (w *builder) i32(v int32)  { w.u32(uint32(v)) }

// ref appends a u32 placeholder resolved to *target - position later.
func (w *builder) ref(target *int) {
	w.patches = append(w.patches, patch{at: len(w.b), target: target})
	w.u32(0)
}

// align pads with zeros until the next append lands on pos ≡ rem (mod 4).
func (w *builder) align(rem int) {
	for len(w.b)%4 != rem {
		w.b = append(w.b, 0)
	}
}

func (w *builder) resolve() {
	for _, p := range w.patches {
		binary.LittleEndian.PutUint32(w.b[p.at:], uint32(*p.target-p.at))
	}
}

// Build serialises the model.
func (m ModelSpec) Build() []byte {
	w := &builder{}

	var (
		modelPos, descPos, subgraphsPos, sgPos   int
		tensorsPos, inputsPos, outputsPos        int
		tensorPos = make([]int, len(m.Inputs)+len(m.Outputs))
		shapePos  = make([]int, len(m.Inputs)+len(m.Outputs))
	)
	tensors := append(append([]TensorSpec{}, m.Inputs...), m.Outputs...)

	// Root offset and file identifier.
	w.ref(&modelPos)
	w.b = append(w.b, "TFL3"...)

	// Model table: version, subgraphs, description. The vtable sits
	// directly before the table it describes.
	w.align(0)
	vt := len(w.b)
	w.u16(12) // vtable bytes
	w.u16(16) // table bytes
	w.u16(4)  // version
	w.u16(0)  // operator_codes, absent
	w.u16(8)  // subgraphs
	w.u16(12) // description
	modelPos = len(w.b)
	w.i32(int32(modelPos - vt))
	w.u32(SchemaVersion)
	w.ref(&subgraphsPos)
	w.ref(&descPos)

	// Description string.
	w.align(0)
	descPos = len(w.b)
	w.u32(uint32(len(m.Description)))
	w.b = append(w.b, m.Description...)
	w.u8(0)

	// Subgraph vector with a single entry.
	w.align(0)
	subgraphsPos = len(w.b)
	w.u32(1)
	w.ref(&sgPos)

	// SubGraph table: tensors, inputs, outputs.
	w.align(2)
	vt = len(w.b)
	w.u16(10) // vtable bytes
	w.u16(16) // table bytes
	w.u16(4)  // tensors
	w.u16(8)  // inputs
	w.u16(12) // outputs
	sgPos = len(w.b)
	w.i32(int32(sgPos - vt))
	w.ref(&tensorsPos)
	w.ref(&inputsPos)
	w.ref(&outputsPos)

	// Tensor index vectors: inputs first, outputs after.
	w.align(0)
	inputsPos = len(w.b)
	w.u32(uint32(len(m.Inputs)))
	for i := range m.Inputs {
		w.i32(int32(i))
	}
	outputsPos = len(w.b)
	w.u32(uint32(len(m.Outputs)))
	for i := range m.Outputs {
		w.i32(int32(len(m.Inputs) + i))
	}

	// Tensor table vector.
	tensorsPos = len(w.b)
	w.u32(uint32(len(tensors)))
	for i := range tensors {
		w.ref(&tensorPos[i])
	}

	// Tensor tables: shape and type.
	for i, t := range tensors {
		w.align(0)
		vt = len(w.b)
		w.u16(8)  // vtable bytes
		w.u16(12) // table bytes
		w.u16(4)  // shape
		w.u16(8)  // type
		tensorPos[i] = len(w.b)
		w.i32(int32(tensorPos[i] - vt))
		w.ref(&shapePos[i])
		w.u8(uint8(t.Type))
		w.u8(0)
		w.u16(0)
	}

	// Shape vectors.
	for i, t := range tensors {
		w.align(0)
		shapePos[i] = len(w.b)
		w.u32(uint32(len(t.Shape)))
		for _, d := range t.Shape {
			w.i32(d)
		}
	}

	w.resolve()
	return w.b
}
