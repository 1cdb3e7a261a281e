// Package tflite reads just enough of a .tflite flatbuffer to validate it
// and size its tensors: schema version, description, and the byte sizes of
// the first subgraph's inputs and the last subgraph's outputs. Model
// parsing for execution is the interpreter's job, not ours.
package tflite

import (
	"errors"
	"fmt"
)

// SchemaVersion is the only model schema this firmware accepts.
const SchemaVersion = 3

// TensorType is the element type of a tensor, as encoded in the schema.
type TensorType uint8

const (
	Float32 TensorType = 0
	Int32   TensorType = 2
	UInt8   TensorType = 3
	Int16   TensorType = 7
	Int8    TensorType = 9
)

var (
	ErrInvalidModel          = errors.New("tflite: invalid model")
	ErrUnsupportedVersion    = errors.New("tflite: unsupported schema version")
	ErrUnsupportedTensorType = errors.New("tflite: unsupported tensor type")
	ErrBadShape              = errors.New("tflite: bad tensor shape")
)

// Model table field slots, per the tflite schema.
const (
	modelVersion     = 0
	modelSubgraphs   = 2
	modelDescription = 3
)

// SubGraph table field slots.
const (
	subgraphTensors = 0
	subgraphInputs  = 1
	subgraphOutputs = 2
)

// Tensor table field slots.
const (
	tensorShape = 0
	tensorType  = 1
)

// Info describes a parsed model.
type Info struct {
	Version     uint32
	Description string
	// IfmSizes and OfmSizes hold the byte size of each tensor of the
	// first subgraph's inputs and the last subgraph's outputs. Tensors
	// with zero elements are omitted.
	IfmSizes []uint32
	OfmSizes []uint32
}

// elemSize returns the byte size of one element.
func elemSize(t TensorType) (uint32, error) {
	switch t {
	case UInt8, Int8:
		return 1, nil
	case Int16:
		return 2, nil
	case Int32, Float32:
		return 4, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedTensorType, t)
}

// ParseModel validates buf and extracts the model description and tensor
// byte sizes.
func ParseModel(buf []byte) (Info, error) {
	var info Info
	r := reader{buf}

	model, err := r.root()
	if err != nil {
		return info, err
	}

	vpos, err := r.field(model, modelVersion)
	if err != nil {
		return info, err
	}
	if vpos >= 0 {
		if info.Version, err = r.u32(vpos); err != nil {
			return info, err
		}
	}
	if info.Version != SchemaVersion {
		return info, fmt.Errorf("%w: version=%d, supported=%d",
			ErrUnsupportedVersion, info.Version, SchemaVersion)
	}

	dpos, err := r.field(model, modelDescription)
	if err != nil {
		return info, err
	}
	if dpos >= 0 {
		if info.Description, err = r.str(dpos); err != nil {
			return info, err
		}
	}

	spos, err := r.field(model, modelSubgraphs)
	if err != nil {
		return info, err
	}
	if spos < 0 {
		return info, fmt.Errorf("%w: no subgraphs", ErrInvalidModel)
	}
	base, count, err := r.vector(spos)
	if err != nil {
		return info, err
	}
	if count == 0 {
		return info, fmt.Errorf("%w: empty subgraph vector", ErrInvalidModel)
	}

	first, err := r.indirect(base)
	if err != nil {
		return info, err
	}
	if info.IfmSizes, err = tensorSizes(r, first, subgraphInputs); err != nil {
		return info, err
	}

	last, err := r.indirect(base + 4*(count-1))
	if err != nil {
		return info, err
	}
	if info.OfmSizes, err = tensorSizes(r, last, subgraphOutputs); err != nil {
		return info, err
	}

	return info, nil
}

// tensorSizes resolves a subgraph's input or output index vector to byte
// sizes.
func tensorSizes(r reader, sg, slot int) ([]uint32, error) {
	tpos, err := r.field(sg, subgraphTensors)
	if err != nil {
		return nil, err
	}
	if tpos < 0 {
		return nil, fmt.Errorf("%w: subgraph without tensors", ErrInvalidModel)
	}
	tbase, tcount, err := r.vector(tpos)
	if err != nil {
		return nil, err
	}

	ipos, err := r.field(sg, slot)
	if err != nil {
		return nil, err
	}
	if ipos < 0 {
		return nil, fmt.Errorf("%w: subgraph without tensor indices", ErrInvalidModel)
	}
	ibase, icount, err := r.vector(ipos)
	if err != nil {
		return nil, err
	}

	var sizes []uint32
	for i := 0; i < icount; i++ {
		idx, err := r.i32(ibase + 4*i)
		if err != nil {
			return nil, err
		}
		if idx < 0 || int(idx) >= tcount {
			return nil, fmt.Errorf("%w: tensor index %d out of range", ErrInvalidModel, idx)
		}

		tensor, err := r.indirect(tbase + 4*int(idx))
		if err != nil {
			return nil, err
		}
		n, err := shapeElems(r, tensor)
		if err != nil {
			return nil, err
		}

		var tt TensorType
		typePos, err := r.field(tensor, tensorType)
		if err != nil {
			return nil, err
		}
		if typePos >= 0 {
			v, err := r.u8(typePos)
			if err != nil {
				return nil, err
			}
			tt = TensorType(v)
		}
		es, err := elemSize(tt)
		if err != nil {
			return nil, err
		}

		if n > 0 {
			sizes = append(sizes, n*es)
		}
	}
	return sizes, nil
}

// shapeElems multiplies out a tensor's shape vector.
func shapeElems(r reader, tensor int) (uint32, error) {
	spos, err := r.field(tensor, tensorShape)
	if err != nil {
		return 0, err
	}
	if spos < 0 {
		return 0, fmt.Errorf("%w: nil shape", ErrBadShape)
	}
	base, count, err := r.vector(spos)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, fmt.Errorf("%w: zero size shape", ErrBadShape)
	}

	n := uint32(1)
	for i := 0; i < count; i++ {
		dim, err := r.i32(base + 4*i)
		if err != nil {
			return 0, err
		}
		if dim < 0 {
			return 0, fmt.Errorf("%w: negative dimension %d", ErrBadShape, dim)
		}
		n *= uint32(dim)
	}
	return n, nil
}
