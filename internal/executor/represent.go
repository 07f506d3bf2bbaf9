package executor

import (
	"fmt"

	"github.com/weftml/weft/internal/graph"
	"github.com/weftml/weft/internal/sequence"
	"github.com/weftml/weft/internal/structure"
	"github.com/weftml/weft/internal/tensor"
	"github.com/weftml/weft/internal/types"
)

// toRepresentation normalizes a host value against ts. Tensors come out
// pinned to the executor's device; struct elements are wrapped as values
// with the names the type declares; sequences convert their elements lazily.
func (ex *Executor) toRepresentation(value any, ts types.Type) (any, error) {
	if v, ok := value.(*Value); ok {
		if v.ts.Equal(ts) {
			return v.rep, nil
		}
		s, ok := v.rep.(*structure.Struct)
		if !ok {
			return nil, fmt.Errorf("%w: value is %s, want %s", ErrTypeMismatch, v.ts, ts)
		}
		// Re-reconcile the struct's names against the requested type.
		value = s
	}
	switch t := ts.(type) {
	case *types.TensorType:
		return ex.tensorRep(value, t)
	case *types.StructType:
		return ex.structOf(value, t, func(v any, et types.Type) (any, error) {
			rep, err := ex.toRepresentation(v, et)
			if err != nil {
				return nil, err
			}
			return &Value{rep: rep, ts: et}, nil
		})
	case *types.SequenceType:
		return ex.sequenceRep(value, t)
	default:
		return nil, fmt.Errorf("%w: cannot create a value of type %s from %T", ErrTypeMismatch, ts, value)
	}
}

// rawRepresentation is toRepresentation without the value wrapping: it
// yields the bare tensors and structures the graph layer evaluates against.
// Sequence elements are normalized through it.
func (ex *Executor) rawRepresentation(value any, ts types.Type) (any, error) {
	switch t := ts.(type) {
	case *types.TensorType:
		return ex.tensorRep(value, t)
	case *types.StructType:
		return ex.structOf(value, t, func(v any, et types.Type) (any, error) {
			return ex.rawRepresentation(v, et)
		})
	default:
		return nil, fmt.Errorf("%w: unsupported sequence element type %s", ErrTypeMismatch, ts)
	}
}

func (ex *Executor) tensorRep(value any, t *types.TensorType) (*tensor.Tensor, error) {
	if v, ok := value.(*graph.Variable); ok {
		read, err := v.Read()
		if err != nil {
			return nil, err
		}
		value = read
	}
	tt, err := tensor.Convert(value, t.DType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	if !tt.Shape().Equal(t.Shape) {
		return nil, fmt.Errorf("%w: tensor has shape %s, want %s", ErrTypeMismatch, tt.Shape(), t.Shape)
	}
	return tt.OnDevice(ex.dev.Name), nil
}

// structOf walks a host struct value against t, reconciling names: an
// unnamed element takes the type's name, a named element must agree with it.
func (ex *Executor) structOf(value any, t *types.StructType, conv func(any, types.Type) (any, error)) (*structure.Struct, error) {
	var elems []structure.Element
	switch v := value.(type) {
	case *structure.Struct:
		elems = v.Elements()
	case []any:
		elems = make([]structure.Element, len(v))
		for i, e := range v {
			elems[i] = structure.Element{Value: e}
		}
	default:
		return nil, fmt.Errorf("%w: cannot build a struct of type %s from %T", ErrTypeMismatch, t, value)
	}
	if len(elems) != t.Len() {
		return nil, fmt.Errorf("%w: value has %d elements, type %s wants %d",
			ErrTypeMismatch, len(elems), t, t.Len())
	}
	out := make([]structure.Element, t.Len())
	for i, te := range t.Elements {
		if n := elems[i].Name; n != "" && n != te.Name {
			return nil, fmt.Errorf("%w: element %d is named %q, type %s declares %q",
				ErrTypeMismatch, i, n, t, te.Name)
		}
		inner, err := conv(elems[i].Value, te.Type)
		if err != nil {
			return nil, err
		}
		out[i] = structure.Element{Name: te.Name, Value: inner}
	}
	return structure.New(out...), nil
}

func (ex *Executor) sequenceRep(value any, t *types.SequenceType) (*sequence.Sequence, error) {
	var s *sequence.Sequence
	switch v := value.(type) {
	case *sequence.Sequence:
		s = v
	case func() func() (any, bool):
		s = sequence.FromFunc(v)
	case []any:
		s = sequence.FromSlice(v...)
	default:
		return nil, fmt.Errorf("%w: cannot build a sequence of type %s from %T", ErrTypeMismatch, t, value)
	}
	elem := t.Elem
	return s.Map(func(e any) (any, error) {
		return ex.rawRepresentation(e, elem)
	}), nil
}
