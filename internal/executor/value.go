package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/weftml/weft/internal/eventbus"
	"github.com/weftml/weft/internal/events"
	"github.com/weftml/weft/internal/graph"
	"github.com/weftml/weft/internal/opid"
	"github.com/weftml/weft/internal/sequence"
	"github.com/weftml/weft/internal/structure"
	"github.com/weftml/weft/internal/types"
)

// Value pairs a runtime representation with its type signature. The
// representation is one of *tensor.Tensor, *structure.Struct whose elements
// are *Value, *sequence.Sequence, or *graph.Function.
type Value struct {
	rep any
	ts  types.Type
}

// NewValue wraps an already-normalized representation. Most callers go
// through Executor.CreateValue instead.
func NewValue(rep any, ts types.Type) *Value {
	return &Value{rep: rep, ts: ts}
}

// Representation returns the underlying representation.
func (v *Value) Representation() any { return v.rep }

// TypeSignature returns the value's type signature.
func (v *Value) TypeSignature() types.Type { return v.ts }

func (v *Value) String() string {
	return fmt.Sprintf("value of type %s", v.ts)
}

// Compute materializes the value: tensors and sequences are returned as is,
// structs are materialized elementwise. Functional values cannot be
// computed; call them first.
func (v *Value) Compute(ctx context.Context) (any, error) {
	ctx, _ = opid.NewContext(ctx)
	start := time.Now()
	eventbus.Publish(ctx, events.ExecutorOpStart{Op: "Compute"})
	out, err := v.compute(ctx)
	eventbus.Publish(ctx, events.ExecutorOpFinish{
		Op:       "Compute",
		Type:     v.ts.String(),
		Err:      err,
		Duration: time.Since(start),
	})
	return out, err
}

func (v *Value) compute(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch rep := v.rep.(type) {
	case *graph.Function:
		return nil, fmt.Errorf("cannot compute a value of functional type %s", v.ts)
	case *structure.Struct:
		elements := make([]structure.Element, 0, rep.Len())
		for i, e := range rep.Elements() {
			inner, ok := e.Value.(*Value)
			if !ok {
				return nil, fmt.Errorf("struct element %d is not a value", i)
			}
			out, err := inner.compute(ctx)
			if err != nil {
				return nil, err
			}
			elements = append(elements, structure.Element{Name: e.Name, Value: out})
		}
		return structure.New(elements...), nil
	default:
		return rep, nil
	}
}

// callArgument unwraps a value into the raw representation the graph layer
// evaluates against: struct values become structures of raw representations.
func callArgument(v *Value) any {
	if s, ok := v.rep.(*structure.Struct); ok {
		elements := make([]structure.Element, 0, s.Len())
		for _, e := range s.Elements() {
			elements = append(elements, structure.Element{
				Name:  e.Name,
				Value: callArgument(e.Value.(*Value)),
			})
		}
		return structure.New(elements...)
	}
	return v.rep
}

// valueFromRaw wraps a raw call result back into a Value, rebuilding the
// struct-of-values shape the protocol operations expect.
func valueFromRaw(raw any, ts types.Type) (*Value, error) {
	st, ok := ts.(*types.StructType)
	if !ok {
		if _, isSeq := ts.(*types.SequenceType); isSeq {
			if _, ok := raw.(*sequence.Sequence); !ok {
				return nil, fmt.Errorf("result of type %s is not a sequence", ts)
			}
		}
		return &Value{rep: raw, ts: ts}, nil
	}
	s, ok := raw.(*structure.Struct)
	if !ok {
		return nil, fmt.Errorf("result of type %s is not a struct", ts)
	}
	if s.Len() != st.Len() {
		return nil, fmt.Errorf("%w: result has %d elements, type %s wants %d",
			ErrTypeMismatch, s.Len(), st, st.Len())
	}
	elements := make([]structure.Element, st.Len())
	for i, te := range st.Elements {
		inner, err := valueFromRaw(s.At(i), te.Type)
		if err != nil {
			return nil, err
		}
		elements[i] = structure.Element{Name: te.Name, Value: inner}
	}
	return &Value{rep: structure.New(elements...), ts: st}, nil
}
