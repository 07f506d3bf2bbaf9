package service

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/weftml/weft/internal/executor"
	"github.com/weftml/weft/internal/graphdef"
	"github.com/weftml/weft/internal/sequence"
	"github.com/weftml/weft/internal/structure"
	"github.com/weftml/weft/internal/tensor"
	"github.com/weftml/weft/internal/types"
)

// embedWire turns a decoded wire value into an executor value.
func (s *Server) embedWire(ctx context.Context, wv *graphdef.WireValue) (*executor.Value, error) {
	ts := wv.Type
	if ts == nil {
		if wv.Tensor == nil {
			return nil, status.Error(codes.InvalidArgument, "value carries no type signature")
		}
		ts = types.Tensor(wv.Tensor.DType(), wv.Tensor.Shape()...)
	}
	host, err := hostOf(wv)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return s.exec.CreateValue(ctx, host, ts)
}

// hostOf rebuilds the host representation a wire value describes.
func hostOf(wv *graphdef.WireValue) (any, error) {
	switch {
	case wv.Tensor != nil:
		return wv.Tensor, nil
	case wv.Struct != nil:
		elements := make([]structure.Element, len(wv.Struct))
		for i, e := range wv.Struct {
			inner, err := hostOf(e.Value)
			if err != nil {
				return nil, err
			}
			elements[i] = structure.Element{Name: e.Name, Value: inner}
		}
		return structure.New(elements...), nil
	case wv.Sequence != nil:
		items := make([]any, len(wv.Sequence))
		for i, e := range wv.Sequence {
			inner, err := hostOf(e)
			if err != nil {
				return nil, err
			}
			items[i] = inner
		}
		return sequence.FromSlice(items...), nil
	case wv.Computation != nil:
		return wv.Computation, nil
	default:
		return nil, fmt.Errorf("wire value has no representation")
	}
}

// materializedWire converts a computed result back into its wire form.
// Sequences are drained; the result must be finite.
func materializedWire(ctx context.Context, out any, ts types.Type) (*graphdef.WireValue, error) {
	switch v := out.(type) {
	case *tensor.Tensor:
		return &graphdef.WireValue{Tensor: v, Type: ts}, nil
	case *structure.Struct:
		st, ok := ts.(*types.StructType)
		if !ok || st.Len() != v.Len() {
			return nil, fmt.Errorf("struct result disagrees with type %s", ts)
		}
		elements := make([]graphdef.WireElement, v.Len())
		for i, e := range v.Elements() {
			inner, err := materializedWire(ctx, e.Value, st.Elements[i].Type)
			if err != nil {
				return nil, err
			}
			elements[i] = graphdef.WireElement{Name: e.Name, Value: inner}
		}
		return &graphdef.WireValue{Struct: elements, Type: ts}, nil
	case *sequence.Sequence:
		sq, ok := ts.(*types.SequenceType)
		if !ok {
			return nil, fmt.Errorf("sequence result disagrees with type %s", ts)
		}
		items, err := v.Collect(ctx)
		if err != nil {
			return nil, err
		}
		elements := make([]*graphdef.WireValue, len(items))
		for i, item := range items {
			inner, err := materializedWire(ctx, item, sq.Elem)
			if err != nil {
				return nil, err
			}
			elements[i] = inner
		}
		return &graphdef.WireValue{Sequence: elements, Type: ts}, nil
	default:
		return nil, fmt.Errorf("cannot serialize a %T result", out)
	}
}
