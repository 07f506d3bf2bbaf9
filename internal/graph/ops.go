package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/weftml/weft/internal/graphdef"
	"github.com/weftml/weft/internal/sequence"
	"github.com/weftml/weft/internal/tensor"
)

// Variable is the mutable state behind a var node. It belongs to one
// Function wrapping and persists across calls of that wrapping.
type Variable struct {
	mu  sync.Mutex
	cur *tensor.Tensor
}

// Read returns the current value. Reading before the first assignment is an
// error.
func (v *Variable) Read() (*tensor.Tensor, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cur == nil {
		return nil, fmt.Errorf("variable read before assignment")
	}
	return v.cur, nil
}

// Assign replaces the current value.
func (v *Variable) Assign(t *tensor.Tensor) *tensor.Tensor {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = t
	return t
}

// AssignAdd adds t to the current value and returns the new value.
func (v *Variable) AssignAdd(t *tensor.Tensor) (*tensor.Tensor, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cur == nil {
		return nil, fmt.Errorf("variable updated before assignment")
	}
	next, err := tensor.Add(v.cur, t)
	if err != nil {
		return nil, err
	}
	v.cur = next
	return next, nil
}

type opFunc func(ctx context.Context, ev *env, n *graphdef.Node, inputs []any) (any, error)

var ops = map[string]opFunc{
	"const":           opConst,
	"placeholder":     opPlaceholder,
	"identity":        opIdentity,
	"add":             binaryOp(tensor.Add),
	"sub":             binaryOp(tensor.Sub),
	"mul":             binaryOp(tensor.Mul),
	"var":             opVar,
	"assign":          opAssign,
	"assign_add":      opAssignAdd,
	"read":            opRead,
	"ds_range":        opDatasetRange,
	"ds_from_tensors": opDatasetFromTensors,
	"ds_repeat":       opDatasetRepeat,
	"ds_take":         opDatasetTake,
	"ds_map":          opDatasetMap,
	"ds_reduce":       opDatasetReduce,
}

func opConst(_ context.Context, ev *env, n *graphdef.Node, _ []any) (any, error) {
	dt, err := dtypeAttr(n)
	if err != nil {
		return nil, err
	}
	a, ok := n.Attrs["value"]
	if !ok {
		return nil, fmt.Errorf("const node has no value attribute")
	}
	var t *tensor.Tensor
	switch a.Kind {
	case graphdef.AttrInt:
		t, err = tensor.Convert(a.Int, dt)
	case graphdef.AttrFloat:
		t, err = tensor.Convert(a.Float, dt)
	case graphdef.AttrBool:
		t, err = tensor.Convert(a.Bool, dt)
	case graphdef.AttrString:
		t, err = tensor.Convert(a.Str, dt)
	case graphdef.AttrInts:
		t, err = intsVector(dt, a.Ints)
	default:
		return nil, fmt.Errorf("const value attribute has unsupported kind %d", a.Kind)
	}
	if err != nil {
		return nil, err
	}
	return t.OnDevice(ev.device), nil
}

func intsVector(dt tensor.DataType, ints []int64) (*tensor.Tensor, error) {
	switch dt {
	case tensor.Int32:
		vs := make([]int32, len(ints))
		for i, v := range ints {
			vs[i] = int32(v)
		}
		return tensor.Vector(dt, vs)
	case tensor.Int64:
		return tensor.Vector(dt, append([]int64(nil), ints...))
	case tensor.Float32:
		vs := make([]float32, len(ints))
		for i, v := range ints {
			vs[i] = float32(v)
		}
		return tensor.Vector(dt, vs)
	case tensor.Float64:
		vs := make([]float64, len(ints))
		for i, v := range ints {
			vs[i] = float64(v)
		}
		return tensor.Vector(dt, vs)
	default:
		return nil, fmt.Errorf("cannot build a %s vector from integer values", dt)
	}
}

// opPlaceholder only runs when the node was not fed through a parameter
// binding; fed placeholders are seeded before evaluation.
func opPlaceholder(_ context.Context, _ *env, n *graphdef.Node, _ []any) (any, error) {
	return nil, fmt.Errorf("placeholder %q was not fed", n.Name)
}

func opIdentity(_ context.Context, _ *env, n *graphdef.Node, inputs []any) (any, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("identity takes one input, got %d", len(inputs))
	}
	return inputs[0], nil
}

func binaryOp(f func(a, b *tensor.Tensor) (*tensor.Tensor, error)) opFunc {
	return func(_ context.Context, ev *env, n *graphdef.Node, inputs []any) (any, error) {
		a, err := tensorArg(inputs, 0)
		if err != nil {
			return nil, err
		}
		b, err := tensorArg(inputs, 1)
		if err != nil {
			return nil, err
		}
		t, err := f(a, b)
		if err != nil {
			return nil, err
		}
		return t.OnDevice(ev.device), nil
	}
}

func opVar(_ context.Context, ev *env, n *graphdef.Node, _ []any) (any, error) {
	v, ok := ev.vars[n.Name]
	if !ok {
		v = &Variable{}
		ev.vars[n.Name] = v
	}
	return v, nil
}

func opAssign(_ context.Context, ev *env, _ *graphdef.Node, inputs []any) (any, error) {
	v, err := varArg(inputs, 0)
	if err != nil {
		return nil, err
	}
	t, err := tensorArg(inputs, 1)
	if err != nil {
		return nil, err
	}
	return v.Assign(t.OnDevice(ev.device)), nil
}

func opAssignAdd(_ context.Context, ev *env, _ *graphdef.Node, inputs []any) (any, error) {
	v, err := varArg(inputs, 0)
	if err != nil {
		return nil, err
	}
	t, err := tensorArg(inputs, 1)
	if err != nil {
		return nil, err
	}
	next, err := v.AssignAdd(t)
	if err != nil {
		return nil, err
	}
	return next.OnDevice(ev.device), nil
}

func opRead(_ context.Context, _ *env, _ *graphdef.Node, inputs []any) (any, error) {
	v, err := varArg(inputs, 0)
	if err != nil {
		return nil, err
	}
	return v.Read()
}

func opDatasetRange(_ context.Context, _ *env, n *graphdef.Node, _ []any) (any, error) {
	count, err := intAttr(n, "count")
	if err != nil {
		return nil, err
	}
	return sequence.Range(count).Map(func(v any) (any, error) {
		return tensor.ScalarInt64(v.(int64)), nil
	}), nil
}

func opDatasetFromTensors(_ context.Context, _ *env, n *graphdef.Node, _ []any) (any, error) {
	dt, err := dtypeAttr(n)
	if err != nil {
		return nil, err
	}
	a, ok := n.Attrs["values"]
	if !ok || a.Kind != graphdef.AttrInts {
		return nil, fmt.Errorf("ds_from_tensors requires an integer values attribute")
	}
	items := make([]any, len(a.Ints))
	for i, v := range a.Ints {
		t, err := tensor.Convert(v, dt)
		if err != nil {
			return nil, err
		}
		items[i] = t
	}
	return sequence.FromSlice(items...), nil
}

func opDatasetRepeat(_ context.Context, _ *env, _ *graphdef.Node, inputs []any) (any, error) {
	s, err := sequenceArg(inputs, 0)
	if err != nil {
		return nil, err
	}
	return s.Repeat(), nil
}

func opDatasetTake(_ context.Context, _ *env, n *graphdef.Node, inputs []any) (any, error) {
	s, err := sequenceArg(inputs, 0)
	if err != nil {
		return nil, err
	}
	count, err := intAttr(n, "count")
	if err != nil {
		return nil, err
	}
	return s.Take(count), nil
}

func opDatasetMap(_ context.Context, ev *env, n *graphdef.Node, inputs []any) (any, error) {
	s, err := sequenceArg(inputs, 0)
	if err != nil {
		return nil, err
	}
	fn, err := strAttr(n, "fn")
	if err != nil {
		return nil, err
	}
	operand, err := intAttr(n, "operand")
	if err != nil {
		return nil, err
	}
	return s.Map(func(v any) (any, error) {
		t, ok := v.(*tensor.Tensor)
		if !ok {
			return nil, fmt.Errorf("ds_map expects tensor elements, got %T", v)
		}
		o, err := tensor.Convert(operand, t.DType())
		if err != nil {
			return nil, err
		}
		out, err := applyBinary(fn, t, o)
		if err != nil {
			return nil, err
		}
		return out.OnDevice(ev.device), nil
	}), nil
}

func opDatasetReduce(ctx context.Context, ev *env, n *graphdef.Node, inputs []any) (any, error) {
	s, err := sequenceArg(inputs, 0)
	if err != nil {
		return nil, err
	}
	zero, err := tensorArg(inputs, 1)
	if err != nil {
		return nil, err
	}
	fn, err := strAttr(n, "fn")
	if err != nil {
		return nil, err
	}
	out, err := s.Reduce(ctx, zero, func(acc, v any) (any, error) {
		a, ok := acc.(*tensor.Tensor)
		if !ok {
			return nil, fmt.Errorf("ds_reduce accumulator must be a tensor, got %T", acc)
		}
		t, ok := v.(*tensor.Tensor)
		if !ok {
			return nil, fmt.Errorf("ds_reduce expects tensor elements, got %T", v)
		}
		return applyBinary(fn, a, t)
	})
	if err != nil {
		return nil, err
	}
	return out.(*tensor.Tensor).OnDevice(ev.device), nil
}

func applyBinary(fn string, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	switch fn {
	case "add":
		return tensor.Add(a, b)
	case "sub":
		return tensor.Sub(a, b)
	case "mul":
		return tensor.Mul(a, b)
	default:
		return nil, fmt.Errorf("unknown binary fn %q", fn)
	}
}

func dtypeAttr(n *graphdef.Node) (tensor.DataType, error) {
	s, err := strAttr(n, "dtype")
	if err != nil {
		return tensor.Invalid, err
	}
	return tensor.DataTypeFromString(s)
}

func strAttr(n *graphdef.Node, name string) (string, error) {
	a, ok := n.Attrs[name]
	if !ok || a.Kind != graphdef.AttrString {
		return "", fmt.Errorf("missing string attribute %q", name)
	}
	return a.Str, nil
}

func intAttr(n *graphdef.Node, name string) (int64, error) {
	a, ok := n.Attrs[name]
	if !ok || a.Kind != graphdef.AttrInt {
		return 0, fmt.Errorf("missing integer attribute %q", name)
	}
	return a.Int, nil
}

func tensorArg(inputs []any, i int) (*tensor.Tensor, error) {
	if i >= len(inputs) {
		return nil, fmt.Errorf("missing input %d", i)
	}
	t, ok := inputs[i].(*tensor.Tensor)
	if !ok {
		return nil, fmt.Errorf("input %d must be a tensor, got %T", i, inputs[i])
	}
	return t, nil
}

func sequenceArg(inputs []any, i int) (*sequence.Sequence, error) {
	if i >= len(inputs) {
		return nil, fmt.Errorf("missing input %d", i)
	}
	s, ok := inputs[i].(*sequence.Sequence)
	if !ok {
		return nil, fmt.Errorf("input %d must be a sequence, got %T", i, inputs[i])
	}
	return s, nil
}

func varArg(inputs []any, i int) (*Variable, error) {
	if i >= len(inputs) {
		return nil, fmt.Errorf("missing input %d", i)
	}
	v, ok := inputs[i].(*Variable)
	if !ok {
		return nil, fmt.Errorf("input %d must be a variable, got %T", i, inputs[i])
	}
	return v, nil
}
