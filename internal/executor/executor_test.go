package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/weftml/weft/internal/device"
	"github.com/weftml/weft/internal/graphdef"
	"github.com/weftml/weft/internal/sequence"
	"github.com/weftml/weft/internal/structure"
	"github.com/weftml/weft/internal/tensor"
	"github.com/weftml/weft/internal/types"
)

var int32T = types.Tensor(tensor.Int32)

func newExecutor(t *testing.T) *Executor {
	t.Helper()
	ex, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ex
}

func computeScalar(t *testing.T, v *Value) int32 {
	t.Helper()
	out, err := v.Compute(context.Background())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	got, err := out.(*tensor.Tensor).AsInt32()
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestNewRequiresEagerMode(t *testing.T) {
	prev := device.SetEager(false)
	defer device.SetEager(prev)

	_, err := New()
	if !errors.Is(err, ErrNotEager) {
		t.Fatalf("New error = %v, want ErrNotEager", err)
	}
}

func TestCreateValueTensor(t *testing.T) {
	ex := newExecutor(t)
	v, err := ex.CreateValue(context.Background(), 10, int32T)
	if err != nil {
		t.Fatalf("CreateValue: %v", err)
	}
	if got := v.TypeSignature().String(); got != "int32" {
		t.Errorf("type signature = %q, want int32", got)
	}
	if got := computeScalar(t, v); got != 10 {
		t.Errorf("value = %d, want 10", got)
	}
}

func TestCreateValueNestedStruct(t *testing.T) {
	ex := newExecutor(t)
	ts := types.Struct(
		types.Elem("", int32T),
		types.Elem("", types.Struct(types.Elem("a", int32T))),
	)
	v, err := ex.CreateValue(context.Background(),
		[]any{10, structure.New(structure.Element{Name: "a", Value: 20})}, ts)
	if err != nil {
		t.Fatalf("CreateValue: %v", err)
	}
	if got := v.TypeSignature().String(); got != "<int32,<a=int32>>" {
		t.Errorf("type signature = %q, want <int32,<a=int32>>", got)
	}

	first, err := ex.CreateSelection(context.Background(), v, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := computeScalar(t, first); got != 10 {
		t.Errorf("element 0 = %d, want 10", got)
	}

	second, err := ex.CreateSelection(context.Background(), v, 1)
	if err != nil {
		t.Fatal(err)
	}
	out, err := second.Compute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	inner := out.(*structure.Struct)
	if inner.Len() != 1 || inner.Name(0) != "a" {
		t.Fatalf("element 1 = %v, want one-field struct named a", inner)
	}
	if got, _ := inner.At(0).(*tensor.Tensor).AsInt32(); got != 20 {
		t.Errorf("element 1.a = %d, want 20", got)
	}
}

func TestUnnamedValueAdoptsTypeNames(t *testing.T) {
	ex := newExecutor(t)
	ts := types.Struct(types.Elem("a", int32T), types.Elem("b", int32T))
	v, err := ex.CreateValue(context.Background(), []any{10, 20}, ts)
	if err != nil {
		t.Fatalf("CreateValue: %v", err)
	}
	out, err := v.Compute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, out.(*structure.Struct).Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestStructMismatches(t *testing.T) {
	ex := newExecutor(t)
	ts := types.Struct(types.Elem("a", int32T), types.Elem("b", int32T))

	_, err := ex.CreateValue(context.Background(), []any{10}, ts)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("arity mismatch error = %v, want ErrTypeMismatch", err)
	}

	named := structure.New(
		structure.Element{Name: "a", Value: 10},
		structure.Element{Name: "c", Value: 20},
	)
	_, err = ex.CreateValue(context.Background(), named, ts)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("name mismatch error = %v, want ErrTypeMismatch", err)
	}
}

func TestCreateValueRejectsLambda(t *testing.T) {
	ex := newExecutor(t)
	comp := &graphdef.Computation{Lambda: &graphdef.Lambda{ParameterName: "arg"}}
	_, err := ex.CreateValue(context.Background(), comp, types.Function(int32T, int32T))
	if !errors.Is(err, ErrUnembeddable) {
		t.Fatalf("error = %v, want ErrUnembeddable", err)
	}
	if !strings.Contains(err.Error(), "computation of type lambda") {
		t.Errorf("error %q does not mention the lambda form", err)
	}
}

func TestPruneFailureIsTypeError(t *testing.T) {
	ex := newExecutor(t)
	comp := &graphdef.Computation{Graph: &graphdef.Graph{
		Nodes:  []*graphdef.Node{int32Const("c", 1)},
		Result: graphdef.BindTensor("missing"),
	}}
	_, err := ex.CreateValue(context.Background(), comp, types.Function(nil, int32T))
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("error = %v, want ErrTypeMismatch", err)
	}
	if !strings.Contains(err.Error(), "prune graph") {
		t.Errorf("error %q does not mention the prune failure", err)
	}
}

func int32Const(name string, v int64) *graphdef.Node {
	return &graphdef.Node{Name: name, Op: "const", Attrs: map[string]*graphdef.Attr{
		"dtype": graphdef.StringAttr("int32"),
		"value": graphdef.IntAttr(v),
	}}
}

func placeholder(name string) *graphdef.Node {
	return &graphdef.Node{Name: name, Op: "placeholder", Attrs: map[string]*graphdef.Attr{
		"dtype": graphdef.StringAttr("int32"),
	}}
}

func sumComputation() (*graphdef.Computation, *types.FunctionType) {
	comp := &graphdef.Computation{Graph: &graphdef.Graph{
		Nodes: []*graphdef.Node{
			placeholder("x"),
			placeholder("y"),
			{Name: "sum", Op: "add", Inputs: []string{"x", "y"}},
		},
		Parameter: graphdef.BindStruct(
			&graphdef.BindingElement{Name: "a", Binding: graphdef.BindTensor("x")},
			&graphdef.BindingElement{Name: "b", Binding: graphdef.BindTensor("y")},
		),
		Result: graphdef.BindTensor("sum"),
	}}
	ts := types.Function(types.Struct(types.Elem("a", int32T), types.Elem("b", int32T)), int32T)
	return comp, ts
}

func TestCallTwoArgSum(t *testing.T) {
	ex := newExecutor(t)
	ctx := context.Background()
	comp, ts := sumComputation()

	fn, err := ex.CreateValue(ctx, comp, ts)
	if err != nil {
		t.Fatalf("CreateValue: %v", err)
	}
	if got := fn.TypeSignature().String(); got != "(<a=int32,b=int32> -> int32)" {
		t.Errorf("type signature = %q", got)
	}

	arg, err := ex.CreateValue(ctx, []any{10, 20}, ts.Parameter)
	if err != nil {
		t.Fatal(err)
	}
	result, err := ex.CreateCall(ctx, fn, arg)
	if err != nil {
		t.Fatalf("CreateCall: %v", err)
	}
	if got := computeScalar(t, result); got != 30 {
		t.Errorf("sum(10, 20) = %d, want 30", got)
	}
}

func TestCallNoArgConstant(t *testing.T) {
	ex := newExecutor(t)
	ctx := context.Background()
	comp := &graphdef.Computation{Graph: &graphdef.Graph{
		Nodes:  []*graphdef.Node{int32Const("c", 1000)},
		Result: graphdef.BindTensor("c"),
	}}
	fn, err := ex.CreateValue(ctx, comp, types.Function(nil, int32T))
	if err != nil {
		t.Fatal(err)
	}
	if got := fn.TypeSignature().String(); got != "( -> int32)" {
		t.Errorf("type signature = %q, want ( -> int32)", got)
	}
	result, err := ex.CreateCall(ctx, fn, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := computeScalar(t, result); got != 1000 {
		t.Errorf("call = %d, want 1000", got)
	}
}

func TestRepeatedStatefulCalls(t *testing.T) {
	ex := newExecutor(t)
	ctx := context.Background()
	initAttr := map[string]*graphdef.Attr{"init": graphdef.BoolAttr(true)}
	comp := &graphdef.Computation{Graph: &graphdef.Graph{
		Nodes: []*graphdef.Node{
			int32Const("ten", 10),
			{Name: "v", Op: "var"},
			{Name: "seed", Op: "assign", Inputs: []string{"v", "ten"}, Attrs: initAttr},
			{Name: "bump", Op: "assign_add", Inputs: []string{"v", "ten"},
				ControlInputs: []string{"seed"}, Attrs: initAttr},
			{Name: "step", Op: "assign_add", Inputs: []string{"v", "ten"}},
			{Name: "out", Op: "read", Inputs: []string{"v"}, ControlInputs: []string{"step"}},
		},
		Result: graphdef.BindTensor("out"),
	}}
	fn, err := ex.CreateValue(ctx, comp, types.Function(nil, int32T))
	if err != nil {
		t.Fatal(err)
	}
	for n, want := range []int32{30, 40, 50} {
		result, err := ex.CreateCall(ctx, fn, nil)
		if err != nil {
			t.Fatal(err)
		}
		if got := computeScalar(t, result); got != want {
			t.Errorf("call %d = %d, want %d", n+1, got, want)
		}
	}
}

func TestChainedAssignmentCalls(t *testing.T) {
	ex := newExecutor(t)
	ctx := context.Background()
	comp := &graphdef.Computation{Graph: &graphdef.Graph{
		Nodes: []*graphdef.Node{
			placeholder("x"),
			int32Const("ten", 10),
			{Name: "v", Op: "var"},
			{Name: "set", Op: "assign", Inputs: []string{"v", "x"}},
			{Name: "step", Op: "assign_add", Inputs: []string{"v", "ten"},
				ControlInputs: []string{"set"}},
			{Name: "out", Op: "read", Inputs: []string{"v"}, ControlInputs: []string{"step"}},
		},
		Parameter: graphdef.BindTensor("x"),
		Result:    graphdef.BindTensor("out"),
	}}
	fn, err := ex.CreateValue(ctx, comp, types.Function(int32T, int32T))
	if err != nil {
		t.Fatal(err)
	}
	arg, err := ex.CreateValue(ctx, 10, int32T)
	if err != nil {
		t.Fatal(err)
	}
	for n := 0; n < 10; n++ {
		arg, err = ex.CreateCall(ctx, fn, arg)
		if err != nil {
			t.Fatalf("call %d: %v", n, err)
		}
		if got, want := computeScalar(t, arg), int32(10*(n+2)); got != want {
			t.Fatalf("call %d = %d, want %d", n, got, want)
		}
	}
}

func TestCreateStructAndSelectionRoundTrip(t *testing.T) {
	ex := newExecutor(t)
	ctx := context.Background()

	a, err := ex.CreateValue(ctx, 10, int32T)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ex.CreateValue(ctx, 20, int32T)
	if err != nil {
		t.Fatal(err)
	}
	s, err := ex.CreateStruct(ctx,
		StructElement{Name: "a", Value: a},
		StructElement{Value: b},
	)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.TypeSignature().String(); got != "<a=int32,int32>" {
		t.Errorf("type signature = %q, want <a=int32,int32>", got)
	}

	for i, want := range []int32{10, 20} {
		el, err := ex.CreateSelection(ctx, s, i)
		if err != nil {
			t.Fatal(err)
		}
		if got := computeScalar(t, el); got != want {
			t.Errorf("selection %d = %d, want %d", i, got, want)
		}
	}

	if _, err := ex.CreateSelection(ctx, s, 2); err == nil {
		t.Error("expected an out of range error")
	}
	if _, err := ex.CreateSelection(ctx, a, 0); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("selecting from a tensor: error = %v, want ErrTypeMismatch", err)
	}
}

func TestSequenceFromGenerator(t *testing.T) {
	ex := newExecutor(t)
	ctx := context.Background()
	gen := func() func() (any, bool) {
		i := int32(0)
		return func() (any, bool) {
			if i >= 3 {
				return nil, false
			}
			i++
			return i * 10, true
		}
	}
	v, err := ex.CreateValue(ctx, gen, types.Sequence(int32T))
	if err != nil {
		t.Fatalf("CreateValue: %v", err)
	}
	if got := v.TypeSignature().String(); got != "int32*" {
		t.Errorf("type signature = %q, want int32*", got)
	}
	out, err := v.Compute(ctx)
	if err != nil {
		t.Fatal(err)
	}
	items, err := out.(*sequence.Sequence).Collect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var got []int32
	for _, item := range items {
		n, err := item.(*tensor.Tensor).AsInt32()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, n)
	}
	if diff := cmp.Diff([]int32{10, 20, 30}, got); diff != "" {
		t.Errorf("sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestSequenceReduceComputation(t *testing.T) {
	ex := newExecutor(t)
	ctx := context.Background()
	comp := &graphdef.Computation{Graph: &graphdef.Graph{
		Nodes: []*graphdef.Node{
			{Name: "ds", Op: "placeholder"},
			{Name: "rep", Op: "ds_repeat", Inputs: []string{"ds"}},
			{Name: "take", Op: "ds_take", Inputs: []string{"rep"},
				Attrs: map[string]*graphdef.Attr{"count": graphdef.IntAttr(5)}},
			int32Const("zero", 0),
			{Name: "total", Op: "ds_reduce", Inputs: []string{"take", "zero"},
				Attrs: map[string]*graphdef.Attr{"fn": graphdef.StringAttr("add")}},
		},
		Parameter: graphdef.BindSequence("ds"),
		Result:    graphdef.BindTensor("total"),
	}}
	ts := types.Function(types.Sequence(int32T), int32T)

	fn, err := ex.CreateValue(ctx, comp, ts)
	if err != nil {
		t.Fatal(err)
	}
	arg, err := ex.CreateValue(ctx, []any{10, 20, 30}, types.Sequence(int32T))
	if err != nil {
		t.Fatal(err)
	}
	result, err := ex.CreateCall(ctx, fn, arg)
	if err != nil {
		t.Fatalf("CreateCall: %v", err)
	}
	if got := computeScalar(t, result); got != 90 {
		t.Errorf("take 5 of repeat [10,20,30] reduced = %d, want 90", got)
	}
}

func TestComputeRejectsFunctionalValues(t *testing.T) {
	ex := newExecutor(t)
	ctx := context.Background()
	comp, ts := sumComputation()
	fn, err := ex.CreateValue(ctx, comp, ts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fn.Compute(ctx); err == nil {
		t.Fatal("expected an error computing a functional value")
	}
}

func TestCallArgumentChecks(t *testing.T) {
	ex := newExecutor(t)
	ctx := context.Background()
	comp, ts := sumComputation()
	fn, err := ex.CreateValue(ctx, comp, ts)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ex.CreateCall(ctx, fn, nil); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("missing argument: error = %v, want ErrTypeMismatch", err)
	}

	wrong, err := ex.CreateValue(ctx, 5, int32T)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ex.CreateCall(ctx, fn, wrong); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("wrong argument type: error = %v, want ErrTypeMismatch", err)
	}

	if _, err := ex.CreateCall(ctx, wrong, nil); err == nil {
		t.Error("expected an error calling a non-functional value")
	}
}

func TestWithDevice(t *testing.T) {
	prev := device.Configure(
		device.Device{Name: "CPU:0", Kind: device.CPU},
		device.Device{Name: "GPU:0", Kind: device.GPU},
	)
	defer device.Configure(prev...)

	ex, err := New(WithDevice("GPU:0"))
	if err != nil {
		t.Fatal(err)
	}
	v, err := ex.CreateValue(context.Background(), 1, int32T)
	if err != nil {
		t.Fatal(err)
	}
	out, err := v.Compute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if dev := out.(*tensor.Tensor).Device(); dev != "GPU:0" {
		t.Errorf("value device = %q, want GPU:0", dev)
	}

	if _, err := New(WithDevice("TPU:9")); err == nil {
		t.Error("expected an error for an unknown device")
	}
}
