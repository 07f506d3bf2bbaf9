package remote

import (
	"context"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/weftml/weft/internal/eventbus"
	"github.com/weftml/weft/internal/events"
	"github.com/weftml/weft/internal/executor"
	"github.com/weftml/weft/internal/graphdef"
	"github.com/weftml/weft/internal/opid"
	"github.com/weftml/weft/internal/service"
	"github.com/weftml/weft/internal/tensor"
	"github.com/weftml/weft/internal/types"
)

var int32T = types.Tensor(tensor.Int32)

func startService(t *testing.T) *Executor {
	t.Helper()
	exec, err := executor.New()
	if err != nil {
		t.Fatalf("executor.New: %v", err)
	}
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	service.NewServer(exec).Register(gs)
	go func() { _ = gs.Serve(lis) }()

	ex := New("bufnet", WithDialOptions(
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	))
	t.Cleanup(func() {
		_ = ex.Close()
		gs.Stop()
	})
	return ex
}

func scalar(t *testing.T, v int32) *tensor.Tensor {
	t.Helper()
	return tensor.ScalarInt32(v)
}

func computeScalar(t *testing.T, v *Value) int32 {
	t.Helper()
	out, err := v.Compute(context.Background())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if out.Tensor == nil {
		t.Fatalf("computed value %+v has no tensor", out)
	}
	got, err := out.Tensor.AsInt32()
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestTensorRoundTrip(t *testing.T) {
	ex := startService(t)
	ctx := context.Background()

	v, err := ex.CreateValue(ctx, &graphdef.WireValue{Tensor: scalar(t, 10)})
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

func sumComputation() (*graphdef.Computation, *types.FunctionType) {
	comp := &graphdef.Computation{Graph: &graphdef.Graph{
		Nodes: []*graphdef.Node{
			{Name: "x", Op: "placeholder", Attrs: map[string]*graphdef.Attr{
				"dtype": graphdef.StringAttr("int32"),
			}},
			{Name: "y", Op: "placeholder", Attrs: map[string]*graphdef.Attr{
				"dtype": graphdef.StringAttr("int32"),
			}},
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

func TestCallOverWire(t *testing.T) {
	ex := startService(t)
	ctx := context.Background()
	comp, ts := sumComputation()

	fn, err := ex.CreateValue(ctx, &graphdef.WireValue{Computation: comp, Type: ts})
	if err != nil {
		t.Fatalf("CreateValue(computation): %v", err)
	}
	if got := fn.TypeSignature().String(); got != "(<a=int32,b=int32> -> int32)" {
		t.Errorf("type signature = %q", got)
	}

	arg, err := ex.CreateValue(ctx, &graphdef.WireValue{
		Struct: []graphdef.WireElement{
			{Name: "a", Value: &graphdef.WireValue{Tensor: scalar(t, 10)}},
			{Name: "b", Value: &graphdef.WireValue{Tensor: scalar(t, 20)}},
		},
		Type: ts.Parameter,
	})
	if err != nil {
		t.Fatalf("CreateValue(argument): %v", err)
	}

	result, err := ex.CreateCall(ctx, fn, arg)
	if err != nil {
		t.Fatalf("CreateCall: %v", err)
	}
	if got := computeScalar(t, result); got != 30 {
		t.Errorf("sum(10, 20) = %d, want 30", got)
	}
}

func TestStructAndSelectionOverWire(t *testing.T) {
	ex := startService(t)
	ctx := context.Background()

	a, err := ex.CreateValue(ctx, &graphdef.WireValue{Tensor: scalar(t, 10)})
	if err != nil {
		t.Fatal(err)
	}
	b, err := ex.CreateValue(ctx, &graphdef.WireValue{Tensor: scalar(t, 20)})
	if err != nil {
		t.Fatal(err)
	}
	s, err := ex.CreateStruct(ctx, StructElement{Name: "a", Value: a}, StructElement{Value: b})
	if err != nil {
		t.Fatalf("CreateStruct: %v", err)
	}
	if got := s.TypeSignature().String(); got != "<a=int32,int32>" {
		t.Errorf("type signature = %q, want <a=int32,int32>", got)
	}

	for i, want := range []int32{10, 20} {
		el, err := ex.CreateSelection(ctx, s, i)
		if err != nil {
			t.Fatalf("CreateSelection(%d): %v", i, err)
		}
		if got := computeScalar(t, el); got != want {
			t.Errorf("selection %d = %d, want %d", i, got, want)
		}
	}

	out, err := s.Compute(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var got []int32
	for _, e := range out.Struct {
		n, err := e.Value.Tensor.AsInt32()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, n)
	}
	if diff := cmp.Diff([]int32{10, 20}, got); diff != "" {
		t.Errorf("struct mismatch (-want +got):\n%s", diff)
	}
}

func TestSequenceOverWire(t *testing.T) {
	ex := startService(t)
	ctx := context.Background()

	v, err := ex.CreateValue(ctx, &graphdef.WireValue{
		Sequence: []*graphdef.WireValue{
			{Tensor: scalar(t, 10)},
			{Tensor: scalar(t, 20)},
			{Tensor: scalar(t, 30)},
		},
		Type: types.Sequence(int32T),
	})
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
	var got []int32
	for _, e := range out.Sequence {
		n, err := e.Tensor.AsInt32()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, n)
	}
	if diff := cmp.Diff([]int32{10, 20, 30}, got); diff != "" {
		t.Errorf("sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestErrorCodes(t *testing.T) {
	ex := startService(t)
	ctx := context.Background()

	lambda := &graphdef.Computation{Lambda: &graphdef.Lambda{ParameterName: "arg"}}
	_, err := ex.CreateValue(ctx, &graphdef.WireValue{
		Computation: lambda,
		Type:        types.Function(int32T, int32T),
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("lambda error code = %v, want InvalidArgument", status.Code(err))
	}

	bogus := &Value{ex: ex, id: 9999}
	_, err = ex.CreateCall(ctx, bogus, nil)
	if status.Code(err) != codes.NotFound {
		t.Errorf("unknown reference code = %v, want NotFound", status.Code(err))
	}
}

func TestClientEventsCarryOperationIDs(t *testing.T) {
	ex := startService(t)
	ctx := context.Background()

	eventbus.Use(eventbus.New())
	defer eventbus.Use(nil)

	var ids []int64
	missing := 0
	unsubscribe := eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientStart) {
		id, ok := opid.FromContext(ctx)
		if !ok {
			missing++
			return
		}
		ids = append(ids, id)
	})
	defer unsubscribe()

	for i := 0; i < 2; i++ {
		if _, err := ex.CreateValue(ctx, &graphdef.WireValue{Tensor: scalar(t, 1)}); err != nil {
			t.Fatalf("CreateValue: %v", err)
		}
	}
	if missing > 0 {
		t.Fatalf("%d client events published without an operation id", missing)
	}
	if len(ids) != 2 {
		t.Fatalf("observed %d client events, want 2", len(ids))
	}
	if ids[0] == ids[1] {
		t.Errorf("both calls published operation id %d, want distinct ids", ids[0])
	}
}

func TestPoolAfterClose(t *testing.T) {
	ex := New("closed.invalid")
	if err := ex.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, err := ex.CreateValue(context.Background(), &graphdef.WireValue{Tensor: scalar(t, 1)})
	if err == nil {
		t.Fatal("expected an error creating a value after Close")
	}

	// A receive that races the close sees the channel's zero value.
	drained := New("closed.invalid")
	close(drained.conns)
	if _, err := drained.getConn(context.Background()); err == nil {
		t.Fatal("expected an error from a closed pool")
	}
}

func TestDispose(t *testing.T) {
	ex := startService(t)
	ctx := context.Background()

	v, err := ex.CreateValue(ctx, &graphdef.WireValue{Tensor: scalar(t, 10)})
	if err != nil {
		t.Fatal(err)
	}
	if err := ex.Dispose(ctx, v); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	_, err = v.Compute(ctx)
	if status.Code(err) != codes.NotFound {
		t.Errorf("compute after dispose code = %v, want NotFound", status.Code(err))
	}
}
