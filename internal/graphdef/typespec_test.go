package graphdef

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/weftml/weft/internal/tensor"
	"github.com/weftml/weft/internal/types"
)

func TestTypeSpecRoundTrip(t *testing.T) {
	int32T := types.Tensor(tensor.Int32)
	cases := []types.Type{
		int32T,
		types.Tensor(tensor.Float64, 2, 3),
		types.Struct(types.Elem("a", int32T), types.Elem("b", int32T)),
		types.Struct(types.Elem("", int32T), types.Elem("", types.Struct(types.Elem("a", int32T)))),
		types.Sequence(int32T),
		types.Function(nil, int32T),
		types.Function(types.Struct(types.Elem("a", int32T), types.Elem("b", int32T)), int32T),
		types.Function(types.Sequence(int32T), int32T),
	}
	for _, in := range cases {
		msg, err := EncodeType(in)
		if err != nil {
			t.Fatalf("EncodeType(%s): %v", in, err)
		}
		out, err := DecodeType(msg)
		if err != nil {
			t.Fatalf("DecodeType(%s): %v", in, err)
		}
		if !in.Equal(out) {
			t.Errorf("round trip of %s produced %s", in, out)
		}
	}
}

func TestValueRoundTrip(t *testing.T) {
	int32T := types.Tensor(tensor.Int32)
	tensorsEqual := cmp.Comparer(func(a, b *tensor.Tensor) bool { return a.Equal(b) })
	typesEqual := cmp.Comparer(func(a, b types.Type) bool { return a.Equal(b) })

	cases := []*WireValue{
		{Tensor: tensor.ScalarInt32(10), Type: int32T},
		{Tensor: mustVector(t, []int64{1, 2, 3}), Type: types.Tensor(tensor.Int64, 3)},
		{
			Struct: []WireElement{
				{Value: &WireValue{Tensor: tensor.ScalarInt32(10), Type: int32T}},
				{Name: "a", Value: &WireValue{Tensor: tensor.ScalarInt32(20), Type: int32T}},
			},
			Type: types.Struct(types.Elem("", int32T), types.Elem("a", int32T)),
		},
		{
			Sequence: []*WireValue{
				{Tensor: tensor.ScalarInt32(10), Type: int32T},
				{Tensor: tensor.ScalarInt32(20), Type: int32T},
			},
			Type: types.Sequence(int32T),
		},
		{
			Computation: sumGraph(),
			Type: types.Function(
				types.Struct(types.Elem("a", int32T), types.Elem("b", int32T)), int32T),
		},
	}
	for _, in := range cases {
		msg, err := EncodeValue(in)
		if err != nil {
			t.Fatalf("EncodeValue: %v", err)
		}
		out, err := DecodeValue(msg)
		if err != nil {
			t.Fatalf("DecodeValue: %v", err)
		}
		if diff := cmp.Diff(in, out, tensorsEqual, typesEqual); diff != "" {
			t.Errorf("value mismatch (-want +got):\n%s", diff)
		}
	}
}

func mustVector(t *testing.T, vs []int64) *tensor.Tensor {
	t.Helper()
	v, err := tensor.Vector(tensor.Int64, vs)
	if err != nil {
		t.Fatal(err)
	}
	return v
}
