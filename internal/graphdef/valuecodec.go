package graphdef

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/weftml/weft/internal/tensor"
	"github.com/weftml/weft/internal/types"
)

// WireValue is the transport form of a runtime value. Sequences are
// materialized for transport; computations travel as serialized bytes next to
// their function type. Exactly one representation field is set.
type WireValue struct {
	Tensor      *tensor.Tensor
	Struct      []WireElement
	Sequence    []*WireValue
	Computation *Computation
	Type        types.Type
}

// WireElement is one member of a struct WireValue.
type WireElement struct {
	Name  string
	Value *WireValue
}

// EncodeValue converts a WireValue into a weft.v1.Value message.
func EncodeValue(v *WireValue) (*dynamicpb.Message, error) {
	file := ValueMessage().ParentFile()
	md := ValueMessage()
	msg := dynamicpb.NewMessage(md)
	switch {
	case v.Tensor != nil:
		sub, err := encodeTensor(v.Tensor)
		if err != nil {
			return nil, err
		}
		msg.Set(field(md, "tensor"), protoreflect.ValueOfMessage(sub))
	case v.Struct != nil:
		smd := file.Messages().ByName("StructValue")
		emd := file.Messages().ByName("ValueElement")
		sub := dynamicpb.NewMessage(smd)
		lst := sub.Mutable(field(smd, "elements")).List()
		for _, e := range v.Struct {
			entry := dynamicpb.NewMessage(emd)
			entry.Set(field(emd, "name"), protoreflect.ValueOfString(e.Name))
			inner, err := EncodeValue(e.Value)
			if err != nil {
				return nil, err
			}
			entry.Set(field(emd, "value"), protoreflect.ValueOfMessage(inner))
			lst.Append(protoreflect.ValueOfMessage(entry))
		}
		msg.Set(field(md, "struct"), protoreflect.ValueOfMessage(sub))
	case v.Sequence != nil:
		smd := file.Messages().ByName("SequenceValue")
		sub := dynamicpb.NewMessage(smd)
		lst := sub.Mutable(field(smd, "elements")).List()
		for _, e := range v.Sequence {
			inner, err := EncodeValue(e)
			if err != nil {
				return nil, err
			}
			lst.Append(protoreflect.ValueOfMessage(inner))
		}
		msg.Set(field(md, "sequence"), protoreflect.ValueOfMessage(sub))
	case v.Computation != nil:
		data, err := Marshal(v.Computation)
		if err != nil {
			return nil, err
		}
		msg.Set(field(md, "computation"), protoreflect.ValueOfBytes(data))
	default:
		return nil, fmt.Errorf("wire value has no representation set")
	}
	if v.Type != nil {
		ts, err := EncodeType(v.Type)
		if err != nil {
			return nil, err
		}
		msg.Set(field(md, "type"), protoreflect.ValueOfMessage(ts))
	}
	return msg, nil
}

// DecodeValue parses a weft.v1.Value message into a WireValue.
func DecodeValue(msg protoreflect.Message) (*WireValue, error) {
	md := msg.Descriptor()
	out := &WireValue{}
	if msg.Has(field(md, "type")) {
		t, err := DecodeType(msg.Get(field(md, "type")).Message())
		if err != nil {
			return nil, err
		}
		out.Type = t
	}
	switch {
	case msg.Has(field(md, "tensor")):
		t, err := decodeTensor(msg.Get(field(md, "tensor")).Message())
		if err != nil {
			return nil, err
		}
		out.Tensor = t
	case msg.Has(field(md, "struct")):
		sub := msg.Get(field(md, "struct")).Message()
		lst := sub.Get(field(sub.Descriptor(), "elements")).List()
		out.Struct = make([]WireElement, 0, lst.Len())
		for i := 0; i < lst.Len(); i++ {
			entry := lst.Get(i).Message()
			emd := entry.Descriptor()
			inner, err := DecodeValue(entry.Get(field(emd, "value")).Message())
			if err != nil {
				return nil, err
			}
			out.Struct = append(out.Struct, WireElement{
				Name:  entry.Get(field(emd, "name")).String(),
				Value: inner,
			})
		}
	case msg.Has(field(md, "sequence")):
		sub := msg.Get(field(md, "sequence")).Message()
		lst := sub.Get(field(sub.Descriptor(), "elements")).List()
		out.Sequence = make([]*WireValue, 0, lst.Len())
		for i := 0; i < lst.Len(); i++ {
			inner, err := DecodeValue(lst.Get(i).Message())
			if err != nil {
				return nil, err
			}
			out.Sequence = append(out.Sequence, inner)
		}
	case msg.Has(field(md, "computation")):
		c, err := Unmarshal(msg.Get(field(md, "computation")).Bytes())
		if err != nil {
			return nil, err
		}
		out.Computation = c
	default:
		return nil, fmt.Errorf("value has no representation set")
	}
	return out, nil
}

func encodeTensor(t *tensor.Tensor) (protoreflect.Message, error) {
	md := ValueMessage().ParentFile().Messages().ByName("TensorValue")
	msg := dynamicpb.NewMessage(md)
	msg.Set(field(md, "dtype"), protoreflect.ValueOfString(t.DType().String()))
	if len(t.Shape()) > 0 {
		lst := msg.Mutable(field(md, "shape")).List()
		for _, d := range t.Shape() {
			lst.Append(protoreflect.ValueOfInt64(int64(d)))
		}
	}
	switch data := t.Data().(type) {
	case []int32:
		lst := msg.Mutable(field(md, "int_values")).List()
		for _, v := range data {
			lst.Append(protoreflect.ValueOfInt64(int64(v)))
		}
	case []int64:
		lst := msg.Mutable(field(md, "int_values")).List()
		for _, v := range data {
			lst.Append(protoreflect.ValueOfInt64(v))
		}
	case []float32:
		lst := msg.Mutable(field(md, "float_values")).List()
		for _, v := range data {
			lst.Append(protoreflect.ValueOfFloat64(float64(v)))
		}
	case []float64:
		lst := msg.Mutable(field(md, "float_values")).List()
		for _, v := range data {
			lst.Append(protoreflect.ValueOfFloat64(v))
		}
	case []bool:
		lst := msg.Mutable(field(md, "bool_values")).List()
		for _, v := range data {
			lst.Append(protoreflect.ValueOfBool(v))
		}
	case []string:
		lst := msg.Mutable(field(md, "string_values")).List()
		for _, v := range data {
			lst.Append(protoreflect.ValueOfString(v))
		}
	default:
		return nil, fmt.Errorf("unsupported tensor backing type %T", data)
	}
	return msg, nil
}

func decodeTensor(msg protoreflect.Message) (*tensor.Tensor, error) {
	md := msg.Descriptor()
	dt, err := tensor.DataTypeFromString(msg.Get(field(md, "dtype")).String())
	if err != nil {
		return nil, err
	}
	var shape tensor.Shape
	dims := msg.Get(field(md, "shape")).List()
	for i := 0; i < dims.Len(); i++ {
		shape = append(shape, int(dims.Get(i).Int()))
	}
	var data any
	switch dt {
	case tensor.Int32:
		lst := msg.Get(field(md, "int_values")).List()
		vs := make([]int32, lst.Len())
		for i := range vs {
			vs[i] = int32(lst.Get(i).Int())
		}
		data = vs
	case tensor.Int64:
		lst := msg.Get(field(md, "int_values")).List()
		vs := make([]int64, lst.Len())
		for i := range vs {
			vs[i] = lst.Get(i).Int()
		}
		data = vs
	case tensor.Float32:
		lst := msg.Get(field(md, "float_values")).List()
		vs := make([]float32, lst.Len())
		for i := range vs {
			vs[i] = float32(lst.Get(i).Float())
		}
		data = vs
	case tensor.Float64:
		lst := msg.Get(field(md, "float_values")).List()
		vs := make([]float64, lst.Len())
		for i := range vs {
			vs[i] = lst.Get(i).Float()
		}
		data = vs
	case tensor.Bool:
		lst := msg.Get(field(md, "bool_values")).List()
		vs := make([]bool, lst.Len())
		for i := range vs {
			vs[i] = lst.Get(i).Bool()
		}
		data = vs
	case tensor.String:
		lst := msg.Get(field(md, "string_values")).List()
		vs := make([]string, lst.Len())
		for i := range vs {
			vs[i] = lst.Get(i).String()
		}
		data = vs
	default:
		return nil, fmt.Errorf("unsupported dtype %s", dt)
	}
	return tensor.New(dt, shape, data)
}
