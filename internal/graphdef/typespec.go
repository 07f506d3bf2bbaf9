package graphdef

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/weftml/weft/internal/tensor"
	"github.com/weftml/weft/internal/types"
)

// EncodeType converts a type signature into a weft.v1.TypeSpec message.
func EncodeType(t types.Type) (protoreflect.Message, error) {
	file := TypeSpecMessage().ParentFile()
	md := TypeSpecMessage()
	msg := dynamicpb.NewMessage(md)
	switch tt := t.(type) {
	case *types.TensorType:
		smd := file.Messages().ByName("TensorSpec")
		sub := dynamicpb.NewMessage(smd)
		sub.Set(field(smd, "dtype"), protoreflect.ValueOfString(tt.DType.String()))
		if len(tt.Shape) > 0 {
			lst := sub.Mutable(field(smd, "shape")).List()
			for _, d := range tt.Shape {
				lst.Append(protoreflect.ValueOfInt64(int64(d)))
			}
		}
		msg.Set(field(md, "tensor"), protoreflect.ValueOfMessage(sub))
	case *types.StructType:
		smd := file.Messages().ByName("StructSpec")
		emd := file.Messages().ByName("StructSpecElement")
		sub := dynamicpb.NewMessage(smd)
		lst := sub.Mutable(field(smd, "elements")).List()
		for _, e := range tt.Elements {
			entry := dynamicpb.NewMessage(emd)
			entry.Set(field(emd, "name"), protoreflect.ValueOfString(e.Name))
			inner, err := EncodeType(e.Type)
			if err != nil {
				return nil, err
			}
			entry.Set(field(emd, "type"), protoreflect.ValueOfMessage(inner))
			lst.Append(protoreflect.ValueOfMessage(entry))
		}
		msg.Set(field(md, "struct"), protoreflect.ValueOfMessage(sub))
	case *types.SequenceType:
		inner, err := EncodeType(tt.Elem)
		if err != nil {
			return nil, err
		}
		msg.Set(field(md, "sequence_elem"), protoreflect.ValueOfMessage(inner))
	case *types.FunctionType:
		smd := file.Messages().ByName("FunctionSpec")
		sub := dynamicpb.NewMessage(smd)
		if tt.Parameter != nil {
			p, err := EncodeType(tt.Parameter)
			if err != nil {
				return nil, err
			}
			sub.Set(field(smd, "parameter"), protoreflect.ValueOfMessage(p))
		}
		r, err := EncodeType(tt.Result)
		if err != nil {
			return nil, err
		}
		sub.Set(field(smd, "result"), protoreflect.ValueOfMessage(r))
		msg.Set(field(md, "function"), protoreflect.ValueOfMessage(sub))
	default:
		return nil, fmt.Errorf("cannot encode type %T", t)
	}
	return msg, nil
}

// DecodeType parses a weft.v1.TypeSpec message into a type signature.
func DecodeType(msg protoreflect.Message) (types.Type, error) {
	md := msg.Descriptor()
	switch {
	case msg.Has(field(md, "tensor")):
		sub := msg.Get(field(md, "tensor")).Message()
		smd := sub.Descriptor()
		dt, err := tensor.DataTypeFromString(sub.Get(field(smd, "dtype")).String())
		if err != nil {
			return nil, err
		}
		var dims []int
		lst := sub.Get(field(smd, "shape")).List()
		for i := 0; i < lst.Len(); i++ {
			dims = append(dims, int(lst.Get(i).Int()))
		}
		return types.Tensor(dt, dims...), nil
	case msg.Has(field(md, "struct")):
		sub := msg.Get(field(md, "struct")).Message()
		lst := sub.Get(field(sub.Descriptor(), "elements")).List()
		elements := make([]types.StructElement, 0, lst.Len())
		for i := 0; i < lst.Len(); i++ {
			entry := lst.Get(i).Message()
			emd := entry.Descriptor()
			inner, err := DecodeType(entry.Get(field(emd, "type")).Message())
			if err != nil {
				return nil, err
			}
			elements = append(elements, types.Elem(entry.Get(field(emd, "name")).String(), inner))
		}
		return types.Struct(elements...), nil
	case msg.Has(field(md, "sequence_elem")):
		inner, err := DecodeType(msg.Get(field(md, "sequence_elem")).Message())
		if err != nil {
			return nil, err
		}
		return types.Sequence(inner), nil
	case msg.Has(field(md, "function")):
		sub := msg.Get(field(md, "function")).Message()
		smd := sub.Descriptor()
		var param types.Type
		if sub.Has(field(smd, "parameter")) {
			p, err := DecodeType(sub.Get(field(smd, "parameter")).Message())
			if err != nil {
				return nil, err
			}
			param = p
		}
		result, err := DecodeType(sub.Get(field(smd, "result")).Message())
		if err != nil {
			return nil, err
		}
		return types.Function(param, result), nil
	default:
		return nil, fmt.Errorf("type spec has no variant set")
	}
}
