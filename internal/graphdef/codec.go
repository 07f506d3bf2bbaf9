package graphdef

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Marshal serializes a computation to protobuf wire bytes.
func Marshal(c *Computation) ([]byte, error) {
	msg, err := encodeComputation(c)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(msg)
}

// Unmarshal parses protobuf wire bytes into a computation.
func Unmarshal(data []byte) (*Computation, error) {
	msg := dynamicpb.NewMessage(ComputationMessage())
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("parsing computation: %w", err)
	}
	return decodeComputation(msg)
}

func field(md protoreflect.MessageDescriptor, name string) protoreflect.FieldDescriptor {
	fd := md.Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		panic(fmt.Sprintf("graphdef: message %s has no field %q", md.FullName(), name))
	}
	return fd
}

func encodeComputation(c *Computation) (*dynamicpb.Message, error) {
	md := ComputationMessage()
	msg := dynamicpb.NewMessage(md)
	switch {
	case c.Graph != nil:
		sub, err := encodeGraph(c.Graph)
		if err != nil {
			return nil, err
		}
		msg.Set(field(md, "graph"), protoreflect.ValueOfMessage(sub))
	case c.Lambda != nil:
		sub, err := encodeLambda(c.Lambda)
		if err != nil {
			return nil, err
		}
		msg.Set(field(md, "lambda"), protoreflect.ValueOfMessage(sub))
	default:
		return nil, fmt.Errorf("computation has no form set")
	}
	return msg, nil
}

func decodeComputation(msg protoreflect.Message) (*Computation, error) {
	md := msg.Descriptor()
	out := &Computation{}
	if msg.Has(field(md, "graph")) {
		g, err := decodeGraph(msg.Get(field(md, "graph")).Message())
		if err != nil {
			return nil, err
		}
		out.Graph = g
	}
	if msg.Has(field(md, "lambda")) {
		l, err := decodeLambda(msg.Get(field(md, "lambda")).Message())
		if err != nil {
			return nil, err
		}
		out.Lambda = l
	}
	return out, nil
}

func encodeLambda(l *Lambda) (protoreflect.Message, error) {
	md := ComputationMessage().ParentFile().Messages().ByName("Lambda")
	msg := dynamicpb.NewMessage(md)
	msg.Set(field(md, "parameter_name"), protoreflect.ValueOfString(l.ParameterName))
	if l.Body != nil {
		body, err := encodeComputation(l.Body)
		if err != nil {
			return nil, err
		}
		msg.Set(field(md, "body"), protoreflect.ValueOfMessage(body))
	}
	return msg, nil
}

func decodeLambda(msg protoreflect.Message) (*Lambda, error) {
	md := msg.Descriptor()
	out := &Lambda{ParameterName: msg.Get(field(md, "parameter_name")).String()}
	if msg.Has(field(md, "body")) {
		body, err := decodeComputation(msg.Get(field(md, "body")).Message())
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	return out, nil
}

func encodeGraph(g *Graph) (protoreflect.Message, error) {
	md := ComputationMessage().ParentFile().Messages().ByName("Graph")
	msg := dynamicpb.NewMessage(md)
	nodes := msg.Mutable(field(md, "nodes")).List()
	for _, n := range g.Nodes {
		sub, err := encodeNode(n)
		if err != nil {
			return nil, err
		}
		nodes.Append(protoreflect.ValueOfMessage(sub))
	}
	if g.Parameter != nil {
		sub, err := encodeBinding(g.Parameter)
		if err != nil {
			return nil, err
		}
		msg.Set(field(md, "parameter"), protoreflect.ValueOfMessage(sub))
	}
	if g.Result != nil {
		sub, err := encodeBinding(g.Result)
		if err != nil {
			return nil, err
		}
		msg.Set(field(md, "result"), protoreflect.ValueOfMessage(sub))
	}
	return msg, nil
}

func decodeGraph(msg protoreflect.Message) (*Graph, error) {
	md := msg.Descriptor()
	out := &Graph{}
	nodes := msg.Get(field(md, "nodes")).List()
	for i := 0; i < nodes.Len(); i++ {
		n, err := decodeNode(nodes.Get(i).Message())
		if err != nil {
			return nil, err
		}
		out.Nodes = append(out.Nodes, n)
	}
	if msg.Has(field(md, "parameter")) {
		b, err := decodeBinding(msg.Get(field(md, "parameter")).Message())
		if err != nil {
			return nil, err
		}
		out.Parameter = b
	}
	if msg.Has(field(md, "result")) {
		b, err := decodeBinding(msg.Get(field(md, "result")).Message())
		if err != nil {
			return nil, err
		}
		out.Result = b
	}
	return out, nil
}

func encodeNode(n *Node) (protoreflect.Message, error) {
	md := ComputationMessage().ParentFile().Messages().ByName("Node")
	msg := dynamicpb.NewMessage(md)
	msg.Set(field(md, "name"), protoreflect.ValueOfString(n.Name))
	msg.Set(field(md, "op"), protoreflect.ValueOfString(n.Op))
	if len(n.Inputs) > 0 {
		lst := msg.Mutable(field(md, "inputs")).List()
		for _, in := range n.Inputs {
			lst.Append(protoreflect.ValueOfString(in))
		}
	}
	if len(n.ControlInputs) > 0 {
		lst := msg.Mutable(field(md, "control_inputs")).List()
		for _, in := range n.ControlInputs {
			lst.Append(protoreflect.ValueOfString(in))
		}
	}
	if len(n.Attrs) > 0 {
		names := make([]string, 0, len(n.Attrs))
		for name := range n.Attrs {
			names = append(names, name)
		}
		sort.Strings(names)
		lst := msg.Mutable(field(md, "attrs")).List()
		entryMD := ComputationMessage().ParentFile().Messages().ByName("AttrEntry")
		for _, name := range names {
			entry := dynamicpb.NewMessage(entryMD)
			entry.Set(field(entryMD, "name"), protoreflect.ValueOfString(name))
			entry.Set(field(entryMD, "attr"), protoreflect.ValueOfMessage(encodeAttr(n.Attrs[name])))
			lst.Append(protoreflect.ValueOfMessage(entry))
		}
	}
	return msg, nil
}

func decodeNode(msg protoreflect.Message) (*Node, error) {
	md := msg.Descriptor()
	out := &Node{
		Name: msg.Get(field(md, "name")).String(),
		Op:   msg.Get(field(md, "op")).String(),
	}
	inputs := msg.Get(field(md, "inputs")).List()
	for i := 0; i < inputs.Len(); i++ {
		out.Inputs = append(out.Inputs, inputs.Get(i).String())
	}
	controls := msg.Get(field(md, "control_inputs")).List()
	for i := 0; i < controls.Len(); i++ {
		out.ControlInputs = append(out.ControlInputs, controls.Get(i).String())
	}
	attrs := msg.Get(field(md, "attrs")).List()
	for i := 0; i < attrs.Len(); i++ {
		entry := attrs.Get(i).Message()
		emd := entry.Descriptor()
		name := entry.Get(field(emd, "name")).String()
		attr, err := decodeAttr(entry.Get(field(emd, "attr")).Message())
		if err != nil {
			return nil, fmt.Errorf("node %q attr %q: %w", out.Name, name, err)
		}
		if out.Attrs == nil {
			out.Attrs = map[string]*Attr{}
		}
		out.Attrs[name] = attr
	}
	return out, nil
}

func encodeAttr(a *Attr) protoreflect.Message {
	md := ComputationMessage().ParentFile().Messages().ByName("Attr")
	msg := dynamicpb.NewMessage(md)
	msg.Set(field(md, "kind"), protoreflect.ValueOfInt32(int32(a.Kind)))
	switch a.Kind {
	case AttrInt:
		msg.Set(field(md, "i"), protoreflect.ValueOfInt64(a.Int))
	case AttrFloat:
		msg.Set(field(md, "f"), protoreflect.ValueOfFloat64(a.Float))
	case AttrString:
		msg.Set(field(md, "s"), protoreflect.ValueOfString(a.Str))
	case AttrBool:
		msg.Set(field(md, "b"), protoreflect.ValueOfBool(a.Bool))
	case AttrInts:
		lst := msg.Mutable(field(md, "ints")).List()
		for _, v := range a.Ints {
			lst.Append(protoreflect.ValueOfInt64(v))
		}
	}
	return msg
}

func decodeAttr(msg protoreflect.Message) (*Attr, error) {
	md := msg.Descriptor()
	out := &Attr{Kind: AttrKind(msg.Get(field(md, "kind")).Int())}
	switch out.Kind {
	case AttrInt:
		out.Int = msg.Get(field(md, "i")).Int()
	case AttrFloat:
		out.Float = msg.Get(field(md, "f")).Float()
	case AttrString:
		out.Str = msg.Get(field(md, "s")).String()
	case AttrBool:
		out.Bool = msg.Get(field(md, "b")).Bool()
	case AttrInts:
		lst := msg.Get(field(md, "ints")).List()
		for i := 0; i < lst.Len(); i++ {
			out.Ints = append(out.Ints, lst.Get(i).Int())
		}
	default:
		return nil, fmt.Errorf("unknown attr kind %d", out.Kind)
	}
	return out, nil
}

func encodeBinding(b *Binding) (protoreflect.Message, error) {
	file := ComputationMessage().ParentFile()
	md := file.Messages().ByName("Binding")
	msg := dynamicpb.NewMessage(md)
	switch {
	case b.Tensor != nil:
		tmd := file.Messages().ByName("TensorBinding")
		sub := dynamicpb.NewMessage(tmd)
		sub.Set(field(tmd, "node_name"), protoreflect.ValueOfString(b.Tensor.NodeName))
		msg.Set(field(md, "tensor"), protoreflect.ValueOfMessage(sub))
	case b.Sequence != nil:
		smd := file.Messages().ByName("SequenceBinding")
		sub := dynamicpb.NewMessage(smd)
		sub.Set(field(smd, "node_name"), protoreflect.ValueOfString(b.Sequence.NodeName))
		msg.Set(field(md, "sequence"), protoreflect.ValueOfMessage(sub))
	case b.Struct != nil:
		smd := file.Messages().ByName("StructBinding")
		emd := file.Messages().ByName("BindingElement")
		sub := dynamicpb.NewMessage(smd)
		lst := sub.Mutable(field(smd, "elements")).List()
		for _, e := range b.Struct.Elements {
			entry := dynamicpb.NewMessage(emd)
			entry.Set(field(emd, "name"), protoreflect.ValueOfString(e.Name))
			inner, err := encodeBinding(e.Binding)
			if err != nil {
				return nil, err
			}
			entry.Set(field(emd, "binding"), protoreflect.ValueOfMessage(inner))
			lst.Append(protoreflect.ValueOfMessage(entry))
		}
		msg.Set(field(md, "struct"), protoreflect.ValueOfMessage(sub))
	default:
		return nil, fmt.Errorf("binding has no variant set")
	}
	return msg, nil
}

func decodeBinding(msg protoreflect.Message) (*Binding, error) {
	md := msg.Descriptor()
	out := &Binding{}
	if msg.Has(field(md, "tensor")) {
		sub := msg.Get(field(md, "tensor")).Message()
		out.Tensor = &TensorBinding{NodeName: sub.Get(field(sub.Descriptor(), "node_name")).String()}
	}
	if msg.Has(field(md, "sequence")) {
		sub := msg.Get(field(md, "sequence")).Message()
		out.Sequence = &SequenceBinding{NodeName: sub.Get(field(sub.Descriptor(), "node_name")).String()}
	}
	if msg.Has(field(md, "struct")) {
		sub := msg.Get(field(md, "struct")).Message()
		out.Struct = &StructBinding{}
		lst := sub.Get(field(sub.Descriptor(), "elements")).List()
		for i := 0; i < lst.Len(); i++ {
			entry := lst.Get(i).Message()
			emd := entry.Descriptor()
			inner, err := decodeBinding(entry.Get(field(emd, "binding")).Message())
			if err != nil {
				return nil, err
			}
			out.Struct.Elements = append(out.Struct.Elements, &BindingElement{
				Name:    entry.Get(field(emd, "name")).String(),
				Binding: inner,
			})
		}
	}
	return out, nil
}
