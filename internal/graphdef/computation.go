// Package graphdef defines the serialized form of computations: a small
// protocol-buffer message family describing dataflow graphs, their parameter
// and result bindings, and the binder (lambda) form that cannot be embedded
// directly. Descriptors are constructed programmatically and values travel as
// dynamic messages, so the wire format needs no generated code.
package graphdef

// Computation is the top-level serialized form. Exactly one of the fields is
// set: Graph for a directly embeddable dataflow graph, Lambda for a binder.
type Computation struct {
	Graph  *Graph
	Lambda *Lambda
}

// Kind names the top-level form of a computation.
func (c *Computation) Kind() string {
	switch {
	case c.Graph != nil:
		return "graph"
	case c.Lambda != nil:
		return "lambda"
	default:
		return "unknown"
	}
}

// Lambda is the binder form: a named parameter abstracted over a body. An
// eager executor cannot embed it; binders are reduced by orchestration layers
// above the executor.
type Lambda struct {
	ParameterName string
	Body          *Computation
}

// Graph is a dataflow graph plus the bindings that tie its parameter and
// result to named nodes.
type Graph struct {
	Nodes     []*Node
	Parameter *Binding // nil for nullary computations
	Result    *Binding
}

// Node is a single graph operation. Inputs name producing nodes;
// ControlInputs order side effects without a data dependency.
type Node struct {
	Name          string
	Op            string
	Inputs        []string
	ControlInputs []string
	Attrs         map[string]*Attr
}

// NodeByName returns the named node, or nil.
func (g *Graph) NodeByName(name string) *Node {
	for _, n := range g.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// AttrKind discriminates the variants of Attr.
type AttrKind uint8

const (
	AttrInt AttrKind = iota + 1
	AttrFloat
	AttrString
	AttrBool
	AttrInts
)

// Attr is one attribute of a Node.
type Attr struct {
	Kind  AttrKind
	Int   int64
	Float float64
	Str   string
	Bool  bool
	Ints  []int64
}

func IntAttr(v int64) *Attr     { return &Attr{Kind: AttrInt, Int: v} }
func FloatAttr(v float64) *Attr { return &Attr{Kind: AttrFloat, Float: v} }
func StringAttr(v string) *Attr { return &Attr{Kind: AttrString, Str: v} }
func BoolAttr(v bool) *Attr     { return &Attr{Kind: AttrBool, Bool: v} }
func IntsAttr(vs ...int64) *Attr {
	return &Attr{Kind: AttrInts, Ints: vs}
}

// Binding ties a structured parameter or result position to graph nodes.
// Exactly one field is set.
type Binding struct {
	Tensor   *TensorBinding
	Struct   *StructBinding
	Sequence *SequenceBinding
}

// TensorBinding binds a tensor position to the named node's output.
type TensorBinding struct {
	NodeName string
}

// SequenceBinding binds a sequence position to the named node's output.
type SequenceBinding struct {
	NodeName string
}

// StructBinding binds a struct position elementwise.
type StructBinding struct {
	Elements []*BindingElement
}

// BindingElement is one member of a StructBinding. Name may be empty.
type BindingElement struct {
	Name    string
	Binding *Binding
}

// BindTensor builds a tensor binding to the named node.
func BindTensor(nodeName string) *Binding {
	return &Binding{Tensor: &TensorBinding{NodeName: nodeName}}
}

// BindSequence builds a sequence binding to the named node.
func BindSequence(nodeName string) *Binding {
	return &Binding{Sequence: &SequenceBinding{NodeName: nodeName}}
}

// BindStruct builds a struct binding over the given elements.
func BindStruct(elements ...*BindingElement) *Binding {
	return &Binding{Struct: &StructBinding{Elements: elements}}
}
