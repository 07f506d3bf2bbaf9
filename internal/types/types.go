// Package types defines the signatures carried by runtime values: tensors,
// ordered optionally-named structs, lazy sequences, and functions. Signatures
// render the same way they appear in protocol logs: `int32`,
// `<a=int32,b=int32>`, `int32*`, `(<a=int32,b=int32> -> int32)`.
package types

import (
	"strings"

	"github.com/weftml/weft/internal/tensor"
)

// Type is the signature of a runtime value.
type Type interface {
	String() string
	Equal(Type) bool
}

// TensorType describes a dense tensor: a dtype and a shape.
// A nil Shape denotes a scalar.
type TensorType struct {
	DType tensor.DataType
	Shape tensor.Shape
}

// Tensor builds a TensorType with the given dims (none for a scalar).
func Tensor(d tensor.DataType, dims ...int) *TensorType {
	return &TensorType{DType: d, Shape: tensor.Shape(dims)}
}

func (t *TensorType) String() string {
	if t.Shape.IsScalar() {
		return t.DType.String()
	}
	return t.DType.String() + t.Shape.String()
}

func (t *TensorType) Equal(o Type) bool {
	ot, ok := o.(*TensorType)
	return ok && t.DType == ot.DType && t.Shape.Equal(ot.Shape)
}

// StructElement is one member of a StructType. Name may be empty.
type StructElement struct {
	Name string
	Type Type
}

// StructType is an ordered tuple of element types with optional names.
type StructType struct {
	Elements []StructElement
}

// Struct builds a StructType from the given elements.
func Struct(elements ...StructElement) *StructType {
	return &StructType{Elements: elements}
}

// Elem is a convenience constructor for a StructElement.
func Elem(name string, t Type) StructElement { return StructElement{Name: name, Type: t} }

func (t *StructType) Len() int { return len(t.Elements) }

func (t *StructType) String() string {
	parts := make([]string, len(t.Elements))
	for i, e := range t.Elements {
		if e.Name != "" {
			parts[i] = e.Name + "=" + e.Type.String()
		} else {
			parts[i] = e.Type.String()
		}
	}
	return "<" + strings.Join(parts, ",") + ">"
}

func (t *StructType) Equal(o Type) bool {
	ot, ok := o.(*StructType)
	if !ok || len(t.Elements) != len(ot.Elements) {
		return false
	}
	for i, e := range t.Elements {
		if e.Name != ot.Elements[i].Name || !e.Type.Equal(ot.Elements[i].Type) {
			return false
		}
	}
	return true
}

// SequenceType describes a lazy stream of elements of one type.
type SequenceType struct {
	Elem Type
}

// Sequence builds a SequenceType over elem.
func Sequence(elem Type) *SequenceType { return &SequenceType{Elem: elem} }

func (t *SequenceType) String() string { return t.Elem.String() + "*" }

func (t *SequenceType) Equal(o Type) bool {
	ot, ok := o.(*SequenceType)
	return ok && t.Elem.Equal(ot.Elem)
}

// FunctionType describes a callable. Parameter is nil for nullary functions.
type FunctionType struct {
	Parameter Type
	Result    Type
}

// Function builds a FunctionType. Pass a nil parameter for nullary functions.
func Function(parameter, result Type) *FunctionType {
	return &FunctionType{Parameter: parameter, Result: result}
}

func (t *FunctionType) String() string {
	if t.Parameter == nil {
		return "( -> " + t.Result.String() + ")"
	}
	return "(" + t.Parameter.String() + " -> " + t.Result.String() + ")"
}

func (t *FunctionType) Equal(o Type) bool {
	ot, ok := o.(*FunctionType)
	if !ok {
		return false
	}
	if (t.Parameter == nil) != (ot.Parameter == nil) {
		return false
	}
	if t.Parameter != nil && !t.Parameter.Equal(ot.Parameter) {
		return false
	}
	return t.Result.Equal(ot.Result)
}
