package tensor

import (
	"fmt"
	"strings"
)

// DataType identifies the element type of a tensor.
type DataType uint8

const (
	Invalid DataType = iota
	Int32
	Int64
	Float32
	Float64
	Bool
	String
)

func (d DataType) String() string {
	switch d {
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Bool:
		return "bool"
	case String:
		return "string"
	default:
		return "invalid"
	}
}

// DataTypeFromString parses the rendering produced by DataType.String.
func DataTypeFromString(s string) (DataType, error) {
	for _, d := range []DataType{Int32, Int64, Float32, Float64, Bool, String} {
		if d.String() == s {
			return d, nil
		}
	}
	return Invalid, fmt.Errorf("unknown dtype %q", s)
}

// Shape is the dimension list of a tensor. An empty shape denotes a scalar.
type Shape []int

func (s Shape) IsScalar() bool { return len(s) == 0 }

func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	if len(s) == 0 {
		return "[]"
	}
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Tensor is a dense host tensor: a dtype, a shape, flat backing data, and an
// optional device binding. Tensors are immutable after construction.
type Tensor struct {
	dtype  DataType
	shape  Shape
	data   any // one of []int32 []int64 []float32 []float64 []bool []string
	device string
}

// New builds a tensor over the given backing slice. The slice length must
// match the shape's element count and the slice element type must match dtype.
func New(dtype DataType, shape Shape, data any) (*Tensor, error) {
	n, err := dataLen(dtype, data)
	if err != nil {
		return nil, err
	}
	if n != shape.NumElements() {
		return nil, fmt.Errorf("tensor data has %d elements, shape %s wants %d", n, shape, shape.NumElements())
	}
	return &Tensor{dtype: dtype, shape: append(Shape(nil), shape...), data: data}, nil
}

func dataLen(dtype DataType, data any) (int, error) {
	switch d := data.(type) {
	case []int32:
		if dtype != Int32 {
			return 0, fmt.Errorf("[]int32 data for dtype %s", dtype)
		}
		return len(d), nil
	case []int64:
		if dtype != Int64 {
			return 0, fmt.Errorf("[]int64 data for dtype %s", dtype)
		}
		return len(d), nil
	case []float32:
		if dtype != Float32 {
			return 0, fmt.Errorf("[]float32 data for dtype %s", dtype)
		}
		return len(d), nil
	case []float64:
		if dtype != Float64 {
			return 0, fmt.Errorf("[]float64 data for dtype %s", dtype)
		}
		return len(d), nil
	case []bool:
		if dtype != Bool {
			return 0, fmt.Errorf("[]bool data for dtype %s", dtype)
		}
		return len(d), nil
	case []string:
		if dtype != String {
			return 0, fmt.Errorf("[]string data for dtype %s", dtype)
		}
		return len(d), nil
	default:
		return 0, fmt.Errorf("unsupported tensor backing type %T", data)
	}
}

func (t *Tensor) DType() DataType { return t.dtype }
func (t *Tensor) Shape() Shape    { return t.shape }
func (t *Tensor) Device() string  { return t.device }
func (t *Tensor) IsScalar() bool  { return t.shape.IsScalar() }
func (t *Tensor) Data() any       { return t.data }

// NumElements reports the flat element count.
func (t *Tensor) NumElements() int { return t.shape.NumElements() }

// OnDevice returns a copy of t bound to the named logical device.
func (t *Tensor) OnDevice(name string) *Tensor {
	c := *t
	c.device = name
	return &c
}

func (t *Tensor) String() string {
	if t.IsScalar() {
		return fmt.Sprintf("%v", t.scalar())
	}
	return fmt.Sprintf("%s%s%v", t.dtype, t.shape, t.data)
}

func (t *Tensor) scalar() any {
	switch d := t.data.(type) {
	case []int32:
		return d[0]
	case []int64:
		return d[0]
	case []float32:
		return d[0]
	case []float64:
		return d[0]
	case []bool:
		return d[0]
	case []string:
		return d[0]
	}
	return nil
}

// AsInt32 returns the value of a scalar int32 tensor.
func (t *Tensor) AsInt32() (int32, error) {
	if !t.IsScalar() || t.dtype != Int32 {
		return 0, fmt.Errorf("tensor %s%s is not a scalar int32", t.dtype, t.shape)
	}
	return t.data.([]int32)[0], nil
}

// AsInt64 returns the value of a scalar int64 tensor.
func (t *Tensor) AsInt64() (int64, error) {
	if !t.IsScalar() || t.dtype != Int64 {
		return 0, fmt.Errorf("tensor %s%s is not a scalar int64", t.dtype, t.shape)
	}
	return t.data.([]int64)[0], nil
}

// AsFloat64 returns the value of a scalar float tensor (float32 or float64).
func (t *Tensor) AsFloat64() (float64, error) {
	if !t.IsScalar() {
		return 0, fmt.Errorf("tensor %s%s is not a scalar", t.dtype, t.shape)
	}
	switch d := t.data.(type) {
	case []float32:
		return float64(d[0]), nil
	case []float64:
		return d[0], nil
	default:
		return 0, fmt.Errorf("tensor dtype %s is not a float", t.dtype)
	}
}

// AsBool returns the value of a scalar bool tensor.
func (t *Tensor) AsBool() (bool, error) {
	if !t.IsScalar() || t.dtype != Bool {
		return false, fmt.Errorf("tensor %s%s is not a scalar bool", t.dtype, t.shape)
	}
	return t.data.([]bool)[0], nil
}

// AsString returns the value of a scalar string tensor.
func (t *Tensor) AsString() (string, error) {
	if !t.IsScalar() || t.dtype != String {
		return "", fmt.Errorf("tensor %s%s is not a scalar string", t.dtype, t.shape)
	}
	return t.data.([]string)[0], nil
}

// At slices out element i of a rank-1 tensor as a scalar tensor.
func (t *Tensor) At(i int) (*Tensor, error) {
	if len(t.shape) != 1 {
		return nil, fmt.Errorf("At requires a rank-1 tensor, got shape %s", t.shape)
	}
	if i < 0 || i >= t.shape[0] {
		return nil, fmt.Errorf("index %d out of range for shape %s", i, t.shape)
	}
	var out *Tensor
	var err error
	switch d := t.data.(type) {
	case []int32:
		out, err = New(Int32, nil, []int32{d[i]})
	case []int64:
		out, err = New(Int64, nil, []int64{d[i]})
	case []float32:
		out, err = New(Float32, nil, []float32{d[i]})
	case []float64:
		out, err = New(Float64, nil, []float64{d[i]})
	case []bool:
		out, err = New(Bool, nil, []bool{d[i]})
	case []string:
		out, err = New(String, nil, []string{d[i]})
	}
	if err != nil {
		return nil, err
	}
	out.device = t.device
	return out, nil
}

// Equal reports structural equality of dtype, shape, and data. Device binding
// is not part of equality.
func (t *Tensor) Equal(o *Tensor) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.dtype != o.dtype || !t.shape.Equal(o.shape) {
		return false
	}
	switch a := t.data.(type) {
	case []int32:
		b := o.data.([]int32)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	case []int64:
		b := o.data.([]int64)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	case []float32:
		b := o.data.([]float32)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	case []float64:
		b := o.data.([]float64)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	case []bool:
		b := o.data.([]bool)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	case []string:
		b := o.data.([]string)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}
