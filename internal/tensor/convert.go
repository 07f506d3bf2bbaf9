package tensor

import "fmt"

// Scalar constructors.

func ScalarInt32(v int32) *Tensor   { t, _ := New(Int32, nil, []int32{v}); return t }
func ScalarInt64(v int64) *Tensor   { t, _ := New(Int64, nil, []int64{v}); return t }
func ScalarFloat32(v float32) *Tensor { t, _ := New(Float32, nil, []float32{v}); return t }
func ScalarFloat64(v float64) *Tensor { t, _ := New(Float64, nil, []float64{v}); return t }
func ScalarBool(v bool) *Tensor     { t, _ := New(Bool, nil, []bool{v}); return t }
func ScalarString(v string) *Tensor { t, _ := New(String, nil, []string{v}); return t }

// Vector builds a rank-1 tensor over vs.
func Vector(dtype DataType, vs any) (*Tensor, error) {
	n, err := dataLen(dtype, vs)
	if err != nil {
		return nil, err
	}
	return New(dtype, Shape{n}, vs)
}

// Convert coerces a host Go value into a tensor of the requested dtype.
// Accepted inputs are Go scalars (ints, floats, bool, string), flat slices of
// those, and tensors of the same dtype. It mirrors the lenient numeric
// coercion applied to host inputs at the executor boundary.
func Convert(value any, dtype DataType) (*Tensor, error) {
	if t, ok := value.(*Tensor); ok {
		if t.DType() != dtype {
			return nil, fmt.Errorf("tensor has dtype %s, want %s", t.DType(), dtype)
		}
		return t, nil
	}
	switch dtype {
	case Int32:
		if vs, ok := value.([]int32); ok {
			return Vector(Int32, vs)
		}
		v, err := toInt64(value)
		if err != nil {
			return nil, err
		}
		return ScalarInt32(int32(v)), nil
	case Int64:
		if vs, ok := value.([]int64); ok {
			return Vector(Int64, vs)
		}
		v, err := toInt64(value)
		if err != nil {
			return nil, err
		}
		return ScalarInt64(v), nil
	case Float32:
		if vs, ok := value.([]float32); ok {
			return Vector(Float32, vs)
		}
		v, err := toFloat64(value)
		if err != nil {
			return nil, err
		}
		return ScalarFloat32(float32(v)), nil
	case Float64:
		if vs, ok := value.([]float64); ok {
			return Vector(Float64, vs)
		}
		v, err := toFloat64(value)
		if err != nil {
			return nil, err
		}
		return ScalarFloat64(v), nil
	case Bool:
		if vs, ok := value.([]bool); ok {
			return Vector(Bool, vs)
		}
		if v, ok := value.(bool); ok {
			return ScalarBool(v), nil
		}
		return nil, fmt.Errorf("cannot convert %v (%T) to bool tensor", value, value)
	case String:
		if vs, ok := value.([]string); ok {
			return Vector(String, vs)
		}
		if v, ok := value.(string); ok {
			return ScalarString(v), nil
		}
		return nil, fmt.Errorf("cannot convert %v (%T) to string tensor", value, value)
	default:
		return nil, fmt.Errorf("cannot convert to dtype %s", dtype)
	}
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case float32:
		return int64(v), nil
	}
	return 0, fmt.Errorf("cannot coerce %v (%T) to int", value, value)
}

func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("cannot coerce %v (%T) to float", value, value)
}
