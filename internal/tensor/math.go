package tensor

import "fmt"

// Add returns the elementwise sum of a and b. Operands must agree on dtype
// and shape. The result carries a's device binding.
func Add(a, b *Tensor) (*Tensor, error) { return binop("add", a, b) }

// Sub returns the elementwise difference a - b.
func Sub(a, b *Tensor) (*Tensor, error) { return binop("sub", a, b) }

// Mul returns the elementwise product of a and b.
func Mul(a, b *Tensor) (*Tensor, error) { return binop("mul", a, b) }

func binop(op string, a, b *Tensor) (*Tensor, error) {
	if a.dtype != b.dtype {
		return nil, fmt.Errorf("%s: dtype mismatch %s vs %s", op, a.dtype, b.dtype)
	}
	if !a.shape.Equal(b.shape) {
		return nil, fmt.Errorf("%s: shape mismatch %s vs %s", op, a.shape, b.shape)
	}
	var out *Tensor
	var err error
	switch x := a.data.(type) {
	case []int32:
		y := b.data.([]int32)
		r := make([]int32, len(x))
		for i := range x {
			r[i] = intOp(op, x[i], y[i])
		}
		out, err = New(Int32, a.shape, r)
	case []int64:
		y := b.data.([]int64)
		r := make([]int64, len(x))
		for i := range x {
			r[i] = intOp(op, x[i], y[i])
		}
		out, err = New(Int64, a.shape, r)
	case []float32:
		y := b.data.([]float32)
		r := make([]float32, len(x))
		for i := range x {
			r[i] = floatOp(op, x[i], y[i])
		}
		out, err = New(Float32, a.shape, r)
	case []float64:
		y := b.data.([]float64)
		r := make([]float64, len(x))
		for i := range x {
			r[i] = floatOp(op, x[i], y[i])
		}
		out, err = New(Float64, a.shape, r)
	default:
		return nil, fmt.Errorf("%s: unsupported dtype %s", op, a.dtype)
	}
	if err != nil {
		return nil, err
	}
	out.device = a.device
	return out, nil
}

func intOp[T int32 | int64](op string, x, y T) T {
	switch op {
	case "add":
		return x + y
	case "sub":
		return x - y
	case "mul":
		return x * y
	}
	panic("unreachable: " + op)
}

func floatOp[T float32 | float64](op string, x, y T) T {
	switch op {
	case "add":
		return x + y
	case "sub":
		return x - y
	case "mul":
		return x * y
	}
	panic("unreachable: " + op)
}
