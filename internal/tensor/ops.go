package tensor

import (
	"fmt"
	"math"
)

// Elementwise binary operations broadcast a single-element operand against
// any shape; anything else requires matching shapes.

func ewise2(a, b *Tensor, f func(x, y float64) float64) ([]float64, []int) {
	switch {
	case sameShape(a.shape, b.shape):
		out := make([]float64, len(a.data))
		for i := range out {
			out[i] = f(a.data[i], b.data[i])
		}
		return out, a.shape
	case a.IsScalar() && b.IsScalar():
		// Both single-element but differently ranked; the higher rank wins
		// so a 1-D operand is never demoted to 0-D by a scalar.
		shape := a.shape
		if len(b.shape) > len(shape) {
			shape = b.shape
		}
		return []float64{f(a.data[0], b.data[0])}, shape
	case a.IsScalar():
		out := make([]float64, len(b.data))
		for i := range out {
			out[i] = f(a.data[0], b.data[i])
		}
		return out, b.shape
	case b.IsScalar():
		out := make([]float64, len(a.data))
		for i := range out {
			out[i] = f(a.data[i], b.data[0])
		}
		return out, a.shape
	default:
		panic(fmt.Sprintf("tensor: shape mismatch %v vs %v", a.shape, b.shape))
	}
}

func ewise1(a *Tensor, f func(x float64) float64) []float64 {
	out := make([]float64, len(a.data))
	for i := range out {
		out[i] = f(a.data[i])
	}
	return out
}

// prep detaches the given tensors unless the cotangent computation should
// stay connected for a higher-order chain.
func prep(track bool, ts ...*Tensor) []*Tensor {
	if track {
		return ts
	}
	out := make([]*Tensor, len(ts))
	for i, t := range ts {
		if t != nil {
			out[i] = t.Detach()
		}
	}
	return out
}

// reduceTo collapses a broadcast cotangent back to the operand's shape.
func reduceTo(g *Tensor, shape []int) *Tensor {
	if sameShape(g.shape, shape) {
		return g
	}
	if sizeOf(shape) == 1 {
		return Reshape(Sum(g), shape...)
	}
	panic(fmt.Sprintf("tensor: cannot reduce %v to %v", g.shape, shape))
}

func Add(a, b *Tensor) *Tensor {
	data, shape := ewise2(a, b, func(x, y float64) float64 { return x + y })
	return newResult(data, shape, []*Tensor{a, b},
		func(cots []*Tensor, track bool) ([]*Tensor, error) {
			p := prep(track, cots[0])
			return []*Tensor{reduceTo(p[0], a.shape), reduceTo(p[0], b.shape)}, nil
		})
}

func Sub(a, b *Tensor) *Tensor {
	data, shape := ewise2(a, b, func(x, y float64) float64 { return x - y })
	return newResult(data, shape, []*Tensor{a, b},
		func(cots []*Tensor, track bool) ([]*Tensor, error) {
			p := prep(track, cots[0])
			return []*Tensor{reduceTo(p[0], a.shape), reduceTo(Neg(p[0]), b.shape)}, nil
		})
}

func Mul(a, b *Tensor) *Tensor {
	data, shape := ewise2(a, b, func(x, y float64) float64 { return x * y })
	return newResult(data, shape, []*Tensor{a, b},
		func(cots []*Tensor, track bool) ([]*Tensor, error) {
			p := prep(track, cots[0], a, b)
			cot, ac, bc := p[0], p[1], p[2]
			return []*Tensor{reduceTo(Mul(cot, bc), a.shape), reduceTo(Mul(cot, ac), b.shape)}, nil
		})
}

func Div(a, b *Tensor) *Tensor {
	data, shape := ewise2(a, b, func(x, y float64) float64 { return x / y })
	return newResult(data, shape, []*Tensor{a, b},
		func(cots []*Tensor, track bool) ([]*Tensor, error) {
			p := prep(track, cots[0], a, b)
			cot, ac, bc := p[0], p[1], p[2]
			ga := reduceTo(Div(cot, bc), a.shape)
			gb := reduceTo(Neg(Div(Mul(cot, ac), Mul(bc, bc))), b.shape)
			return []*Tensor{ga, gb}, nil
		})
}

func Neg(a *Tensor) *Tensor {
	return newResult(ewise1(a, func(x float64) float64 { return -x }), a.shape, []*Tensor{a},
		func(cots []*Tensor, track bool) ([]*Tensor, error) {
			p := prep(track, cots[0])
			return []*Tensor{Neg(p[0])}, nil
		})
}

func Scale(a *Tensor, c float64) *Tensor {
	return newResult(ewise1(a, func(x float64) float64 { return c * x }), a.shape, []*Tensor{a},
		func(cots []*Tensor, track bool) ([]*Tensor, error) {
			p := prep(track, cots[0])
			return []*Tensor{Scale(p[0], c)}, nil
		})
}

// AddScaled returns a + c*b for same-shape operands. The stepping
// strategies are written in terms of this.
func AddScaled(a, b *Tensor, c float64) *Tensor {
	if !sameShape(a.shape, b.shape) {
		panic(fmt.Sprintf("tensor: AddScaled shape mismatch %v vs %v", a.shape, b.shape))
	}
	out := make([]float64, len(a.data))
	for i := range out {
		out[i] = a.data[i] + c*b.data[i]
	}
	return newResult(out, a.shape, []*Tensor{a, b},
		func(cots []*Tensor, track bool) ([]*Tensor, error) {
			p := prep(track, cots[0])
			return []*Tensor{p[0], Scale(p[0], c)}, nil
		})
}

func Sin(a *Tensor) *Tensor {
	return newResult(ewise1(a, math.Sin), a.shape, []*Tensor{a},
		func(cots []*Tensor, track bool) ([]*Tensor, error) {
			p := prep(track, cots[0], a)
			return []*Tensor{Mul(p[0], Cos(p[1]))}, nil
		})
}

func Cos(a *Tensor) *Tensor {
	return newResult(ewise1(a, math.Cos), a.shape, []*Tensor{a},
		func(cots []*Tensor, track bool) ([]*Tensor, error) {
			p := prep(track, cots[0], a)
			return []*Tensor{Neg(Mul(p[0], Sin(p[1])))}, nil
		})
}

func Exp(a *Tensor) *Tensor {
	return newResult(ewise1(a, math.Exp), a.shape, []*Tensor{a},
		func(cots []*Tensor, track bool) ([]*Tensor, error) {
			p := prep(track, cots[0], a)
			return []*Tensor{Mul(p[0], Exp(p[1]))}, nil
		})
}

func Log(a *Tensor) *Tensor {
	return newResult(ewise1(a, math.Log), a.shape, []*Tensor{a},
		func(cots []*Tensor, track bool) ([]*Tensor, error) {
			p := prep(track, cots[0], a)
			return []*Tensor{Div(p[0], p[1])}, nil
		})
}

func Pow(a *Tensor, e float64) *Tensor {
	return newResult(ewise1(a, func(x float64) float64 { return math.Pow(x, e) }), a.shape, []*Tensor{a},
		func(cots []*Tensor, track bool) ([]*Tensor, error) {
			p := prep(track, cots[0], a)
			return []*Tensor{Scale(Mul(p[0], Pow(p[1], e-1)), e)}, nil
		})
}

// Sum reduces all elements to a scalar.
func Sum(a *Tensor) *Tensor {
	s := 0.0
	for _, v := range a.data {
		s += v
	}
	return newResult([]float64{s}, []int{}, []*Tensor{a},
		func(cots []*Tensor, track bool) ([]*Tensor, error) {
			p := prep(track, cots[0])
			return []*Tensor{Mul(p[0], OnesLike(a))}, nil
		})
}

// Dot returns the scalar inner product of two same-size tensors, taken
// over their flattened elements.
func Dot(a, b *Tensor) *Tensor {
	if len(a.data) != len(b.data) {
		panic(fmt.Sprintf("tensor: Dot size mismatch %d vs %d", len(a.data), len(b.data)))
	}
	s := 0.0
	for i := range a.data {
		s += a.data[i] * b.data[i]
	}
	return newResult([]float64{s}, []int{}, []*Tensor{a, b},
		func(cots []*Tensor, track bool) ([]*Tensor, error) {
			p := prep(track, cots[0], a, b)
			cot, ac, bc := p[0], p[1], p[2]
			return []*Tensor{Reshape(Mul(cot, bc), a.shape...), Reshape(Mul(cot, ac), b.shape...)}, nil
		})
}

// Concat joins 1-D tensors end to end.
func Concat(ts ...*Tensor) *Tensor {
	total := 0
	for _, t := range ts {
		if t.Dims() != 1 {
			panic("tensor: Concat operands must be 1-D")
		}
		total += t.Size()
	}
	data := make([]float64, 0, total)
	for _, t := range ts {
		data = append(data, t.data...)
	}
	return newResult(data, []int{total}, ts,
		func(cots []*Tensor, track bool) ([]*Tensor, error) {
			p := prep(track, cots[0])
			gs := make([]*Tensor, len(ts))
			off := 0
			for i, t := range ts {
				gs[i] = Narrow(p[0], off, t.Size())
				off += t.Size()
			}
			return gs, nil
		})
}

// Narrow copies n elements of a 1-D tensor starting at off.
func Narrow(a *Tensor, off, n int) *Tensor {
	if a.Dims() != 1 {
		panic("tensor: Narrow operand must be 1-D")
	}
	if off < 0 || off+n > a.Size() {
		panic(fmt.Sprintf("tensor: Narrow [%d:%d] out of range for size %d", off, off+n, a.Size()))
	}
	data := make([]float64, n)
	copy(data, a.data[off:off+n])
	return newResult(data, []int{n}, []*Tensor{a},
		func(cots []*Tensor, track bool) ([]*Tensor, error) {
			p := prep(track, cots[0])
			return []*Tensor{pad(p[0], off, a.Size())}, nil
		})
}

// pad embeds a 1-D tensor into a zero tensor of the given total size.
func pad(a *Tensor, off, total int) *Tensor {
	data := make([]float64, total)
	copy(data[off:], a.data)
	return newResult(data, []int{total}, []*Tensor{a},
		func(cots []*Tensor, track bool) ([]*Tensor, error) {
			p := prep(track, cots[0])
			return []*Tensor{Narrow(p[0], off, a.Size())}, nil
		})
}

func Reshape(a *Tensor, shape ...int) *Tensor {
	if sizeOf(shape) != a.Size() {
		panic(fmt.Sprintf("tensor: cannot reshape size %d to %v", a.Size(), shape))
	}
	data := make([]float64, len(a.data))
	copy(data, a.data)
	return newResult(data, shape, []*Tensor{a},
		func(cots []*Tensor, track bool) ([]*Tensor, error) {
			p := prep(track, cots[0])
			return []*Tensor{Reshape(p[0], a.shape...)}, nil
		})
}
