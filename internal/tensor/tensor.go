// Package tensor implements dense float64 tensors with reverse-mode
// differentiation. Every differentiable primitive carries a forward
// evaluator and a vector-Jacobian-product evaluator; there is no ambient
// global graph. A tensor participates in differentiation only when it is
// marked as a leaf or produced from tracked operands.
package tensor

import (
	"fmt"
	"math"
)

type Tensor struct {
	data  []float64
	shape []int
	node  *node
}

// node links output tensors to their operands through a vector-Jacobian
// product. back receives one cotangent per output (nil entries mean zero)
// and returns one cotangent per input. track requests that the returned
// cotangents stay connected to the graph for higher-order differentiation.
type node struct {
	inputs []*Tensor
	outs   []*Tensor
	back   func(cots []*Tensor, track bool) ([]*Tensor, error)
}

func New(data []float64, shape ...int) *Tensor {
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	if sizeOf(shape) != len(data) {
		panic(fmt.Sprintf("tensor: %d values do not fit shape %v", len(data), shape))
	}
	d := make([]float64, len(data))
	copy(d, data)
	return &Tensor{data: d, shape: append([]int(nil), shape...)}
}

func Scalar(v float64) *Tensor {
	return &Tensor{data: []float64{v}, shape: []int{}}
}

func Zeros(shape ...int) *Tensor {
	return &Tensor{data: make([]float64, sizeOf(shape)), shape: append([]int(nil), shape...)}
}

func ZerosLike(t *Tensor) *Tensor {
	return Zeros(t.shape...)
}

func OnesLike(t *Tensor) *Tensor {
	out := Zeros(t.shape...)
	for i := range out.data {
		out.data[i] = 1
	}
	return out
}

// Linspace returns n evenly spaced values from a to b inclusive.
func Linspace(a, b float64, n int) *Tensor {
	if n < 1 {
		panic("tensor: Linspace needs n >= 1")
	}
	data := make([]float64, n)
	if n == 1 {
		data[0] = a
	} else {
		step := (b - a) / float64(n-1)
		for i := range data {
			data[i] = a + float64(i)*step
		}
	}
	return &Tensor{data: data, shape: []int{n}}
}

func sizeOf(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func (t *Tensor) Shape() []int { return append([]int(nil), t.shape...) }
func (t *Tensor) Size() int    { return len(t.data) }
func (t *Tensor) Dims() int    { return len(t.shape) }

// Data returns the backing slice. Callers must treat it as read-only;
// operations never mutate their operands.
func (t *Tensor) Data() []float64 { return t.data }

func (t *Tensor) At(i int) float64 { return t.data[i] }

// Float returns the value of a single-element tensor.
func (t *Tensor) Float() float64 {
	if len(t.data) != 1 {
		panic(fmt.Sprintf("tensor: Float on tensor of size %d", len(t.data)))
	}
	return t.data[0]
}

func (t *Tensor) IsScalar() bool { return len(t.data) == 1 }

func (t *Tensor) Tracked() bool { return t.node != nil }

// Leaf marks t as a differentiation root and returns it. Tracked tensors
// are returned unchanged.
func (t *Tensor) Leaf() *Tensor {
	if t.node == nil {
		t.node = &node{outs: []*Tensor{t}}
	}
	return t
}

// Detach returns a tensor sharing t's data with no graph connection.
func (t *Tensor) Detach() *Tensor {
	if t.node == nil {
		return t
	}
	return &Tensor{data: t.data, shape: t.shape}
}

// Clone returns a differentiable copy: gradients flow through to t.
func (t *Tensor) Clone() *Tensor {
	d := make([]float64, len(t.data))
	copy(d, t.data)
	return newResult(d, t.shape, []*Tensor{t},
		func(cots []*Tensor, track bool) ([]*Tensor, error) {
			return []*Tensor{cots[0]}, nil
		})
}

func (t *Tensor) IsFinite() bool {
	for _, v := range t.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%v, shape=%v)", t.data, t.shape)
}

// AllClose reports whether a and b have the same shape and elementwise
// |a-b| <= atol + rtol*|b|.
func AllClose(a, b *Tensor, rtol, atol float64) bool {
	if !sameShape(a.shape, b.shape) {
		return false
	}
	for i := range a.data {
		if math.Abs(a.data[i]-b.data[i]) > atol+rtol*math.Abs(b.data[i]) {
			return false
		}
	}
	return true
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func anyTracked(ts []*Tensor) bool {
	for _, t := range ts {
		if t != nil && t.node != nil {
			return true
		}
	}
	return false
}

// newResult wires a single-output operation into the graph when any
// operand is tracked.
func newResult(data []float64, shape []int, inputs []*Tensor, back func(cots []*Tensor, track bool) ([]*Tensor, error)) *Tensor {
	out := &Tensor{data: data, shape: append([]int(nil), shape...)}
	if anyTracked(inputs) {
		n := &node{inputs: inputs, back: back}
		n.outs = []*Tensor{out}
		out.node = n
	}
	return out
}
