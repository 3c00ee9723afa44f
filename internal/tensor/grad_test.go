package tensor

import (
	"math"
	"testing"

	"github.com/onsi/gomega"
)

func TestGradProduct(t *testing.T) {
	g := gomega.NewWithT(t)

	x := Scalar(3).Leaf()
	y := Scalar(4).Leaf()
	out := Mul(x, y)

	grads, err := Grad(out, nil, []*Tensor{x, y}, GradOptions{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(grads[0].Float()).To(gomega.Equal(4.0))
	g.Expect(grads[1].Float()).To(gomega.Equal(3.0))
}

func TestGradChain(t *testing.T) {
	g := gomega.NewWithT(t)

	// d/dx sin(exp(x)) = cos(exp(x)) * exp(x)
	x := Scalar(0.5).Leaf()
	out := Sin(Exp(x))

	grads, err := Grad(out, nil, []*Tensor{x}, GradOptions{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	want := math.Cos(math.Exp(0.5)) * math.Exp(0.5)
	g.Expect(grads[0].Float()).To(gomega.BeNumerically("~", want, 1e-12))
}

func TestGradFanOut(t *testing.T) {
	g := gomega.NewWithT(t)

	// x used twice: d/dx (x*x + x) = 2x + 1
	x := Scalar(3).Leaf()
	out := Add(Mul(x, x), x)

	grads, err := Grad(out, nil, []*Tensor{x}, GradOptions{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(grads[0].Float()).To(gomega.Equal(7.0))
}

func TestGradVectorOps(t *testing.T) {
	g := gomega.NewWithT(t)

	a := New([]float64{1, 2, 3}, 3).Leaf()
	b := New([]float64{4, 5, 6}, 3).Leaf()
	out := Dot(a, b)

	grads, err := Grad(out, nil, []*Tensor{a, b}, GradOptions{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(grads[0].Data()).To(gomega.Equal([]float64{4, 5, 6}))
	g.Expect(grads[1].Data()).To(gomega.Equal([]float64{1, 2, 3}))
}

func TestGradScalarBroadcastReduces(t *testing.T) {
	g := gomega.NewWithT(t)

	// A scalar multiplied into a vector collects its gradient as a sum.
	c := Scalar(2).Leaf()
	v := New([]float64{1, 2, 3}, 3)
	out := Sum(Mul(c, v))

	grads, err := Grad(out, nil, []*Tensor{c}, GradOptions{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(grads[0].IsScalar()).To(gomega.BeTrue())
	g.Expect(grads[0].Float()).To(gomega.Equal(6.0))
}

func TestGradNarrowConcat(t *testing.T) {
	g := gomega.NewWithT(t)

	a := New([]float64{1, 2, 3, 4}, 4).Leaf()
	out := Sum(Scale(Narrow(a, 1, 2), 3))

	grads, err := Grad(out, nil, []*Tensor{a}, GradOptions{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(grads[0].Data()).To(gomega.Equal([]float64{0, 3, 3, 0}))

	b := New([]float64{5}, 1).Leaf()
	cat := Concat(Narrow(a, 0, 1), b)
	grads, err = Grad(Sum(cat), nil, []*Tensor{a, b}, GradOptions{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(grads[0].Data()).To(gomega.Equal([]float64{1, 0, 0, 0}))
	g.Expect(grads[1].Data()).To(gomega.Equal([]float64{1}))
}

func TestGradUnusedInputIsZero(t *testing.T) {
	g := gomega.NewWithT(t)

	x := Scalar(2).Leaf()
	unused := New([]float64{1, 2}, 2).Leaf()
	out := Mul(x, x)

	grads, err := Grad(out, nil, []*Tensor{x, unused}, GradOptions{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(grads[0].Float()).To(gomega.Equal(4.0))
	g.Expect(grads[1].Data()).To(gomega.Equal([]float64{0, 0}))
	g.Expect(grads[1].Shape()).To(gomega.Equal([]int{2}))
}

func TestGradCotangent(t *testing.T) {
	g := gomega.NewWithT(t)

	x := New([]float64{1, 2}, 2).Leaf()
	out := Scale(x, 3)

	grads, err := Grad(out, New([]float64{10, 20}, 2), []*Tensor{x}, GradOptions{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(grads[0].Data()).To(gomega.Equal([]float64{30, 60}))
}

func TestGradSecondOrder(t *testing.T) {
	g := gomega.NewWithT(t)

	// d2/dx2 x^3 = 6x
	x := Scalar(2).Leaf()
	out := Pow(x, 3)

	first, err := Grad(out, nil, []*Tensor{x}, GradOptions{CreateGraph: true})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(first[0].Float()).To(gomega.BeNumerically("~", 12.0, 1e-12))
	g.Expect(first[0].Tracked()).To(gomega.BeTrue())

	second, err := Grad(first[0], nil, []*Tensor{x}, GradOptions{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(second[0].Float()).To(gomega.BeNumerically("~", 12.0, 1e-12))
	g.Expect(second[0].Tracked()).To(gomega.BeFalse())
}

func TestGradWithoutCreateGraphIsDetached(t *testing.T) {
	g := gomega.NewWithT(t)

	x := Scalar(2).Leaf()
	out := Mul(x, x)

	grads, err := Grad(out, nil, []*Tensor{x}, GradOptions{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(grads[0].Tracked()).To(gomega.BeFalse())
}

func TestGradUntrackedOutput(t *testing.T) {
	g := gomega.NewWithT(t)

	x := Scalar(2).Leaf()
	out := Scalar(7)

	grads, err := Grad(out, nil, []*Tensor{x}, GradOptions{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(grads[0].Float()).To(gomega.Equal(0.0))
}

func TestCustomOp(t *testing.T) {
	g := gomega.NewWithT(t)

	// A hand-registered square rule: out = x^2 with back cot*2x.
	x := Scalar(3).Leaf()
	out := Scalar(9)
	CustomOp([]*Tensor{x}, []*Tensor{out}, func(cots []*Tensor, track bool) ([]*Tensor, error) {
		return []*Tensor{Mul(cots[0], Scale(x.Detach(), 2))}, nil
	})
	g.Expect(out.Tracked()).To(gomega.BeTrue())

	grads, err := Grad(out, nil, []*Tensor{x}, GradOptions{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(grads[0].Float()).To(gomega.Equal(6.0))
}

func TestCustomOpUntrackedInputsIsNoop(t *testing.T) {
	g := gomega.NewWithT(t)

	x := Scalar(3)
	out := Scalar(9)
	CustomOp([]*Tensor{x}, []*Tensor{out}, func(cots []*Tensor, track bool) ([]*Tensor, error) {
		return []*Tensor{cots[0]}, nil
	})
	g.Expect(out.Tracked()).To(gomega.BeFalse())
}

func TestReaches(t *testing.T) {
	g := gomega.NewWithT(t)

	x := Scalar(1).Leaf()
	y := Scalar(2).Leaf()
	out := Exp(x)

	used := Reaches(out, []*Tensor{x, y})
	g.Expect(used).To(gomega.Equal([]bool{true, false}))
}

func TestGradMixedPartial(t *testing.T) {
	g := gomega.NewWithT(t)

	// f = x^2 * y, df/dx = 2xy, d/dy(df/dx) = 2x
	x := Scalar(3).Leaf()
	y := Scalar(5).Leaf()
	out := Mul(Mul(x, x), y)

	first, err := Grad(out, nil, []*Tensor{x}, GradOptions{CreateGraph: true})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(first[0].Float()).To(gomega.BeNumerically("~", 30.0, 1e-12))

	mixed, err := Grad(first[0], nil, []*Tensor{y}, GradOptions{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(mixed[0].Float()).To(gomega.BeNumerically("~", 6.0, 1e-12))
}
