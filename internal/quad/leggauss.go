// Package quad provides fixed-order Gauss-Legendre quadrature. No step
// adaptation: the caller picks the order, the rule does one pass.
package quad

import (
	"fmt"
	"math"

	"github.com/san-kum/odegrad/internal/tensor"
)

// Nodes returns the n-point Gauss-Legendre nodes and weights on [-1, 1].
// Roots of the Legendre polynomial are located by Newton iteration from
// the Chebyshev-like initial guesses.
func Nodes(n int) ([]float64, []float64) {
	if n < 1 {
		panic("quad: order must be >= 1")
	}
	xs := make([]float64, n)
	ws := make([]float64, n)
	m := (n + 1) / 2
	for i := 0; i < m; i++ {
		x := math.Cos(math.Pi * (float64(i) + 0.75) / (float64(n) + 0.5))
		var dp float64
		for iter := 0; iter < 100; iter++ {
			p0, p1 := 1.0, x
			for j := 2; j <= n; j++ {
				p0, p1 = p1, ((2*float64(j)-1)*x*p1-(float64(j)-1)*p0)/float64(j)
			}
			if n == 1 {
				p1, p0 = x, 1
			}
			dp = float64(n) * (x*p1 - p0) / (x*x - 1)
			dx := p1 / dp
			x -= dx
			if math.Abs(dx) < 1e-15 {
				break
			}
		}
		xs[i] = -x
		xs[n-1-i] = x
		w := 2 / ((1 - x*x) * dp * dp)
		ws[i] = w
		ws[n-1-i] = w
	}
	return xs, ws
}

// Integrand evaluates the function under the integral at a scalar x.
type Integrand func(x *tensor.Tensor, params ...any) (*tensor.Tensor, error)

// Fixed integrates fn from xl to xu with an n-point Gauss-Legendre rule.
// The result is differentiable with respect to any tracked tensor
// parameters, since the rule is a plain weighted sum of evaluations.
func Fixed(fn Integrand, xl, xu float64, params []any, n int) (*tensor.Tensor, error) {
	xs, ws := Nodes(n)
	half := 0.5 * (xu - xl)
	mid := 0.5 * (xu + xl)

	var res *tensor.Tensor
	for i := range xs {
		f, err := fn(tensor.Scalar(xs[i]*half+mid), params...)
		if err != nil {
			return nil, fmt.Errorf("quad: evaluating node %d: %w", i, err)
		}
		term := tensor.Scale(f, ws[i]*half)
		if res == nil {
			res = term
		} else {
			res = tensor.Add(res, term)
		}
	}
	return res, nil
}
