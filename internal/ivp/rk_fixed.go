package ivp

import (
	"fmt"

	"github.com/san-kum/odegrad/internal/tensor"
)

// Butcher tableau of an explicit Runge-Kutta method.
type tableau struct {
	c []float64
	a [][]float64
	b []float64
}

// classic order-4 Runge-Kutta
var rk4Tableau = tableau{
	c: []float64{0, 0.5, 0.5, 1},
	a: [][]float64{
		{},
		{0.5},
		{0, 0.5},
		{0, 0, 1},
	},
	b: []float64{1.0 / 6, 1.0 / 3, 1.0 / 3, 1.0 / 6},
}

// 3/8-rule variant
var rk38Tableau = tableau{
	c: []float64{0, 1.0 / 3, 2.0 / 3, 1},
	a: [][]float64{
		{},
		{1.0 / 3},
		{-1.0 / 3, 1},
		{1, -1, 1},
	},
	b: []float64{1.0 / 8, 3.0 / 8, 3.0 / 8, 1.0 / 8},
}

func rk4IVP(fn rhsFunc, ts []float64, y0 *tensor.Tensor, opts Options) ([]*tensor.Tensor, error) {
	return fixedIVP(rk4Tableau, fn, ts, y0, opts)
}

func rk38IVP(fn rhsFunc, ts []float64, y0 *tensor.Tensor, opts Options) ([]*tensor.Tensor, error) {
	return fixedIVP(rk38Tableau, fn, ts, y0, opts)
}

// fixedIVP takes exactly one step per consecutive grid pair.
func fixedIVP(tb tableau, fn rhsFunc, ts []float64, y0 *tensor.Tensor, opts Options) ([]*tensor.Tensor, error) {
	yt := make([]*tensor.Tensor, len(ts))
	yt[0] = y0
	observe(opts, 0, ts[0], y0)

	y := y0
	for i := 0; i+1 < len(ts); i++ {
		var err error
		y, err = rkStep(tb, fn, ts[i], y, ts[i+1]-ts[i])
		if err != nil {
			return nil, err
		}
		yt[i+1] = y
		observe(opts, i+1, ts[i+1], y)
	}
	return yt, nil
}

func rkStep(tb tableau, fn rhsFunc, t float64, y *tensor.Tensor, h float64) (*tensor.Tensor, error) {
	ks := make([]*tensor.Tensor, len(tb.b))
	for s := range tb.b {
		ys := y
		for j, a := range tb.a[s] {
			if a != 0 {
				ys = tensor.AddScaled(ys, ks[j], h*a)
			}
		}
		k, err := fn(t+tb.c[s]*h, ys)
		if err != nil {
			return nil, err
		}
		if k.Size() != y.Size() {
			return nil, fmt.Errorf("%w: rhs output size %d does not match state size %d",
				ErrConfiguration, k.Size(), y.Size())
		}
		ks[s] = k
	}

	out := y
	for s, b := range tb.b {
		if b != 0 {
			out = tensor.AddScaled(out, ks[s], h*b)
		}
	}
	return out, nil
}
