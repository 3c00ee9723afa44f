package ivp

import (
	"fmt"
	"math"

	"github.com/san-kum/odegrad/internal/tensor"
)

// Embedded tableau of an adaptive explicit Runge-Kutta pair. b gives the
// propagated solution, e the error weights (propagated minus embedded).
type embeddedTableau struct {
	order float64
	c     []float64
	a     [][]float64
	b     []float64
	e     []float64
}

// Bogacki-Shampine coefficients (RK23)
var rk23Tableau = embeddedTableau{
	order: 3,
	c:     []float64{0, 0.5, 0.75, 1},
	a: [][]float64{
		{},
		{0.5},
		{0, 0.75},
		{2.0 / 9, 1.0 / 3, 4.0 / 9},
	},
	b: []float64{2.0 / 9, 1.0 / 3, 4.0 / 9, 0},
	e: []float64{2.0/9 - 7.0/24, 1.0/3 - 0.25, 4.0/9 - 1.0/3, -0.125},
}

// Dormand-Prince coefficients (RK45)
var rk45Tableau = embeddedTableau{
	order: 5,
	c:     []float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1},
	a: [][]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	},
	b: []float64{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84, 0},
	e: []float64{
		35.0/384 - 5179.0/57600,
		0,
		500.0/1113 - 7571.0/16695,
		125.0/192 - 393.0/640,
		-2187.0/6784 + 92097.0/339200,
		11.0/84 - 187.0/2100,
		-1.0 / 40,
	},
}

const (
	stepSafety   = 0.9
	stepMinScale = 0.2
	stepMaxScale = 10.0
)

func rk23IVP(fn rhsFunc, ts []float64, y0 *tensor.Tensor, opts Options) ([]*tensor.Tensor, error) {
	return adaptiveIVP(rk23Tableau, fn, ts, y0, opts)
}

func rk45IVP(fn rhsFunc, ts []float64, y0 *tensor.Tensor, opts Options) ([]*tensor.Tensor, error) {
	return adaptiveIVP(rk45Tableau, fn, ts, y0, opts)
}

// adaptiveIVP subdivides each grid interval under embedded error control.
// Grid points are hard stops: every requested time gets an exact sample.
func adaptiveIVP(tb embeddedTableau, fn rhsFunc, ts []float64, y0 *tensor.Tensor, opts Options) ([]*tensor.Tensor, error) {
	yt := make([]*tensor.Tensor, len(ts))
	yt[0] = y0
	observe(opts, 0, ts[0], y0)

	y := y0
	steps := 0
	var dt float64

	for i := 0; i+1 < len(ts); i++ {
		t, tEnd := ts[i], ts[i+1]
		if dt == 0 || (tEnd-t)*dt < 0 {
			dt = tEnd - t
		}
		for {
			remaining := tEnd - t
			if remaining == 0 {
				break
			}
			steps++
			if steps > opts.MaxSteps {
				return nil, fmt.Errorf("%w: %d sub-steps at t=%g", ErrNonConvergence, steps-1, t)
			}
			h := dt
			if math.Abs(h) >= math.Abs(remaining) {
				h = remaining
			}
			if math.Abs(h) < 1e-14*math.Max(1, math.Abs(t)) {
				return nil, fmt.Errorf("%w: step size underflow at t=%g", ErrNonConvergence, t)
			}

			yNew, errNorm, err := embeddedStep(tb, fn, t, y, h, opts)
			if err != nil {
				return nil, err
			}
			if !yNew.IsFinite() {
				errNorm = math.Inf(1)
			}

			if errNorm <= 1 {
				t += h
				y = yNew
			}
			dt = h * scaleFactor(errNorm, tb.order)
		}
		yt[i+1] = y
		observe(opts, i+1, tEnd, y)
	}
	return yt, nil
}

func scaleFactor(errNorm, order float64) float64 {
	if errNorm == 0 {
		return stepMaxScale
	}
	if math.IsInf(errNorm, 1) {
		return stepMinScale
	}
	s := stepSafety * math.Pow(errNorm, -1/order)
	return math.Min(stepMaxScale, math.Max(stepMinScale, s))
}

func embeddedStep(tb embeddedTableau, fn rhsFunc, t float64, y *tensor.Tensor, h float64, opts Options) (*tensor.Tensor, float64, error) {
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
			return nil, 0, err
		}
		if k.Size() != y.Size() {
			return nil, 0, fmt.Errorf("%w: rhs output size %d does not match state size %d",
				ErrConfiguration, k.Size(), y.Size())
		}
		ks[s] = k
	}

	yNew := y
	for s, b := range tb.b {
		if b != 0 {
			yNew = tensor.AddScaled(yNew, ks[s], h*b)
		}
	}

	// RMS of the error estimate against a mixed absolute/relative scale.
	yd, nd := y.Data(), yNew.Data()
	sum := 0.0
	for i := range yd {
		e := 0.0
		for s, w := range tb.e {
			if w != 0 {
				e += w * ks[s].At(i)
			}
		}
		e *= h
		scale := opts.ATol + opts.RTol*math.Max(math.Abs(yd[i]), math.Abs(nd[i]))
		sum += (e / scale) * (e / scale)
	}
	errNorm := math.Sqrt(sum / float64(len(yd)))
	return yNew, errNorm, nil
}
