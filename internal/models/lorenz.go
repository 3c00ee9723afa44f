package models

import (
	"fmt"

	"github.com/san-kum/odegrad/internal/editable"
	"github.com/san-kum/odegrad/internal/ivp"
	"github.com/san-kum/odegrad/internal/tensor"
)

// Lorenz is the Lorenz attractor with state [x, y, z].
type Lorenz struct {
	Sigma, Rho, Beta *tensor.Tensor
}

func NewLorenz(sigma, rho, beta float64) *Lorenz {
	return &Lorenz{Sigma: tensor.Scalar(sigma), Rho: tensor.Scalar(rho), Beta: tensor.Scalar(beta)}
}

func (l *Lorenz) StateDim() int           { return 3 }
func (l *Lorenz) DefaultState() []float64 { return []float64{1.0, 1.0, 1.0} }

func (l *Lorenz) Eval(t, y *tensor.Tensor, _ ...any) (*tensor.Tensor, error) {
	x := tensor.Narrow(y, 0, 1)
	yy := tensor.Narrow(y, 1, 1)
	z := tensor.Narrow(y, 2, 1)
	dx := tensor.Mul(l.Sigma, tensor.Sub(yy, x))
	dy := tensor.Sub(tensor.Mul(x, tensor.Sub(l.Rho, z)), yy)
	dz := tensor.Sub(tensor.Mul(x, yy), tensor.Mul(l.Beta, z))
	return tensor.Concat(dx, dy, dz), nil
}

func (l *Lorenz) GetParams(op string) []*tensor.Tensor {
	if op != ivp.Operation {
		return nil
	}
	return []*tensor.Tensor{l.Sigma, l.Rho, l.Beta}
}

func (l *Lorenz) SetParams(op string, params ...*tensor.Tensor) (int, error) {
	if op != ivp.Operation {
		return 0, fmt.Errorf("lorenz: unknown operation: %s", op)
	}
	if len(params) < 3 {
		return 0, fmt.Errorf("lorenz: want 3 parameters, got %d", len(params))
	}
	l.Sigma, l.Rho, l.Beta = params[0], params[1], params[2]
	return 3, nil
}

func (l *Lorenz) ParamManifest() []editable.ParamSlot {
	return []editable.ParamSlot{
		{Name: "sigma", Get: func() *tensor.Tensor { return l.Sigma }, Set: func(t *tensor.Tensor) { l.Sigma = t }},
		{Name: "rho", Get: func() *tensor.Tensor { return l.Rho }, Set: func(t *tensor.Tensor) { l.Rho = t }},
		{Name: "beta", Get: func() *tensor.Tensor { return l.Beta }, Set: func(t *tensor.Tensor) { l.Beta = t }},
	}
}
