package models

import (
	"fmt"

	"github.com/san-kum/odegrad/internal/editable"
	"github.com/san-kum/odegrad/internal/ivp"
	"github.com/san-kum/odegrad/internal/tensor"
)

// Pendulum is a damped pendulum with state [theta, omega].
type Pendulum struct {
	G, L, Damping *tensor.Tensor
}

func NewPendulum(g, l, damping float64) *Pendulum {
	return &Pendulum{G: tensor.Scalar(g), L: tensor.Scalar(l), Damping: tensor.Scalar(damping)}
}

func (p *Pendulum) StateDim() int           { return 2 }
func (p *Pendulum) DefaultState() []float64 { return []float64{0.5, 0.0} }

func (p *Pendulum) Eval(t, y *tensor.Tensor, _ ...any) (*tensor.Tensor, error) {
	theta := tensor.Narrow(y, 0, 1)
	omega := tensor.Narrow(y, 1, 1)
	acc := tensor.Neg(tensor.Add(
		tensor.Mul(tensor.Div(p.G, p.L), tensor.Sin(theta)),
		tensor.Mul(p.Damping, omega),
	))
	return tensor.Concat(omega, acc), nil
}

func (p *Pendulum) GetParams(op string) []*tensor.Tensor {
	if op != ivp.Operation {
		return nil
	}
	return []*tensor.Tensor{p.G, p.L, p.Damping}
}

func (p *Pendulum) SetParams(op string, params ...*tensor.Tensor) (int, error) {
	if op != ivp.Operation {
		return 0, fmt.Errorf("pendulum: unknown operation: %s", op)
	}
	if len(params) < 3 {
		return 0, fmt.Errorf("pendulum: want 3 parameters, got %d", len(params))
	}
	p.G, p.L, p.Damping = params[0], params[1], params[2]
	return 3, nil
}

func (p *Pendulum) ParamManifest() []editable.ParamSlot {
	return []editable.ParamSlot{
		{Name: "g", Get: func() *tensor.Tensor { return p.G }, Set: func(t *tensor.Tensor) { p.G = t }},
		{Name: "l", Get: func() *tensor.Tensor { return p.L }, Set: func(t *tensor.Tensor) { p.L = t }},
		{Name: "damping", Get: func() *tensor.Tensor { return p.Damping }, Set: func(t *tensor.Tensor) { p.Damping = t }},
	}
}
