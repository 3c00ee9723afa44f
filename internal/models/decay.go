package models

import (
	"fmt"

	"github.com/san-kum/odegrad/internal/editable"
	"github.com/san-kum/odegrad/internal/ivp"
	"github.com/san-kum/odegrad/internal/tensor"
)

// Decay is exponential decay, dy/dt = -k*y. The closed-form solution
// makes it the reference model for gradient checks.
type Decay struct {
	K *tensor.Tensor
}

func NewDecay(k float64) *Decay { return &Decay{K: tensor.Scalar(k)} }

func (d *Decay) StateDim() int           { return 1 }
func (d *Decay) DefaultState() []float64 { return []float64{1.0} }

func (d *Decay) Eval(t, y *tensor.Tensor, _ ...any) (*tensor.Tensor, error) {
	return tensor.Neg(tensor.Mul(d.K, y)), nil
}

func (d *Decay) GetParams(op string) []*tensor.Tensor {
	if op != ivp.Operation {
		return nil
	}
	return []*tensor.Tensor{d.K}
}

func (d *Decay) SetParams(op string, params ...*tensor.Tensor) (int, error) {
	if op != ivp.Operation {
		return 0, fmt.Errorf("decay: unknown operation: %s", op)
	}
	if len(params) < 1 {
		return 0, fmt.Errorf("decay: want 1 parameter, got %d", len(params))
	}
	d.K = params[0]
	return 1, nil
}

func (d *Decay) ParamManifest() []editable.ParamSlot {
	return []editable.ParamSlot{
		{Name: "k", Get: func() *tensor.Tensor { return d.K }, Set: func(t *tensor.Tensor) { d.K = t }},
	}
}
