package models

import (
	"fmt"

	"github.com/san-kum/odegrad/internal/editable"
	"github.com/san-kum/odegrad/internal/ivp"
	"github.com/san-kum/odegrad/internal/tensor"
)

// CoupledSprings is two masses in a line, state [x1, v1, x2, v2]. The
// wall spring and the coupling spring share the same stiffness tensor,
// so K appears at two positions in the parameter list. The deduplicated
// parameter view collapses the two positions onto one gradient.
type CoupledSprings struct {
	K, M1, M2 *tensor.Tensor
}

func NewCoupledSprings(k, m1, m2 float64) *CoupledSprings {
	return &CoupledSprings{K: tensor.Scalar(k), M1: tensor.Scalar(m1), M2: tensor.Scalar(m2)}
}

func (s *CoupledSprings) StateDim() int           { return 4 }
func (s *CoupledSprings) DefaultState() []float64 { return []float64{1.0, 0.0, -0.5, 0.0} }

func (s *CoupledSprings) Eval(t, y *tensor.Tensor, _ ...any) (*tensor.Tensor, error) {
	x1 := tensor.Narrow(y, 0, 1)
	v1 := tensor.Narrow(y, 1, 1)
	x2 := tensor.Narrow(y, 2, 1)
	v2 := tensor.Narrow(y, 3, 1)
	stretch := tensor.Sub(x2, x1)
	a1 := tensor.Div(tensor.Add(tensor.Neg(tensor.Mul(s.K, x1)), tensor.Mul(s.K, stretch)), s.M1)
	a2 := tensor.Div(tensor.Neg(tensor.Mul(s.K, stretch)), s.M2)
	return tensor.Concat(v1, a1, v2, a2), nil
}

func (s *CoupledSprings) GetParams(op string) []*tensor.Tensor {
	if op != ivp.Operation {
		return nil
	}
	// K is listed once per spring term it drives.
	return []*tensor.Tensor{s.K, s.M1, s.K, s.M2}
}

func (s *CoupledSprings) SetParams(op string, params ...*tensor.Tensor) (int, error) {
	if op != ivp.Operation {
		return 0, fmt.Errorf("springs: unknown operation: %s", op)
	}
	if len(params) < 4 {
		return 0, fmt.Errorf("springs: want 4 parameters, got %d", len(params))
	}
	s.K, s.M1, s.M2 = params[0], params[1], params[3]
	return 4, nil
}

func (s *CoupledSprings) ParamManifest() []editable.ParamSlot {
	return []editable.ParamSlot{
		{Name: "k", Get: func() *tensor.Tensor { return s.K }, Set: func(t *tensor.Tensor) { s.K = t }},
		{Name: "m1", Get: func() *tensor.Tensor { return s.M1 }, Set: func(t *tensor.Tensor) { s.M1 = t }},
		{Name: "m2", Get: func() *tensor.Tensor { return s.M2 }, Set: func(t *tensor.Tensor) { s.M2 = t }},
	}
}
