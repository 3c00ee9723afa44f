// Package optim fits the parameters of a differentiable dynamical system
// to a target trajectory by plain gradient descent, with every gradient
// coming from the adjoint solve rather than parameter sweeps.
package optim

import (
	"context"
	"errors"
	"fmt"

	"github.com/san-kum/odegrad/internal/editable"
	"github.com/san-kum/odegrad/internal/ivp"
	"github.com/san-kum/odegrad/internal/tensor"
)

// Problem describes one fitting task: solve RHS over TS from Y0 and match
// Target, one tensor per grid point. RHS must expose its parameters
// through the editable protocol; those are what gets optimized.
type Problem struct {
	RHS    ivp.RHS
	TS     *tensor.Tensor
	Y0     *tensor.Tensor
	Target []*tensor.Tensor
	Fwd    ivp.Options
	Bck    ivp.Options
}

// Options tunes the descent loop.
type Options struct {
	LearningRate float64
	MaxIters     int
	Tol          float64
}

func (o Options) withDefaults() Options {
	if o.LearningRate == 0 {
		o.LearningRate = 0.1
	}
	if o.MaxIters == 0 {
		o.MaxIters = 100
	}
	return o
}

// Result reports the loss trace of a fit. The fitted parameter values
// live in the RHS object itself.
type Result struct {
	Loss  []float64
	Iters int
}

// Fit runs gradient descent on the squared trajectory mismatch. Each
// iteration does one forward solve, one adjoint backward, and writes the
// stepped parameters back through the deduplicated protocol view, so a
// tensor aliased at several positions receives a single combined update.
func Fit(ctx context.Context, p Problem, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	obj, ok := p.RHS.(editable.Editable)
	if !ok {
		return nil, errors.New("optim: rhs does not expose editable parameters")
	}
	if p.TS.Size() != len(p.Target) {
		return nil, fmt.Errorf("optim: %d targets for a %d-point grid", len(p.Target), p.TS.Size())
	}

	res := &Result{}
	for iter := 0; iter < opts.MaxIters; iter++ {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}
		res.Iters = iter + 1

		params, err := editable.UniqueParams(obj, ivp.Operation)
		if err != nil {
			return res, err
		}
		for _, q := range params {
			q.Leaf()
		}

		yt, err := ivp.Solve(p.RHS, p.TS, p.Y0, nil, p.Fwd, p.Bck)
		if err != nil {
			return res, err
		}

		var loss *tensor.Tensor
		for i, y := range yt {
			d := tensor.Sub(y, p.Target[i].Detach())
			sq := tensor.Sum(tensor.Mul(d, d))
			if loss == nil {
				loss = sq
			} else {
				loss = tensor.Add(loss, sq)
			}
		}
		res.Loss = append(res.Loss, loss.Float())
		if opts.Tol > 0 && loss.Float() < opts.Tol {
			return res, nil
		}

		grads, err := tensor.Grad(loss, nil, params, tensor.GradOptions{})
		if err != nil {
			return res, err
		}

		stepped := make([]*tensor.Tensor, len(params))
		for i, q := range params {
			stepped[i] = tensor.AddScaled(q.Detach(), grads[i], -opts.LearningRate)
		}
		if _, err := editable.SetUniqueParams(obj, ivp.Operation, stepped...); err != nil {
			return res, err
		}
	}
	return res, nil
}
