package ivp

import (
	"fmt"

	"github.com/san-kum/odegrad/internal/tensor"
)

// backward is the adjoint rule registered over a forward solve. Given one
// upstream cotangent per trajectory sample it walks the time grid in
// reverse, integrating the augmented state
//
//	(y, adjointY, adjointT, adjointParam_1..k)
//
// over each consecutive grid pair by recursively invoking the solver on
// that sub-interval, and returns cotangents for (ts, y0, tensorParams...).
// track keeps the computation connected for gradient-of-gradient queries.
func (c *solveCtx) backward(cots []*tensor.Tensor, track bool) ([]*tensor.Tensor, error) {
	c.phase = phaseBackwardRun
	nt := len(c.tsData)
	k := len(c.tparams)

	mb := func(t *tensor.Tensor) *tensor.Tensor {
		if track {
			return t
		}
		return t.Detach()
	}
	cotAt := func(i int) *tensor.Tensor {
		if cots[i] == nil {
			return tensor.ZerosLike(c.yt[i])
		}
		return mb(cots[i])
	}

	// Without a higher-order chain the recursion must not hang the
	// parameter graph off its results; gradients reach the parameters
	// numerically through the adjointParam slots.
	subParams := c.tparams
	if !track {
		subParams = detachAll(subParams)
	}

	state := make([]*tensor.Tensor, 3+k)
	state[0] = mb(c.yt[nt-1])
	state[1] = cotAt(nt - 1)
	state[2] = tensor.Scalar(0)
	for j, p := range c.tparams {
		state[3+j] = tensor.ZerosLike(p)
	}

	var gradTs []*tensor.Tensor
	if c.tsTracked {
		gradTs = make([]*tensor.Tensor, nt)
	}

	// Augmented right-hand side: dy/dt is f itself; every adjoint slot
	// moves by the negated vector-Jacobian product of a single fresh
	// evaluation of f, never a materialized Jacobian.
	augFn := ListFunc(func(t *tensor.Tensor, st []*tensor.Tensor, ps ...any) ([]*tensor.Tensor, error) {
		tps, err := tensorsOf(ps)
		if err != nil {
			return nil, err
		}
		f, tc, yc, tpc, err := c.evalFresh(t.Float(), st[0], tps, track)
		if err != nil {
			return nil, err
		}
		cot := tensor.Neg(st[1])
		wrt := append([]*tensor.Tensor{yc, tc}, tpc...)
		grads, err := tensor.Grad(f, cot, wrt, tensor.GradOptions{CreateGraph: track})
		if err != nil {
			return nil, err
		}
		if !track {
			f = f.Detach()
		}
		out := append([]*tensor.Tensor{f}, grads...)
		return out, nil
	})

	for i := 0; i+1 < nt; i++ {
		idx := nt - 1 - i
		next := idx - 1

		if c.tsTracked {
			// The sample at idx contributes grad(ts[idx]) = <f, upstream>.
			f, _, _, _, err := c.evalFresh(c.tsData[idx], state[0], subParams, track)
			if err != nil {
				return nil, err
			}
			if !track {
				f = f.Detach()
			}
			dLdt1 := tensor.Dot(f, cotAt(idx))
			gradTs[idx] = tensor.Reshape(dLdt1, 1)
			state[2] = tensor.Sub(state[2], dLdt1)
		}

		pair := tensor.New([]float64{c.tsData[idx], c.tsData[next]})
		outs, err := SolveList(augFn, pair, state, anySlice(subParams), c.bck, c.bck)
		if err != nil {
			return nil, fmt.Errorf("backward sub-step %d->%d: %w", idx, next, err)
		}
		state = outs[len(outs)-1]

		// Re-anchor y on the stored forward trajectory so the two
		// independently solved trajectories cannot drift apart, and fold
		// in the upstream cotangent this sample carries on its own.
		state[0] = mb(c.yt[next])
		state[1] = tensor.Add(cotAt(next), state[1])
	}

	res := make([]*tensor.Tensor, 2+k)
	if c.tsTracked {
		gradTs[0] = tensor.Reshape(state[2], 1)
		res[0] = tensor.Reshape(tensor.Concat(gradTs...), c.tsShape...)
	}
	res[1] = state[1]
	copy(res[2:], state[3:])
	c.phase = phaseDone
	return res, nil
}

// evalFresh evaluates the right-hand side on gradient-tracked copies of
// the state, time, and parameters, so differentiating it retains nothing
// of the surrounding history. With track set the copies stay connected to
// their originals instead, keeping a higher-order chain intact.
func (c *solveCtx) evalFresh(tval float64, y *tensor.Tensor, tps []*tensor.Tensor, track bool) (f, tc, yc *tensor.Tensor, tpc []*tensor.Tensor, err error) {
	tc = tensor.Scalar(tval).Leaf()
	tpc = make([]*tensor.Tensor, len(tps))
	if track {
		yc = connectedClone(y)
		for i, p := range tps {
			tpc[i] = connectedClone(p)
		}
	} else {
		yc = untrackedCopy(y).Leaf()
		for i, p := range tps {
			tpc[i] = untrackedCopy(p).Leaf()
		}
	}
	allparams, err := c.sep.Reconstruct(tpc)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	f, err = c.bound.call(tc, yc, allparams, c.nParams)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return f, tc, yc, tpc, nil
}

func connectedClone(t *tensor.Tensor) *tensor.Tensor {
	cl := t.Clone()
	if !cl.Tracked() {
		cl = cl.Leaf()
	}
	return cl
}
