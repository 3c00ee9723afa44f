// Package ivp solves initial value problems
//
//	y(t) = y0 + int_t0^t f(t', y, params...) dt'
//
// over a caller-supplied time grid, and differentiates the resulting
// trajectory with respect to the initial state, the grid points, and any
// tensor parameter by the adjoint method: instead of unrolling the stepper, the
// backward pass integrates an augmented system in reverse time, recursively
// reusing the forward machinery on each sub-interval.
package ivp

import (
	"fmt"

	"github.com/san-kum/odegrad/internal/editable"
	"github.com/san-kum/odegrad/internal/tensor"
)

// Operation is the editable-object operation name under which an RHS
// object's parameters are registered.
const Operation = "Eval"

// RHS is a right-hand side dy/dt = f(t, y, params...). t is a scalar
// tensor, y matches y0's shape, and the output must match y. An RHS that
// also implements editable.Editable has its unique parameters included
// among the differentiated inputs, and the backward pass re-invokes it
// with perturbed parameter copies substituted into the object.
type RHS interface {
	Eval(t, y *tensor.Tensor, params ...any) (*tensor.Tensor, error)
}

// Func adapts a plain function to RHS.
type Func func(t, y *tensor.Tensor, params ...any) (*tensor.Tensor, error)

func (f Func) Eval(t, y *tensor.Tensor, params ...any) (*tensor.Tensor, error) {
	return f(t, y, params...)
}

// ListRHS is a right-hand side over a fixed-order list-valued state.
type ListRHS interface {
	EvalList(t *tensor.Tensor, y []*tensor.Tensor, params ...any) ([]*tensor.Tensor, error)
}

// ListFunc adapts a plain function to ListRHS.
type ListFunc func(t *tensor.Tensor, y []*tensor.Tensor, params ...any) ([]*tensor.Tensor, error)

func (f ListFunc) EvalList(t *tensor.Tensor, y []*tensor.Tensor, params ...any) ([]*tensor.Tensor, error) {
	return f(t, y, params...)
}

// Solve integrates fn over the time grid ts from y0 and returns one state
// sample per grid entry, yt[0] being y0. params may mix tensors and plain
// values; only tensors are differentiated, and tensors appearing through
// an editable RHS object are deduplicated before registration. fwd selects
// the forward stepping strategy; bck is used as both the forward and
// backward configuration of every recursive adjoint sub-solve.
func Solve(fn RHS, ts, y0 *tensor.Tensor, params []any, fwd, bck Options) ([]*tensor.Tensor, error) {
	if err := validateGrid(ts); err != nil {
		return nil, err
	}
	obj, _ := fn.(editable.Editable)
	bound := boundRHS{
		eval: func(t, y *tensor.Tensor, params []any) (*tensor.Tensor, error) {
			return fn.Eval(t, y, params...)
		},
		obj: obj,
	}
	return solveFlat(bound, ts, y0, params, fwd, bck)
}

// SolveList is Solve for list-valued states: y0 is a fixed-order list of
// tensors, fn returns the derivative of each. Internally the state is
// flattened to a single tensor so all engine math is uniform.
func SolveList(fn ListRHS, ts *tensor.Tensor, y0 []*tensor.Tensor, params []any, fwd, bck Options) ([][]*tensor.Tensor, error) {
	if err := validateGrid(ts); err != nil {
		return nil, err
	}
	packer := NewPacker(y0)
	y0flat, err := packer.Flatten(y0)
	if err != nil {
		return nil, err
	}

	// Probe once: the derivative list must mirror the state list.
	probe, err := fn.EvalList(tensor.Scalar(ts.At(0)), detachAll(y0), params...)
	if err != nil {
		return nil, err
	}
	if len(probe) != len(y0) {
		return nil, fmt.Errorf("%w: rhs returned %d tensors for a %d-tensor state",
			ErrConfiguration, len(probe), len(y0))
	}

	obj, _ := fn.(editable.Editable)
	bound := boundRHS{
		eval: func(t, y *tensor.Tensor, params []any) (*tensor.Tensor, error) {
			res, err := fn.EvalList(t, packer.Split(y), params...)
			if err != nil {
				return nil, err
			}
			return packer.Flatten(res)
		},
		obj: obj,
	}
	yt, err := solveFlat(bound, ts, y0flat, params, fwd, bck)
	if err != nil {
		return nil, err
	}
	out := make([][]*tensor.Tensor, len(yt))
	for i, y := range yt {
		out[i] = packer.Split(y)
	}
	return out, nil
}

// Gradients differentiates a scalar loss with respect to an ordered
// parameter list that may mix tensors and plain values. Non-tensor
// positions receive explicit zero gradients, never absent entries.
func Gradients(loss *tensor.Tensor, params []any, opts tensor.GradOptions) ([]*tensor.Tensor, error) {
	sep := NewSeparator(params)
	gs, err := tensor.Grad(loss, nil, sep.Tensors(), opts)
	if err != nil {
		return nil, err
	}
	return sep.ReconstructGrads(gs), nil
}

// boundRHS is an RHS evaluation bound to an optional editable object.
type boundRHS struct {
	eval func(t, y *tensor.Tensor, params []any) (*tensor.Tensor, error)
	obj  editable.Editable
}

// call evaluates the right-hand side. allparams holds the explicit
// parameters followed by the object's unique parameters; the latter are
// substituted into the object for the duration of the evaluation.
func (b boundRHS) call(t, y *tensor.Tensor, allparams []any, nParams int) (*tensor.Tensor, error) {
	params := allparams[:nParams]
	if b.obj == nil {
		return b.eval(t, y, params)
	}
	objParams, err := tensorsOf(allparams[nParams:])
	if err != nil {
		return nil, err
	}
	var out *tensor.Tensor
	err = editable.Scoped(b.obj, Operation, objParams, func() error {
		var e error
		out, e = b.eval(t, y, params)
		return e
	})
	return out, err
}

// Solve lifecycle.
const (
	phaseCreated = iota
	phaseForwardRun
	phaseBackwardRun
	phaseDone
)

type solveCtx struct {
	bound     boundRHS
	nParams   int
	sep       *Separator
	tparams   []*tensor.Tensor
	tsData    []float64
	tsShape   []int
	tsTracked bool
	yt        []*tensor.Tensor
	bck       Options
	phase     int
}

func solveFlat(bound boundRHS, ts, y0 *tensor.Tensor, params []any, fwd, bck Options) ([]*tensor.Tensor, error) {
	fwd, bck = fwd.withDefaults(), bck.withDefaults()
	step, err := lookupMethod(fwd.Method)
	if err != nil {
		return nil, err
	}
	if _, err := lookupMethod(bck.Method); err != nil {
		return nil, err
	}

	allparams := append([]any(nil), params...)
	if bound.obj != nil {
		objParams, err := editable.UniqueParams(bound.obj, Operation)
		if err != nil {
			return nil, err
		}
		for _, p := range objParams {
			allparams = append(allparams, p)
		}
	}
	sep := NewSeparator(allparams)
	tparams := sep.Tensors()

	// The forward sweep runs fully detached: gradients reach the caller
	// through the adjoint rule registered below, never by unrolling.
	detParams, err := sep.Reconstruct(detachAll(tparams))
	if err != nil {
		return nil, err
	}
	flat := func(t float64, y *tensor.Tensor) (*tensor.Tensor, error) {
		out, err := bound.call(tensor.Scalar(t), y, detParams, len(params))
		if err != nil {
			return nil, err
		}
		return out.Detach(), nil
	}

	tsData := append([]float64(nil), ts.Data()...)
	y0d := untrackedCopy(y0)

	// Probe the output shape before committing to a full sweep.
	f0, err := flat(tsData[0], y0d)
	if err != nil {
		return nil, err
	}
	if !shapeEqual(f0.Shape(), y0.Shape()) {
		return nil, fmt.Errorf("%w: rhs output shape %v does not match state shape %v",
			ErrConfiguration, f0.Shape(), y0.Shape())
	}

	ctx := &solveCtx{
		bound:     bound,
		nParams:   len(params),
		sep:       sep,
		tparams:   tparams,
		tsData:    tsData,
		tsShape:   ts.Shape(),
		tsTracked: ts.Tracked(),
		bck:       bck,
		phase:     phaseCreated,
	}

	yt, err := step(flat, tsData, y0d, fwd)
	if err != nil {
		return nil, err
	}
	ctx.yt = yt
	ctx.phase = phaseForwardRun

	inputs := append([]*tensor.Tensor{ts, y0}, tparams...)
	tensor.CustomOp(inputs, yt, ctx.backward)
	return yt, nil
}

func validateGrid(ts *tensor.Tensor) error {
	if ts.Dims() != 1 {
		return fmt.Errorf("%w: time grid must be 1-D, got shape %v", ErrConfiguration, ts.Shape())
	}
	n := ts.Size()
	if n < 1 {
		return fmt.Errorf("%w: time grid is empty", ErrConfiguration)
	}
	data := ts.Data()
	if n >= 2 {
		dir := data[1] - data[0]
		if dir == 0 {
			return fmt.Errorf("%w: time grid must be strictly monotonic", ErrConfiguration)
		}
		for i := 0; i+1 < n; i++ {
			if (data[i+1]-data[i])*dir <= 0 {
				return fmt.Errorf("%w: time grid must be strictly monotonic", ErrConfiguration)
			}
		}
	}
	return nil
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func detachAll(ts []*tensor.Tensor) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(ts))
	for i, t := range ts {
		out[i] = t.Detach()
	}
	return out
}

func untrackedCopy(t *tensor.Tensor) *tensor.Tensor {
	return t.Detach().Clone()
}

func tensorsOf(ps []any) ([]*tensor.Tensor, error) {
	out := make([]*tensor.Tensor, len(ps))
	for i, p := range ps {
		t, ok := p.(*tensor.Tensor)
		if !ok {
			return nil, fmt.Errorf("%w: parameter %d is %T, expected tensor", ErrConfiguration, i, p)
		}
		out[i] = t
	}
	return out, nil
}

func anySlice(ts []*tensor.Tensor) []any {
	out := make([]any, len(ts))
	for i, t := range ts {
		out[i] = t
	}
	return out
}
