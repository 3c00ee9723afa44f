package ivp

import (
	"fmt"
	"strings"

	"github.com/san-kum/odegrad/internal/tensor"
)

// Options selects and tunes a stepping strategy. Zero values are replaced
// by the defaults, so Options{} means adaptive rk45.
type Options struct {
	// Method names the stepping strategy, case-insensitive:
	// rk4, rk38, rk23, rk45.
	Method string

	// RTol and ATol bound the local error of the adaptive strategies.
	RTol float64
	ATol float64

	// MaxSteps caps the internal sub-steps an adaptive strategy may take
	// across one solve before failing with ErrNonConvergence.
	MaxSteps int

	// Observer, when set, receives every produced grid sample during the
	// forward sweep.
	Observer func(i int, t float64, y *tensor.Tensor)
}

func (o Options) withDefaults() Options {
	if o.Method == "" {
		o.Method = "rk45"
	}
	if o.RTol == 0 {
		o.RTol = 1e-8
	}
	if o.ATol == 0 {
		o.ATol = 1e-8
	}
	if o.MaxSteps == 0 {
		o.MaxSteps = 100000
	}
	return o
}

// rhsFunc is a right-hand side bound to its parameters and flattened to a
// single state tensor. Stepping strategies see nothing else.
type rhsFunc func(t float64, y *tensor.Tensor) (*tensor.Tensor, error)

// stepper produces one state sample per time-grid entry, the first being
// y0 itself. No gradients flow through a stepper; differentiation happens
// at the solve boundary.
type stepper func(fn rhsFunc, ts []float64, y0 *tensor.Tensor, opts Options) ([]*tensor.Tensor, error)

var steppers = map[string]stepper{
	"rk4":  rk4IVP,
	"rk38": rk38IVP,
	"rk23": rk23IVP,
	"rk45": rk45IVP,
}

// Methods lists the registered stepping strategies.
func Methods() []string {
	return []string{"rk4", "rk38", "rk23", "rk45"}
}

func lookupMethod(name string) (stepper, error) {
	s, ok := steppers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown method %q", ErrConfiguration, name)
	}
	return s, nil
}

func observe(opts Options, i int, t float64, y *tensor.Tensor) {
	if opts.Observer != nil {
		opts.Observer(i, t, y)
	}
}
