package models

import (
	"fmt"
	"sort"

	"github.com/san-kum/odegrad/internal/editable"
	"github.com/san-kum/odegrad/internal/ivp"
)

// System is a dynamical system the solver can both integrate and
// differentiate. StateDim and DefaultState exist for the CLI, which has
// to construct initial conditions without knowing the model.
type System interface {
	ivp.RHS
	editable.Editable
	editable.Manifested
	StateDim() int
	DefaultState() []float64
}

var registry = map[string]func(params map[string]float64) System{
	"decay":    func(p map[string]float64) System { return NewDecay(getOr(p, "k", 0.5)) },
	"pendulum": func(p map[string]float64) System { return NewPendulum(getOr(p, "g", 9.81), getOr(p, "l", 1.0), getOr(p, "damping", 0.1)) },
	"lorenz":   func(p map[string]float64) System { return NewLorenz(getOr(p, "sigma", 10.0), getOr(p, "rho", 28.0), getOr(p, "beta", 8.0/3.0)) },
	"springs":  func(p map[string]float64) System { return NewCoupledSprings(getOr(p, "k", 4.0), getOr(p, "m1", 1.0), getOr(p, "m2", 1.5)) },
}

func getOr(p map[string]float64, key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// New builds a registered model, filling parameters absent from params
// with the model's defaults.
func New(name string, params map[string]float64) (System, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", name)
	}
	return fn(params), nil
}

// List returns the registered model names, sorted.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
