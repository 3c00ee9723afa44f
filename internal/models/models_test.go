package models

import (
	"math"
	"testing"

	"github.com/san-kum/odegrad/internal/editable"
	"github.com/san-kum/odegrad/internal/ivp"
	"github.com/san-kum/odegrad/internal/tensor"
)

func TestRegistry(t *testing.T) {
	names := List()
	if len(names) == 0 {
		t.Fatal("no models registered")
	}
	for _, name := range names {
		m, err := New(name, nil)
		if err != nil {
			t.Fatalf("building %s: %v", name, err)
		}
		if got := len(m.DefaultState()); got != m.StateDim() {
			t.Errorf("%s: default state has %d components, StateDim says %d", name, got, m.StateDim())
		}
	}

	if _, err := New("warpdrive", nil); err == nil {
		t.Error("expected error for unknown model")
	}
}

func TestRegistryParamOverride(t *testing.T) {
	m, err := New("decay", map[string]float64{"k": 2.5})
	if err != nil {
		t.Fatal(err)
	}
	if got := m.(*Decay).K.Float(); got != 2.5 {
		t.Errorf("expected k=2.5, got %v", got)
	}
}

func TestDecayDerivative(t *testing.T) {
	d := NewDecay(0.5)
	f, err := d.Eval(tensor.Scalar(0), tensor.Scalar(4))
	if err != nil {
		t.Fatal(err)
	}
	if got := f.Float(); got != -2 {
		t.Errorf("expected -k*y = -2, got %v", got)
	}
}

func TestPendulumDerivative(t *testing.T) {
	p := NewPendulum(9.81, 1.0, 0.0)
	y := tensor.New([]float64{math.Pi / 6, 2}, 2)
	f, err := p.Eval(tensor.Scalar(0), y)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.At(0); got != 2 {
		t.Errorf("d theta/dt should equal omega, got %v", got)
	}
	want := -9.81 * math.Sin(math.Pi/6)
	if math.Abs(f.At(1)-want) > 1e-12 {
		t.Errorf("expected acceleration %v, got %v", want, f.At(1))
	}
}

func TestLorenzDerivative(t *testing.T) {
	l := NewLorenz(10, 28, 8.0/3)
	f, err := l.Eval(tensor.Scalar(0), tensor.New([]float64{1, 2, 3}, 3))
	if err != nil {
		t.Fatal(err)
	}
	if got := f.At(0); got != 10 {
		t.Errorf("expected sigma*(y-x)=10, got %v", got)
	}
	if got := f.At(1); got != 1*(28-3)-2 {
		t.Errorf("expected 23, got %v", got)
	}
	if want := 1*2 - 8.0/3*3; math.Abs(f.At(2)-want) > 1e-12 {
		t.Errorf("expected %v, got %v", want, f.At(2))
	}
}

func TestSpringsAliasedStiffness(t *testing.T) {
	s := NewCoupledSprings(4, 1, 1.5)

	params := s.GetParams(ivp.Operation)
	if len(params) != 4 {
		t.Fatalf("expected 4 parameter positions, got %d", len(params))
	}
	if params[0] != params[2] {
		t.Error("stiffness must be the identical tensor at both positions")
	}

	unique, err := editable.UniqueParams(s, ivp.Operation)
	if err != nil {
		t.Fatal(err)
	}
	defer editable.Forget(s)
	if len(unique) != 3 {
		t.Errorf("expected 3 unique params after dedup, got %d", len(unique))
	}
}

func TestSpringsGradientThroughSharedStiffness(t *testing.T) {
	s := NewCoupledSprings(4, 1, 1.5)
	defer editable.Forget(s)
	s.K.Leaf()

	ts := tensor.Linspace(0, 0.5, 2)
	y0 := tensor.New(s.DefaultState(), 4)
	yt, err := ivp.Solve(s, ts, y0, nil, ivp.Options{}, ivp.Options{})
	if err != nil {
		t.Fatal(err)
	}

	grads, err := tensor.Grad(tensor.Sum(yt[1]), nil, []*tensor.Tensor{s.K}, tensor.GradOptions{})
	if err != nil {
		t.Fatal(err)
	}
	adj := grads[0].Float()

	// Central finite difference over a rebuilt model.
	loss := func(k float64) float64 {
		m := NewCoupledSprings(k, 1, 1.5)
		yt, err := ivp.Solve(m, ts, y0.Detach(), nil, ivp.Options{}, ivp.Options{})
		if err != nil {
			t.Fatal(err)
		}
		return tensor.Sum(yt[1]).Float()
	}
	const eps = 1e-6
	fd := (loss(4+eps) - loss(4-eps)) / (2 * eps)
	if math.Abs(adj-fd) > 1e-3*math.Max(math.Abs(fd), 1) {
		t.Errorf("adjoint %v vs finite difference %v", adj, fd)
	}
}

func TestModelsConformToProtocol(t *testing.T) {
	for _, name := range List() {
		m, err := New(name, nil)
		if err != nil {
			t.Fatal(err)
		}
		ts := tensor.Linspace(0, 0.2, 2)
		y0 := tensor.New(m.DefaultState(), m.StateDim())

		missing, err := editable.MissingParams(m, ivp.Operation, func() (*tensor.Tensor, error) {
			yt, err := ivp.Solve(m, ts, y0, nil, ivp.Options{}, ivp.Options{})
			if err != nil {
				return nil, err
			}
			return tensor.Sum(yt[1]), nil
		})
		editable.Forget(m)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(missing) != 0 {
			t.Errorf("%s: undeclared influencing params %v", name, missing)
		}
	}
}

func TestDecaySolveRoundTrip(t *testing.T) {
	m, err := New("decay", map[string]float64{"k": 1.0})
	if err != nil {
		t.Fatal(err)
	}
	ts := tensor.Linspace(0, 1, 3)
	yt, err := ivp.Solve(m, ts, tensor.New(m.DefaultState(), 1), nil, ivp.Options{}, ivp.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := yt[2].Float(), math.Exp(-1); math.Abs(got-want) > 1e-6 {
		t.Errorf("expected %v, got %v", want, got)
	}
}
