package editable

import (
	"errors"
	"fmt"
	"testing"

	"github.com/san-kum/odegrad/internal/tensor"
)

// widget aliases its gain tensor at two positions of the parameter list,
// like an object that feeds the same tensor into two terms.
type widget struct {
	gain *tensor.Tensor
	bias *tensor.Tensor
}

func newWidget() *widget {
	return &widget{gain: tensor.Scalar(2), bias: tensor.Scalar(1)}
}

func (w *widget) output() *tensor.Tensor {
	// gain enters twice, matching its two parameter positions.
	return tensor.Add(tensor.Mul(w.gain, w.gain), w.bias)
}

func (w *widget) GetParams(op string) []*tensor.Tensor {
	if op != "output" {
		return nil
	}
	return []*tensor.Tensor{w.gain, w.bias, w.gain}
}

func (w *widget) SetParams(op string, params ...*tensor.Tensor) (int, error) {
	if op != "output" {
		return 0, fmt.Errorf("widget: unknown operation: %s", op)
	}
	if len(params) < 3 {
		return 0, fmt.Errorf("widget: want 3 params, got %d", len(params))
	}
	w.gain, w.bias = params[0], params[1]
	return 3, nil
}

func (w *widget) ParamManifest() []ParamSlot {
	return []ParamSlot{
		{Name: "gain", Get: func() *tensor.Tensor { return w.gain }, Set: func(t *tensor.Tensor) { w.gain = t }},
		{Name: "bias", Get: func() *tensor.Tensor { return w.bias }, Set: func(t *tensor.Tensor) { w.bias = t }},
	}
}

func TestUniqueParamsDeduplicates(t *testing.T) {
	w := newWidget()
	defer Forget(w)

	unique, err := UniqueParams(w, "output")
	if err != nil {
		t.Fatal(err)
	}
	if len(unique) != 2 {
		t.Fatalf("expected 2 unique params, got %d", len(unique))
	}
	if unique[0] != w.gain || unique[1] != w.bias {
		t.Error("unique params should preserve first-occurrence order")
	}
}

func TestSetUniqueParamsExpandsAliases(t *testing.T) {
	w := newWidget()
	defer Forget(w)

	g := tensor.Scalar(5)
	b := tensor.Scalar(7)
	n, err := SetUniqueParams(w, "output", g, b)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 consumed, got %d", n)
	}
	if w.gain != g || w.bias != b {
		t.Error("parameters not written back")
	}
	if got := w.output().Float(); got != 32 {
		t.Errorf("expected 5*5+7=32, got %v", got)
	}
}

func TestSetUniqueParamsTooFew(t *testing.T) {
	w := newWidget()
	defer Forget(w)

	_, err := SetUniqueParams(w, "output", tensor.Scalar(1))
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("expected ErrProtocol, got %v", err)
	}
}

// shifty changes its parameter count between calls, which the index
// cache must detect.
type shifty struct {
	params []*tensor.Tensor
}

func (s *shifty) GetParams(op string) []*tensor.Tensor { return s.params }
func (s *shifty) SetParams(op string, params ...*tensor.Tensor) (int, error) {
	copy(s.params, params[:len(s.params)])
	return len(s.params), nil
}

func TestCountDriftDetected(t *testing.T) {
	s := &shifty{params: []*tensor.Tensor{tensor.Scalar(1), tensor.Scalar(2)}}
	defer Forget(s)

	if _, err := UniqueParams(s, "op"); err != nil {
		t.Fatal(err)
	}

	s.params = append(s.params, tensor.Scalar(3))
	_, err := UniqueParams(s, "op")
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol after count drift, got %v", err)
	}

	// Forget clears the stale index so the new layout is accepted.
	Forget(s)
	if _, err := UniqueParams(s, "op"); err != nil {
		t.Fatal(err)
	}
}

// miser under-consumes in SetParams.
type miser struct {
	a, b *tensor.Tensor
}

func (m *miser) GetParams(op string) []*tensor.Tensor { return []*tensor.Tensor{m.a, m.b} }
func (m *miser) SetParams(op string, params ...*tensor.Tensor) (int, error) {
	m.a = params[0]
	return 1, nil
}

func TestShortSetParamsDetected(t *testing.T) {
	m := &miser{a: tensor.Scalar(1), b: tensor.Scalar(2)}
	defer Forget(m)

	_, err := SetUniqueParams(m, "op", tensor.Scalar(3), tensor.Scalar(4))
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("expected ErrProtocol for short SetParams, got %v", err)
	}
}

func TestScopedRestores(t *testing.T) {
	w := newWidget()
	defer Forget(w)

	origGain, origBias := w.gain, w.bias
	sub := []*tensor.Tensor{tensor.Scalar(10), tensor.Scalar(20)}

	var inside float64
	err := Scoped(w, "output", sub, func() error {
		inside = w.output().Float()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if inside != 120 {
		t.Errorf("expected 10*10+20=120 inside scope, got %v", inside)
	}
	if w.gain != origGain || w.bias != origBias {
		t.Error("originals not restored after scope")
	}
}

func TestScopedPropagatesError(t *testing.T) {
	w := newWidget()
	defer Forget(w)

	origGain := w.gain
	boom := errors.New("boom")
	err := Scoped(w, "output", []*tensor.Tensor{tensor.Scalar(1), tensor.Scalar(2)}, func() error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("scope must propagate the callback error, got %v", err)
	}
	if w.gain != origGain {
		t.Error("originals not restored after failing scope")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	w := newWidget()
	defer Forget(w)

	snap, err := TakeSnapshot(w, "output")
	if err != nil {
		t.Fatal(err)
	}
	orig := snap.Params()

	if _, err := SetUniqueParams(w, "output", tensor.Scalar(9), tensor.Scalar(9)); err != nil {
		t.Fatal(err)
	}
	if err := snap.Restore(); err != nil {
		t.Fatal(err)
	}
	if w.gain != orig[0] || w.bias != orig[1] {
		t.Error("snapshot restore did not reinstate originals")
	}
}

func TestCacheEvictsTransientObjects(t *testing.T) {
	keep := newWidget()
	defer Forget(keep)
	if _, err := UniqueParams(keep, "output"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3*cacheLimit; i++ {
		w := newWidget()
		if _, err := UniqueParams(w, "output"); err != nil {
			t.Fatal(err)
		}
	}

	cacheMu.Lock()
	n := len(cache)
	cacheMu.Unlock()
	if n > cacheLimit {
		t.Fatalf("cache holds %d entries, cap is %d", n, cacheLimit)
	}

	// A surviving or evicted-and-rebuilt index must behave identically.
	unique, err := UniqueParams(keep, "output")
	if err != nil {
		t.Fatal(err)
	}
	if len(unique) != 2 || unique[0] != keep.gain || unique[1] != keep.bias {
		t.Error("dedup result changed after eviction pressure")
	}
}
